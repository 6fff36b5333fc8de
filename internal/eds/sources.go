package eds

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
	"gopkg.in/ini.v1"
)

type Calendar struct {
	UID      string
	Name     string
	Backend  string
	Enabled  bool
	Writable bool
}

func (c *Client) ListCalendars(ctx context.Context) ([]Calendar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sourceObj := c.conn.Object(c.sourceService, dbus.ObjectPath("/org/gnome/evolution/dataserver/SourceManager"))

	managed := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	if err := sourceObj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&managed); err != nil {
		return nil, fmt.Errorf("eds GetManagedObjects: %w", err)
	}

	calendars := make([]Calendar, 0, len(managed))
	for _, ifaceMap := range managed {
		sourceProps, ok := ifaceMap["org.gnome.evolution.dataserver.Source"]
		if !ok {
			continue
		}

		uid := variantString(sourceProps, "UID")
		data := variantString(sourceProps, "Data")
		if strings.TrimSpace(uid) == "" || strings.TrimSpace(data) == "" {
			continue
		}

		calendar, ok := parseCalendarSource(uid, data)
		if !ok {
			continue
		}
		calendars = append(calendars, calendar)
	}

	sort.SliceStable(calendars, func(i, j int) bool {
		nameI := strings.ToLower(calendars[i].Name)
		nameJ := strings.ToLower(calendars[j].Name)
		if nameI != nameJ {
			return nameI < nameJ
		}
		return calendars[i].UID < calendars[j].UID
	})

	return calendars, nil
}

// parseCalendarSource decodes one EDS source blob. Sources without a
// [Calendar] section (address books, mail accounts) are skipped.
func parseCalendarSource(uid, data string) (Calendar, bool) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
		AllowShadows:        true,
	}, []byte(data))
	if err != nil {
		return Calendar{}, false
	}

	calendarSection, err := cfg.GetSection("Calendar")
	if err != nil {
		return Calendar{}, false
	}

	dataSection := cfg.Section("Data Source")
	name := strings.TrimSpace(dataSection.Key("DisplayName").String())
	if name == "" {
		name = uid
	}

	enabled := parseBoolWithDefault(dataSection.Key("Enabled").String(), true) &&
		parseBoolWithDefault(calendarSection.Key("Enabled").String(), true)

	return Calendar{
		UID:      uid,
		Name:     name,
		Backend:  strings.TrimSpace(calendarSection.Key("BackendName").String()),
		Enabled:  enabled,
		Writable: !parseBoolWithDefault(calendarSection.Key("ReadOnly").String(), false),
	}, true
}

// EligibleCalendars keeps enabled calendars that either carry the reserved
// name used for app-created events or accept modifications.
func EligibleCalendars(calendars []Calendar, reservedName string) []Calendar {
	reserved := strings.TrimSpace(reservedName)

	eligible := make([]Calendar, 0, len(calendars))
	for _, calendar := range calendars {
		if !calendar.Enabled {
			continue
		}
		if reserved != "" && strings.TrimSpace(calendar.Name) == reserved {
			eligible = append(eligible, calendar)
			continue
		}
		if calendar.Writable {
			eligible = append(eligible, calendar)
		}
	}
	return eligible
}

func variantString(props map[string]dbus.Variant, key string) string {
	value, ok := props[key]
	if !ok {
		return ""
	}
	asString, ok := value.Value().(string)
	if !ok {
		return ""
	}
	return asString
}

func parseBoolWithDefault(value string, fallback bool) bool {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return fallback
	}
	return parsed
}
