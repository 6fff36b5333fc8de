package eds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/akash1114/flowbuddy-schedule/internal/slot"
)

// LoadConflicts collects the occupied slots implied by device-calendar
// events inside the window. Only eligible calendars (reserved name or
// writable) are queried; each event start is keyed by local wall-clock
// time. Zero eligible calendars is not an error.
func (c *Client) LoadConflicts(ctx context.Context, reservedName string, windowStart, windowEnd time.Time) (slot.OccupiedMap, error) {
	calendars, err := c.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}

	eligible := EligibleCalendars(calendars, reservedName)
	conflicts := slot.NewOccupiedMap()
	if len(eligible) == 0 {
		return conflicts, nil
	}

	query := buildTimeRangeQuery(windowStart, windowEnd)
	factory := c.conn.Object(c.calendarService, dbus.ObjectPath("/org/gnome/evolution/dataserver/CalendarFactory"))

	failures := make([]string, 0)
	loadedAny := false

	for _, calendar := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payloads, queryErr := c.queryCalendar(factory, calendar.UID, query)
		if queryErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", calendar.Name, queryErr.Error()))
			continue
		}
		loadedAny = true

		for _, payload := range payloads {
			for _, start := range eventStarts(payload, windowStart, windowEnd) {
				local := start.In(time.Local)
				conflicts.Add(slot.DayKeyOf(local), slot.ClockKeyOf(local))
			}
		}
	}

	if !loadedAny && len(failures) > 0 {
		return nil, fmt.Errorf("query calendars: %s", strings.Join(failures, "; "))
	}
	return conflicts, nil
}

func (c *Client) queryCalendar(factory dbus.BusObject, sourceUID, query string) ([]string, error) {
	objectPath, busName, err := openCalendar(factory, sourceUID)
	if err != nil {
		return nil, err
	}

	calendarObj := c.conn.Object(busName, dbus.ObjectPath(objectPath))

	var properties []string
	if err := calendarObj.Call("org.gnome.evolution.dataserver.Calendar.Open", 0).Store(&properties); err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	defer func() {
		_ = calendarObj.Call("org.gnome.evolution.dataserver.Calendar.Close", 0)
	}()

	var payloads []string
	if err := calendarObj.Call("org.gnome.evolution.dataserver.Calendar.GetObjectList", 0, query).Store(&payloads); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return payloads, nil
}

func openCalendar(factory dbus.BusObject, sourceUID string) (objectPath string, busName string, err error) {
	if callErr := factory.Call("org.gnome.evolution.dataserver.CalendarFactory.OpenCalendar", 0, strings.TrimSpace(sourceUID)).Store(&objectPath, &busName); callErr != nil {
		return "", "", fmt.Errorf("OpenCalendar: %w", callErr)
	}
	if strings.TrimSpace(objectPath) == "" {
		return "", "", fmt.Errorf("OpenCalendar returned empty object path")
	}
	if strings.TrimSpace(busName) == "" {
		return "", "", fmt.Errorf("OpenCalendar returned empty bus name")
	}
	return objectPath, busName, nil
}

func buildTimeRangeQuery(windowStart, windowEnd time.Time) string {
	start := windowStart.UTC().Format("20060102T150405Z")
	end := windowEnd.UTC().Format("20060102T150405Z")
	return fmt.Sprintf("(occur-in-time-range? (make-time %q) (make-time %q))", start, end)
}
