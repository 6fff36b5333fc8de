package eds

import (
	"fmt"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"
)

// eventStarts extracts every event start inside the window from one ICS
// payload. Recurring events are expanded; events that fail to parse are
// skipped rather than failing the whole payload.
func eventStarts(payload string, windowStart, windowEnd time.Time) []time.Time {
	wrapped := "BEGIN:VCALENDAR\n" + strings.TrimSpace(payload) + "\nEND:VCALENDAR\n"
	parsed, err := ics.ParseCalendar(strings.NewReader(wrapped))
	if err != nil {
		return nil
	}

	starts := make([]time.Time, 0, 4)
	for _, event := range parsed.Events() {
		start, err := event.GetStartAt()
		if err != nil {
			continue
		}

		rule := strings.TrimSpace(propertyValue(event.GetProperty(ics.ComponentPropertyRrule)))
		if rule == "" {
			if inWindow(start, windowStart, windowEnd) {
				starts = append(starts, start)
			}
			continue
		}

		starts = append(starts, expandRecurrence(event, rule, start, windowStart, windowEnd)...)
	}

	sort.Slice(starts, func(i, j int) bool {
		return starts[i].Before(starts[j])
	})
	return starts
}

func expandRecurrence(event *ics.VEvent, rule string, dtstart, windowStart, windowEnd time.Time) []time.Time {
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return fallbackStart(dtstart, windowStart, windowEnd)
	}

	opt.Dtstart = dtstart
	parsed, err := rrule.NewRRule(*opt)
	if err != nil {
		return fallbackStart(dtstart, windowStart, windowEnd)
	}

	set := &rrule.Set{}
	set.RRule(parsed)
	for _, exdate := range collectDateTimes(event.GetProperties(ics.ComponentPropertyExdate)) {
		set.ExDate(exdate)
	}
	for _, rdate := range collectDateTimes(event.GetProperties(ics.ComponentPropertyRdate)) {
		set.RDate(rdate)
	}

	starts := set.Between(windowStart, windowEnd, true)
	if len(starts) == 0 {
		return fallbackStart(dtstart, windowStart, windowEnd)
	}
	return starts
}

func fallbackStart(start, windowStart, windowEnd time.Time) []time.Time {
	if inWindow(start, windowStart, windowEnd) {
		return []time.Time{start}
	}
	return nil
}

func inWindow(at, windowStart, windowEnd time.Time) bool {
	return !at.Before(windowStart) && !at.After(windowEnd)
}

func collectDateTimes(properties []*ics.IANAProperty) []time.Time {
	if len(properties) == 0 {
		return nil
	}

	results := make([]time.Time, 0, len(properties))
	for _, property := range properties {
		if property == nil {
			continue
		}
		for _, value := range strings.Split(property.Value, ",") {
			parsed, err := parseICSTimeValue(strings.TrimSpace(value), property.ICalParameters)
			if err != nil {
				continue
			}
			results = append(results, parsed)
		}
	}
	return results
}

func parseICSTimeValue(value string, params map[string][]string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}

	var location *time.Location
	if tzIDs, ok := params["TZID"]; ok && len(tzIDs) > 0 && strings.TrimSpace(tzIDs[0]) != "" {
		loaded, err := time.LoadLocation(strings.TrimSpace(tzIDs[0]))
		if err == nil {
			location = loaded
		}
	}

	layouts := []string{
		"20060102T150405Z",
		"20060102T1504Z",
		"20060102T150405",
		"20060102T1504",
		"20060102",
	}

	for _, layout := range layouts {
		if strings.HasSuffix(layout, "Z") {
			parsed, err := time.Parse(layout, trimmed)
			if err == nil {
				return parsed, nil
			}
			continue
		}

		loc := time.Local
		if location != nil {
			loc = location
		}

		parsed, err := time.ParseInLocation(layout, trimmed, loc)
		if err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time value %q", trimmed)
}

func propertyValue(property *ics.IANAProperty) string {
	if property == nil {
		return ""
	}
	return property.Value
}
