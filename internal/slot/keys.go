package slot

import (
	"strconv"
	"strings"
	"time"
)

const dayLayout = "2006-01-02"

func DayKey(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}

	if idx := strings.IndexAny(trimmed, "T "); idx > 0 {
		trimmed = trimmed[:idx]
	}

	parsed, err := time.Parse(dayLayout, trimmed)
	if err != nil {
		return "", false
	}
	return parsed.Format(dayLayout), true
}

func DayKeyOf(t time.Time) string {
	return t.Format(dayLayout)
}

func ClockKey(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}

	parts := strings.Split(trimmed, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return "", false
	}

	hour, ok := parseClockPart(parts[0], 23)
	if !ok {
		return "", false
	}
	minute, ok := parseClockPart(parts[1], 59)
	if !ok {
		return "", false
	}
	if len(parts) == 3 {
		if _, ok := parseClockPart(parts[2], 59); !ok {
			return "", false
		}
	}

	return formatClock(hour, minute), true
}

func ClockKeyOf(t time.Time) string {
	return formatClock(t.Hour(), t.Minute())
}

func parseClockPart(value string, max int) (int, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || len(trimmed) > 2 {
		return 0, false
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 || parsed > max {
		return 0, false
	}
	return parsed, true
}

func formatClock(hour, minute int) string {
	out := [5]byte{'0', '0', ':', '0', '0'}
	out[0] += byte(hour / 10)
	out[1] += byte(hour % 10)
	out[3] += byte(minute / 10)
	out[4] += byte(minute % 10)
	return string(out[:])
}
