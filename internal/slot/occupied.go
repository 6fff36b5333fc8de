package slot

import (
	"sort"
	"time"
)

// OccupiedMap maps a day key to the set of clock keys already spoken for on
// that day. Days without occupied slots are absent rather than empty.
type OccupiedMap map[string]map[string]struct{}

func NewOccupiedMap() OccupiedMap {
	return make(OccupiedMap)
}

func (m OccupiedMap) Add(day, clock string) {
	dayKey, ok := DayKey(day)
	if !ok {
		return
	}
	clockKey, ok := ClockKey(clock)
	if !ok {
		return
	}

	times := m[dayKey]
	if times == nil {
		times = make(map[string]struct{}, 4)
		m[dayKey] = times
	}
	times[clockKey] = struct{}{}
}

func (m OccupiedMap) Merge(other OccupiedMap) {
	for day, times := range other {
		for clock := range times {
			m.Add(day, clock)
		}
	}
}

// Taken reports whether the day+clock pair is occupied. Malformed day or
// clock values count as free, as do clock keys listed in ignore.
func (m OccupiedMap) Taken(day, clock string, ignore []string) bool {
	dayKey, ok := DayKey(day)
	if !ok {
		return false
	}
	clockKey, ok := ClockKey(clock)
	if !ok {
		return false
	}

	times, ok := m[dayKey]
	if !ok {
		return false
	}

	for _, skip := range ignore {
		skipKey, valid := ClockKey(skip)
		if !valid {
			continue
		}
		if skipKey == clockKey {
			return false
		}
	}

	_, taken := times[clockKey]
	return taken
}

func (m OccupiedMap) SlotCount() int {
	total := 0
	for _, times := range m {
		total += len(times)
	}
	return total
}

func (m OccupiedMap) Sorted() map[string][]string {
	out := make(map[string][]string, len(m))
	for day, times := range m {
		clocks := make([]string, 0, len(times))
		for clock := range times {
			clocks = append(clocks, clock)
		}
		sort.Strings(clocks)
		out[day] = clocks
	}
	return out
}

// Window returns the bounds of the lookahead window: the start of today in
// local time through the end of today+days.
func Window(now time.Time, days int) (start, end time.Time) {
	start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end = start.AddDate(0, 0, days+1).Add(-time.Second)
	return start, end
}
