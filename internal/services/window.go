package services

import (
	"fmt"
	"strings"
	"time"
)

// OperatingWindow is the time-of-day range in which scheduled ticks may
// run a cycle. End is inclusive to the minute.
type OperatingWindow struct {
	Start        time.Duration
	End          time.Duration
	Location     *time.Location
	WeekdaysOnly bool
}

// ParseOperatingWindow builds a window from "HH:MM" bounds. Empty bounds
// mean the whole day. A start after end spans midnight.
func ParseOperatingWindow(start, end string, loc *time.Location, weekdaysOnly bool) (OperatingWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	w := OperatingWindow{Location: loc, WeekdaysOnly: weekdaysOnly, End: 24*time.Hour - time.Minute}
	var err error
	if strings.TrimSpace(start) != "" {
		if w.Start, err = parseClock(start); err != nil {
			return OperatingWindow{}, fmt.Errorf("window start: %w", err)
		}
	}
	if strings.TrimSpace(end) != "" {
		if w.End, err = parseClock(end); err != nil {
			return OperatingWindow{}, fmt.Errorf("window end: %w", err)
		}
	}
	return w, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Allows reports whether a tick at now falls inside the window.
func (w OperatingWindow) Allows(now time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	if w.WeekdaysOnly {
		if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	tod := time.Duration(local.Hour())*time.Hour + time.Duration(local.Minute())*time.Minute
	if w.Start <= w.End {
		return tod >= w.Start && tod <= w.End
	}
	return tod >= w.Start || tod <= w.End
}

func (w OperatingWindow) String() string {
	format := func(d time.Duration) string {
		return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
	}
	s := format(w.Start) + "-" + format(w.End)
	if w.WeekdaysOnly {
		s += " weekdays"
	}
	return s
}
