package scan

import (
	"fmt"
	"strings"
	"time"
)

// DefaultMaxSpanDays is the widest date range PNCP accepts in one query.
const DefaultMaxSpanDays = 365

const (
	isoLayout  = "2006-01-02"
	pncpLayout = "20060102"
)

// Window is an inclusive range of calendar days.
type Window struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days covered, both ends included.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

func (w Window) String() string {
	return FormatPNCP(w.Start) + "-" + FormatPNCP(w.End)
}

// SplitWindows cuts [start, end] into consecutive windows of at most
// maxSpanDays days. Reversed bounds are swapped; at least one window is
// always returned.
func SplitWindows(start, end time.Time, maxSpanDays int) []Window {
	if maxSpanDays <= 0 {
		maxSpanDays = DefaultMaxSpanDays
	}
	start, end = day(start), day(end)
	if end.Before(start) {
		start, end = end, start
	}

	var windows []Window
	for cur := start; !cur.After(end); {
		winEnd := cur.AddDate(0, 0, maxSpanDays-1)
		if winEnd.After(end) {
			winEnd = end
		}
		windows = append(windows, Window{Start: cur, End: winEnd})
		cur = winEnd.AddDate(0, 0, 1)
	}
	return windows
}

// ParseDate accepts yyyy-mm-dd and yyyyMMdd.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	layout := isoLayout
	if !strings.Contains(s, "-") {
		layout = pncpLayout
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use yyyy-mm-dd)", s)
	}
	return t, nil
}

// FormatPNCP renders t as yyyyMMdd, the format PNCP query strings expect.
func FormatPNCP(t time.Time) string {
	return t.Format(pncpLayout)
}

// FormatISO renders t as yyyy-mm-dd.
func FormatISO(t time.Time) string {
	return t.Format(isoLayout)
}

// day truncates t to midnight UTC of its calendar date.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
