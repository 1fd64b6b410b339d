package reservation

import "time"

// =============================================================================
// CALENDAR DATES - reservations care about the day, never the time
// =============================================================================

// DateLayout is the wire and storage format of a calendar date.
const DateLayout = "2006-01-02"

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// FormatDate renders the calendar date of t.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// CompareDates orders two calendar dates by year, month and day, ignoring
// time of day and location. Returns -1, 0 or 1.
func CompareDates(a, b time.Time) int {
	ka, kb := dateKey(a), dateKey(b)
	switch {
	case ka < kb:
		return -1
	case ka > kb:
		return 1
	default:
		return 0
	}
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool { return CompareDates(a, b) == 0 }

// AddDays moves a calendar date by n days, staying at midnight across DST.
func AddDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, t.Location())
}

// IsWeekend reports Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// DatesBetween lists every calendar date from start to end, both inclusive.
func DatesBetween(start, end time.Time) []time.Time {
	var dates []time.Time
	for d := DateOf(start); CompareDates(d, end) <= 0; d = AddDays(d, 1) {
		dates = append(dates, d)
	}
	return dates
}

func dateKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
