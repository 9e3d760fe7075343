package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical key format for dates.
const DateLayout = "2006-01-02"

// midDayHour is the fixed UTC hour every normalized date carries.
const midDayHour = 12

var dateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000",
}

// NormalizeToUTCMidDay returns t's UTC calendar date at 12:00:00 UTC.
func NormalizeToUTCMidDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), midDayHour, 0, 0, 0, time.UTC)
}

// IsUTCDateEqual reports whether a and b fall on the same UTC calendar date.
func IsUTCDateEqual(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// ParseDate parses any accepted date encoding and normalizes the result.
// Naive timestamps are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeToUTCMidDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized date %q", ErrParse, s)
}

// DateKey formats t as its UTC calendar date.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// CanonicalDateKey parses s and returns its canonical key.
func CanonicalDateKey(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return DateKey(t), nil
}

// AddWeeks shifts a normalized date by n weeks.
func AddWeeks(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}
