package utils

import "time"

// FormatRelative renders t relative to now: "15:04" for today,
// "Yesterday 15:04" for the day before, otherwise "2006/01/02 15:04".
// Days are compared in now's location.
func FormatRelative(t, now time.Time) string {
	t = t.In(now.Location())
	clock := t.Format("15:04")

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, now.Location())

	switch {
	case day.Equal(today):
		return clock
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday " + clock
	default:
		return t.Format("2006/01/02 15:04")
	}
}
