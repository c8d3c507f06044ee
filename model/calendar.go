package model

import "time"

// MonthStart truncates t to the first instant of its calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthsBetween counts whole calendar months from the month of from to the
// month of to, inclusive of both ends.
func MonthsBetween(from, to time.Time) int {
	from, to = MonthStart(from), MonthStart(to)
	if to.Before(from) {
		return 0
	}
	return (to.Year()-from.Year())*12 + int(to.Month()-from.Month()) + 1
}
