package model

import "time"

// Week identifies a calendar week as the number of weeks since Monday
// 1970-01-05. Weeks start on Monday.
type Week int

var weekEpoch = time.Date(1970, time.January, 5, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// WeekOf returns the week containing the calendar date of t in t's location.
func WeekOf(t time.Time) Week {
	days := daysSinceEpoch(t)
	w := days / 7
	if days%7 < 0 {
		w--
	}
	return Week(w)
}

// Start returns the Monday of the week at midnight UTC.
func (w Week) Start() time.Time {
	return weekEpoch.AddDate(0, 0, 7*int(w))
}

// Date returns the calendar date of the given ISO weekday (1 = Monday) in w.
func (w Week) Date(weekday int) time.Time {
	return w.Start().AddDate(0, 0, weekday-1)
}

// ISOWeekday returns 1 for Monday through 7 for Sunday.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// ISODate formats the calendar date of t as YYYY-MM-DD.
func ISODate(t time.Time) string {
	return t.Format(time.DateOnly)
}

func daysSinceEpoch(t time.Time) int {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int(midnight.Sub(weekEpoch) / day)
}
