package util

import "time"

// Fixed-date US market holidays (month, day). Observed-date shifts and
// floating holidays (Thanksgiving, MLK, ...) are not modeled; a miss only
// costs one empty fetch that the caller already tolerates.
var fixedHolidays = map[[2]int]bool{
	{1, 1}:   true, // New Year's Day
	{6, 19}:  true, // Juneteenth
	{7, 4}:   true, // Independence Day
	{12, 25}: true, // Christmas Day
}

// IsMarketHoliday reports whether t falls on a fixed-date US holiday.
func IsMarketHoliday(t time.Time) bool {
	return fixedHolidays[[2]int{int(t.Month()), t.Day()}]
}

// IsTradingDay reports whether t is a weekday that is not a holiday.
func IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !IsMarketHoliday(t)
}

// PreviousTradingDay returns the last trading day strictly before t,
// preserving t's clock time.
func PreviousTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
