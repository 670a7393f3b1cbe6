// Package expiry computes derivative contract expiry dates:
// monthly last-Wednesday (with a rollover window into next
// month) for index options, and weekly next-Wednesday for the
// alternative weekly cycle. This is calendar arithmetic, not a domain
// concern any example repo's dependency stack covers, so it stays on
// the standard library's time package.
package expiry

import "time"

// LastWeekdayOfMonth returns the last occurrence of weekday in the
// month containing t.
func LastWeekdayOfMonth(t time.Time, weekday time.Weekday) time.Time {
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	lastOfMonth := firstOfNextMonth.AddDate(0, 0, -1)
	for lastOfMonth.Weekday() != weekday {
		lastOfMonth = lastOfMonth.AddDate(0, 0, -1)
	}
	return lastOfMonth
}

// NextWeekday returns the next occurrence of weekday on or after t
// (returns t itself if t already falls on weekday).
func NextWeekday(t time.Time, weekday time.Weekday) time.Time {
	for t.Weekday() != weekday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// MonthlyExpiry picks the monthly last-Wednesday expiry for now,
// rolling to next month once within rolloverWindowDays of the current
// month's expiry.
func MonthlyExpiry(now time.Time, rolloverWindowDays int) time.Time {
	current := LastWeekdayOfMonth(now, time.Wednesday)
	daysToExpiry := int(current.Sub(now).Hours() / 24)
	if daysToExpiry <= rolloverWindowDays {
		nextMonthRef := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
		return LastWeekdayOfMonth(nextMonthRef, time.Wednesday)
	}
	return current
}

// WeeklyExpiry picks the next Wednesday on or after now, rolling to the
// following week's Wednesday if today already is expiry day.
func WeeklyExpiry(now time.Time) time.Time {
	next := NextWeekday(now, time.Wednesday)
	if next.Year() == now.Year() && next.YearDay() == now.YearDay() {
		return next.AddDate(0, 0, 7)
	}
	return next
}

// DaysTo returns the whole-day distance from now to expiry, used for
// the rollover engine's candidate-scan threshold check.
func DaysTo(now, expiry time.Time) int {
	return int(expiry.Sub(now).Hours() / 24)
}
