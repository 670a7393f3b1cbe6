package utils

import "time"

// GetDayStart returns the start of the current UTC day.
func GetDayStart() time.Time {
	return GetDayStartFrom(time.Now().UTC())
}

// GetDayStartFrom returns the UTC start-of-day (00:00:00) for t.
func GetDayStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetDayEnd returns the end of the current UTC day.
func GetDayEnd() time.Time {
	return GetDayEndFrom(time.Now().UTC())
}

// GetDayEndFrom returns the UTC end-of-day (23:59:59.999999999) for t.
func GetDayEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetWeekStart returns the start (Monday 00:00:00 UTC, ISO 8601) of the
// current week.
func GetWeekStart() time.Time {
	return GetWeekStartFrom(time.Now().UTC())
}

// GetWeekStartFrom returns the Monday 00:00:00 UTC of the week
// containing t.
func GetWeekStartFrom(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO 8601: Sunday is day 7, not 0
	}
	monday := t.AddDate(0, 0, -(weekday - 1))
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC)
}

// GetWeekEnd returns the end of the current week.
func GetWeekEnd() time.Time {
	return GetWeekEndFrom(time.Now().UTC())
}

// GetWeekEndFrom returns the Sunday end-of-day of the week containing t.
func GetWeekEndFrom(t time.Time) time.Time {
	sunday := GetWeekStartFrom(t).AddDate(0, 0, 6)
	return time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 23, 59, 59, 999999999, time.UTC)
}

// GetMonthStart returns the start of the current UTC month.
func GetMonthStart() time.Time {
	return GetMonthStartFrom(time.Now().UTC())
}

// GetMonthStartFrom returns the 1st of t's month, 00:00:00 UTC.
func GetMonthStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// GetMonthEnd returns the end of the current UTC month.
func GetMonthEnd() time.Time {
	return GetMonthEndFrom(time.Now().UTC())
}

// GetMonthEndFrom returns the last instant of t's month.
func GetMonthEndFrom(t time.Time) time.Time {
	t = t.UTC()
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNextMonth.Add(-time.Nanosecond)
}

// GetYearStart returns the start of the current UTC year.
func GetYearStart() time.Time {
	return GetYearStartFrom(time.Now().UTC())
}

// GetYearStartFrom returns January 1st of t's year, 00:00:00 UTC.
func GetYearStartFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
}

// GetYearEnd returns the end of the current UTC year.
func GetYearEnd() time.Time {
	return GetYearEndFrom(time.Now().UTC())
}

// GetYearEndFrom returns the last instant of t's year.
func GetYearEndFrom(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), time.December, 31, 23, 59, 59, 999999999, time.UTC)
}

// TimeRange is a half-open-in-spirit, inclusive-in-practice [Start, End]
// window used to scope reporting queries to a period.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// GetDayRange returns the current UTC day as a TimeRange.
func GetDayRange() TimeRange {
	return TimeRange{Start: GetDayStart(), End: GetDayEnd()}
}

// GetWeekRange returns the current week as a TimeRange.
func GetWeekRange() TimeRange {
	return TimeRange{Start: GetWeekStart(), End: GetWeekEnd()}
}

// GetMonthRange returns the current month as a TimeRange.
func GetMonthRange() TimeRange {
	return TimeRange{Start: GetMonthStart(), End: GetMonthEnd()}
}

// GetYearRange returns the current year as a TimeRange.
func GetYearRange() TimeRange {
	return TimeRange{Start: GetYearStart(), End: GetYearEnd()}
}

// PeriodType names the rollup window a reporting query runs over.
type PeriodType string

const (
	PeriodDay   PeriodType = "day"
	PeriodWeek  PeriodType = "week"
	PeriodMonth PeriodType = "month"
	PeriodYear  PeriodType = "year"
	PeriodAll   PeriodType = "all"
)

// GetPeriodRange returns the TimeRange for period, defaulting to the
// current day for an unrecognized value.
func GetPeriodRange(period PeriodType) TimeRange {
	switch period {
	case PeriodDay:
		return GetDayRange()
	case PeriodWeek:
		return GetWeekRange()
	case PeriodMonth:
		return GetMonthRange()
	case PeriodYear:
		return GetYearRange()
	case PeriodAll:
		return TimeRange{Start: time.Time{}, End: time.Now().UTC()}
	default:
		return GetDayRange()
	}
}
