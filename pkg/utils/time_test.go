package utils

import (
	"testing"
	"time"
)

func TestGetDayStartFromAndEndFrom(t *testing.T) {
	t.Parallel()
	mid := time.Date(2026, time.March, 15, 13, 45, 30, 0, time.UTC)

	start := GetDayStartFrom(mid)
	if !start.Equal(time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day start: %v", start)
	}

	end := GetDayEndFrom(mid)
	if end.Day() != 15 || end.Hour() != 23 || end.Nanosecond() != 999999999 {
		t.Fatalf("unexpected day end: %v", end)
	}
}

func TestGetWeekStartFromIsMonday(t *testing.T) {
	t.Parallel()
	cases := []time.Time{
		time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC),  // Monday
		time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC), // Wednesday
		time.Date(2026, time.March, 22, 23, 0, 0, 0, time.UTC), // Sunday
	}
	for _, c := range cases {
		start := GetWeekStartFrom(c)
		if start.Weekday() != time.Monday {
			t.Fatalf("GetWeekStartFrom(%v) = %v, want a Monday", c, start)
		}
		if start.After(c) {
			t.Fatalf("GetWeekStartFrom(%v) = %v is after input", c, start)
		}
	}
}

func TestGetWeekEndFromIsSunday(t *testing.T) {
	t.Parallel()
	wed := time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)
	end := GetWeekEndFrom(wed)
	if end.Weekday() != time.Sunday {
		t.Fatalf("GetWeekEndFrom(%v) = %v, want a Sunday", wed, end)
	}
}

func TestGetMonthStartFromAndEndFrom(t *testing.T) {
	t.Parallel()
	mid := time.Date(2026, time.February, 10, 5, 0, 0, 0, time.UTC)

	start := GetMonthStartFrom(mid)
	if !start.Equal(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected month start: %v", start)
	}

	end := GetMonthEndFrom(mid)
	if end.Month() != time.February || end.Day() != 28 {
		t.Fatalf("unexpected month end for non-leap Feb 2026: %v", end)
	}
}

func TestGetMonthEndFromHandlesLeapYear(t *testing.T) {
	t.Parallel()
	mid := time.Date(2028, time.February, 10, 5, 0, 0, 0, time.UTC)
	end := GetMonthEndFrom(mid)
	if end.Day() != 29 {
		t.Fatalf("expected Feb 29 on leap year 2028, got %v", end)
	}
}

func TestGetYearStartFromAndEndFrom(t *testing.T) {
	t.Parallel()
	mid := time.Date(2026, time.July, 4, 10, 0, 0, 0, time.UTC)

	start := GetYearStartFrom(mid)
	if !start.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected year start: %v", start)
	}

	end := GetYearEndFrom(mid)
	if end.Month() != time.December || end.Day() != 31 {
		t.Fatalf("unexpected year end: %v", end)
	}
}

func TestGetDayWeekMonthYearRangeOrdering(t *testing.T) {
	t.Parallel()
	for name, r := range map[string]TimeRange{
		"day":   GetDayRange(),
		"week":  GetWeekRange(),
		"month": GetMonthRange(),
		"year":  GetYearRange(),
	} {
		if !r.Start.Before(r.End) {
			t.Fatalf("%s range: start %v is not before end %v", name, r.Start, r.End)
		}
	}
}

func TestGetPeriodRange(t *testing.T) {
	t.Parallel()
	cases := []struct {
		period PeriodType
		want   TimeRange
	}{
		{PeriodDay, GetDayRange()},
		{PeriodWeek, GetWeekRange()},
		{PeriodMonth, GetMonthRange()},
		{PeriodYear, GetYearRange()},
	}
	for _, c := range cases {
		got := GetPeriodRange(c.period)
		if !got.Start.Equal(c.want.Start) || !got.End.Equal(c.want.End) {
			t.Errorf("GetPeriodRange(%q) = %v, want %v", c.period, got, c.want)
		}
	}
}

func TestGetPeriodRangeAllSpansFromZeroTime(t *testing.T) {
	t.Parallel()
	r := GetPeriodRange(PeriodAll)
	if !r.Start.IsZero() {
		t.Fatalf("PeriodAll start should be the zero time, got %v", r.Start)
	}
}

func TestGetPeriodRangeDefaultsToDayForUnknownPeriod(t *testing.T) {
	t.Parallel()
	got := GetPeriodRange(PeriodType("decade"))
	want := GetDayRange()
	if !got.Start.Equal(want.Start) || !got.End.Equal(want.End) {
		t.Fatalf("unknown period should default to day range, got %v", got)
	}
}
