package expiry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLastWeekdayOfMonth(t *testing.T) {
	// January 2026 has four Wednesdays (7, 14, 21, 28); the last is the 28th.
	ref := time.Date(2026, time.January, 5, 10, 0, 0, 0, time.UTC)
	last := LastWeekdayOfMonth(ref, time.Wednesday)

	assert.Equal(t, time.Wednesday, last.Weekday())
	assert.Equal(t, time.January, last.Month())
	assert.Equal(t, 28, last.Day())
}

func TestNextWeekday_SameDayReturnsItself(t *testing.T) {
	// 2026-07-29 is a Wednesday.
	wed := time.Date(2026, time.July, 29, 9, 0, 0, 0, time.UTC)
	next := NextWeekday(wed, time.Wednesday)

	assert.Equal(t, wed.YearDay(), next.YearDay())
}

func TestNextWeekday_AdvancesToUpcomingWeekday(t *testing.T) {
	mon := time.Date(2026, time.July, 27, 9, 0, 0, 0, time.UTC)
	next := NextWeekday(mon, time.Wednesday)

	assert.Equal(t, time.Wednesday, next.Weekday())
	assert.True(t, next.After(mon))
}

func TestMonthlyExpiry_RollsToNextMonthWithinWindow(t *testing.T) {
	lastWed := LastWeekdayOfMonth(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), time.Wednesday)
	closeToExpiry := lastWed.AddDate(0, 0, -2) // 2 days before expiry

	got := MonthlyExpiry(closeToExpiry, 5) // rollover window wider than 2 days
	assert.True(t, got.After(lastWed))
	assert.Equal(t, time.February, got.Month())
}

func TestMonthlyExpiry_StaysOnCurrentExpiryOutsideWindow(t *testing.T) {
	lastWed := LastWeekdayOfMonth(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), time.Wednesday)
	farFromExpiry := lastWed.AddDate(0, 0, -20)

	got := MonthlyExpiry(farFromExpiry, 5)
	assert.Equal(t, lastWed.YearDay(), got.YearDay())
}

func TestWeeklyExpiry_RollsToNextWeekOnExpiryDay(t *testing.T) {
	wed := time.Date(2026, time.July, 29, 9, 0, 0, 0, time.UTC)
	got := WeeklyExpiry(wed)

	assert.Equal(t, time.Wednesday, got.Weekday())
	assert.True(t, got.After(wed))
	assert.Equal(t, 7, int(got.Sub(wed).Hours()/24))
}

func TestDaysTo(t *testing.T) {
	now := time.Date(2026, time.July, 20, 0, 0, 0, 0, time.UTC)
	expiry := now.AddDate(0, 0, 5)

	assert.Equal(t, 5, DaysTo(now, expiry))
}
