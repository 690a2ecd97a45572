package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailableSlots_Basic(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := time.Date(2026, 1, 28, 9, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 1, 28, 10, 0, 0, 0, loc)

	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	slots := AvailableSlots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, busy, day)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Equal(day.Add(9*time.Hour)))
	assert.True(t, slots[1].Equal(day.Add(9*time.Hour+45*time.Minute)))
}

func TestAvailableSlots_SkipsPast(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	now := day.Add(9*time.Hour + 31*time.Minute)

	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(10*time.Hour), 15*time.Minute, 15*time.Minute, nil, now)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Equal(day.Add(9*time.Hour+45*time.Minute)))
}

func groomingDay() Day {
	return Day{
		Date:   "2026-01-28",
		Hours:  model.Hours{DayOfWeek: 3, OpenTime: "09:00", CloseTime: "12:00"},
		Booked: []model.Interval{{Start: "10:00", End: "11:30"}},
	}
}

func TestDaySlots(t *testing.T) {
	past := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	slots, err := groomingDay().Slots(60, 30*time.Minute, past)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00"}, slots)

	closed := groomingDay()
	closed.Hours.IsClosed = true
	_, err = closed.Slots(60, 30*time.Minute, past)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDayCheck(t *testing.T) {
	d := groomingDay()
	assert.NoError(t, d.Check("09:00", "10:00"))
	assert.NoError(t, d.Check("11:30", "12:00"))
	assert.ErrorIs(t, d.Check("09:30", "10:30"), ErrOverlap)
	assert.ErrorIs(t, d.Check("08:30", "09:30"), ErrOutsideOpen)
	assert.ErrorIs(t, d.Check("11:30", "12:30"), ErrOutsideOpen)
}
