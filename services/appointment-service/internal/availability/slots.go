package availability

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/groombook/services/appointment-service/internal/model"
)

var (
	ErrClosed      = errors.New("business is closed that day")
	ErrOutsideOpen = errors.New("slot is outside opening hours")
	ErrOverlap     = errors.New("slot overlaps an existing appointment")
)

type Interval struct {
	Start time.Time
	End   time.Time
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals.
//
// All times are expected to be in the same location (timezone).
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

// Day describes one calendar day at a business.
type Day struct {
	Date   string
	Hours  model.Hours
	Booked []model.Interval
	Loc    *time.Location
}

// Slots lists free HH:MM start times for a service of duration minutes.
func (d Day) Slots(duration int, step time.Duration, now time.Time) ([]string, error) {
	open, closeAt, err := d.window()
	if err != nil {
		return nil, err
	}
	busy, err := d.busy()
	if err != nil {
		return nil, err
	}
	starts := AvailableSlots(open, closeAt, time.Duration(duration)*time.Minute, step, busy, now)
	out := make([]string, 0, len(starts))
	for _, s := range starts {
		out = append(out, s.Format(model.ClockLayout))
	}
	return out, nil
}

// Check reports whether [start, end) fits opening hours without overlapping
// a booked interval.
func (d Day) Check(start, end string) error {
	open, closeAt, err := d.window()
	if err != nil {
		return err
	}
	s, err := d.at(start)
	if err != nil {
		return err
	}
	e, err := d.at(end)
	if err != nil {
		return err
	}
	if s.Before(open) || e.After(closeAt) || !e.After(s) {
		return ErrOutsideOpen
	}
	busy, err := d.busy()
	if err != nil {
		return err
	}
	if overlapsAny(s, e, busy) {
		return ErrOverlap
	}
	return nil
}

func (d Day) window() (time.Time, time.Time, error) {
	if d.Hours.IsClosed || d.Hours.OpenTime == "" || d.Hours.CloseTime == "" {
		return time.Time{}, time.Time{}, ErrClosed
	}
	open, err := d.at(d.Hours.OpenTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	closeAt, err := d.at(d.Hours.CloseTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return open, closeAt, nil
}

func (d Day) busy() ([]Interval, error) {
	busy := make([]Interval, 0, len(d.Booked))
	for _, b := range d.Booked {
		s, err := d.at(b.Start)
		if err != nil {
			return nil, err
		}
		e, err := d.at(b.End)
		if err != nil {
			return nil, err
		}
		busy = append(busy, Interval{Start: s, End: e})
	}
	return busy, nil
}

func (d Day) at(clock string) (time.Time, error) {
	day, err := model.ParseDate(d.Date)
	if err != nil {
		return time.Time{}, err
	}
	minutes, err := model.ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	loc := d.Loc
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, loc), nil
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.Start,b.End) iff start < b.End && b.Start < end.
		if start.Before(b.End) && b.Start.Before(end) {
			return true
		}
	}
	return false
}
