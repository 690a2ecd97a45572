package model

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

const minutesPerDay = 24 * 60

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD (got %q)", s)
	}
	return d, nil
}

// ParseClock returns minutes after midnight for an HH:MM or HH:MM:SS value.
func ParseClock(s string) (int, error) {
	for _, layout := range []string{ClockLayout, "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("time must be HH:MM (got %q)", s)
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// EndTime adds duration minutes to start. ok is false when the result would
// reach or pass midnight, or duration is not positive.
func EndTime(start string, duration int) (end string, ok bool, err error) {
	m, err := ParseClock(start)
	if err != nil {
		return "", false, err
	}
	total := m + duration
	if duration <= 0 || total >= minutesPerDay {
		return "", false, nil
	}
	return FormatClock(total), true, nil
}

// NormalizeClock rewrites an accepted clock value to HH:MM.
func NormalizeClock(s string) (string, error) {
	m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return FormatClock(m), nil
}
