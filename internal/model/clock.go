package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidTimeFormat = errors.New("model: invalid time format")

const minutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day in 24h form.
type ClockTime struct {
	Hour   int
	Minute int
}

func ParseClock(raw string) (ClockTime, error) {
	s := strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(mm) != 2 || len(hh) == 0 || len(hh) > 2 || !isDigits(hh) || !isDigits(mm) {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	c := ClockTime{Hour: h, Minute: m}
	if !c.IsValid() {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, raw)
	}
	return c, nil
}

func ClockOf(t time.Time) ClockTime {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}
}

func (c ClockTime) IsValid() bool {
	return c.Hour >= 0 && c.Hour < 24 && c.Minute >= 0 && c.Minute < 60
}

// AddMinutes shifts the clock, wrapping around midnight in both directions.
func (c ClockTime) AddMinutes(minutes int) ClockTime {
	total := (c.Hour*60 + c.Minute + minutes) % minutesPerDay
	if total < 0 {
		total += minutesPerDay
	}
	return ClockTime{Hour: total / 60, Minute: total % 60}
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On returns the instant at this clock time on the calendar day of date,
// in date's location.
func (c ClockTime) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, date.Location())
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
