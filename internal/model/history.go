package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var ErrInvalidStatus = errors.New("model: invalid history status")

type Status string

const (
	StatusTaken  Status = "taken"
	StatusMissed Status = "missed"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusTaken, StatusMissed:
		return true
	default:
		return false
	}
}

type HistoryEvent struct {
	ID             int64
	MedicationID   int64
	UserID         int64
	MedicationName string
	Dosage         string
	ScheduledTime  string
	TakenTime      string
	Status         Status
	Date           string
	CreatedAt      time.Time
}

func (e HistoryEvent) Validate() error {
	if e.MedicationID <= 0 {
		return errors.New("model: history medication_id is required")
	}
	if !e.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, e.Status)
	}
	if _, err := ParseClock(e.ScheduledTime); err != nil {
		return err
	}
	if e.Status == StatusTaken && e.TakenTime == "" {
		return errors.New("model: taken_time is required when status is taken")
	}
	if e.Status == StatusMissed && e.TakenTime != "" {
		return errors.New("model: taken_time must be empty when status is missed")
	}
	return nil
}

type Stats struct {
	Total      int `yaml:"total"`
	Taken      int `yaml:"taken"`
	Missed     int `yaml:"missed"`
	Percentage int `yaml:"percentage"`
}

func NewStats(total, taken int) Stats {
	s := Stats{Total: total, Taken: taken, Missed: total - taken}
	if total > 0 {
		s.Percentage = int(math.Round(float64(taken) / float64(total) * 100))
	}
	return s
}

type User struct {
	ID        int64
	Email     string
	Name      string
	CreatedAt time.Time
}
