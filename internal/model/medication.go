package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

type Medication struct {
	ID                   int64
	UserID               int64
	Name                 string
	Dosage               string
	Frequency            string
	Time                 string
	Instructions         string
	StartDate            string
	EndDate              string
	NotificationsEnabled bool
	Handles              HandleSet
	TakenToday           bool
	CreatedAt            time.Time
}

func (m Medication) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("model: medication name is required")
	}
	if strings.TrimSpace(m.Dosage) == "" {
		return errors.New("model: medication dosage is required")
	}
	if strings.TrimSpace(m.Frequency) == "" {
		return errors.New("model: medication frequency is required")
	}
	if _, err := ParseClock(m.Time); err != nil {
		return err
	}
	if _, err := ParseFrequency(m.Frequency); err != nil {
		return err
	}
	for _, d := range []string{m.StartDate, m.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(DateLayout, d); err != nil {
			return fmt.Errorf("model: invalid date %q: %w", d, err)
		}
	}
	if m.StartDate != "" && m.EndDate != "" && m.EndDate < m.StartDate {
		return errors.New("model: end_date must not be before start_date")
	}
	return nil
}

// Occurrences expands the medication's anchor time and frequency into its
// daily fire times.
func (m Medication) Occurrences() ([]ClockTime, error) {
	start, err := ParseClock(m.Time)
	if err != nil {
		return nil, err
	}
	freq, err := ParseFrequency(m.Frequency)
	if err != nil {
		return nil, err
	}
	return ExpandOccurrences(start, freq.IntervalHours), nil
}

// ExpandOccurrences produces floor(24/interval) clock times, each interval
// hours after start, wrapped into one day. interval must already be valid.
func ExpandOccurrences(start ClockTime, intervalHours int) []ClockTime {
	if intervalHours <= 0 {
		return nil
	}
	n := 24 / intervalHours
	out := make([]ClockTime, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ClockTime{Hour: (start.Hour + i*intervalHours) % 24, Minute: start.Minute})
	}
	return out
}

// FindMedication picks a medication by numeric id, then by case-insensitive
// name.
func FindMedication(meds []Medication, target string) (Medication, bool) {
	target = strings.TrimSpace(target)
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		for _, med := range meds {
			if med.ID == id {
				return med, true
			}
		}
	}
	for _, med := range meds {
		if strings.EqualFold(med.Name, target) {
			return med, true
		}
	}
	return Medication{}, false
}
