package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidInterval = errors.New("model: invalid frequency interval")

type FrequencyKind string

const (
	FrequencyDaily    FrequencyKind = "daily"
	FrequencyEvery12h FrequencyKind = "every-12h"
	FrequencyEvery8h  FrequencyKind = "every-8h"
	FrequencyEvery6h  FrequencyKind = "every-6h"
	FrequencyCustom   FrequencyKind = "custom"
	FrequencyFreeText FrequencyKind = "free-text"
)

const customPrefix = "custom:"

// Frequency is a parsed dosing frequency. IntervalHours is always in (0,24].
type Frequency struct {
	Kind          FrequencyKind
	IntervalHours int
	Raw           string
}

// labels offered by the mobile form, kept so rows created there still parse.
var frequencyLabels = map[string]FrequencyKind{
	"daily":           FrequencyDaily,
	"diariamente":     FrequencyDaily,
	"every-12h":       FrequencyEvery12h,
	"a cada 12 horas": FrequencyEvery12h,
	"every-8h":        FrequencyEvery8h,
	"a cada 8 horas":  FrequencyEvery8h,
	"every-6h":        FrequencyEvery6h,
	"a cada 6 horas":  FrequencyEvery6h,
}

var intervalByKind = map[FrequencyKind]int{
	FrequencyDaily:    24,
	FrequencyEvery12h: 12,
	FrequencyEvery8h:  8,
	FrequencyEvery6h:  6,
}

// ParseFrequency accepts the named interval classes, custom:<hours>, and
// any free text. Free text schedules once a day.
func ParseFrequency(raw string) (Frequency, error) {
	norm := strings.ToLower(strings.TrimSpace(raw))
	if kind, ok := frequencyLabels[norm]; ok {
		return Frequency{Kind: kind, IntervalHours: intervalByKind[kind], Raw: raw}, nil
	}
	if strings.HasPrefix(norm, customPrefix) {
		hours, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(norm, customPrefix)))
		if err != nil {
			return Frequency{}, fmt.Errorf("%w: %q", ErrInvalidInterval, raw)
		}
		if err := ValidateInterval(hours); err != nil {
			return Frequency{}, err
		}
		return Frequency{Kind: FrequencyCustom, IntervalHours: hours, Raw: raw}, nil
	}
	return Frequency{Kind: FrequencyFreeText, IntervalHours: 24, Raw: raw}, nil
}

func ValidateInterval(hours int) error {
	if hours <= 0 || hours > 24 {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, hours)
	}
	return nil
}

// OccurrencesPerDay is floor(24 / interval).
func (f Frequency) OccurrencesPerDay() int {
	if f.IntervalHours <= 0 {
		return 0
	}
	return 24 / f.IntervalHours
}

func (f Frequency) String() string {
	if f.Kind == FrequencyCustom {
		return customPrefix + strconv.Itoa(f.IntervalHours)
	}
	if f.Kind == FrequencyFreeText {
		return f.Raw
	}
	return string(f.Kind)
}
