package notify

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPermissionDenied   = errors.New("notify: permission denied")
	ErrPlatform           = errors.New("notify: platform error")
	ErrInvalidTrigger     = errors.New("notify: invalid trigger")
	ErrAlreadyInitialized = errors.New("notify: notifier already initialized")
	ErrNotInitialized     = errors.New("notify: notifier not initialized")
)

// Trigger is a closed set of trigger shapes: DailyTrigger or OneShotTrigger.
type Trigger interface {
	Validate() error
	kind() string
}

// DailyTrigger fires every day at Hour:Minute, device-local time.
type DailyTrigger struct {
	Hour   int
	Minute int
}

func (t DailyTrigger) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: daily %02d:%02d", ErrInvalidTrigger, t.Hour, t.Minute)
	}
	return nil
}

func (DailyTrigger) kind() string { return "daily" }

// cronSpec renders the trigger in standard five-field cron form.
func (t DailyTrigger) cronSpec() string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}

// OneShotTrigger fires once after Delay.
type OneShotTrigger struct {
	Delay time.Duration
}

func (t OneShotTrigger) Validate() error {
	if t.Delay <= 0 {
		return fmt.Errorf("%w: one-shot delay %s", ErrInvalidTrigger, t.Delay)
	}
	return nil
}

func (OneShotTrigger) kind() string { return "oneshot" }

// Payload is the human-readable content of a reminder.
type Payload struct {
	Title        string
	Body         string
	MedicationID int64
}

// Delivery is one fired reminder handed to sinks.
type Delivery struct {
	Handle  string
	Kind    string
	Payload Payload
	FiredAt time.Time
	Policy  DisplayPolicy
}
