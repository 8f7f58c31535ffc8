// Package scheduler turns medication dosing times into registered daily
// reminders and keeps stored reminder handles in step with the notifier's
// live queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/metrics"
	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/notify"
)

var (
	ErrPermissionDenied = errors.New("scheduler: permission denied")
	ErrPlatform         = errors.New("scheduler: could not schedule, permissions or device limits")
	ErrPartialBatch     = errors.New("scheduler: partial batch failure")
	ErrReminderLost     = errors.New("scheduler: reminder lost, schedule must be retried")
)

// Notifier is the platform notification queue the scheduler registers with.
type Notifier interface {
	RequestPermission(ctx context.Context) (bool, error)
	RegisterDaily(ctx context.Context, hour, minute int, payload notify.Payload) (string, error)
	Cancel(ctx context.Context, handle string) error
	LiveHandles(ctx context.Context) (map[string]struct{}, error)
}

// Store is the persistence the reconciler and the tracker rely on.
type Store interface {
	GetMedicationsForUser(ctx context.Context, userID int64) ([]model.Medication, error)
	SetReminderHandle(ctx context.Context, medicationID int64, handles model.HandleSet) error
	GetReminderHandle(ctx context.Context, medicationID int64) (model.HandleSet, error)
	RecordHistoryEvent(ctx context.Context, event model.HistoryEvent) error
}

// Request is one daily occurrence to register.
type Request struct {
	MedicationID   int64
	MedicationName string
	DosageLabel    string
	Hour           int
	Minute         int
}

type Result struct {
	Handle      string
	ScheduledAt time.Time
}

// BatchError reports a ScheduleMultiple failure after its rollback ran.
type BatchError struct {
	Index   int
	Request Request
	Cause   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s at request %d (%02d:%02d): %v", ErrPartialBatch, e.Index, e.Request.Hour, e.Request.Minute, e.Cause)
}

func (e *BatchError) Is(target error) bool { return target == ErrPartialBatch }

func (e *BatchError) Unwrap() error { return e.Cause }

type Scheduler struct {
	notifier Notifier
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Scheduler)

func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		notifier: notifier,
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextFireInstant returns the next time hour:minute occurs strictly after
// now, in now's location. A target equal to now rolls to tomorrow.
func NextFireInstant(hour, minute int, now time.Time) time.Time {
	y, m, d := now.Date()
	candidate := time.Date(y, m, d, hour, minute, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = time.Date(y, m, d+1, hour, minute, 0, 0, now.Location())
	}
	return candidate
}

// Expand lists the daily occurrences of an interval that starts at
// startHour:startMinute. intervalHours must already be validated.
func Expand(startHour, startMinute, intervalHours int) []model.ClockTime {
	return model.ExpandOccurrences(model.ClockTime{Hour: startHour, Minute: startMinute}, intervalHours)
}

// RequestsFor builds one Request per daily occurrence of med.
func RequestsFor(med model.Medication) ([]Request, error) {
	occurrences, err := med.Occurrences()
	if err != nil {
		return nil, err
	}
	out := make([]Request, 0, len(occurrences))
	for _, c := range occurrences {
		out = append(out, Request{
			MedicationID:   med.ID,
			MedicationName: med.Name,
			DosageLabel:    med.Dosage,
			Hour:           c.Hour,
			Minute:         c.Minute,
		})
	}
	return out, nil
}

func (s *Scheduler) Schedule(ctx context.Context, req Request) (Result, error) {
	granted, err := s.notifier.RequestPermission(ctx)
	if err != nil {
		s.metrics.ScheduleFailed("platform")
		return Result{}, fmt.Errorf("%w: %w", ErrPlatform, err)
	}
	if !granted {
		s.metrics.ScheduleFailed("permission")
		return Result{}, ErrPermissionDenied
	}

	handle, err := s.notifier.RegisterDaily(ctx, req.Hour, req.Minute, payloadFor(req))
	if err != nil {
		if errors.Is(err, notify.ErrPermissionDenied) {
			s.metrics.ScheduleFailed("permission")
			return Result{}, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		s.metrics.ScheduleFailed("platform")
		return Result{}, fmt.Errorf("%w: %w", ErrPlatform, err)
	}
	s.metrics.Scheduled()

	at := NextFireInstant(req.Hour, req.Minute, s.now())
	s.log.Debug("reminder scheduled",
		zap.Int64("medication_id", req.MedicationID),
		zap.String("handle", handle),
		zap.Time("next_fire", at),
	)
	return Result{Handle: handle, ScheduledAt: at}, nil
}

// ScheduleMultiple registers reqs in order. If any registration fails, the
// handles already registered by this call are cancelled and a *BatchError
// is returned; no result from a failed batch may be persisted.
func (s *Scheduler) ScheduleMultiple(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, 0, len(reqs))
	for i, req := range reqs {
		res, err := s.Schedule(ctx, req)
		if err != nil {
			s.rollback(ctx, results)
			return nil, &BatchError{Index: i, Request: req, Cause: err}
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Scheduler) rollback(ctx context.Context, results []Result) {
	for _, res := range results {
		if err := s.notifier.Cancel(ctx, res.Handle); err != nil {
			s.log.Warn("rollback cancel failed", zap.String("handle", res.Handle), zap.Error(err))
		}
	}
	if len(results) > 0 {
		s.metrics.RolledBack()
	}
}

// Cancel removes a trigger. Unknown or empty handles are not an error.
func (s *Scheduler) Cancel(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := s.notifier.Cancel(ctx, handle); err != nil {
		return fmt.Errorf("%w: cancel %s: %w", ErrPlatform, handle, err)
	}
	s.metrics.Cancelled()
	return nil
}

func (s *Scheduler) CancelAll(ctx context.Context, handles model.HandleSet) error {
	var errs []error
	for _, h := range handles {
		if err := s.Cancel(ctx, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ScheduleRequests registers one or many requests and returns the new
// handle set.
func (s *Scheduler) ScheduleRequests(ctx context.Context, reqs []Request) (model.HandleSet, error) {
	switch len(reqs) {
	case 0:
		return nil, nil
	case 1:
		res, err := s.Schedule(ctx, reqs[0])
		if err != nil {
			return nil, err
		}
		return model.HandleSet{res.Handle}, nil
	}
	results, err := s.ScheduleMultiple(ctx, reqs)
	if err != nil {
		return nil, err
	}
	handles := make(model.HandleSet, 0, len(results))
	for _, res := range results {
		handles = append(handles, res.Handle)
	}
	return handles, nil
}

// RescheduleMedication cancels every stored handle of med and registers its
// full set of daily occurrences. All time or frequency changes go through
// here. A medication with notifications disabled ends with no handles.
func (s *Scheduler) RescheduleMedication(ctx context.Context, med model.Medication) (model.HandleSet, error) {
	reqs, err := RequestsFor(med)
	if err != nil {
		return nil, err
	}
	if err := s.CancelAll(ctx, med.Handles); err != nil {
		return nil, err
	}
	if !med.NotificationsEnabled {
		return nil, nil
	}
	return s.ScheduleRequests(ctx, reqs)
}

// Defer moves a single-occurrence reminder by minutes. A failure after the
// old handle was cancelled is reported as ErrReminderLost.
func (s *Scheduler) Defer(ctx context.Context, handle string, med model.Medication, minutes int) (Result, error) {
	anchor, err := model.ParseClock(med.Time)
	if err != nil {
		return Result{}, err
	}
	next := anchor.AddMinutes(minutes)

	if err := s.Cancel(ctx, handle); err != nil {
		return Result{}, err
	}
	res, err := s.Schedule(ctx, Request{
		MedicationID:   med.ID,
		MedicationName: med.Name,
		DosageLabel:    med.Dosage,
		Hour:           next.Hour,
		Minute:         next.Minute,
	})
	if err != nil {
		s.log.Error("deferred reminder lost",
			zap.Int64("medication_id", med.ID),
			zap.String("old_handle", handle),
			zap.Error(err),
		)
		return Result{}, fmt.Errorf("%w: %w", ErrReminderLost, err)
	}
	return res, nil
}

func payloadFor(req Request) notify.Payload {
	body := fmt.Sprintf("Time to take %s", req.MedicationName)
	if req.DosageLabel != "" {
		body += " - " + req.DosageLabel
	}
	return notify.Payload{
		Title:        "Medication reminder",
		Body:         body,
		MedicationID: req.MedicationID,
	}
}
