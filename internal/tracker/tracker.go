// Package tracker is the medication service used by the CLI and the TUI.
// Every change to a medication's time or frequency goes through
// scheduler.RescheduleMedication so no trigger is ever left orphaned.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/scheduler"
	"github.com/sandeepkv93/medd/internal/storage"
)

var (
	ErrInvalidDefer = errors.New("tracker: defer minutes must not be zero")
	ErrNoSession    = errors.New("tracker: no active user, run login first")
)

type Service struct {
	store storage.Repository
	sched *scheduler.Scheduler
	recon *scheduler.Reconciler
	log   *zap.Logger
	now   func() time.Time
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store storage.Repository, sched *scheduler.Scheduler, opts ...Option) *Service {
	s := &Service{
		store: store,
		sched: sched,
		recon: scheduler.NewReconciler(sched, store),
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddMedication stores med and schedules its reminders. When scheduling
// fails the row is kept without handles and the error is returned; the
// next reconciliation retries it.
func (s *Service) AddMedication(ctx context.Context, med model.Medication) (model.Medication, error) {
	med.Handles = nil
	if med.CreatedAt.IsZero() {
		med.CreatedAt = s.now()
	}
	if err := normalize(&med); err != nil {
		return model.Medication{}, err
	}
	id, err := s.store.CreateMedication(ctx, med)
	if err != nil {
		return model.Medication{}, fmt.Errorf("tracker: create medication: %w", err)
	}
	med.ID = id

	handles, err := s.sched.RescheduleMedication(ctx, med)
	if err != nil {
		s.log.Warn("medication saved without reminder", zap.Int64("medication_id", id), zap.Error(err))
		return med, fmt.Errorf("tracker: medication %d saved without reminder: %w", id, err)
	}
	if err := s.persistHandles(ctx, &med, handles); err != nil {
		return med, err
	}
	s.log.Info("medication added", zap.Int64("medication_id", id), zap.String("name", med.Name), zap.Int("reminders", len(handles)))
	return med, nil
}

// UpdateMedication saves the editable fields of med and reschedules it.
func (s *Service) UpdateMedication(ctx context.Context, med model.Medication) (model.Medication, error) {
	current, err := s.store.GetMedication(ctx, med.ID)
	if err != nil {
		return model.Medication{}, err
	}
	med.UserID = current.UserID
	med.Handles = current.Handles
	med.CreatedAt = current.CreatedAt
	if err := normalize(&med); err != nil {
		return model.Medication{}, err
	}
	if err := s.store.UpdateMedication(ctx, med); err != nil {
		return model.Medication{}, fmt.Errorf("tracker: update medication: %w", err)
	}
	return s.reschedule(ctx, med)
}

// normalize validates med and rewrites its time as zero-padded HH:MM, the
// form the store sorts and history records rely on.
func normalize(med *model.Medication) error {
	if err := med.Validate(); err != nil {
		return err
	}
	clock, err := model.ParseClock(med.Time)
	if err != nil {
		return err
	}
	med.Time = clock.String()
	return nil
}

func (s *Service) reschedule(ctx context.Context, med model.Medication) (model.Medication, error) {
	handles, err := s.sched.RescheduleMedication(ctx, med)
	if err != nil {
		return med, fmt.Errorf("tracker: reschedule medication %d: %w", med.ID, err)
	}
	if err := s.persistHandles(ctx, &med, handles); err != nil {
		return med, err
	}
	return med, nil
}

func (s *Service) persistHandles(ctx context.Context, med *model.Medication, handles model.HandleSet) error {
	if err := s.store.SetReminderHandle(ctx, med.ID, handles); err != nil {
		if cerr := s.sched.CancelAll(ctx, handles); cerr != nil {
			s.log.Warn("could not cancel unsaved reminders", zap.Int64("medication_id", med.ID), zap.Error(cerr))
		}
		return fmt.Errorf("tracker: save reminder handles: %w", err)
	}
	med.Handles = handles
	return nil
}

// SetTaken flips today's taken flag. Marking a dose taken records a taken
// history row unless the day already has one for the medication.
func (s *Service) SetTaken(ctx context.Context, id int64, taken bool) (model.Medication, error) {
	med, err := s.store.GetMedication(ctx, id)
	if err != nil {
		return model.Medication{}, err
	}
	if err := s.store.SetTakenToday(ctx, id, taken); err != nil {
		return model.Medication{}, err
	}
	if taken && !med.TakenToday {
		now := s.now()
		date := now.Format(model.DateLayout)
		seen, err := s.store.HasHistoryFor(ctx, med.ID, date)
		if err != nil {
			return model.Medication{}, fmt.Errorf("tracker: check history: %w", err)
		}
		if seen {
			med.TakenToday = taken
			return med, nil
		}
		ev := model.HistoryEvent{
			MedicationID:   med.ID,
			UserID:         med.UserID,
			MedicationName: med.Name,
			Dosage:         med.Dosage,
			ScheduledTime:  med.Time,
			TakenTime:      model.ClockOf(now).String(),
			Status:         model.StatusTaken,
			Date:           date,
			CreatedAt:      now,
		}
		if err := s.store.RecordHistoryEvent(ctx, ev); err != nil {
			return model.Medication{}, fmt.Errorf("tracker: record taken: %w", err)
		}
	}
	med.TakenToday = taken
	return med, nil
}

// DeferMedication shifts the medication's anchor time by minutes and moves
// its reminders with it.
func (s *Service) DeferMedication(ctx context.Context, id int64, minutes int) (model.Medication, error) {
	if minutes == 0 {
		return model.Medication{}, ErrInvalidDefer
	}
	med, err := s.store.GetMedication(ctx, id)
	if err != nil {
		return model.Medication{}, err
	}
	anchor, err := model.ParseClock(med.Time)
	if err != nil {
		return model.Medication{}, err
	}
	occurrences, err := med.Occurrences()
	if err != nil {
		return model.Medication{}, err
	}
	moved := med
	moved.Time = anchor.AddMinutes(minutes).String()

	if len(occurrences) != 1 || len(med.Handles) != 1 || !med.NotificationsEnabled {
		if err := s.store.UpdateMedication(ctx, moved); err != nil {
			return model.Medication{}, err
		}
		return s.reschedule(ctx, moved)
	}

	res, err := s.sched.Defer(ctx, med.Handles[0], med, minutes)
	if err != nil {
		if errors.Is(err, scheduler.ErrReminderLost) {
			if serr := s.store.SetReminderHandle(ctx, med.ID, nil); serr != nil {
				s.log.Warn("could not clear lost reminder", zap.Int64("medication_id", id), zap.Error(serr))
			}
		}
		return model.Medication{}, fmt.Errorf("tracker: defer medication %d: %w", id, err)
	}
	if err := s.store.UpdateMedication(ctx, moved); err != nil {
		// The old trigger is gone and the new one is not recorded; drop both
		// so reconciliation schedules exactly one at the stored time.
		if cerr := s.sched.Cancel(ctx, res.Handle); cerr != nil {
			s.log.Warn("could not cancel unsaved reminder", zap.Int64("medication_id", id), zap.Error(cerr))
		}
		if serr := s.store.SetReminderHandle(ctx, med.ID, nil); serr != nil {
			s.log.Warn("could not clear deferred reminder", zap.Int64("medication_id", id), zap.Error(serr))
		}
		return model.Medication{}, fmt.Errorf("tracker: save deferred time: %w", err)
	}
	if err := s.persistHandles(ctx, &moved, model.HandleSet{res.Handle}); err != nil {
		return model.Medication{}, err
	}
	s.log.Info("medication deferred",
		zap.Int64("medication_id", id),
		zap.String("time", moved.Time),
		zap.Time("next_fire", res.ScheduledAt),
	)
	return moved, nil
}

// DeleteMedication cancels the medication's reminders, then removes it.
func (s *Service) DeleteMedication(ctx context.Context, id int64) error {
	med, err := s.store.GetMedication(ctx, id)
	if err != nil {
		return err
	}
	if err := s.sched.CancelAll(ctx, med.Handles); err != nil {
		return fmt.Errorf("tracker: cancel reminders: %w", err)
	}
	return s.store.DeleteMedication(ctx, id)
}

func (s *Service) Medication(ctx context.Context, id int64) (model.Medication, error) {
	return s.store.GetMedication(ctx, id)
}

func (s *Service) Medications(ctx context.Context, userID int64) ([]model.Medication, error) {
	return s.store.GetMedicationsForUser(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID int64, date string, limit int) ([]model.HistoryEvent, error) {
	return s.store.ListHistory(ctx, storage.HistoryFilter{UserID: userID, Date: date, Limit: limit})
}

func (s *Service) Stats(ctx context.Context, userID int64) (model.Stats, error) {
	return s.store.HistoryStats(ctx, userID)
}

func (s *Service) Reconcile(ctx context.Context, userID int64) (scheduler.Report, error) {
	return s.recon.Reconcile(ctx, userID)
}

// NextFire is when the medication's earliest reminder fires next.
func (s *Service) NextFire(med model.Medication) (time.Time, bool) {
	occurrences, err := med.Occurrences()
	if err != nil || len(occurrences) == 0 {
		return time.Time{}, false
	}
	now := s.now()
	var next time.Time
	for _, c := range occurrences {
		at := scheduler.NextFireInstant(c.Hour, c.Minute, now)
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	return next, true
}

// Prune cancels live reminders that no medication of userID references.
// Handles for which keep returns true survive.
func (s *Service) Prune(ctx context.Context, userID int64, keep func(handle string) bool) (int, error) {
	return s.recon.Prune(ctx, userID, keep)
}
