package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sandeepkv93/medd/internal/model"
)

type Report struct {
	RescheduledCount int      `yaml:"rescheduled"`
	SkippedCount     int      `yaml:"skipped"`
	FailedNames      []string `yaml:"failed,omitempty"`
}

// Reconciler makes sure each of a user's medications has exactly one live
// set of reminders. Running it again with no state change reschedules
// nothing.
type Reconciler struct {
	sched *Scheduler
	store Store
	group singleflight.Group
}

func NewReconciler(sched *Scheduler, store Store) *Reconciler {
	return &Reconciler{sched: sched, store: store}
}

// Reconcile runs one pass for userID. Concurrent calls for the same user
// share a single pass and its report.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64) (Report, error) {
	v, err, shared := r.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		return r.reconcile(ctx, userID)
	})
	if shared {
		r.sched.log.Debug("reconciliation shared", zap.Int64("user_id", userID))
	}
	if err != nil {
		return Report{}, err
	}
	return v.(Report), nil
}

func (r *Reconciler) reconcile(ctx context.Context, userID int64) (Report, error) {
	log := r.sched.log.With(zap.Int64("user_id", userID))

	meds, err := r.store.GetMedicationsForUser(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("scheduler: load medications: %w", err)
	}
	live, err := r.sched.notifier.LiveHandles(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: list live handles: %w", ErrPlatform, err)
	}

	var report Report
	fail := func(med model.Medication, msg string, err error) {
		log.Warn(msg, zap.Int64("medication_id", med.ID), zap.String("name", med.Name), zap.Error(err))
		report.FailedNames = append(report.FailedNames, med.Name)
	}

	for _, med := range meds {
		if !med.NotificationsEnabled || med.Handles.AllIn(live) {
			report.SkippedCount++
			continue
		}

		reqs, err := RequestsFor(med)
		if err != nil {
			fail(med, "skipping medication with unusable schedule", err)
			continue
		}

		// Live leftovers of a partly lost set would become duplicates.
		var cancelErr error
		for _, h := range med.Handles.Intersect(live) {
			if err := r.sched.Cancel(ctx, h); err != nil {
				cancelErr = err
				break
			}
			delete(live, h)
		}
		if cancelErr != nil {
			fail(med, "could not clear stale reminders", cancelErr)
			continue
		}

		handles, err := r.sched.ScheduleRequests(ctx, reqs)
		if err != nil {
			fail(med, "could not reschedule medication", err)
			continue
		}
		if err := r.store.SetReminderHandle(ctx, med.ID, handles); err != nil {
			if cerr := r.sched.CancelAll(ctx, handles); cerr != nil {
				log.Warn("could not cancel unsaved reminders", zap.Strings("handles", handles), zap.Error(cerr))
			}
			fail(med, "could not persist reminder handles", err)
			continue
		}
		report.RescheduledCount++
	}

	r.sched.metrics.ReconcileRun(report.RescheduledCount, report.SkippedCount, len(report.FailedNames))
	log.Info("reconciliation finished",
		zap.Int("rescheduled", report.RescheduledCount),
		zap.Int("skipped", report.SkippedCount),
		zap.Strings("failed", report.FailedNames),
	)
	return report, nil
}

// Prune cancels live reminders that none of userID's medications reference,
// such as the old set of a medication another process rescheduled. Handles
// for which keep returns true are left alone. The process must serve only
// userID, and Prune must not overlap a Reconcile for the same user.
func (r *Reconciler) Prune(ctx context.Context, userID int64, keep func(handle string) bool) (int, error) {
	meds, err := r.store.GetMedicationsForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("scheduler: load medications: %w", err)
	}
	live, err := r.sched.notifier.LiveHandles(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list live handles: %w", ErrPlatform, err)
	}
	for _, med := range meds {
		for _, h := range med.Handles {
			delete(live, h)
		}
	}

	pruned := 0
	var errs []error
	for h := range live {
		if keep != nil && keep(h) {
			continue
		}
		if err := r.sched.Cancel(ctx, h); err != nil {
			errs = append(errs, err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		r.sched.log.Info("pruned orphaned reminders", zap.Int64("user_id", userID), zap.Int("count", pruned))
	}
	return pruned, errors.Join(errs...)
}
