package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/model"
)

type SweepReport struct {
	Date   string `yaml:"date"`
	Missed int    `yaml:"missed"`
	Reset  int64  `yaml:"reset"`
}

// SweepDate is the day a sweep at now closes: before noon that is the
// previous calendar day, from noon on the current one.
func SweepDate(now time.Time) string {
	if now.Hour() < 12 {
		now = now.AddDate(0, 0, -1)
	}
	return now.Format(model.DateLayout)
}

// Sweep closes date: every enabled medication without a history row for
// that day gets a missed row, then all taken flags are cleared. Running it
// twice for the same date adds nothing.
func (s *Service) Sweep(ctx context.Context, date string) (SweepReport, error) {
	report := SweepReport{Date: date}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("tracker: sweep users: %w", err)
	}
	for _, u := range users {
		meds, err := s.store.GetMedicationsForUser(ctx, u.ID)
		if err != nil {
			return report, fmt.Errorf("tracker: sweep medications: %w", err)
		}
		for _, med := range meds {
			if !activeOn(med, date) || med.TakenToday {
				continue
			}
			seen, err := s.store.HasHistoryFor(ctx, med.ID, date)
			if err != nil {
				return report, err
			}
			if seen {
				continue
			}
			ev := model.HistoryEvent{
				MedicationID:   med.ID,
				UserID:         med.UserID,
				MedicationName: med.Name,
				Dosage:         med.Dosage,
				ScheduledTime:  med.Time,
				Status:         model.StatusMissed,
				Date:           date,
				CreatedAt:      s.now(),
			}
			if err := s.store.RecordHistoryEvent(ctx, ev); err != nil {
				s.log.Warn("could not record missed dose", zap.Int64("medication_id", med.ID), zap.Error(err))
				continue
			}
			report.Missed++
		}
	}
	reset, err := s.store.ResetTakenToday(ctx)
	if err != nil {
		return report, fmt.Errorf("tracker: reset taken flags: %w", err)
	}
	report.Reset = reset
	s.log.Info("adherence sweep finished", zap.String("date", date), zap.Int("missed", report.Missed), zap.Int64("reset", reset))
	return report, nil
}

func activeOn(med model.Medication, date string) bool {
	if !med.NotificationsEnabled {
		return false
	}
	if med.StartDate != "" && date < med.StartDate {
		return false
	}
	if med.EndDate != "" && date > med.EndDate {
		return false
	}
	if !med.CreatedAt.IsZero() && med.CreatedAt.Format(model.DateLayout) > date {
		return false
	}
	return true
}

// Sweeper runs Sweep on a cron schedule.
type Sweeper struct {
	svc  *Service
	cron *cron.Cron
	log  *zap.Logger

	mu   sync.Mutex
	last SweepReport
}

func NewSweeper(svc *Service, spec string, loc *time.Location) (*Sweeper, error) {
	if loc == nil {
		loc = time.Local
	}
	sw := &Sweeper{svc: svc, log: svc.log, cron: cron.New(cron.WithLocation(loc))}
	if _, err := sw.cron.AddFunc(spec, sw.run); err != nil {
		return nil, fmt.Errorf("tracker: sweep schedule %q: %w", spec, err)
	}
	return sw, nil
}

func (sw *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	report, err := sw.svc.Sweep(ctx, SweepDate(sw.svc.now()))
	if err != nil {
		sw.log.Error("adherence sweep failed", zap.Error(err))
		return
	}
	sw.mu.Lock()
	sw.last = report
	sw.mu.Unlock()
}

func (sw *Sweeper) Last() SweepReport {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.last
}

func (sw *Sweeper) Start() { sw.cron.Start() }

// Stop waits for a running sweep to finish.
func (sw *Sweeper) Stop() {
	<-sw.cron.Stop().Done()
}
