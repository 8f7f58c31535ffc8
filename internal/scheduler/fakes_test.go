package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/notify"
)

var errQuota = errors.New("quota exceeded")

type fakeNotifier struct {
	mu       sync.Mutex
	seq      int
	live     map[string]notify.DailyTrigger
	granted  bool
	failAt   map[int]error
	calls    int
	cancels  []string
	payloads []notify.Payload
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{live: make(map[string]notify.DailyTrigger), granted: true, failAt: make(map[int]error)}
}

func (f *fakeNotifier) RequestPermission(context.Context) (bool, error) {
	return f.granted, nil
}

func (f *fakeNotifier) RegisterDaily(_ context.Context, hour, minute int, payload notify.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.failAt[f.calls]; ok {
		return "", err
	}
	f.seq++
	h := fmt.Sprintf("h-%d", f.seq)
	f.live[h] = notify.DailyTrigger{Hour: hour, Minute: minute}
	f.payloads = append(f.payloads, payload)
	return h, nil
}

func (f *fakeNotifier) Cancel(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, handle)
	delete(f.live, handle)
	return nil
}

func (f *fakeNotifier) LiveHandles(context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{}, len(f.live))
	for h := range f.live {
		out[h] = struct{}{}
	}
	return out, nil
}

func (f *fakeNotifier) liveList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.live))
	for h := range f.live {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// reboot drops every live trigger, as a device restart can.
func (f *fakeNotifier) reboot() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = make(map[string]notify.DailyTrigger)
}

type fakeStore struct {
	mu      sync.Mutex
	meds    []model.Medication
	setErr  error
	history []model.HistoryEvent
	sets    int
}

func (s *fakeStore) GetMedicationsForUser(_ context.Context, userID int64) ([]model.Medication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Medication
	for _, m := range s.meds {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) SetReminderHandle(_ context.Context, id int64, handles model.HandleSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	for i := range s.meds {
		if s.meds[i].ID == id {
			s.meds[i].Handles = handles
			s.sets++
			return nil
		}
	}
	return errors.New("not found")
}

func (s *fakeStore) GetReminderHandle(_ context.Context, id int64) (model.HandleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.meds {
		if m.ID == id {
			return m.Handles, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *fakeStore) RecordHistoryEvent(_ context.Context, ev model.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, ev)
	return nil
}

func (s *fakeStore) handlesOf(id int64) model.HandleSet {
	h, _ := s.GetReminderHandle(context.Background(), id)
	return h
}
