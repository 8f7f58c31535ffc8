package notify

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestOneShotQueueEmitsInFireOrder(t *testing.T) {
	q := newOneShotQueue(8, nil, nil)
	q.Start()
	defer q.Stop()

	now := time.Now()
	if err := q.Add("later", now.Add(80*time.Millisecond)); err != nil {
		t.Fatalf("add later: %v", err)
	}
	if err := q.Add("sooner", now.Add(20*time.Millisecond)); err != nil {
		t.Fatalf("add sooner: %v", err)
	}

	first := waitShot(t, q.C(), time.Second)
	second := waitShot(t, q.C(), time.Second)
	if first.Handle != "sooner" || second.Handle != "later" {
		t.Fatalf("unexpected order: first=%s second=%s", first.Handle, second.Handle)
	}
}

func TestOneShotQueueDropsWhenConsumerIsSlow(t *testing.T) {
	q := newOneShotQueue(1, nil, nil)
	q.Start()
	defer q.Stop()

	at := time.Now().Add(20 * time.Millisecond)
	for i := 0; i < 25; i++ {
		if err := q.Add(fmt.Sprintf("h%d", i), at); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	time.Sleep(120 * time.Millisecond)
	if q.Dropped() == 0 {
		t.Fatalf("expected dropped shots > 0, got %d", q.Dropped())
	}
}

func TestOneShotQueueRemove(t *testing.T) {
	q := newOneShotQueue(4, nil, nil)
	q.Start()
	defer q.Stop()

	if err := q.Add("gone", time.Now().Add(30*time.Millisecond)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !q.Remove("gone") {
		t.Fatalf("expected remove to find handle")
	}
	if q.Remove("gone") {
		t.Fatalf("second remove should report false")
	}

	select {
	case s := <-q.C():
		t.Fatalf("removed shot fired: %+v", s)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOneShotQueueRejectsAddAfterStop(t *testing.T) {
	q := newOneShotQueue(1, nil, nil)
	q.Stop()
	if err := q.Add("late", time.Now()); err != errQueueStopped {
		t.Fatalf("expected errQueueStopped, got %v", err)
	}
}

func TestOneShotQueueConcurrentAdd(t *testing.T) {
	q := newOneShotQueue(1024, nil, nil)
	q.Start()
	defer q.Stop()

	const workers = 8
	const perWorker = 50
	total := workers * perWorker

	now := time.Now()
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				delay := time.Duration((w+i)%30+10) * time.Millisecond
				if err := q.Add(fmt.Sprintf("w%d-%d", w, i), now.Add(delay)); err != nil {
					t.Errorf("add failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	deadline := time.After(5 * time.Second)
	received := 0
	for received < total {
		select {
		case <-deadline:
			t.Fatalf("timeout: received=%d total=%d dropped=%d", received, total, q.Dropped())
		case <-q.C():
			received++
		}
	}
	if q.Dropped() != 0 {
		t.Fatalf("expected zero drops with active consumer, got=%d", q.Dropped())
	}
}

func waitShot(t *testing.T, ch <-chan shot, timeout time.Duration) shot {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for shot")
		return shot{}
	}
}

func TestOneShotQueueReportsDroppedHandles(t *testing.T) {
	var (
		mu      sync.Mutex
		dropped []string
	)
	q := newOneShotQueue(1, nil, func(handle string) {
		mu.Lock()
		dropped = append(dropped, handle)
		mu.Unlock()
	})
	q.Start()
	defer q.Stop()

	at := time.Now().Add(10 * time.Millisecond)
	for _, h := range []string{"a", "b", "c"} {
		if err := q.Add(h, at); err != nil {
			t.Fatalf("add %s: %v", h, err)
		}
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(dropped)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 dropped handles, got %d", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if q.Dropped() != 2 {
		t.Fatalf("dropped counter = %d, want 2", q.Dropped())
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestOneShotQueueFollowsInjectedClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC)}
	q := newOneShotQueue(4, clock.Now, nil)
	q.Start()
	defer q.Stop()

	if err := q.Add("dose", clock.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatalf("add: %v", err)
	}
	select {
	case s := <-q.C():
		t.Fatalf("shot fired before the clock reached it: %+v", s)
	case <-time.After(60 * time.Millisecond):
	}

	clock.Advance(time.Second)
	if s := waitShot(t, q.C(), time.Second); s.Handle != "dose" {
		t.Fatalf("unexpected shot %+v", s)
	}
}
