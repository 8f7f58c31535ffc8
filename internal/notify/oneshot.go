package notify

import (
	"container/heap"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var errQueueStopped = errors.New("notify: one-shot queue stopped")

type shot struct {
	Handle string
	FireAt time.Time
}

type shotHeap []shot

func (h shotHeap) Len() int { return len(h) }

func (h shotHeap) Less(i, j int) bool {
	return h[i].FireAt.Before(h[j].FireAt)
}

func (h shotHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *shotHeap) Push(x any) {
	*h = append(*h, x.(shot))
}

func (h *shotHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// oneShotQueue emits handles on C when their fire time is reached. Emission
// never blocks; if the consumer lags, events are dropped, counted and passed
// to onDrop.
type oneShotQueue struct {
	now    func() time.Time
	onDrop func(handle string)

	mu      sync.Mutex
	queue   shotHeap
	out     chan shot
	wakeup  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	stopped bool
	dropped uint64
}

// newOneShotQueue builds a queue reading time from now, time.Now when nil.
// onDrop may be nil.
func newOneShotQueue(bufferSize int, now func() time.Time, onDrop func(handle string)) *oneShotQueue {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if now == nil {
		now = time.Now
	}
	return &oneShotQueue{
		now:    now,
		onDrop: onDrop,
		queue:  make(shotHeap, 0),
		out:    make(chan shot, bufferSize),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (q *oneShotQueue) C() <-chan shot {
	return q.out
}

func (q *oneShotQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	heap.Init(&q.queue)
	go q.loop()
}

func (q *oneShotQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stopCh)
	started := q.started
	q.mu.Unlock()
	if started {
		<-q.doneCh
	}
}

func (q *oneShotQueue) Add(handle string, at time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return errQueueStopped
	}
	heap.Push(&q.queue, shot{Handle: handle, FireAt: at})
	q.signalWakeup()
	return nil
}

// Remove drops a pending shot. It reports whether the handle was queued.
func (q *oneShotQueue) Remove(handle string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.queue {
		if q.queue[i].Handle == handle {
			heap.Remove(&q.queue, i)
			q.signalWakeup()
			return true
		}
	}
	return false
}

func (q *oneShotQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

func (q *oneShotQueue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

func (q *oneShotQueue) loop() {
	defer close(q.doneCh)
	defer close(q.out)

	var timer *time.Timer
	for {
		next, hasNext := q.peek()
		if !hasNext {
			select {
			case <-q.wakeup:
				continue
			case <-q.stopCh:
				return
			}
		}

		wait := next.FireAt.Sub(q.now())
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, s := range q.popDue(q.now()) {
				select {
				case q.out <- s:
				default:
					atomic.AddUint64(&q.dropped, 1)
					if q.onDrop != nil {
						q.onDrop(s.Handle)
					}
				}
			}
		case <-q.wakeup:
			continue
		case <-q.stopCh:
			stopTimer(timer)
			return
		}
	}
}

func (q *oneShotQueue) signalWakeup() {
	select {
	case q.wakeup <- struct{}{}:
	default:
	}
}

func (q *oneShotQueue) peek() (shot, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.queue) == 0 {
		return shot{}, false
	}
	return q.queue[0], true
}

func (q *oneShotQueue) popDue(now time.Time) []shot {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]shot, 0)
	for len(q.queue) > 0 {
		if q.queue[0].FireAt.After(now) {
			break
		}
		out = append(out, heap.Pop(&q.queue).(shot))
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
