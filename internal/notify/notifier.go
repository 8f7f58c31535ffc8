// Package notify is the local reminder notifier: it owns the live trigger
// queue, fires reminders at their wall-clock time and hands them to sinks.
//
// The queue lives in process memory only. A restart starts from an empty
// queue, the same way a device reboot can drop scheduled alarms, and the
// scheduler's reconciliation pass is what restores it.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/metrics"
)

const deliveryTimeout = 10 * time.Second

type dailyEntry struct {
	id      cron.EntryID
	trigger DailyTrigger
	payload Payload
}

type Notifier struct {
	log       *zap.Logger
	metrics   *metrics.Metrics
	loc       *time.Location
	now       func() time.Time
	newHandle func() string
	sink      Sink
	mode      PermissionMode
	prompter  Prompter

	cron        *cron.Cron
	shots       *oneShotQueue
	queueBuffer int

	permMu  sync.Mutex
	decided bool
	granted bool

	mu          sync.Mutex
	policy      DisplayPolicy
	initialized bool
	daily       map[string]dailyEntry
	pending     map[string]Payload
	running     bool
	stopped     bool
	drainDone   chan struct{}
}

type Option func(*Notifier)

func WithLogger(log *zap.Logger) Option {
	return func(n *Notifier) { n.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

func WithLocation(loc *time.Location) Option {
	return func(n *Notifier) { n.loc = loc }
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func WithHandleGenerator(gen func() string) Option {
	return func(n *Notifier) { n.newHandle = gen }
}

func WithSink(s Sink) Option {
	return func(n *Notifier) { n.sink = s }
}

func WithPermission(mode PermissionMode, prompter Prompter) Option {
	return func(n *Notifier) {
		n.mode = mode
		n.prompter = prompter
	}
}

func WithQueueBuffer(size int) Option {
	return func(n *Notifier) { n.queueBuffer = size }
}

func New(opts ...Option) *Notifier {
	n := &Notifier{
		log:         zap.NewNop(),
		loc:         time.Local,
		now:         time.Now,
		newHandle:   uuid.NewString,
		mode:        PermissionGranted,
		daily:       make(map[string]dailyEntry),
		pending:     make(map[string]Payload),
		drainDone:   make(chan struct{}),
		queueBuffer: 64,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.shots = newOneShotQueue(n.queueBuffer, n.now, n.dropShot)
	if n.sink == nil {
		n.sink = LogSink{Log: n.log}
	}
	n.cron = cron.New(
		cron.WithLocation(n.loc),
		cron.WithChain(cron.Recover(cronLogger{log: n.log.Sugar()})),
		cron.WithLogger(cronLogger{log: n.log.Sugar()}),
	)
	return n
}

// Initialize installs the display policy. It must be called exactly once
// before any trigger is registered.
func (n *Notifier) Initialize(policy DisplayPolicy) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.initialized {
		return ErrAlreadyInitialized
	}
	if policy.MaxTriggers <= 0 {
		policy.MaxTriggers = DefaultDisplayPolicy().MaxTriggers
	}
	n.policy = policy
	n.initialized = true
	n.log.Debug("notifier initialized",
		zap.String("channel", policy.Channel),
		zap.Bool("sound", policy.PlaySound),
		zap.Int("max_triggers", policy.MaxTriggers),
	)
	return nil
}

func (n *Notifier) Policy() DisplayPolicy {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.policy
}

// Start begins firing registered triggers. Triggers may be registered
// before Start; they fire only once the notifier is running.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running || n.stopped {
		return
	}
	n.running = true
	n.cron.Start()
	n.shots.Start()
	go n.drain()
}

// Stop halts firing and waits for in-flight deliveries or ctx.
func (n *Notifier) Stop(ctx context.Context) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	wasRunning := n.running
	n.mu.Unlock()

	if !wasRunning {
		n.shots.Stop()
		return nil
	}
	cronDone := n.cron.Stop()
	n.shots.Stop()
	select {
	case <-cronDone.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-n.drainDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestPermission resolves the permission mode, prompting at most once.
func (n *Notifier) RequestPermission(ctx context.Context) (bool, error) {
	n.permMu.Lock()
	defer n.permMu.Unlock()
	if n.decided {
		return n.granted, nil
	}
	switch n.mode {
	case PermissionDenied:
		n.decided, n.granted = true, false
	case PermissionPrompt:
		if n.prompter == nil {
			n.decided, n.granted = true, false
			break
		}
		ok, err := n.prompter(ctx)
		if err != nil {
			return false, fmt.Errorf("notify: permission prompt: %w", err)
		}
		n.decided, n.granted = true, ok
	default:
		n.decided, n.granted = true, true
	}
	return n.granted, nil
}

// Register validates trigger and adds it to the live queue.
func (n *Notifier) Register(ctx context.Context, trigger Trigger, payload Payload) (string, error) {
	if trigger == nil {
		return "", fmt.Errorf("%w: nil trigger", ErrInvalidTrigger)
	}
	if err := trigger.Validate(); err != nil {
		return "", err
	}
	granted, err := n.RequestPermission(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPlatform, err)
	}
	if !granted {
		return "", ErrPermissionDenied
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.initialized {
		return "", fmt.Errorf("%w: %w", ErrPlatform, ErrNotInitialized)
	}
	if n.stopped {
		return "", fmt.Errorf("%w: notifier stopped", ErrPlatform)
	}
	if live := len(n.daily) + len(n.pending); live >= n.policy.MaxTriggers {
		return "", fmt.Errorf("%w: trigger quota of %d reached", ErrPlatform, n.policy.MaxTriggers)
	}

	handle := n.newHandle()
	switch t := trigger.(type) {
	case DailyTrigger:
		id, err := n.cron.AddFunc(t.cronSpec(), func() { n.fire(handle, t.kind()) })
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrPlatform, err)
		}
		n.daily[handle] = dailyEntry{id: id, trigger: t, payload: payload}
	case OneShotTrigger:
		n.pending[handle] = payload
		if err := n.shots.Add(handle, n.now().Add(t.Delay)); err != nil {
			delete(n.pending, handle)
			return "", fmt.Errorf("%w: %w", ErrPlatform, err)
		}
	default:
		return "", fmt.Errorf("%w: unsupported trigger %T", ErrInvalidTrigger, trigger)
	}
	n.metrics.SetLiveTriggers(len(n.daily) + len(n.pending))
	n.log.Debug("trigger registered", zap.String("handle", handle), zap.String("kind", trigger.kind()))
	return handle, nil
}

// RegisterDaily is Register with a DailyTrigger.
func (n *Notifier) RegisterDaily(ctx context.Context, hour, minute int, payload Payload) (string, error) {
	return n.Register(ctx, DailyTrigger{Hour: hour, Minute: minute}, payload)
}

// FireTestTrigger registers a one-shot reminder for debugging delivery.
func (n *Notifier) FireTestTrigger(ctx context.Context, delay time.Duration, payload Payload) (string, error) {
	return n.Register(ctx, OneShotTrigger{Delay: delay}, payload)
}

// Cancel removes a trigger. Unknown handles are ignored.
func (n *Notifier) Cancel(_ context.Context, handle string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if entry, ok := n.daily[handle]; ok {
		n.cron.Remove(entry.id)
		delete(n.daily, handle)
	} else if _, ok := n.pending[handle]; ok {
		n.shots.Remove(handle)
		delete(n.pending, handle)
	} else {
		return nil
	}
	n.metrics.SetLiveTriggers(len(n.daily) + len(n.pending))
	return nil
}

func (n *Notifier) LiveHandles(_ context.Context) (map[string]struct{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string]struct{}, len(n.daily)+len(n.pending))
	for h := range n.daily {
		out[h] = struct{}{}
	}
	for h := range n.pending {
		out[h] = struct{}{}
	}
	return out, nil
}

// DailyTriggerOf returns the daily trigger registered under handle.
func (n *Notifier) DailyTriggerOf(handle string) (DailyTrigger, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.daily[handle]
	return entry.trigger, ok
}

func (n *Notifier) drain() {
	defer close(n.drainDone)
	for s := range n.shots.C() {
		n.fire(s.Handle, OneShotTrigger{}.kind())
	}
}

// dropShot forgets a one-shot the queue could not hand over, so it stops
// counting as live.
func (n *Notifier) dropShot(handle string) {
	n.mu.Lock()
	delete(n.pending, handle)
	live := len(n.daily) + len(n.pending)
	n.mu.Unlock()
	n.metrics.SetLiveTriggers(live)
	n.log.Warn("one-shot reminder dropped, delivery is backed up", zap.String("handle", handle))
}

func (n *Notifier) fire(handle, kind string) {
	n.mu.Lock()
	var (
		payload Payload
		ok      bool
	)
	if kind == (OneShotTrigger{}).kind() {
		payload, ok = n.pending[handle]
		delete(n.pending, handle)
	} else {
		var entry dailyEntry
		entry, ok = n.daily[handle]
		payload = entry.payload
	}
	policy := n.policy
	live := len(n.daily) + len(n.pending)
	n.mu.Unlock()
	if !ok {
		return
	}
	n.metrics.SetLiveTriggers(live)

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	d := Delivery{Handle: handle, Kind: kind, Payload: payload, FiredAt: n.now().In(n.loc), Policy: policy}
	if err := n.sink.Deliver(ctx, d); err != nil {
		n.log.Warn("reminder delivery failed", zap.String("handle", handle), zap.Error(err))
	}
	n.metrics.Delivered(kind)
}

type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
