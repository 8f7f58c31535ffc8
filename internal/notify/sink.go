package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrThrottled = errors.New("notify: delivery throttled")

// Sink receives fired reminders.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

type SinkFunc func(ctx context.Context, d Delivery) error

func (f SinkFunc) Deliver(ctx context.Context, d Delivery) error { return f(ctx, d) }

// MultiSink delivers to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Deliver(ctx context.Context, d Delivery) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Deliver(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) Deliver(_ context.Context, d Delivery) error {
	if s.Log == nil {
		return nil
	}
	s.Log.Info("reminder fired",
		zap.String("handle", d.Handle),
		zap.String("kind", d.Kind),
		zap.Int64("medication_id", d.Payload.MedicationID),
		zap.String("title", d.Payload.Title),
		zap.String("body", d.Payload.Body),
		zap.Time("fired_at", d.FiredAt),
	)
	return nil
}

// ChannelSink forwards deliveries to a buffered channel without blocking.
type ChannelSink struct {
	ch      chan Delivery
	dropped atomic.Uint64
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Delivery, buffer)}
}

func (s *ChannelSink) C() <-chan Delivery { return s.ch }

func (s *ChannelSink) Dropped() uint64 { return s.dropped.Load() }

func (s *ChannelSink) Deliver(_ context.Context, d Delivery) error {
	select {
	case s.ch <- d:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// CommandRunner runs an external notification command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// DesktopSink shows reminders through notify-send (Linux) or osascript
// (macOS). Bursts are rate limited and a failing command trips a breaker.
type DesktopSink struct {
	run     CommandRunner
	goos    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[struct{}]
}

type DesktopOption func(*DesktopSink)

func WithCommandRunner(r CommandRunner) DesktopOption {
	return func(s *DesktopSink) { s.run = r }
}

func WithGOOS(goos string) DesktopOption {
	return func(s *DesktopSink) { s.goos = goos }
}

func NewDesktopSink(perMinute int, opts ...DesktopOption) *DesktopSink {
	if perMinute <= 0 {
		perMinute = 6
	}
	s := &DesktopSink{
		run:     execRunner,
		goos:    runtime.GOOS,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "desktop-notify",
			MaxRequests: 1,
			Timeout:     time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DesktopSink) Deliver(ctx context.Context, d Delivery) error {
	if !d.Policy.ShowBanner {
		return nil
	}
	if !s.limiter.Allow() {
		return fmt.Errorf("%w: %s", ErrThrottled, d.Handle)
	}
	name, args, ok := desktopCommand(s.goos, d)
	if !ok {
		return nil
	}
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.run(ctx, name, args...)
	})
	if err != nil {
		return fmt.Errorf("notify: desktop delivery: %w", err)
	}
	return nil
}

func desktopCommand(goos string, d Delivery) (string, []string, bool) {
	switch goos {
	case "linux":
		urgency := "normal"
		if d.Policy.PlaySound {
			urgency = "critical"
		}
		return "notify-send", []string{"-a", "medd", "-u", urgency, d.Payload.Title, d.Payload.Body}, true
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(d.Payload.Body), escapeAppleScript(d.Payload.Title))
		if d.Policy.PlaySound {
			script += ` sound name "default"`
		}
		return "osascript", []string{"-e", script}, true
	default:
		return "", nil, false
	}
}

func escapeAppleScript(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
