package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestNotifier(t *testing.T, opts ...Option) *Notifier {
	t.Helper()
	seq := 0
	base := []Option{WithHandleGenerator(func() string {
		seq++
		return fmt.Sprintf("h-%d", seq)
	})}
	n := New(append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, n.Stop(ctx))
	})
	return n
}

func TestInitializeTwiceFails(t *testing.T) {
	n := newTestNotifier(t)
	require.NoError(t, n.Initialize(DefaultDisplayPolicy()))
	require.ErrorIs(t, n.Initialize(DefaultDisplayPolicy()), ErrAlreadyInitialized)
}

func TestRegisterBeforeInitializeIsPlatformError(t *testing.T) {
	n := newTestNotifier(t)
	_, err := n.RegisterDaily(context.Background(), 8, 0, Payload{Title: "x"})
	require.ErrorIs(t, err, ErrPlatform)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestRegisterDailyAndCancel(t *testing.T) {
	ctx := context.Background()
	n := newTestNotifier(t)
	require.NoError(t, n.Initialize(DefaultDisplayPolicy()))

	h, err := n.RegisterDaily(ctx, 8, 30, Payload{Title: "Aspirin"})
	require.NoError(t, err)
	require.Equal(t, "h-1", h)

	trig, ok := n.DailyTriggerOf(h)
	require.True(t, ok)
	require.Equal(t, DailyTrigger{Hour: 8, Minute: 30}, trig)

	live, err := n.LiveHandles(ctx)
	require.NoError(t, err)
	require.Contains(t, live, h)

	require.NoError(t, n.Cancel(ctx, h))
	require.NoError(t, n.Cancel(ctx, h))
	require.NoError(t, n.Cancel(ctx, "never-issued"))

	live, err = n.LiveHandles(ctx)
	require.NoError(t, err)
	require.Empty(t, live)
}

func TestRegisterRejectsInvalidTriggers(t *testing.T) {
	ctx := context.Background()
	n := newTestNotifier(t)
	require.NoError(t, n.Initialize(DefaultDisplayPolicy()))

	_, err := n.RegisterDaily(ctx, 24, 0, Payload{})
	require.ErrorIs(t, err, ErrInvalidTrigger)
	_, err = n.Register(ctx, OneShotTrigger{}, Payload{})
	require.ErrorIs(t, err, ErrInvalidTrigger)
	_, err = n.Register(ctx, nil, Payload{})
	require.ErrorIs(t, err, ErrInvalidTrigger)
}

func TestRegisterHonorsPermissionMode(t *testing.T) {
	ctx := context.Background()
	n := newTestNotifier(t, WithPermission(PermissionDenied, nil))
	require.NoError(t, n.Initialize(DefaultDisplayPolicy()))

	granted, err := n.RequestPermission(ctx)
	require.NoError(t, err)
	require.False(t, granted)

	_, err = n.RegisterDaily(ctx, 8, 0, Payload{})
	require.ErrorIs(t, err, ErrPermissionDenied)
}

func TestPromptIsAskedOnce(t *testing.T) {
	ctx := context.Background()
	calls := 0
	n := newTestNotifier(t, WithPermission(PermissionPrompt, func(context.Context) (bool, error) {
		calls++
		return true, nil
	}))

	for i := 0; i < 3; i++ {
		granted, err := n.RequestPermission(ctx)
		require.NoError(t, err)
		require.True(t, granted)
	}
	require.Equal(t, 1, calls)
}

func TestPromptErrorIsNotMemoized(t *testing.T) {
	ctx := context.Background()
	calls := 0
	n := newTestNotifier(t, WithPermission(PermissionPrompt, func(context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return false, errors.New("tty closed")
		}
		return true, nil
	}))

	_, err := n.RequestPermission(ctx)
	require.Error(t, err)
	granted, err := n.RequestPermission(ctx)
	require.NoError(t, err)
	require.True(t, granted)
}

func TestTriggerQuotaIsPlatformError(t *testing.T) {
	ctx := context.Background()
	n := newTestNotifier(t)
	policy := DefaultDisplayPolicy()
	policy.MaxTriggers = 2
	require.NoError(t, n.Initialize(policy))

	_, err := n.RegisterDaily(ctx, 8, 0, Payload{})
	require.NoError(t, err)
	_, err = n.RegisterDaily(ctx, 20, 0, Payload{})
	require.NoError(t, err)
	_, err = n.RegisterDaily(ctx, 12, 0, Payload{})
	require.ErrorIs(t, err, ErrPlatform)
}

func TestOneShotDeliversToSink(t *testing.T) {
	ctx := context.Background()
	sink := NewChannelSink(4)
	n := newTestNotifier(t, WithSink(sink))
	require.NoError(t, n.Initialize(DefaultDisplayPolicy()))
	n.Start()

	h, err := n.FireTestTrigger(ctx, 20*time.Millisecond, Payload{Title: "Test", Body: "ring", MedicationID: 7})
	require.NoError(t, err)

	select {
	case d := <-sink.C():
		require.Equal(t, h, d.Handle)
		require.Equal(t, "oneshot", d.Kind)
		require.Equal(t, int64(7), d.Payload.MedicationID)
		require.Equal(t, "medication-alarm", d.Policy.Channel)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for delivery")
	}

	live, err := n.LiveHandles(ctx)
	require.NoError(t, err)
	require.NotContains(t, live, h)
}

func TestCancelledOneShotNeverFires(t *testing.T) {
	ctx := context.Background()
	sink := NewChannelSink(4)
	n := newTestNotifier(t, WithSink(sink))
	require.NoError(t, n.Initialize(DefaultDisplayPolicy()))
	n.Start()

	h, err := n.FireTestTrigger(ctx, 40*time.Millisecond, Payload{Title: "Test"})
	require.NoError(t, err)
	require.NoError(t, n.Cancel(ctx, h))

	select {
	case d := <-sink.C():
		t.Fatalf("cancelled trigger fired: %+v", d)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRegisterAfterStopFails(t *testing.T) {
	n := newTestNotifier(t)
	require.NoError(t, n.Initialize(DefaultDisplayPolicy()))
	n.Start()
	require.NoError(t, n.Stop(context.Background()))

	_, err := n.RegisterDaily(context.Background(), 9, 0, Payload{})
	require.ErrorIs(t, err, ErrPlatform)
}

func TestDroppedOneShotLeavesLiveSet(t *testing.T) {
	ctx := context.Background()
	delivering := make(chan string, 4)
	release := make(chan struct{})
	sink := SinkFunc(func(_ context.Context, d Delivery) error {
		delivering <- d.Handle
		<-release
		return nil
	})
	n := newTestNotifier(t, WithSink(sink), WithQueueBuffer(1))
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	require.NoError(t, n.Initialize(DefaultDisplayPolicy()))
	n.Start()

	first, err := n.FireTestTrigger(ctx, 5*time.Millisecond, Payload{Title: "first"})
	require.NoError(t, err)
	select {
	case h := <-delivering:
		require.Equal(t, first, h)
	case <-time.After(2 * time.Second):
		t.Fatal("first one-shot never delivered")
	}

	// Delivery is blocked, so one shot fills the buffer and the other is dropped.
	queued, err := n.FireTestTrigger(ctx, 5*time.Millisecond, Payload{Title: "queued"})
	require.NoError(t, err)
	lost, err := n.FireTestTrigger(ctx, 5*time.Millisecond, Payload{Title: "lost"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return n.shots.Dropped() == 1 }, 2*time.Second, 5*time.Millisecond)
	live, err := n.LiveHandles(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	_, queuedLive := live[queued]
	_, lostLive := live[lost]
	require.True(t, queuedLive != lostLive, "exactly one of the later shots stays live")

	close(release)
	require.Eventually(t, func() bool {
		live, _ := n.LiveHandles(ctx)
		return len(live) == 0
	}, 2*time.Second, 5*time.Millisecond)
}
