package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/sandeepkv93/medd/internal/metrics"
	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/notify"
)

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", value, time.UTC)
	require.NoError(t, err)
	return ts
}

func TestNextFireInstant(t *testing.T) {
	cases := []struct {
		name   string
		now    string
		hour   int
		minute int
		want   string
	}{
		{name: "later today", now: "2024-01-01 08:00:00", hour: 9, minute: 0, want: "2024-01-01 09:00:00"},
		{name: "equal rolls forward", now: "2024-01-01 09:00:00", hour: 9, minute: 0, want: "2024-01-02 09:00:00"},
		{name: "just passed", now: "2024-01-01 09:00:01", hour: 9, minute: 0, want: "2024-01-02 09:00:00"},
		{name: "across month end", now: "2024-01-31 23:59:00", hour: 0, minute: 5, want: "2024-02-01 00:05:00"},
		{name: "across year end", now: "2024-12-31 22:00:00", hour: 21, minute: 30, want: "2025-01-01 21:30:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextFireInstant(tc.hour, tc.minute, at(t, tc.now))
			require.True(t, got.Equal(at(t, tc.want)), "got %s", got)
		})
	}
}

func TestNextFireInstantKeepsLocation(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2024, 1, 1, 22, 0, 0, 0, loc)
	got := NextFireInstant(21, 0, now)
	require.Equal(t, loc, got.Location())
	require.Equal(t, time.Date(2024, 1, 2, 21, 0, 0, 0, loc), got)
}

func TestExpand(t *testing.T) {
	want := []model.ClockTime{{Hour: 8}, {Hour: 16}, {Hour: 0}}
	if diff := cmp.Diff(want, Expand(8, 0, 8)); diff != "" {
		t.Fatalf("expand every 8h (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.ClockTime{{Hour: 8}}, Expand(8, 0, 24)); diff != "" {
		t.Fatalf("expand daily (-want +got):\n%s", diff)
	}
	require.Len(t, Expand(6, 15, 6), 4)
}

func TestScheduleReturnsHandleAndNextFire(t *testing.T) {
	n := newFakeNotifier()
	s := New(n, WithClock(func() time.Time { return at(t, "2024-01-01 08:00:00") }))

	res, err := s.Schedule(context.Background(), Request{MedicationID: 3, MedicationName: "Aspirin", DosageLabel: "100mg", Hour: 9})
	require.NoError(t, err)
	require.Equal(t, "h-1", res.Handle)
	require.True(t, res.ScheduledAt.Equal(at(t, "2024-01-01 09:00:00")))
	require.Equal(t, notify.Payload{Title: "Medication reminder", Body: "Time to take Aspirin - 100mg", MedicationID: 3}, n.payloads[0])

	again, err := s.Schedule(context.Background(), Request{MedicationID: 3, MedicationName: "Aspirin", Hour: 9})
	require.NoError(t, err)
	require.NotEqual(t, res.Handle, again.Handle)
}

func TestSchedulePermissionDenied(t *testing.T) {
	n := newFakeNotifier()
	n.granted = false
	m := metrics.New()
	s := New(n, WithMetrics(m))

	_, err := s.Schedule(context.Background(), Request{Hour: 9})
	require.ErrorIs(t, err, ErrPermissionDenied)
	require.Empty(t, n.liveList())
}

func TestSchedulePlatformError(t *testing.T) {
	n := newFakeNotifier()
	n.failAt[1] = errQuota
	s := New(n)

	_, err := s.Schedule(context.Background(), Request{Hour: 9})
	require.ErrorIs(t, err, ErrPlatform)
	require.ErrorIs(t, err, errQuota)
}

func TestScheduleMultipleRollsBackOnFailure(t *testing.T) {
	n := newFakeNotifier()
	n.failAt[2] = errQuota
	m := metrics.New()
	s := New(n, WithMetrics(m))

	reqs := []Request{{Hour: 8}, {Hour: 16}, {Hour: 0}}
	results, err := s.ScheduleMultiple(context.Background(), reqs)
	require.Nil(t, results)
	require.ErrorIs(t, err, ErrPartialBatch)
	require.ErrorIs(t, err, ErrPlatform)
	require.ErrorIs(t, err, errQuota)

	var batchErr *BatchError
	require.True(t, errors.As(err, &batchErr))
	require.Equal(t, 1, batchErr.Index)
	require.Empty(t, n.liveList())
	require.Equal(t, []string{"h-1"}, n.cancels)
}

func TestScheduleMultipleSucceeds(t *testing.T) {
	n := newFakeNotifier()
	s := New(n)

	results, err := s.ScheduleMultiple(context.Background(), []Request{{Hour: 8}, {Hour: 20}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, []string{"h-1", "h-2"}, n.liveList())
}

func TestCancelUnknownHandleIsSafe(t *testing.T) {
	s := New(newFakeNotifier())
	require.NoError(t, s.Cancel(context.Background(), "missing"))
	require.NoError(t, s.Cancel(context.Background(), ""))

	withNotifier := New(notifierForTest(t))
	require.NoError(t, withNotifier.Cancel(context.Background(), "missing"))
}

func TestDeferWrapsAcrossMidnight(t *testing.T) {
	n := newFakeNotifier()
	s := New(n, WithClock(func() time.Time { return at(t, "2024-01-01 23:55:00") }))
	ctx := context.Background()

	med := model.Medication{ID: 1, Name: "Aspirin", Dosage: "1 pill", Time: "23:50", Frequency: "daily", NotificationsEnabled: true}
	first, err := s.Schedule(ctx, Request{MedicationID: 1, Hour: 23, Minute: 50})
	require.NoError(t, err)

	res, err := s.Defer(ctx, first.Handle, med, 30)
	require.NoError(t, err)
	require.NotEqual(t, first.Handle, res.Handle)
	require.Equal(t, []string{res.Handle}, n.liveList())
	require.Equal(t, notify.DailyTrigger{Hour: 0, Minute: 20}, n.live[res.Handle])
	require.True(t, res.ScheduledAt.Equal(at(t, "2024-01-02 00:20:00")))
}

func TestDeferFailureIsReminderLost(t *testing.T) {
	n := newFakeNotifier()
	s := New(n)
	ctx := context.Background()

	first, err := s.Schedule(ctx, Request{Hour: 7})
	require.NoError(t, err)
	n.failAt[2] = errQuota

	_, err = s.Defer(ctx, first.Handle, model.Medication{ID: 1, Time: "07:00", Frequency: "daily"}, 15)
	require.ErrorIs(t, err, ErrReminderLost)
	require.ErrorIs(t, err, errQuota)
	require.Empty(t, n.liveList())
}

func TestDeferRejectsBadTimeBeforeCancel(t *testing.T) {
	n := newFakeNotifier()
	s := New(n)
	first, err := s.Schedule(context.Background(), Request{Hour: 7})
	require.NoError(t, err)

	_, err = s.Defer(context.Background(), first.Handle, model.Medication{Time: "7am"}, 15)
	require.ErrorIs(t, err, model.ErrInvalidTimeFormat)
	require.Equal(t, []string{first.Handle}, n.liveList())
}

func TestRescheduleMedicationCancelsBeforeScheduling(t *testing.T) {
	n := newFakeNotifier()
	s := New(n)
	ctx := context.Background()

	med := model.Medication{ID: 4, Name: "Amoxicillin", Time: "08:00", Frequency: "every-8h", NotificationsEnabled: true}
	handles, err := s.RescheduleMedication(ctx, med)
	require.NoError(t, err)
	require.Len(t, handles, 3)

	med.Handles = handles
	med.Time = "09:00"
	next, err := s.RescheduleMedication(ctx, med)
	require.NoError(t, err)
	require.Len(t, next, 3)
	require.ElementsMatch(t, []string(next), n.liveList())
	require.ElementsMatch(t, []string(handles), n.cancels)

	med.Handles = next
	med.NotificationsEnabled = false
	none, err := s.RescheduleMedication(ctx, med)
	require.NoError(t, err)
	require.True(t, none.IsEmpty())
	require.Empty(t, n.liveList())
}

func TestRescheduleMedicationRejectsBadInterval(t *testing.T) {
	s := New(newFakeNotifier())
	_, err := s.RescheduleMedication(context.Background(), model.Medication{Time: "08:00", Frequency: "custom:30"})
	require.ErrorIs(t, err, model.ErrInvalidInterval)
}

func notifierForTest(t *testing.T) *notify.Notifier {
	t.Helper()
	n := notify.New()
	require.NoError(t, n.Initialize(notify.DefaultDisplayPolicy()))
	t.Cleanup(func() { _ = n.Stop(context.Background()) })
	return n
}
