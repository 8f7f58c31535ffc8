package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sandeepkv93/medd/internal/model"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "medd-test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	repo, err := NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	return repo
}

func parseRFC3339(t *testing.T, value string) time.Time {
	t.Helper()
	out, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time: %v", err)
	}
	return out
}

func seedUser(t *testing.T, repo *SQLiteRepository) model.User {
	t.Helper()
	u, err := repo.EnsureUser(context.Background(), "ana@example.com", "Ana")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	return u
}

func TestEnsureUserIsIdempotent(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	first := seedUser(t, repo)
	second, err := repo.EnsureUser(ctx, " Ana@Example.com ", "Other name")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first.ID != second.ID || second.Name != "Ana" {
		t.Fatalf("expected existing user, got %+v vs %+v", first, second)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected one user, got %d", len(users))
	}
	if _, err := repo.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMedicationCRUDAndHandles(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo)
	created := parseRFC3339(t, "2026-02-09T12:00:00Z")

	med := model.Medication{
		UserID:               user.ID,
		Name:                 "Amoxicillin",
		Dosage:               "500mg",
		Frequency:            "every-8h",
		Time:                 "08:00",
		StartDate:            "2026-02-09",
		NotificationsEnabled: true,
		CreatedAt:            created,
	}
	id, err := repo.CreateMedication(ctx, med)
	if err != nil {
		t.Fatalf("create medication: %v", err)
	}

	got, err := repo.GetMedication(ctx, id)
	if err != nil {
		t.Fatalf("get medication: %v", err)
	}
	if got.Name != "Amoxicillin" || !got.NotificationsEnabled || got.EndDate != "" || !got.Handles.IsEmpty() {
		t.Fatalf("unexpected medication: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created_at mismatch: %s", got.CreatedAt)
	}

	handles := model.HandleSet{"a", "b", "c"}
	if err := repo.SetReminderHandle(ctx, id, handles); err != nil {
		t.Fatalf("set handle: %v", err)
	}
	stored, err := repo.GetReminderHandle(ctx, id)
	if err != nil {
		t.Fatalf("get handle: %v", err)
	}
	if stored.Encode() != "a,b,c" {
		t.Fatalf("unexpected handles: %v", stored)
	}

	got.Time = "09:30"
	got.Handles = nil
	if err := repo.UpdateMedication(ctx, got); err != nil {
		t.Fatalf("update medication: %v", err)
	}
	updated, err := repo.GetMedication(ctx, id)
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if updated.Time != "09:30" || updated.Handles.Encode() != "a,b,c" {
		t.Fatalf("update must not touch handles: %+v", updated)
	}

	if err := repo.SetReminderHandle(ctx, id, nil); err != nil {
		t.Fatalf("clear handle: %v", err)
	}
	cleared, err := repo.GetReminderHandle(ctx, id)
	if err != nil || !cleared.IsEmpty() {
		t.Fatalf("expected empty handles, got %v err=%v", cleared, err)
	}

	if err := repo.DeleteMedication(ctx, id); err != nil {
		t.Fatalf("delete medication: %v", err)
	}
	if _, err := repo.GetMedication(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.DeleteMedication(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := repo.SetReminderHandle(ctx, id, handles); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound setting handle on missing row, got %v", err)
	}
}

func TestCreateMedicationUnknownUser(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()
	_, err = repo.CreateMedication(context.Background(), model.Medication{
		UserID: 99, Name: "x", Dosage: "1", Frequency: "daily", Time: "08:00",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestMedicationsForUserOrderedByTime(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo)
	other, err := repo.EnsureUser(ctx, "bruno@example.com", "Bruno")
	if err != nil {
		t.Fatalf("ensure other: %v", err)
	}

	for _, m := range []model.Medication{
		{UserID: user.ID, Name: "Evening", Dosage: "1", Frequency: "daily", Time: "21:00"},
		{UserID: user.ID, Name: "Morning", Dosage: "1", Frequency: "daily", Time: "07:30"},
		{UserID: other.ID, Name: "Not mine", Dosage: "1", Frequency: "daily", Time: "06:00"},
	} {
		if _, err := repo.CreateMedication(ctx, m); err != nil {
			t.Fatalf("create %s: %v", m.Name, err)
		}
	}

	meds, err := repo.GetMedicationsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(meds) != 2 || meds[0].Name != "Morning" || meds[1].Name != "Evening" {
		t.Fatalf("unexpected list: %+v", meds)
	}
}

func TestTakenTodayReset(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo)

	id, err := repo.CreateMedication(ctx, model.Medication{UserID: user.ID, Name: "A", Dosage: "1", Frequency: "daily", Time: "08:00"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SetTakenToday(ctx, id, true); err != nil {
		t.Fatalf("set taken: %v", err)
	}
	n, err := repo.ResetTakenToday(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one reset row, got %d", n)
	}
	got, err := repo.GetMedication(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TakenToday {
		t.Fatalf("expected taken_today cleared")
	}
}

func TestHistoryListAndStats(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	user := seedUser(t, repo)

	events := []model.HistoryEvent{
		{MedicationID: 1, UserID: user.ID, MedicationName: "A", Dosage: "1", ScheduledTime: "08:00", TakenTime: "08:05", Status: model.StatusTaken, Date: "2026-02-08"},
		{MedicationID: 1, UserID: user.ID, MedicationName: "A", Dosage: "1", ScheduledTime: "08:00", Status: model.StatusMissed, Date: "2026-02-09"},
		{MedicationID: 2, UserID: user.ID, MedicationName: "B", Dosage: "2", ScheduledTime: "20:00", TakenTime: "20:01", Status: model.StatusTaken, Date: "2026-02-09"},
	}
	for _, ev := range events {
		if err := repo.RecordHistoryEvent(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := repo.RecordHistoryEvent(ctx, model.HistoryEvent{MedicationID: 1, UserID: user.ID, ScheduledTime: "08:00", Status: "skipped"}); !errors.Is(err, model.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	all, err := repo.ListHistory(ctx, HistoryFilter{UserID: user.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].MedicationName != "B" || all[2].Date != "2026-02-08" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if all[1].TakenTime != "" {
		t.Fatalf("missed row must have empty taken time: %+v", all[1])
	}

	paged, err := repo.ListHistory(ctx, HistoryFilter{UserID: user.ID, Offset: 1})
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged) != 2 {
		t.Fatalf("expected 2 rows after offset, got %d", len(paged))
	}

	byDay, err := repo.ListHistory(ctx, HistoryFilter{UserID: user.ID, Date: "2026-02-09", Limit: 1})
	if err != nil {
		t.Fatalf("list by day: %v", err)
	}
	if len(byDay) != 1 {
		t.Fatalf("expected limit 1, got %d", len(byDay))
	}

	has, err := repo.HasHistoryFor(ctx, 1, "2026-02-09")
	if err != nil || !has {
		t.Fatalf("expected history for med 1 on 2026-02-09, has=%v err=%v", has, err)
	}
	has, err = repo.HasHistoryFor(ctx, 2, "2026-02-08")
	if err != nil || has {
		t.Fatalf("expected no history for med 2 on 2026-02-08, has=%v err=%v", has, err)
	}

	stats, err := repo.HistoryStats(ctx, user.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := model.Stats{Total: 3, Taken: 2, Missed: 1, Percentage: 67}
	if stats != want {
		t.Fatalf("stats mismatch: got %+v want %+v", stats, want)
	}

	empty, err := repo.HistoryStats(ctx, 999)
	if err != nil {
		t.Fatalf("empty stats: %v", err)
	}
	if empty != (model.Stats{}) {
		t.Fatalf("expected zero stats, got %+v", empty)
	}
}

func TestOpenSQLiteMigrates(t *testing.T) {
	repo, err := OpenSQLite(filepath.Join(t.TempDir(), "open.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer repo.Close()
	if _, err := repo.EnsureUser(context.Background(), "x@example.com", ""); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
}
