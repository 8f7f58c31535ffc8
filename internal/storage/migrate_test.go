package storage

import (
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
)

func openRawDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateUpRecordsVersionsOnce(t *testing.T) {
	db := openRawDB(t)

	for i := 0; i < 2; i++ {
		if err := MigrateUp(db); err != nil {
			t.Fatalf("migrate up pass %d: %v", i, err)
		}
	}
	got, err := AppliedMigrations(db)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if want := []string{"0001_init"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("applied = %v, want %v", got, want)
	}
}

func TestMigrateDownThenUpKeepsSchemaUsable(t *testing.T) {
	db := openRawDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if err := MigrateDown(db); err != nil {
		t.Fatalf("migrate down: %v", err)
	}
	applied, err := AppliedMigrations(db)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no applied migrations after down, got %v", applied)
	}
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'medications'`).Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 0 {
		t.Fatal("medications table survived migrate down")
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("second migrate up: %v", err)
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	user, err := repo.EnsureUser(t.Context(), "rt@example.com", "Roundtrip")
	if err != nil {
		t.Fatalf("insert user after roundtrip: %v", err)
	}
	got, err := repo.GetUserByEmail(t.Context(), "RT@example.com")
	if err != nil {
		t.Fatalf("get after roundtrip: %v", err)
	}
	if got.ID != user.ID || got.Name != "Roundtrip" {
		t.Fatalf("unexpected user after roundtrip: %+v", got)
	}
}
