package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/sandeepkv93/medd/internal/model"
)

const sqliteTimeLayout = time.RFC3339Nano

const medicationColumns = `id, user_id, name, dosage, frequency, time, instructions, start_date, end_date,
	notification_enabled, reminder_handle, taken_today, created_at`

const historyColumns = `id, medication_id, user_id, medication_name, dosage, scheduled_time, taken_time,
	status, date, created_at`

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db, now: time.Now}, nil
}

// OpenSQLite opens path, applies migrations and returns the repository.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps the per-connection pragmas consistent.
	db.SetMaxOpenConns(1)
	if err := MigrateUp(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) EnsureUser(ctx context.Context, email, name string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return model.User{}, errors.New("storage: email is required")
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		email, strings.TrimSpace(name), mustTime(r.now()),
	); err != nil {
		return model.User{}, err
	}
	return r.GetUserByEmail(ctx, email)
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, email, name, created_at FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, email, name, created_at FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.User, 0)
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateMedication(ctx context.Context, in model.Medication) (int64, error) {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = r.now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO medications (user_id, name, dosage, frequency, time, instructions, start_date, end_date,
			notification_enabled, reminder_handle, taken_today, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.UserID, in.Name, in.Dosage, in.Frequency, in.Time, in.Instructions,
		nullString(in.StartDate), nullString(in.EndDate), boolInt(in.NotificationsEnabled),
		nullString(in.Handles.Encode()), boolInt(in.TakenToday), mustTime(in.CreatedAt),
	)
	if err != nil {
		return 0, mapConstraint(err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetMedication(ctx context.Context, id int64) (model.Medication, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+medicationColumns+` FROM medications WHERE id = ?`, id)
	med, err := scanMedication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Medication{}, ErrNotFound
		}
		return model.Medication{}, err
	}
	return med, nil
}

// UpdateMedication rewrites the editable fields. The reminder handle is
// only changed through SetReminderHandle.
func (r *SQLiteRepository) UpdateMedication(ctx context.Context, in model.Medication) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE medications
		SET name = ?, dosage = ?, frequency = ?, time = ?, instructions = ?, start_date = ?, end_date = ?,
			notification_enabled = ?, taken_today = ?
		WHERE id = ?`,
		in.Name, in.Dosage, in.Frequency, in.Time, in.Instructions,
		nullString(in.StartDate), nullString(in.EndDate), boolInt(in.NotificationsEnabled), boolInt(in.TakenToday),
		in.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) DeleteMedication(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) GetMedicationsForUser(ctx context.Context, userID int64) ([]model.Medication, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+medicationColumns+` FROM medications WHERE user_id = ? ORDER BY time ASC, id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Medication, 0)
	for rows.Next() {
		med, scanErr := scanMedication(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, med)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SetReminderHandle(ctx context.Context, medicationID int64, handles model.HandleSet) error {
	res, err := r.db.ExecContext(ctx, `UPDATE medications SET reminder_handle = ? WHERE id = ?`,
		nullString(handles.Encode()), medicationID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) GetReminderHandle(ctx context.Context, medicationID int64) (model.HandleSet, error) {
	var raw sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT reminder_handle FROM medications WHERE id = ?`, medicationID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return model.ParseHandleSet(raw.String), nil
}

func (r *SQLiteRepository) SetTakenToday(ctx context.Context, medicationID int64, taken bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE medications SET taken_today = ? WHERE id = ?`, boolInt(taken), medicationID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ResetTakenToday(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE medications SET taken_today = 0 WHERE taken_today = 1`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SQLiteRepository) RecordHistoryEvent(ctx context.Context, event model.HistoryEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}
	if event.Date == "" {
		event.Date = event.CreatedAt.Format(model.DateLayout)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO medication_history (medication_id, user_id, medication_name, dosage, scheduled_time, taken_time,
			status, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.MedicationID, event.UserID, event.MedicationName, event.Dosage, event.ScheduledTime,
		nullString(event.TakenTime), string(event.Status), event.Date, mustTime(event.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *SQLiteRepository) ListHistory(ctx context.Context, filter HistoryFilter) ([]model.HistoryEvent, error) {
	query := `SELECT ` + historyColumns + ` FROM medication_history`
	where := make([]string, 0, 3)
	args := make([]any, 0, 5)
	if filter.UserID > 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.MedicationID > 0 {
		where = append(where, "medication_id = ?")
		args = append(args, filter.MedicationID)
	}
	if filter.Date != "" {
		where = append(where, "date = ?")
		args = append(args, filter.Date)
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY date DESC, scheduled_time DESC, id DESC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.HistoryEvent, 0)
	for rows.Next() {
		ev, scanErr := scanHistory(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) HistoryStats(ctx context.Context, userID int64) (model.Stats, error) {
	var total, taken int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'taken' THEN 1 ELSE 0 END), 0)
		FROM medication_history WHERE user_id = ?`, userID).Scan(&total, &taken)
	if err != nil {
		return model.Stats{}, err
	}
	return model.NewStats(total, taken), nil
}

func (r *SQLiteRepository) HasHistoryFor(ctx context.Context, medicationID int64, date string) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM medication_history WHERE medication_id = ? AND date = ?)`,
		medicationID, date).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			sql += " LIMIT -1"
		}
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

// mapConstraint turns a foreign key violation into ErrNotFound.
func mapConstraint(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (model.User, error) {
	var out model.User
	var created string
	if err := s.Scan(&out.ID, &out.Email, &out.Name, &created); err != nil {
		return model.User{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.User{}, err
	}
	out.CreatedAt = createdAt
	return out, nil
}

func scanMedication(s scanner) (model.Medication, error) {
	var out model.Medication
	var start, end, handle sql.NullString
	var enabled, taken int
	var created string
	if err := s.Scan(&out.ID, &out.UserID, &out.Name, &out.Dosage, &out.Frequency, &out.Time, &out.Instructions,
		&start, &end, &enabled, &handle, &taken, &created); err != nil {
		return model.Medication{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.Medication{}, err
	}
	out.StartDate = start.String
	out.EndDate = end.String
	out.NotificationsEnabled = enabled == 1
	out.Handles = model.ParseHandleSet(handle.String)
	out.TakenToday = taken == 1
	out.CreatedAt = createdAt
	return out, nil
}

func scanHistory(s scanner) (model.HistoryEvent, error) {
	var out model.HistoryEvent
	var takenTime sql.NullString
	var status, created string
	if err := s.Scan(&out.ID, &out.MedicationID, &out.UserID, &out.MedicationName, &out.Dosage, &out.ScheduledTime,
		&takenTime, &status, &out.Date, &created); err != nil {
		return model.HistoryEvent{}, err
	}
	createdAt, err := parseRequiredTime(created)
	if err != nil {
		return model.HistoryEvent{}, err
	}
	out.TakenTime = takenTime.String
	out.Status = model.Status(status)
	out.CreatedAt = createdAt
	return out, nil
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
