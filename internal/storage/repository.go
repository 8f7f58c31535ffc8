package storage

import (
	"context"
	"errors"

	"github.com/sandeepkv93/medd/internal/model"
)

var ErrNotFound = errors.New("storage: not found")

type Repository interface {
	EnsureUser(ctx context.Context, email, name string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)

	CreateMedication(ctx context.Context, in model.Medication) (int64, error)
	GetMedication(ctx context.Context, id int64) (model.Medication, error)
	UpdateMedication(ctx context.Context, in model.Medication) error
	DeleteMedication(ctx context.Context, id int64) error
	GetMedicationsForUser(ctx context.Context, userID int64) ([]model.Medication, error)
	SetReminderHandle(ctx context.Context, medicationID int64, handles model.HandleSet) error
	GetReminderHandle(ctx context.Context, medicationID int64) (model.HandleSet, error)
	SetTakenToday(ctx context.Context, medicationID int64, taken bool) error
	ResetTakenToday(ctx context.Context) (int64, error)

	RecordHistoryEvent(ctx context.Context, event model.HistoryEvent) error
	ListHistory(ctx context.Context, filter HistoryFilter) ([]model.HistoryEvent, error)
	HistoryStats(ctx context.Context, userID int64) (model.Stats, error)
	HasHistoryFor(ctx context.Context, medicationID int64, date string) (bool, error)
}
