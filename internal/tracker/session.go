package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/scheduler"
)

type Session struct {
	Email      string    `json:"email"`
	UserID     int64     `json:"user_id"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

func SaveSession(path string, s Session) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(payload, '\n'), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadSession returns ErrNoSession when no one is logged in.
func LoadSession(path string) (Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return Session{}, ErrNoSession
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, err
	}
	if s.Email == "" {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Login makes email the active user and reconciles their reminders.
func (s *Service) Login(ctx context.Context, sessionPath, email, name string) (model.User, scheduler.Report, error) {
	user, err := s.store.EnsureUser(ctx, email, name)
	if err != nil {
		return model.User{}, scheduler.Report{}, err
	}
	if err := SaveSession(sessionPath, Session{Email: user.Email, UserID: user.ID, LoggedInAt: s.now()}); err != nil {
		return model.User{}, scheduler.Report{}, err
	}
	report, err := s.Reconcile(ctx, user.ID)
	if err != nil {
		return user, scheduler.Report{}, err
	}
	s.log.Info("user logged in", zap.String("email", user.Email))
	return user, report, nil
}

func (s *Service) Logout(sessionPath string) error {
	return ClearSession(sessionPath)
}

// ActiveUser resolves the session file to a stored user.
func (s *Service) ActiveUser(ctx context.Context, sessionPath string) (model.User, error) {
	sess, err := LoadSession(sessionPath)
	if err != nil {
		return model.User{}, err
	}
	user, err := s.store.GetUserByEmail(ctx, sess.Email)
	if err != nil {
		return model.User{}, errors.Join(ErrNoSession, err)
	}
	return user, nil
}
