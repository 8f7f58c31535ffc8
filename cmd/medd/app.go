package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/config"
	"github.com/sandeepkv93/medd/internal/metrics"
	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/notify"
	"github.com/sandeepkv93/medd/internal/scheduler"
	"github.com/sandeepkv93/medd/internal/storage"
	"github.com/sandeepkv93/medd/internal/tracker"
)

const shutdownTimeout = 5 * time.Second

var errNotLoggedIn = errors.New("not logged in, run: medd login <email>")

// app wires storage, the notifier and the tracker service for one command.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	repo     *storage.SQLiteRepository
	notifier *notify.Notifier
	sched    *scheduler.Scheduler
	svc      *tracker.Service
}

// openApp builds the app. Fired reminders always go to the log, then to the
// desktop when enabled, then to any extra sinks.
func openApp(cfg *config.Config, log *zap.Logger, extra ...notify.Sink) (*app, error) {
	repo, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	sinks := notify.MultiSink{notify.LogSink{Log: log}}
	if cfg.Notifications.Desktop {
		sinks = append(sinks, notify.NewDesktopSink(cfg.Notifications.RatePerMinute))
	}
	sinks = append(sinks, extra...)

	n := notify.New(
		notify.WithLogger(log),
		notify.WithMetrics(m),
		notify.WithSink(sinks),
		notify.WithPermission(cfg.PermissionMode(), stdinPrompter(os.Stdin, os.Stderr)),
		notify.WithQueueBuffer(cfg.Notifications.QueueBuffer),
	)
	if err := n.Initialize(cfg.DisplayPolicy()); err != nil {
		_ = repo.Close()
		return nil, err
	}
	sched := scheduler.New(n, scheduler.WithLogger(log), scheduler.WithMetrics(m))
	return &app{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		repo:     repo,
		notifier: n,
		sched:    sched,
		svc:      tracker.New(repo, sched, tracker.WithLogger(log)),
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.notifier.Stop(ctx); err != nil {
		a.log.Warn("notifier stop", zap.Error(err))
	}
	if err := a.repo.Close(); err != nil {
		a.log.Warn("database close", zap.Error(err))
	}
}

func (a *app) activeUser(ctx context.Context) (model.User, error) {
	user, err := a.svc.ActiveUser(ctx, a.cfg.Session.Path)
	if errors.Is(err, tracker.ErrNoSession) {
		return model.User{}, errNotLoggedIn
	}
	return user, err
}

func (a *app) medication(ctx context.Context, userID int64, target string) (model.Medication, error) {
	meds, err := a.svc.Medications(ctx, userID)
	if err != nil {
		return model.Medication{}, err
	}
	med, ok := model.FindMedication(meds, target)
	if !ok {
		return model.Medication{}, fmt.Errorf("no medication matches %q", target)
	}
	return med, nil
}

func testPayload() notify.Payload {
	return notify.Payload{Title: "Test alarm", Body: "medd reminders are working"}
}

// stdinPrompter asks on the terminal when notifications.permission is prompt.
func stdinPrompter(in io.Reader, out io.Writer) notify.Prompter {
	return func(ctx context.Context) (bool, error) {
		fmt.Fprint(out, "Allow medd to show medication reminders? [y/N] ")
		answer := make(chan string, 1)
		go func() {
			line, _ := bufio.NewReader(in).ReadString('\n')
			answer <- line
		}()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case line := <-answer:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			default:
				return false, nil
			}
		}
	}
}
