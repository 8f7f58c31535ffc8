package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/notify"
	"github.com/sandeepkv93/medd/internal/update"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive medication list",
	Long: `Opens the terminal UI for the logged-in user. While it is open it also
fires reminders, so run it instead of "medd run", not alongside it.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, _ []string) error {
	ch := notify.NewChannelSink(cfg.Notifications.QueueBuffer)
	a, err := openApp(cfg, logger, ch)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	user, err := a.activeUser(ctx)
	if err != nil {
		return err
	}
	a.notifier.Start()
	if _, err := a.svc.Reconcile(ctx, user.ID); err != nil {
		logger.Warn("reconcile before tui", zap.Error(err))
	}

	model := update.NewModel(a.svc, user,
		update.WithReminders(ch.C()),
		update.WithLogger(logger),
		update.WithTestAlarm(func(ctx context.Context) error {
			_, err := a.notifier.FireTestTrigger(ctx, cfg.Notifications.TestDelay, testPayload())
			return err
		}),
	)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if n := ch.Dropped(); n > 0 {
		logger.Warn("reminders dropped by a busy ui", zap.Uint64("count", n))
	}
	return nil
}
