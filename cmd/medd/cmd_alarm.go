package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/medd/internal/notify"
)

var testAlarmCmd = &cobra.Command{
	Use:   "test-alarm",
	Short: "Fire a one-off reminder to check delivery",
	Long: `Schedules a one-shot reminder notifications.test_delay from now and waits
until it has been delivered to the log and, when enabled, the desktop.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ch := notify.NewChannelSink(1)
		a, err := openApp(cfg, logger, ch)
		if err != nil {
			return err
		}
		defer a.close()
		a.notifier.Start()

		delay := cfg.Notifications.TestDelay
		handle, err := a.notifier.FireTestTrigger(cmd.Context(), delay, testPayload())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "test alarm %s fires in %s\n", handle, delay)

		select {
		case d := <-ch.C():
			fmt.Fprintf(cmd.OutOrStdout(), "delivered at %s\n", d.FiredAt.Format(time.TimeOnly))
			return nil
		case <-time.After(delay + 10*time.Second):
			return fmt.Errorf("test alarm %s was not delivered", handle)
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}
	},
}
