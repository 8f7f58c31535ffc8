package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/medd/internal/model"
	"github.com/sandeepkv93/medd/internal/scheduler"
)

var (
	outputFormat string
	historyDate  string
	historyLimit int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reschedule reminders that are no longer live",
	Long: `Compares the stored reminders of the logged-in user with the live ones and
reschedules every medication whose reminders were lost. Running it twice in a
row reschedules nothing the second time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withUser(cmd, func(ctx context.Context, a *app, user model.User) error {
			report, err := a.svc.Reconcile(ctx, user.ID)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), outputFormat, report)
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show taken and missed doses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withUser(cmd, func(ctx context.Context, a *app, user model.User) error {
			events, err := a.svc.History(ctx, user.ID, historyDate, historyLimit)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), outputFormat, events)
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show adherence statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withUser(cmd, func(ctx context.Context, a *app, user model.User) error {
			stats, err := a.svc.Stats(ctx, user.ID)
			if err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), outputFormat, stats)
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{reconcileCmd, historyCmd, statsCmd} {
		c.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text or yaml")
	}
	historyCmd.Flags().StringVar(&historyDate, "date", "", "Only this day, YYYY-MM-DD")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum rows")
}

type historyRow struct {
	Date          string `yaml:"date"`
	Medication    string `yaml:"medication"`
	Dosage        string `yaml:"dosage"`
	ScheduledTime string `yaml:"scheduled_time"`
	TakenTime     string `yaml:"taken_time,omitempty"`
	Status        string `yaml:"status"`
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func checkFormat(format string) error {
	switch format {
	case "text", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q, use text or yaml", format)
	}
}

func writeReport(w io.Writer, format string, r scheduler.Report) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == "yaml" {
		return writeYAML(w, r)
	}
	fmt.Fprintf(w, "rescheduled: %d\nskipped: %d\n", r.RescheduledCount, r.SkippedCount)
	if len(r.FailedNames) > 0 {
		fmt.Fprintf(w, "failed: %s\n", strings.Join(r.FailedNames, ", "))
	}
	return nil
}

func writeStats(w io.Writer, format string, s model.Stats) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	if format == "yaml" {
		return writeYAML(w, s)
	}
	fmt.Fprintf(w, "total: %d\ntaken: %d\nmissed: %d\nadherence: %d%%\n", s.Total, s.Taken, s.Missed, s.Percentage)
	return nil
}

func writeHistory(w io.Writer, format string, events []model.HistoryEvent) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	rows := make([]historyRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, historyRow{
			Date:          ev.Date,
			Medication:    ev.MedicationName,
			Dosage:        ev.Dosage,
			ScheduledTime: ev.ScheduledTime,
			TakenTime:     ev.TakenTime,
			Status:        string(ev.Status),
		})
	}
	if format == "yaml" {
		return writeYAML(w, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, "no history yet")
		return nil
	}
	for _, r := range rows {
		taken := ""
		if r.TakenTime != "" {
			taken = " at " + r.TakenTime
		}
		fmt.Fprintf(w, "%s %s %-7s %s %s%s\n", r.Date, r.ScheduledTime, r.Status, r.Medication, r.Dosage, taken)
	}
	return nil
}
