package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sandeepkv93/medd/internal/commands"
	"github.com/sandeepkv93/medd/internal/model"
)

var addFlags struct {
	dosage       string
	at           string
	frequency    string
	instructions string
	start        string
	end          string
	noReminders  bool
}

var addCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a medication and schedule its reminders",
	Long: `Adds a medication for the logged-in user.

Frequencies: daily, every-12h, every-8h, every-6h or custom:<hours>.

Example:
  medd add Amoxicillin --dosage 500mg --time 06:00 --frequency every-8h`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(cmd, func(ctx context.Context, a *app, user model.User) error {
			med, err := a.svc.AddMedication(ctx, model.Medication{
				UserID:               user.ID,
				Name:                 strings.Join(args, " "),
				Dosage:               addFlags.dosage,
				Time:                 addFlags.at,
				Frequency:            addFlags.frequency,
				Instructions:         addFlags.instructions,
				StartDate:            addFlags.start,
				EndDate:              addFlags.end,
				NotificationsEnabled: !addFlags.noReminders,
			})
			if err != nil && med.ID == 0 {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s (id %d) at %s, %s\n", med.Name, med.ID, med.Time, med.Frequency)
			return err
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List medications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withUser(cmd, func(ctx context.Context, a *app, user model.User) error {
			meds, err := a.svc.Medications(ctx, user.ID)
			if err != nil {
				return err
			}
			renderMedicationTable(cmd.OutOrStdout(), meds)
			return nil
		})
	},
}

var takeCmd = &cobra.Command{
	Use:   "take <id|name>",
	Short: "Mark today's dose as taken",
	Args:  cobra.MinimumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setTaken(cmd, args, true) },
}

var untakeCmd = &cobra.Command{
	Use:   "untake <id|name>",
	Short: "Clear today's taken mark",
	Args:  cobra.MinimumNArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setTaken(cmd, args, false) },
}

var deferCmd = &cobra.Command{
	Use:   "defer <id|name> <minutes|duration>",
	Short: "Move a medication's reminder later (or earlier with a negative delay)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		minutes, err := commands.ParseDelay(args[len(args)-1])
		if err != nil {
			return err
		}
		target := strings.Join(args[:len(args)-1], " ")
		return withUser(cmd, func(ctx context.Context, a *app, user model.User) error {
			med, err := a.medication(ctx, user.ID, target)
			if err != nil {
				return err
			}
			moved, err := a.svc.DeferMedication(ctx, med.ID, minutes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s moved to %s\n", moved.Name, moved.Time)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a medication and cancel its reminders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUser(cmd, func(ctx context.Context, a *app, user model.User) error {
			med, err := a.medication(ctx, user.ID, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if err := a.svc.DeleteMedication(ctx, med.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", med.Name)
			return nil
		})
	},
}

func init() {
	addCmd.Flags().StringVar(&addFlags.dosage, "dosage", "", "Dosage label, e.g. 500mg (required)")
	addCmd.Flags().StringVar(&addFlags.at, "time", "", "First dose of the day, HH:MM (required)")
	addCmd.Flags().StringVar(&addFlags.frequency, "frequency", string(model.FrequencyDaily), "Dose frequency")
	addCmd.Flags().StringVar(&addFlags.instructions, "instructions", "", "Free-text instructions")
	addCmd.Flags().StringVar(&addFlags.start, "start", "", "First day, YYYY-MM-DD")
	addCmd.Flags().StringVar(&addFlags.end, "end", "", "Last day, YYYY-MM-DD")
	addCmd.Flags().BoolVar(&addFlags.noReminders, "no-reminders", false, "Track the medication without reminders")
	_ = addCmd.MarkFlagRequired("dosage")
	_ = addCmd.MarkFlagRequired("time")
}

func setTaken(cmd *cobra.Command, args []string, taken bool) error {
	return withUser(cmd, func(ctx context.Context, a *app, user model.User) error {
		med, err := a.medication(ctx, user.ID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if _, err := a.svc.SetTaken(ctx, med.ID, taken); err != nil {
			return err
		}
		state := "taken"
		if !taken {
			state = "not taken"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s marked %s\n", med.Name, state)
		return nil
	})
}

// withUser opens the app for the logged-in user and closes it afterwards.
func withUser(cmd *cobra.Command, fn func(ctx context.Context, a *app, user model.User) error) error {
	a, err := openApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()
	user, err := a.activeUser(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, a, user)
}

func renderMedicationTable(w io.Writer, meds []model.Medication) {
	if len(meds) == 0 {
		fmt.Fprintln(w, "no medications yet, add one with: medd add <name> --dosage <d> --time HH:MM")
		return
	}
	rows := make([][]string, 0, len(meds))
	for _, med := range meds {
		taken := ""
		if med.TakenToday {
			taken = "yes"
		}
		reminders := strconv.Itoa(len(med.Handles))
		if !med.NotificationsEnabled {
			reminders = "off"
		}
		rows = append(rows, []string{
			strconv.FormatInt(med.ID, 10), med.Name, med.Dosage, med.Time, med.Frequency, reminders, taken,
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "DOSAGE", "TIME", "FREQUENCY", "REMINDERS", "TAKEN").
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}
