package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginName string

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Make email the active user and reconcile their reminders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		user, report, err := a.svc.Login(cmd.Context(), cfg.Session.Path, args[0], loginName)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", user.Email)
		return writeReport(cmd.OutOrStdout(), "text", report)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the active user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.svc.Logout(cfg.Session.Path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginName, "name", "", "Display name for a new user")
}
