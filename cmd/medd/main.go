package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sandeepkv93/medd/internal/config"
	"github.com/sandeepkv93/medd/internal/logging"
)

var (
	verbose bool
	cfgPath string
	dataDir string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "medd",
	Short: "medd - medication reminders for the terminal",
	Long: `medd keeps a list of medications and fires a reminder at every dose.

Reminders live in the running process. "medd run" (or "medd tui") keeps them
alive and reconciles them against the database, so reminders survive restarts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath, dataDir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}

		opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Verbose: verbose}
		if cmd.Name() == "tui" {
			// The TUI owns the terminal.
			opts.OutputPath = filepath.Join(cfg.DataDir, "medd.log")
		}
		logger, err = logging.New(opts)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (default: <data-dir>/medd.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: ~/.medd or MEDD_DATA_DIR)")

	rootCmd.AddCommand(runCmd, tuiCmd)
	rootCmd.AddCommand(loginCmd, logoutCmd)
	rootCmd.AddCommand(addCmd, listCmd, takeCmd, untakeCmd, deferCmd, deleteCmd)
	rootCmd.AddCommand(reconcileCmd, historyCmd, statsCmd, testAlarmCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
