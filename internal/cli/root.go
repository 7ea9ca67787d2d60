// Package cli defines Cobra command definitions for the skiff CLI.
// This file contains the root command, global flags and shared helpers.
package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/berth-dev/skiff/internal/agent"
	"github.com/berth-dev/skiff/internal/app"
	"github.com/berth-dev/skiff/internal/config"
	"github.com/berth-dev/skiff/internal/log"
	"github.com/berth-dev/skiff/internal/session"
	"github.com/berth-dev/skiff/internal/tui"
	tuiapp "github.com/berth-dev/skiff/internal/tui/app"
)

var (
	dataDirFlag string
	verbose     bool
	debug       bool
	version     = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "skiff",
	Short: "Terminal front-end for Claude conversations",
	Long: `Skiff keeps persistent conversations with Claude. Each session stores its
transcript, cost and settings on disk; queries stream into the terminal
interface or, with 'skiff ask', straight to stdout.`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	RunE: func(cmd *cobra.Command, args []string) error {
		// When no subcommand is provided, launch TUI if TTY, show help otherwise
		if !tui.IsTTY() {
			return cmd.Help()
		}
		return launchTUI("")
	},
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Verbose returns true if --verbose flag is set.
func Verbose() bool {
	return verbose
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Directory for config, sessions and logs (default $SKIFF_DATA_DIR or the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Mirror logs on stderr and show tool output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level with source locations")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(configCmd)
}

func setupLogging(cmd *cobra.Command, args []string) error {
	if log.Initialized() {
		return nil
	}
	if verbose {
		log.SetupWriter(cmd.ErrOrStderr(), debug)
		return nil
	}
	dir, err := dataDir()
	if err != nil {
		return err
	}
	log.Setup(config.LogFile(dir), debug)
	return nil
}

// dataDir resolves --data-dir, falling back to the environment and the
// user config directory.
func dataDir() (string, error) {
	if dataDirFlag != "" {
		return dataDirFlag, nil
	}
	return config.DataDir()
}

// openApp loads the config and opens the session store and run ledger.
// A nil backend runs the claude CLI.
func openApp(backend agent.Backend) (*app.App, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	a, err := app.New(app.Options{DataDir: dir, Backend: backend})
	if err != nil {
		return nil, fmt.Errorf("opening skiff data in %s: %w", dir, err)
	}
	return a, nil
}

// launchTUI opens the interface on sessionID, or on the most recent session
// when ui.restore_last is set, or on a fresh session.
func launchTUI(sessionID string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Config.Sessions.CleanOnStart && a.Config.Retention() > 0 {
		if removed, err := a.Cleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cleanup failed: %v\n", err)
		} else if len(removed) > 0 {
			fmt.Fprintf(os.Stderr, "Removed %d expired session(s).\n", len(removed))
		}
	}

	sess, err := initialSession(a, sessionID)
	if err != nil {
		return err
	}
	ui := tuiapp.New(a, sess)
	defer ui.Close()

	start := time.Now()
	err = tui.Run(ui)
	if errors.Is(err, tui.ErrPromptRequired) {
		return nil
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "Session %s, %s\n", sess.ID, time.Since(start).Round(time.Second))
	}
	return err
}

func initialSession(a *app.App, sessionID string) (*session.Session, error) {
	if sessionID != "" {
		return a.Load(sessionID)
	}
	if a.Config.UI.RestoreLast {
		sess, err := a.Latest()
		switch {
		case err == nil:
			return sess, nil
		case !errors.Is(err, session.ErrNotFound):
			fmt.Fprintf(os.Stderr, "Warning: could not restore last session: %v\n", err)
		}
	}
	return a.NewSession(""), nil
}
