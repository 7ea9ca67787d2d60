// ask.go implements the "skiff ask" command, a headless query that streams
// the reply to stdout.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/berth-dev/skiff/internal/agent"
	"github.com/berth-dev/skiff/internal/app"
	"github.com/berth-dev/skiff/internal/bridge"
	"github.com/berth-dev/skiff/internal/session"
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt...]",
	Short: "Send one prompt and stream the reply",
	Long: `Send a prompt to Claude and stream the reply to stdout. The prompt is
read from stdin when no argument is given and stdin is not a terminal.

By default the most recent session is continued (when ui.restore_last is
set); use --new for a fresh session or --session to pick one.`,
	RunE: runAsk,
}

var (
	askSessionFlag string
	askNewFlag     bool
	askModeFlag    string
	askCwdFlag     string
	askDryRunFlag  bool
	askJSONFlag    bool
)

func init() {
	askCmd.Flags().StringVarP(&askSessionFlag, "session", "s", "", "Session id to continue")
	askCmd.Flags().BoolVarP(&askNewFlag, "new", "n", false, "Start a new session")
	askCmd.Flags().StringVar(&askModeFlag, "mode", "", "Permission mode (default, acceptEdits, bypassPermissions, plan)")
	askCmd.Flags().StringVar(&askCwdFlag, "cwd", "", "Working directory for Claude")
	askCmd.Flags().BoolVar(&askDryRunFlag, "dry-run", false, "Answer with a canned reply instead of running Claude")
	askCmd.Flags().BoolVar(&askJSONFlag, "json", false, "Print every message as a JSON line")
}

func runAsk(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(cmd, args)
	if err != nil {
		return err
	}
	if askSessionFlag != "" && askNewFlag {
		return errors.New("--session and --new cannot be combined")
	}

	var backend agent.Backend
	if askDryRunFlag {
		backend = agent.Echo()
	}
	a, err := openApp(backend)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := askSession(a)
	if err != nil {
		return err
	}
	if err := applyAskSettings(a, sess); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	run, err := a.Send(ctx, sess, prompt)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	enc := json.NewEncoder(out)
	for u := range run.Updates() {
		if askJSONFlag {
			if err := enc.Encode(u.Message); err != nil {
				run.Cancel()
			}
			continue
		}
		printMessage(out, errOut, u.Message)
	}

	res := run.Wait()
	if !askJSONFlag {
		fmt.Fprintf(errOut, "\n%s · session %s · $%.4f · %s turns · %s\n",
			res.State, sess.ID, res.CostUSD, humanize.Comma(int64(res.Turns)), res.Duration().Round(10*time.Millisecond))
	}
	switch {
	case res.SaveErr != nil:
		return res.SaveErr
	case res.State == bridge.StateFailed:
		return res.Err
	case res.State == bridge.StateCancelled:
		return agent.ErrCancelled
	}
	return nil
}

func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "", errors.New("no prompt given; pass it as an argument or on stdin")
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading prompt: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", agent.ErrEmptyPrompt
	}
	return string(data), nil
}

func askSession(a *app.App) (*session.Session, error) {
	switch {
	case askSessionFlag != "":
		return a.Load(askSessionFlag)
	case askNewFlag || !a.Config.UI.RestoreLast:
		return a.NewSession(""), nil
	}
	sess, err := a.Latest()
	if errors.Is(err, session.ErrNotFound) {
		return a.NewSession(""), nil
	}
	return sess, err
}

func applyAskSettings(a *app.App, sess *session.Session) error {
	if askModeFlag == "" && askCwdFlag == "" {
		return nil
	}
	var mode agent.PermissionMode
	if askModeFlag != "" {
		m, err := agent.ParsePermissionMode(askModeFlag)
		if err != nil {
			return err
		}
		mode = m
	}
	var cwd string
	if askCwdFlag != "" {
		abs, err := filepath.Abs(askCwdFlag)
		if err != nil {
			return fmt.Errorf("resolving --cwd: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("checking --cwd: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("--cwd %s is not a directory", abs)
		}
		cwd = abs
	}
	return a.UpdateSettings(sess, func(s *session.Settings) {
		if mode != "" {
			s.PermissionMode = string(mode)
		}
		if cwd != "" {
			s.WorkDir = cwd
		}
	})
}

// printMessage writes assistant text to out and progress notes to errOut.
func printMessage(out, errOut io.Writer, msg session.Message) {
	switch msg.Kind {
	case session.KindAssistant:
		fmt.Fprintln(out, msg.Content)
	case session.KindToolUse:
		if msg.Tool != nil {
			fmt.Fprintf(errOut, "⚙ %s %s\n", msg.Tool.Name, msg.Tool.Input)
		}
	case session.KindToolResult:
		if verbose {
			fmt.Fprintf(errOut, "  ↳ %s\n", firstLines(msg.Content, 5))
		}
	case session.KindSystem:
		if verbose {
			fmt.Fprintf(errOut, "· %s\n", msg.Content)
		}
	}
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = append(lines[:n], fmt.Sprintf("… %d more lines", len(lines)-n))
	}
	return strings.Join(lines, "\n    ")
}
