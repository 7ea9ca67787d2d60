// tasks.go implements "skiff sessions rename" and the "skiff sessions tasks"
// commands that manage a session's subtasks.
package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/berth-dev/skiff/internal/session"
)

var sessionsRenameCmd = &cobra.Command{
	Use:   "rename <session-id> <title...>",
	Short: "Change the title of a session",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSessionsRename,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks <session-id>",
	Short: "List and manage the subtasks of a session",
	Long: `List the subtasks of a session: open tasks first, then by priority and
creation order. Task ids may be shortened to any unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksList,
}

var tasksAddCmd = &cobra.Command{
	Use:   "add <session-id> <title...>",
	Short: "Add a subtask",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTasksAdd,
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <session-id> <task-id>",
	Short: "Mark a subtask done, or open again if it is done",
	Args:  cobra.ExactArgs(2),
	RunE:  runTasksDone,
}

var tasksRemoveCmd = &cobra.Command{
	Use:     "rm <session-id> <task-id>",
	Aliases: []string{"remove"},
	Short:   "Remove a subtask",
	Args:    cobra.ExactArgs(2),
	RunE:    runTasksRemove,
}

var (
	taskDescriptionFlag string
	taskPriorityFlag    string
)

func init() {
	tasksAddCmd.Flags().StringVarP(&taskDescriptionFlag, "description", "d", "", "Longer description")
	tasksAddCmd.Flags().StringVarP(&taskPriorityFlag, "priority", "p", "normal", "Priority: high, normal or low")

	tasksCmd.AddCommand(tasksAddCmd)
	tasksCmd.AddCommand(tasksDoneCmd)
	tasksCmd.AddCommand(tasksRemoveCmd)

	sessionsCmd.AddCommand(sessionsRenameCmd)
	sessionsCmd.AddCommand(tasksCmd)
}

func runSessionsRename(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if err := a.Rename(sess, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", sess.ID, sess.Title)
	return nil
}

func runTasksList(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	tasks := sess.SortedSubtasks()
	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintf(out, "No tasks. Add one with: skiff sessions tasks add %s <title>\n", sess.ID)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tPRIORITY\tTITLE")
	for _, t := range tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		title := t.Title
		if t.Description != "" {
			title += " · " + truncate(t.Description, 40)
		}
		fmt.Fprintf(tw, "%s\t[%s]\t%s\t%s\n", shortID(t.ID), done, t.Priority, title)
	}
	return tw.Flush()
}

func runTasksAdd(cmd *cobra.Command, args []string) error {
	priority, err := session.ParsePriority(taskPriorityFlag)
	if err != nil {
		return err
	}
	title := strings.TrimSpace(strings.Join(args[1:], " "))
	if title == "" {
		return fmt.Errorf("task title cannot be empty")
	}

	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	t, err := a.AddSubtask(sess, title, strings.TrimSpace(taskDescriptionFlag), priority)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added task %s\n", shortID(t.ID))
	return nil
}

func runTasksDone(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	id, err := resolveTask(sess, args[1])
	if err != nil {
		return err
	}
	if err := a.ToggleSubtask(sess, id); err != nil {
		return err
	}
	state := "open"
	for _, t := range sess.Subtasks {
		if t.ID == id && t.Completed {
			state = "done"
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Task %s is %s\n", shortID(id), state)
	return nil
}

func runTasksRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Load(args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	id, err := resolveTask(sess, args[1])
	if err != nil {
		return err
	}
	if err := a.RemoveSubtask(sess, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed task %s\n", shortID(id))
	return nil
}

// resolveTask matches ref against the subtask ids of sess, exactly or by
// unique prefix.
func resolveTask(sess *session.Session, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	var matches []string
	for _, t := range sess.Subtasks {
		if t.ID == ref {
			return t.ID, nil
		}
		if ref != "" && strings.HasPrefix(t.ID, ref) {
			matches = append(matches, t.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", session.ErrSubtaskNotFound, ref)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("task id %q is ambiguous (%d matches)", ref, len(matches))
}
