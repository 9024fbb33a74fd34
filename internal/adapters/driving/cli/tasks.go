package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jltournay/farmer-power-knowledge/internal/core/domain"
)

var (
	tasksJSON  bool
	tasksLimit int
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and run background maintenance tasks",
	Long: `Maintenance tasks keep the job table healthy: job-recovery resumes or
fails jobs abandoned by a crashed process and job-prune deletes terminal
jobs past the retention window. "fpkb serve" runs them on a schedule.`,
	Annotations: withServices,
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List maintenance tasks and their schedule",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

var tasksHistoryCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "Show recent runs of a task, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksHistory,
}

var tasksRunCmd = &cobra.Command{
	Use:   "run [task-id]",
	Short: "Run a task now and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksRun,
}

func init() {
	tasksCmd.PersistentFlags().BoolVar(&tasksJSON, "json", false, "output as JSON")
	tasksHistoryCmd.Flags().IntVar(&tasksLimit, "limit", 10, "maximum runs to show (0 for all)")
	tasksCmd.AddCommand(tasksListCmd, tasksHistoryCmd, tasksRunCmd)
	rootCmd.AddCommand(tasksCmd)
}

type taskView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Enabled     bool       `json:"enabled"`
	Interval    string     `json:"interval"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastSummary string     `json:"last_summary,omitempty"`
}

type runView struct {
	TaskID         string             `json:"task_id"`
	Trigger        domain.TaskTrigger `json:"trigger"`
	StartedAt      time.Time          `json:"started_at"`
	DurationMS     int64              `json:"duration_ms"`
	Success        bool               `json:"success"`
	Error          string             `json:"error,omitempty"`
	ItemsProcessed int                `json:"items_processed"`
	Summary        string             `json:"summary,omitempty"`
}

func newRunView(r *domain.TaskRun) runView {
	return runView{
		TaskID:         r.TaskID,
		Trigger:        r.Trigger,
		StartedAt:      r.StartedAt,
		DurationMS:     r.Duration().Milliseconds(),
		Success:        r.Success,
		Error:          r.Error,
		ItemsProcessed: r.ItemsProcessed,
		Summary:        r.Summary,
	}
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	scheduler, err := schedulerService()
	if err != nil {
		return err
	}

	tasks, err := scheduler.Tasks(cmd.Context())
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if tasksJSON {
		views := make([]taskView, len(tasks))
		for i, t := range tasks {
			views[i] = taskView{
				ID:          t.ID,
				Name:        t.Name,
				Enabled:     t.Enabled,
				Interval:    t.Interval.String(),
				LastRun:     optionalTime(t.LastRun),
				NextRun:     optionalTime(t.NextRun),
				LastSuccess: optionalTime(t.LastSuccess),
				LastError:   t.LastError,
				LastSummary: t.LastSummary,
			}
		}
		return writeJSON(cmd.OutOrStdout(), views)
	}

	for _, t := range tasks {
		state := successStyle.Render("enabled")
		if !t.Enabled {
			state = mutedStyle.Render("disabled")
		}
		cmd.Println(titleStyle.Render(t.ID) + "  " + t.Name + "  " + state)
		cmd.Println(field("every", t.Interval.String()))
		cmd.Println(field("last run", formatWhen(t.LastRun)))
		next := formatWhen(t.NextRun)
		if t.Enabled && t.NextRun.IsZero() {
			next = "due now"
		}
		cmd.Println(field("next run", next))
		if t.LastSummary != "" {
			cmd.Println(field("outcome", t.LastSummary))
		}
		if t.LastError != "" {
			cmd.Println(field("error", errorStyle.Render(t.LastError)))
		}
	}
	return nil
}

func runTasksHistory(cmd *cobra.Command, args []string) error {
	scheduler, err := schedulerService()
	if err != nil {
		return err
	}

	runs, err := scheduler.History(cmd.Context(), args[0], tasksLimit)
	if err != nil {
		return fmt.Errorf("task history: %w", err)
	}

	if tasksJSON {
		views := make([]runView, len(runs))
		for i := range runs {
			views[i] = newRunView(&runs[i])
		}
		return writeJSON(cmd.OutOrStdout(), views)
	}

	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}
	for i := range runs {
		cmd.Println(formatRun(&runs[i]))
	}
	return nil
}

func runTasksRun(cmd *cobra.Command, args []string) error {
	scheduler, err := schedulerService()
	if err != nil {
		return err
	}

	run, err := scheduler.RunNow(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("run task: %w", err)
	}

	if tasksJSON {
		return writeJSON(cmd.OutOrStdout(), newRunView(run))
	}
	cmd.Println(formatRun(run))
	if !run.Success {
		return fmt.Errorf("task %s failed: %s", run.TaskID, run.Error)
	}
	return nil
}

func formatRun(r *domain.TaskRun) string {
	outcome := successStyle.Render("ok    ")
	detail := r.Summary
	if !r.Success {
		outcome = errorStyle.Render("failed")
		detail = r.Error
	}
	return fmt.Sprintf("%s  %s  %-8s %8s  %s",
		mutedStyle.Render(r.StartedAt.UTC().Format("2006-01-02 15:04:05")),
		outcome, r.Trigger, r.Duration().Round(time.Millisecond), detail)
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
