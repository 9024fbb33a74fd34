package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsJSON bool

var jobsCmd = &cobra.Command{
	Use:         "jobs",
	Short:       "Inspect and manage vectorization jobs",
	Annotations: withServices,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show the progress of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsListCmd = &cobra.Command{
	Use:   "list [document-id]",
	Short: "List the jobs of a document, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsList,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel an active job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Resume or fail jobs abandoned by a crashed process",
	Args:  cobra.NoArgs,
	RunE:  runJobsRecover,
}

var jobsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete terminal jobs older than the retention window",
	Args:  cobra.NoArgs,
	RunE:  runJobsPrune,
}

func init() {
	jobsCmd.PersistentFlags().BoolVar(&jobsJSON, "json", false, "output as JSON")
	jobsCmd.AddCommand(jobsShowCmd, jobsListCmd, jobsCancelCmd, jobsRecoverCmd, jobsPruneCmd)
	rootCmd.AddCommand(jobsCmd)
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	svc, err := vectorizationService()
	if err != nil {
		return err
	}

	report, err := svc.Status(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("job status: %w", err)
	}

	if jobsJSON {
		view := newJobView(report.Job)
		view.Active = report.Active
		if report.ETASeconds >= 0 {
			eta := report.ETASeconds
			view.ETASeconds = &eta
		}
		return writeJSON(cmd.OutOrStdout(), view)
	}
	renderJob(cmd.OutOrStdout(), report.Job, report.ETASeconds)
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	svc, err := vectorizationService()
	if err != nil {
		return err
	}

	jobs, err := svc.ListJobs(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if jobsJSON {
		views := make([]jobView, len(jobs))
		for i := range jobs {
			views[i] = newJobView(&jobs[i])
		}
		return writeJSON(cmd.OutOrStdout(), views)
	}

	if len(jobs) == 0 {
		cmd.Println("No jobs found.")
		return nil
	}
	for i := range jobs {
		j := &jobs[i]
		cmd.Printf("%s  v%-3d %s  %d/%d stored  %s\n",
			j.ID, j.DocumentVersion,
			statusStyle(j.Status).Render(fmt.Sprintf("%-11s", j.Status)),
			j.Progress.ChunksStored, j.Progress.ChunksTotal,
			mutedStyle.Render(j.CreatedAt.UTC().Format("2006-01-02 15:04:05")))
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	svc, err := vectorizationService()
	if err != nil {
		return err
	}
	if err := svc.Cancel(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	cmd.Printf("Job %s cancelled.\n", args[0])
	return nil
}

func runJobsRecover(cmd *cobra.Command, _ []string) error {
	svc, err := vectorizationService()
	if err != nil {
		return err
	}

	report, err := svc.Recover(cmd.Context())
	if err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	if jobsJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"examined": report.Examined,
			"resumed":  report.Resumed,
			"failed":   report.Failed,
		})
	}

	cmd.Printf("Examined %d stale jobs: %d resumed, %d failed.\n",
		report.Examined, len(report.Resumed), len(report.Failed))
	for _, id := range report.Resumed {
		cmd.Println("  " + successStyle.Render("resumed") + " " + id)
	}
	for _, id := range report.Failed {
		cmd.Println("  " + errorStyle.Render("failed") + "  " + id)
	}
	return nil
}

func runJobsPrune(cmd *cobra.Command, _ []string) error {
	svc, err := vectorizationService()
	if err != nil {
		return err
	}

	n, err := svc.PruneJobs(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("Pruned %d jobs.\n", n)
	return nil
}
