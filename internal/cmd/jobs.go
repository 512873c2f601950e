package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coppermind/ingrain/pkg/registry"
	"github.com/coppermind/ingrain/pkg/signal"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage sync jobs",
	Long: `Inspect and control sync jobs.

Job records live in the data directory, so any process sharing it sees
the same jobs: a sync started in one terminal can be paused, resumed or
cancelled from another.

- stable job ids (unambiguous prefixes accepted)
- predictable on-disk locations
- optional JSON output for machine parsing`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sync jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsPauseCmd = &cobra.Command{
	Use:   "pause <job_id>",
	Short: "Request a running job to pause",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAction(signal.ActionPause),
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job_id>",
	Short: "Request a paused job to resume",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAction(signal.ActionResume),
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Request a job to cancel",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsAction(signal.ActionCancel),
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect old job records",
	RunE:  runJobsGC,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsPauseCmd)
	jobsCmd.AddCommand(jobsResumeCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	jobsListCmd.Flags().Bool("json", false, "Output as JSON")
	jobsListCmd.Flags().String("state", "", "Filter by state (comma-separated)")
	jobsStatusCmd.Flags().Bool("json", false, "Output as JSON")
	jobsGCCmd.Flags().String("max-age", "168h", "Delete terminal jobs older than this duration")
	jobsGCCmd.Flags().Bool("dry-run", false, "Show how many jobs would be deleted")
	jobsGCCmd.Flags().Bool("json", false, "Output as JSON")
}

func jobsRegistry() (*registry.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return registry.New(signal.NewFSStore(cfg.JobsDir())), nil
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	stateFilter, _ := cmd.Flags().GetString("state")

	reg, err := jobsRegistry()
	if err != nil {
		return err
	}

	var filter signal.ListFilter
	for _, part := range strings.Split(stateFilter, ",") {
		if part = strings.TrimSpace(part); part != "" {
			filter.States = append(filter.States, signal.State(part))
		}
	}

	jobs, err := reg.List(filter)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tSTATE\tSOURCE\tSTARTED\tFINISHED\tOK")
	for _, j := range jobs {
		okCol := "-"
		if j.Result != nil {
			okCol = fmt.Sprintf("%t", j.Result.Ok)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortJobID(j.JobID),
			j.State,
			descriptorSource(j.Descriptor),
			j.StartedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(j.FinishedAt),
			okCol,
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	reg, err := jobsRegistry()
	if err != nil {
		return err
	}
	jobID, err := reg.Resolve(args[0])
	if err != nil {
		return err
	}
	sum, err := reg.Get(jobID)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", sum.JobID)
	_, _ = fmt.Fprintf(os.Stdout, "state=%s\n", sum.State)
	if src := descriptorSource(sum.Descriptor); src != "-" {
		_, _ = fmt.Fprintf(os.Stdout, "source=%s\n", src)
	}
	_, _ = fmt.Fprintf(os.Stdout, "started_at=%s\n", sum.StartedAt.UTC().Format(time.RFC3339))
	if sum.FinishedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "finished_at=%s\n", sum.FinishedAt.UTC().Format(time.RFC3339))
	}
	if sum.Result != nil {
		_, _ = fmt.Fprintf(os.Stdout, "ok=%t\n", sum.Result.Ok)
		if sum.Result.Error != "" {
			_, _ = fmt.Fprintf(os.Stdout, "error=%s\n", sum.Result.Error)
		}
	}
	return nil
}

func runJobsAction(action signal.Action) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		reg, err := jobsRegistry()
		if err != nil {
			return err
		}
		jobID, err := reg.Resolve(args[0])
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := signal.NewFSStore(cfg.JobsDir()).Request(jobID, action); err != nil {
			return fmt.Errorf("%s job %s: %w", action, jobID, err)
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s requested for job %s\n", action, jobID)
		return nil
	}
}

type jobsGCResult struct {
	Deleted     int    `json:"deleted"`
	WouldDelete int    `json:"would_delete"`
	DryRun      bool   `json:"dry_run"`
	MaxAge      string `json:"max_age"`
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	maxAgeStr, _ := cmd.Flags().GetString("max-age")
	maxAgeStr = strings.TrimSpace(maxAgeStr)
	if maxAgeStr == "" {
		maxAgeStr = "168h"
	}
	maxAge, err := time.ParseDuration(maxAgeStr)
	if err != nil {
		return fmt.Errorf("invalid --max-age: %w", err)
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	reg, err := jobsRegistry()
	if err != nil {
		return err
	}
	n, err := reg.GC(maxAge, dryRun)
	if err != nil {
		return err
	}

	if jsonOutput {
		res := jobsGCResult{DryRun: dryRun, MaxAge: maxAgeStr}
		if dryRun {
			res.WouldDelete = n
		} else {
			res.Deleted = n
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if dryRun {
		_, _ = fmt.Fprintf(os.Stdout, "would_delete=%d\n", n)
		return nil
	}
	_, _ = fmt.Fprintf(os.Stdout, "deleted=%d\n", n)
	return nil
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 17 {
		return jobID
	}
	return jobID[:17]
}

func descriptorSource(descriptor map[string]string) string {
	if id := descriptor["source_id"]; id != "" {
		return id
	}
	return "-"
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
