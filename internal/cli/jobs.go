package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelfetch-dev/modelfetch/pkg/model"
)

// Job control talks to a running `modelfetch serve` daemon: one-shot
// processes have no live jobs of their own.

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [JOB_ID]",
		Short: "Show install jobs on the running daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runJobDetail(args[0])
			}
			return runJobList()
		},
	}
}

// NewPauseCmd creates the pause command.
func NewPauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause JOB_ID",
		Short: "Pause a running install job",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runJobAction("pause", args[0])
		},
	}
}

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume JOB_ID",
		Short: "Resume a paused install job",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runJobAction("resume", args[0])
		},
	}
}

// NewCancelCmd creates the cancel command.
func NewCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel an install job and remove its partial downloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runJobAction("cancel", args[0])
		},
	}
}

func daemonClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func runJobList() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resp, err := daemonClient().Get(daemonURL(cfg) + "/api/jobs")
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is `modelfetch serve` running?): %w", daemonURL(cfg), err)
	}
	defer resp.Body.Close()

	var jobs []model.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode job list: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("No jobs.")
		return nil
	}

	fmt.Printf("%-38s %-20s %-12s %8s\n", "JOB", "PRESET", "STATUS", "PROGRESS")
	for i := range jobs {
		job := &jobs[i]
		fmt.Printf("%-38s %-20s %-12s %7.1f%%\n", job.ID, job.PresetID, job.Status, job.OverallPercent())
	}
	return nil
}

func runJobDetail(jobID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resp, err := daemonClient().Get(daemonURL(cfg) + "/api/jobs/" + jobID)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is `modelfetch serve` running?): %w", daemonURL(cfg), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job %s not found", jobID)
	}

	var job model.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return fmt.Errorf("failed to decode job: %w", err)
	}

	fmt.Printf("Job:     %s\n", job.ID)
	fmt.Printf("Preset:  %s\n", job.PresetID)
	fmt.Printf("Status:  %s", job.Status)
	if job.Reason != "" {
		fmt.Printf(" (%s)", job.Reason)
	}
	fmt.Println()
	done, total := job.Progress()
	fmt.Printf("Overall: %.1f%% (%s / %s)\n\n", job.OverallPercent(), formatBytes(done), formatBytes(total))

	for i := range job.Files {
		f := &job.Files[i]
		line := fmt.Sprintf("  %-44s %-12s %s / %s", f.Spec.Path, f.Status,
			formatBytes(f.BytesDone), formatBytes(f.BytesTotal))
		if f.RetryCount > 0 {
			line += fmt.Sprintf("  retries=%d", f.RetryCount)
		}
		if f.LastError != "" {
			line += "  " + f.LastError
		}
		fmt.Println(line)
	}
	return nil
}

func runJobAction(action, jobID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/jobs/%s/%s", daemonURL(cfg), jobID, action)
	resp, err := daemonClient().Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is `modelfetch serve` running?): %w", daemonURL(cfg), err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		fmt.Printf("Job %s: %s requested\n", jobID, action)
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("job %s not found", jobID)
	case http.StatusConflict:
		return fmt.Errorf("job %s already finished", jobID)
	default:
		return fmt.Errorf("%s of job %s failed: %s", action, jobID, resp.Status)
	}
}
