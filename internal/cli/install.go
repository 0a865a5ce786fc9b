package cli

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
	"github.com/modelfetch-dev/modelfetch/pkg/orchestrator"
)

// NewInstallCmd creates the install command.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install PRESET...",
		Short: "Download and install model presets",
		Long: `Download every file of the named presets, verify their integrity and
install them into the configured model directory. Files already present
and valid are skipped. Interrupting (Ctrl-C) cancels the job and removes
partial downloads; completed files stay installed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), args)
		},
	}
	return cmd
}

func runInstall(ctx context.Context, presets []string) error {
	engine, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, presetID := range presets {
		if err := installOne(ctx, engine, presetID); err != nil {
			return err
		}
	}
	return nil
}

func installOne(ctx context.Context, engine *orchestrator.Engine, presetID string) error {
	sub, err := engine.Subscribe(64)
	if err != nil {
		return err
	}
	defer sub.Close()

	jobID, err := engine.Install(ctx, presetID)
	if err != nil {
		if stderrors.Is(err, errors.ErrAlreadyInProgress) {
			fmt.Printf("%s: install already running (job %s), attaching\n", presetID, jobID)
		} else {
			return fmt.Errorf("failed to start install of %s: %w", presetID, err)
		}
	} else {
		fmt.Printf("%s: installing (job %s)\n", presetID, jobID)
	}

	interrupted := false
	done := ctx.Done()
	for {
		select {
		case <-done:
			interrupted = true
			done = nil // fire once
			fmt.Printf("\n%s: interrupt received, cancelling\n", presetID)
			// A terminal job rejects the cancel; its final event is already
			// on the stream either way.
			_ = engine.Cancel(jobID)
		case ev, open := <-sub.C():
			if !open {
				return &ExitCodeError{Code: 1, Err: fmt.Errorf("progress stream closed before %s finished", presetID)}
			}
			if ev.JobID != jobID {
				continue
			}
			if ev.Terminal && ev.File == "" {
				return finishInstall(presetID, ev, interrupted)
			}
			renderFileEvent(ev)
		}
	}
}

func renderFileEvent(ev model.ProgressEvent) {
	if ev.File == "" {
		return
	}
	switch ev.FileStatus {
	case model.FileCompleted:
		fmt.Printf("  %-44s done (%s)\n", ev.File, formatBytes(ev.BytesTotal))
	case model.FileFailed:
		fmt.Printf("  %-44s FAILED\n", ev.File)
	case model.FileDownloading:
		fmt.Printf("  %-44s %5.1f%%  %s/s  ETA %s  [total %.1f%%]\n",
			ev.File, ev.Percent, formatBytes(int64(ev.SpeedBps)), formatETA(ev.ETASeconds), ev.OverallPercent)
	}
}

func finishInstall(presetID string, ev model.ProgressEvent, interrupted bool) error {
	switch ev.Status {
	case model.JobCompleted:
		fmt.Printf("%s: installed (%s)\n", presetID, formatBytes(ev.BytesTotal))
		return nil
	case model.JobCancelled:
		if interrupted {
			return &ExitCodeError{Code: 130, Err: fmt.Errorf("install of %s cancelled", presetID)}
		}
		return &ExitCodeError{Code: 1, Err: fmt.Errorf("install of %s cancelled: %s", presetID, ev.Reason)}
	default:
		return &ExitCodeError{Code: 1, Err: fmt.Errorf("install of %s failed: %s", presetID, ev.Reason)}
	}
}
