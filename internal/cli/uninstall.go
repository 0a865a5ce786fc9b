package cli

import (
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelfetch-dev/modelfetch/pkg/errors"
)

// NewUninstallCmd creates the uninstall command.
func NewUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall PRESET...",
		Short: "Remove installed presets from the model directory",
		Long: `Delete every file the catalog lists for the named presets, plus any
category directories the removal left empty. Presets with a running
install job are refused; uninstalling an absent preset is a no-op.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUninstall(cmd, args)
		},
	}
}

func runUninstall(cmd *cobra.Command, presets []string) error {
	engine, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	for _, presetID := range presets {
		result, err := engine.Uninstall(cmd.Context(), presetID)
		if err != nil {
			if stderrors.Is(err, errors.ErrPresetBusy) {
				return fmt.Errorf("%s has a running install job; cancel it first: %w", presetID, err)
			}
			return err
		}
		fmt.Printf("%s: removed %d files, freed %s\n", presetID, result.FilesRemoved, formatBytes(result.BytesFreed))
	}
	return nil
}
