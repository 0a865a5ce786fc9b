package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modelfetch-dev/modelfetch/pkg/model"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "validate PRESET...",
		Short: "Audit installed preset files against the catalog",
		Long: `Check every file of the named presets: existence, size, checksum,
header format and permissions. With --fix, wrong permissions are
repaired; missing or corrupted files are reported but never rebuilt
(re-run install for those). Exits 1 when issues remain.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runValidate(args, fix)
		},
	}

	cmd.Flags().BoolVar(&fix, "fix", false, "Repair fixable issues (permissions) before re-auditing")
	return cmd
}

func runValidate(presets []string, fix bool) error {
	engine, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	clean := true
	for _, presetID := range presets {
		report, err := engine.Validate(presetID, fix)
		if err != nil {
			return err
		}
		printReport(report)
		if !report.Valid {
			clean = false
		}
	}

	if !clean {
		return &ExitCodeError{Code: 1, Err: fmt.Errorf("validation found issues")}
	}
	return nil
}

func printReport(report model.ValidationReport) {
	if report.Valid {
		fmt.Printf("%s: valid (%d files)\n", report.PresetID, len(report.Files))
	} else {
		fmt.Printf("%s: INVALID\n", report.PresetID)
	}
	for _, path := range report.Missing {
		fmt.Printf("  missing:       %s\n", path)
	}
	for _, path := range report.SizeMismatch {
		fmt.Printf("  size mismatch: %s\n", path)
	}
	for _, path := range report.Corrupted {
		fmt.Printf("  corrupted:     %s\n", path)
	}
	for _, path := range report.Unverified {
		fmt.Printf("  unverified (no checksum in catalog): %s\n", path)
	}
}
