package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog presets and their installed state",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runList()
		},
	}
}

func runList() error {
	engine, _, err := buildEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	presets := engine.Presets()
	if len(presets) == 0 {
		fmt.Println("Catalog is empty.")
		return nil
	}

	fmt.Printf("%-24s %-32s %-10s %10s  %s\n", "PRESET", "NAME", "VERSION", "SIZE", "STATE")
	for _, preset := range presets {
		report, err := engine.Validate(preset.ID, false)
		if err != nil {
			continue
		}
		state := "installed"
		switch {
		case len(report.Missing) == len(preset.Files):
			state = "not installed"
		case !report.Valid:
			state = "partial"
		}
		fmt.Printf("%-24s %-32s %-10s %10s  %s\n",
			preset.ID, preset.Name, preset.Version, formatBytes(preset.TotalSize()), state)
	}
	return nil
}
