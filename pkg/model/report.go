package model

import "time"

// FileReport is the validation outcome for a single file.
type FileReport struct {
	Path   string `json:"path"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// ValidationReport summarizes a post-hoc audit of an installed preset. The
// Missing, Corrupted and SizeMismatch lists are disjoint: a file appears in
// exactly one of them, matching the first defect found. Unverified lists
// files that passed every check but carried no expected checksum, so their
// validity is a weaker guarantee.
type ValidationReport struct {
	PresetID     string       `json:"preset_id"`
	Valid        bool         `json:"valid"`
	Files        []FileReport `json:"files"`
	Missing      []string     `json:"missing"`
	Corrupted    []string     `json:"corrupted"`
	SizeMismatch []string     `json:"size_mismatch"`
	Unverified   []string     `json:"unverified,omitempty"`
	ValidatedAt  time.Time    `json:"validated_at"`
}

// Issues returns the total number of invalid files in the report.
func (r *ValidationReport) Issues() int {
	return len(r.Missing) + len(r.Corrupted) + len(r.SizeMismatch)
}

// UninstallResult reports what an uninstall actually removed.
type UninstallResult struct {
	FilesRemoved int   `json:"files_removed"`
	BytesFreed   int64 `json:"bytes_freed"`
}
