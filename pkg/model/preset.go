// Package model provides the data structures shared across the acquisition
// engine: file and preset descriptors sourced from the catalog, job and
// per-file transfer state, validation reports and progress events.
package model

import (
	"net/url"
	"path"

	"github.com/hashicorp/go-version"
)

// Install-order tiers. Lower tiers are admitted to the transfer queue first so
// that prerequisite files (encoders) land before the checkpoints that need
// them, and auxiliary files come last.
const (
	TierTextEncoder = 0
	TierCheckpoint  = 1
	TierVAE         = 2
	TierLora        = 3
	TierMisc        = 4
)

// TierForCategory maps a catalog category to its default install tier.
func TierForCategory(category string) int {
	switch category {
	case "text_encoders", "clip":
		return TierTextEncoder
	case "checkpoints", "diffusion_models", "unet":
		return TierCheckpoint
	case "vae":
		return TierVAE
	case "loras":
		return TierLora
	default:
		return TierMisc
	}
}

// FileSpec describes one remote file of a preset. Immutable once loaded from
// the catalog.
type FileSpec struct {
	URL      string `json:"url" yaml:"url"`
	Path     string `json:"path" yaml:"path"`
	Size     int64  `json:"size" yaml:"size"`
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Tier     int    `json:"tier" yaml:"tier"`
}

// GetURL returns the parsed remote URL, or nil if it does not parse.
func (f *FileSpec) GetURL() *url.URL {
	parsed, err := url.Parse(f.URL)
	if err != nil {
		return nil
	}
	return parsed
}

// Base returns the final path element of the target path.
func (f *FileSpec) Base() string {
	return path.Base(f.Path)
}

// PresetSpec is a named, versioned set of files to be fetched and installed
// together.
type PresetSpec struct {
	ID        string     `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Category  string     `json:"category,omitempty" yaml:"category,omitempty"`
	Version   string     `json:"version,omitempty" yaml:"version,omitempty"`
	MinEngine string     `json:"min_engine,omitempty" yaml:"min_engine,omitempty"`
	Files     []FileSpec `json:"files" yaml:"files"`
}

// TotalSize returns the sum of the expected sizes of all files in the preset.
func (p *PresetSpec) TotalSize() int64 {
	var total int64
	for i := range p.Files {
		total += p.Files[i].Size
	}
	return total
}

// GetVersion returns the parsed preset version, or nil if absent or invalid.
func (p *PresetSpec) GetVersion() *version.Version {
	if p.Version == "" {
		return nil
	}
	v, err := version.NewVersion(p.Version)
	if err != nil {
		return nil
	}
	return v
}

// MatchEngine checks whether engineVersion satisfies the preset's min_engine
// constraint. A preset with no constraint matches every engine.
func (p *PresetSpec) MatchEngine(engineVersion string) bool {
	if p.MinEngine == "" {
		return true
	}
	constraint, err := version.NewConstraint(">= " + p.MinEngine)
	if err != nil {
		return false
	}
	v, err := version.NewVersion(engineVersion)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}
