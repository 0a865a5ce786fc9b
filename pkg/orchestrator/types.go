//go:generate mockgen -destination=./mocks/orchestrator.go . Cataloger,Scheduling,Installing,Validating

package orchestrator

import (
	"context"

	"github.com/modelfetch-dev/modelfetch/pkg/model"
)

// Cataloger is the subset of the preset catalog used by the engine.
type Cataloger interface {
	Get(presetID string) (model.PresetSpec, error)
	Has(presetID string) bool
	IDs() []string
}

// Scheduling is the subset of the download scheduler used by the engine.
type Scheduling interface {
	Install(ctx context.Context, presetID string) (string, error)
	Pause(jobID string) error
	Resume(jobID string) error
	Cancel(jobID string) error
	Status(jobID string) (model.Job, error)
	Jobs() []model.Job
	Close()
}

// Installing is the subset of the installation manager used by the engine.
type Installing interface {
	Held(presetID string) bool
	Uninstall(ctx context.Context, preset model.PresetSpec) (model.UninstallResult, error)
}

// Validating is the subset of the integrity validator used by the engine.
type Validating interface {
	ValidatePreset(preset model.PresetSpec) model.ValidationReport
	Fix(preset model.PresetSpec) model.ValidationReport
}
