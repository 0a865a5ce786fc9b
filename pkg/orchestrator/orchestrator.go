// Package orchestrator ties the catalog, scheduler, validator and
// installation manager together behind one engine facade. The CLI and the
// HTTP API both drive this type and nothing below it.
package orchestrator

import (
	"context"

	"github.com/modelfetch-dev/modelfetch/pkg/catalog"
	"github.com/modelfetch-dev/modelfetch/pkg/config"
	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/install"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
	"github.com/modelfetch-dev/modelfetch/pkg/progress"
	"github.com/modelfetch-dev/modelfetch/pkg/scheduler"
	"github.com/modelfetch-dev/modelfetch/pkg/validate"
)

// Engine is the acquisition engine facade. Zero-value fields are allowed in
// tests; production wiring goes through New.
type Engine struct {
	Catalog   Cataloger
	Sched     Scheduling
	Installer Installing
	Validator Validating

	bus *progress.Bus
}

// New builds a fully wired engine from the configuration. engineVersion
// gates presets whose min_engine constraint the running binary cannot meet.
func New(cfg *config.Config, engineVersion string) (*Engine, error) {
	cat, err := catalog.Load(cfg.Settings.CatalogPath, engineVersion)
	if err != nil {
		return nil, err
	}

	validator := validate.New(cfg.Settings.ModelDir)
	installer := install.NewManager(cfg.Settings.ModelDir, cfg.GetTempDir())
	bus := progress.NewBus()
	sched := scheduler.New(cat, validator, installer, bus, scheduler.Options{
		MaxConcurrent:   cfg.Settings.MaxConcurrent,
		ChunkSize:       cfg.Settings.ChunkSize,
		MaxRetries:      cfg.Settings.MaxRetries,
		ReadTimeout:     cfg.Settings.HTTPTimeout,
		UserAgent:       cfg.Settings.UserAgent,
		PublishInterval: cfg.Settings.PublishInterval,
		JobTimeout:      cfg.Settings.JobTimeout,
		JobRetention:    cfg.Settings.JobRetention,
	})

	return &Engine{
		Catalog:   cat,
		Sched:     sched,
		Installer: installer,
		Validator: validator,
		bus:       bus,
	}, nil
}

// Install starts (or joins) an install job for the preset and returns its
// job ID.
func (e *Engine) Install(ctx context.Context, presetID string) (string, error) {
	return e.Sched.Install(ctx, presetID)
}

// Pause pauses a running job.
func (e *Engine) Pause(jobID string) error { return e.Sched.Pause(jobID) }

// Resume resumes a paused job.
func (e *Engine) Resume(jobID string) error { return e.Sched.Resume(jobID) }

// Cancel cancels a job and removes its partial downloads.
func (e *Engine) Cancel(jobID string) error { return e.Sched.Cancel(jobID) }

// Status returns a snapshot of one job.
func (e *Engine) Status(jobID string) (model.Job, error) { return e.Sched.Status(jobID) }

// Jobs returns snapshots of all known jobs.
func (e *Engine) Jobs() []model.Job { return e.Sched.Jobs() }

// Presets returns every preset in the catalog, ordered by ID.
func (e *Engine) Presets() []model.PresetSpec {
	ids := e.Catalog.IDs()
	out := make([]model.PresetSpec, 0, len(ids))
	for _, id := range ids {
		preset, err := e.Catalog.Get(id)
		if err != nil {
			continue
		}
		out = append(out, preset)
	}
	return out
}

// Uninstall removes every installed file of the preset. It refuses while an
// install job holds the preset.
func (e *Engine) Uninstall(ctx context.Context, presetID string) (model.UninstallResult, error) {
	preset, err := e.Catalog.Get(presetID)
	if err != nil {
		return model.UninstallResult{}, err
	}
	return e.Installer.Uninstall(ctx, preset)
}

// Validate audits the preset's installed files. With fix set, repairable
// issues (wrong permissions) are corrected before the re-audit; missing or
// corrupted bytes are never fabricated.
func (e *Engine) Validate(presetID string, fix bool) (model.ValidationReport, error) {
	preset, err := e.Catalog.Get(presetID)
	if err != nil {
		return model.ValidationReport{}, err
	}
	if fix {
		return e.Validator.Fix(preset), nil
	}
	return e.Validator.ValidatePreset(preset), nil
}

// Subscribe attaches a progress subscriber. The caller must Close the
// subscription when done.
func (e *Engine) Subscribe(buffer int) (*progress.Subscription, error) {
	if e.bus == nil {
		return nil, errors.Wrap(errors.ErrSchedulerClosed, "engine has no progress bus")
	}
	return e.bus.Subscribe(buffer), nil
}

// Close shuts the engine down: live jobs are cancelled and the progress bus
// closed.
func (e *Engine) Close() {
	if e.Sched != nil {
		e.Sched.Close()
	}
	if e.bus != nil {
		e.bus.Close()
	}
}
