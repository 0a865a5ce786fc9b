// Package install owns placement and removal of files in the model tree:
// per-preset mutual exclusion, atomic commit of verified temp files into
// their final paths, and idempotent uninstall.
package install

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/modelfetch-dev/modelfetch/internal/logger"
	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/fsutil"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
)

// Manager serializes install and uninstall per preset and performs the
// actual filesystem mutations. It is the only writer of the final tree.
type Manager struct {
	rootDir string
	tempDir string

	mu   sync.Mutex
	held map[string]bool
}

// NewManager creates a Manager over the model tree rooted at rootDir, with
// partial downloads living under tempDir.
func NewManager(rootDir, tempDir string) *Manager {
	return &Manager{
		rootDir: rootDir,
		tempDir: tempDir,
		held:    make(map[string]bool),
	}
}

// RootDir returns the base of the installed model tree.
func (m *Manager) RootDir() string { return m.rootDir }

// TryAcquire takes the per-preset lock without blocking. It returns a
// release function on success and ErrPresetBusy when another operation
// already holds the preset.
func (m *Manager) TryAcquire(presetID string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[presetID] {
		return nil, errors.Wrap(errors.ErrPresetBusy, presetID)
	}
	m.held[presetID] = true
	release := func() {
		m.mu.Lock()
		delete(m.held, presetID)
		m.mu.Unlock()
	}
	return release, nil
}

// Held reports whether the preset lock is currently taken.
func (m *Manager) Held(presetID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held[presetID]
}

// TargetPath returns the final path of a file spec inside the model tree.
func (m *Manager) TargetPath(spec model.FileSpec) string {
	return filepath.Join(m.rootDir, filepath.FromSlash(spec.Path))
}

// TempPath returns the partial-download path for a file of a preset. Temp
// files are namespaced per preset so a cancelled job can sweep exactly its
// own leftovers.
func (m *Manager) TempPath(presetID string, spec model.FileSpec) string {
	return filepath.Join(m.tempDir, presetID, spec.Base()+".part")
}

// CommitFile atomically moves a fully-written, verified temp file into its
// final path, creating parent directories as needed. The file becomes
// world-readable only at this point.
func (m *Manager) CommitFile(tempPath, targetPath string) error {
	if err := fsutil.Move(tempPath, targetPath); err != nil {
		return errors.Wrap(err, "could not finalize file")
	}
	if err := os.Chmod(targetPath, fsutil.FileModeDefault); err != nil {
		return errors.Wrap(err, "could not set permissions")
	}
	return nil
}

// CleanTemp removes the preset's temp namespace and everything in it.
func (m *Manager) CleanTemp(presetID string) {
	dir := filepath.Join(m.tempDir, presetID)
	if err := os.RemoveAll(dir); err != nil {
		logger.Warn("failed to clean temp dir", logger.Fields{"dir": dir, "error": err.Error()})
	}
	fsutil.RemoveIfEmpty(m.tempDir)
}

// Uninstall removes every present file of the preset from the model tree.
// Removing an already-absent file is not an error, so uninstalling a
// never-installed preset reports zero files removed. Emptied category
// directories are swept afterwards.
func (m *Manager) Uninstall(ctx context.Context, preset model.PresetSpec) (model.UninstallResult, error) {
	release, err := m.TryAcquire(preset.ID)
	if err != nil {
		return model.UninstallResult{}, err
	}
	defer release()

	var result model.UninstallResult
	dirs := make(map[string]bool)
	for i := range preset.Files {
		target := m.TargetPath(preset.Files[i])
		info, err := os.Stat(target)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return result, errors.Wrapf(err, "could not stat %s", target)
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := os.Remove(target); err != nil {
			return result, errors.Wrapf(err, "could not remove %s", target)
		}
		result.FilesRemoved++
		result.BytesFreed += info.Size()
		dirs[filepath.Dir(target)] = true
		logger.Debug("removed file", logger.Fields{"path": target, "bytes": info.Size()})
	}

	// Also drop any stale partials from an interrupted install.
	m.CleanTemp(preset.ID)

	for dir := range dirs {
		if dir != m.rootDir {
			fsutil.RemoveIfEmpty(dir)
		}
	}

	logger.Info("uninstalled preset", logger.Fields{
		"preset":        preset.ID,
		"files_removed": result.FilesRemoved,
		"bytes_freed":   result.BytesFreed,
	})
	return result, nil
}
