// Package validate implements integrity verification for downloaded model
// files: size tolerance, SHA-256 checksums, container header sanity and
// usability checks, plus preset-wide audit reports.
package validate

import (
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/fsutil"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
)

// SizeTolerance is the accepted relative deviation between the on-disk size
// and the catalog's expected size. Remote metadata is routinely off by a few
// hundred bytes for multi-gigabyte files.
const SizeTolerance = 0.02

// Validator verifies files on disk against their catalog descriptors.
type Validator struct {
	// RootDir is the base of the installed model tree.
	RootDir string
}

// New creates a Validator rooted at the model tree.
func New(rootDir string) *Validator {
	return &Validator{RootDir: rootDir}
}

// Validate checks the file at path against its spec. A nil return means the
// file is valid; otherwise the error wraps the sentinel naming the defect.
func (v *Validator) Validate(spec model.FileSpec, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return errors.Wrap(errors.ErrFileMissing, spec.Path)
	}
	if err != nil {
		return errors.Wrap(errors.ErrFileUnreadable, err.Error())
	}
	if info.IsDir() {
		return errors.Wrapf(errors.ErrFileUnreadable, "%s is a directory", spec.Path)
	}
	if info.Size() == 0 {
		return errors.Wrapf(errors.ErrSizeMismatch, "%s is empty", spec.Path)
	}
	if !sizeWithinTolerance(info.Size(), spec.Size) {
		return errors.Wrapf(errors.ErrSizeMismatch, "%s: got %d bytes, expected %d (±%.0f%%)",
			spec.Path, info.Size(), spec.Size, SizeTolerance*100)
	}
	if err := checkHeader(path, info.Size()); err != nil {
		return err
	}
	if spec.Checksum != "" {
		sum, err := fileSHA256(path)
		if err != nil {
			return errors.Wrap(errors.ErrFileUnreadable, err.Error())
		}
		if sum != spec.Checksum {
			return errors.Wrapf(errors.ErrChecksumMismatch, "%s: got %s, expected %s", spec.Path, sum, spec.Checksum)
		}
	}
	if mode := info.Mode().Perm(); mode&0o400 == 0 {
		return errors.Wrapf(errors.ErrFileUnreadable, "%s has mode %04o, owner cannot read", spec.Path, mode)
	}
	return nil
}

func sizeWithinTolerance(actual, expected int64) bool {
	if expected <= 0 {
		return actual > 0
	}
	deviation := math.Abs(float64(actual-expected)) / float64(expected)
	return deviation <= SizeTolerance
}

// ValidatePreset audits every file of a preset independent of any job,
// producing a report whose missing/corrupted/size_mismatch lists are
// disjoint. Files that pass all checks but have no expected checksum are
// listed as unverified.
func (v *Validator) ValidatePreset(preset model.PresetSpec) model.ValidationReport {
	report := model.ValidationReport{
		PresetID:     preset.ID,
		Valid:        true,
		Missing:      []string{},
		Corrupted:    []string{},
		SizeMismatch: []string{},
		ValidatedAt:  time.Now().UTC(),
	}

	for i := range preset.Files {
		spec := preset.Files[i]
		target := filepath.Join(v.RootDir, filepath.FromSlash(spec.Path))
		err := v.Validate(spec, target)
		fr := model.FileReport{Path: spec.Path, Valid: err == nil}
		if err != nil {
			fr.Reason = err.Error()
			report.Valid = false
			switch {
			case stderrors.Is(err, errors.ErrFileMissing):
				report.Missing = append(report.Missing, spec.Path)
			case stderrors.Is(err, errors.ErrSizeMismatch):
				report.SizeMismatch = append(report.SizeMismatch, spec.Path)
			default:
				report.Corrupted = append(report.Corrupted, spec.Path)
			}
		} else if spec.Checksum == "" {
			report.Unverified = append(report.Unverified, spec.Path)
		}
		report.Files = append(report.Files, fr)
	}
	return report
}

// Fix attempts the repairs that do not require re-downloading: it corrects
// permission bits on readable-but-misformatted modes and re-runs the audit.
// It never fabricates missing bytes; missing or corrupt files stay in the
// report for the scheduler's skip-if-valid pass to re-fetch.
func (v *Validator) Fix(preset model.PresetSpec) model.ValidationReport {
	for i := range preset.Files {
		target := filepath.Join(v.RootDir, filepath.FromSlash(preset.Files[i].Path))
		info, err := os.Stat(target)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode().Perm() != fsutil.FileModeDefault {
			_ = os.Chmod(target, fsutil.FileModeDefault)
		}
	}
	return v.ValidatePreset(preset)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
