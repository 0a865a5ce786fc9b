// Package errors defines the sentinel errors and the error taxonomy used by the
// acquisition engine. Every error surfaced by a component wraps one of these
// sentinels so callers can branch with errors.Is instead of string matching.
package errors

import "fmt"

// Common error types.
var (
	// Catalog / config errors.
	ErrUnknownPreset    = fmt.Errorf("unknown preset")
	ErrMalformedCatalog = fmt.Errorf("malformed catalog entry")
	ErrConfigParse      = fmt.Errorf("failed to parse config")
	ErrConfigValidation = fmt.Errorf("invalid configuration")
	ErrInvalidPath      = fmt.Errorf("invalid path")

	// Scheduler errors.
	ErrAlreadyInProgress = fmt.Errorf("install already in progress")
	ErrJobNotFound       = fmt.Errorf("job not found")
	ErrJobTerminal       = fmt.Errorf("job already in a terminal state")
	ErrPresetBusy        = fmt.Errorf("preset is busy with another operation")
	ErrInsufficientSpace = fmt.Errorf("insufficient free space")
	ErrSchedulerClosed   = fmt.Errorf("scheduler is shut down")

	// Transfer errors.
	ErrDownloadFailed    = fmt.Errorf("download failed")
	ErrRetriesExhausted  = fmt.Errorf("retries exhausted")
	ErrRangeNotSupported = fmt.Errorf("server does not support range requests")

	// Integrity errors.
	ErrChecksumMismatch = fmt.Errorf("checksum mismatch")
	ErrSizeMismatch     = fmt.Errorf("size outside tolerance")
	ErrHeaderMismatch   = fmt.Errorf("file header does not match expected format")
	ErrFileMissing      = fmt.Errorf("file missing")
	ErrFileUnreadable   = fmt.Errorf("file not readable")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
