package errors

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Class buckets an error into the engine's failure taxonomy. The class decides
// how the transfer worker reacts: network and integrity errors are retried,
// storage and config errors abort immediately.
type Class int

const (
	// ClassNetwork covers timeouts, resets and 5xx responses. Transient.
	ClassNetwork Class = iota
	// ClassStorage covers disk full, permission denied and similar local
	// filesystem failures. Retrying cannot help.
	ClassStorage
	// ClassIntegrity covers checksum/size/header mismatches found after a
	// completed transfer. Transient: the temp file is discarded and the
	// download retried.
	ClassIntegrity
	// ClassConfig covers unknown presets and malformed catalog entries.
	// Never retried.
	ClassConfig
)

func (c Class) String() string {
	switch c {
	case ClassNetwork:
		return "network"
	case ClassStorage:
		return "storage"
	case ClassIntegrity:
		return "integrity"
	case ClassConfig:
		return "config"
	}
	return "unknown"
}

// HTTPStatusError carries a non-success HTTP status so Classify can tell
// retryable 5xx responses apart from permanent 4xx ones.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return "unexpected status code " + http.StatusText(e.StatusCode) + " for " + e.URL
}

// Classify maps an arbitrary error onto the taxonomy. Unknown errors default
// to ClassNetwork so that flaky sources get the retry budget rather than an
// instant failure.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNetwork
	case errors.Is(err, ErrUnknownPreset),
		errors.Is(err, ErrMalformedCatalog),
		errors.Is(err, ErrConfigParse),
		errors.Is(err, ErrConfigValidation):
		return ClassConfig
	case errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrSizeMismatch),
		errors.Is(err, ErrHeaderMismatch):
		return ClassIntegrity
	case errors.Is(err, ErrInsufficientSpace),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EROFS),
		errors.Is(err, os.ErrPermission):
		return ClassStorage
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= http.StatusInternalServerError ||
			statusErr.StatusCode == http.StatusTooManyRequests {
			return ClassNetwork
		}
		// 404, 403 and friends: the source will not change its mind.
		return ClassConfig
	}

	// Local write errors hide behind *os.PathError.
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if op := pathErr.Op; op == "write" || op == "open" || op == "mkdir" || op == "chmod" || op == "sync" {
			return ClassStorage
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	return ClassNetwork
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	switch Classify(err) {
	case ClassNetwork, ClassIntegrity:
		return true
	default:
		return false
	}
}
