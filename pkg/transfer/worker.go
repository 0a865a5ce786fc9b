// Package transfer implements the per-file download worker: chunked
// streaming into a temp path, byte-range resume, retry with exponential
// backoff, rate smoothing and cooperative pause/cancel.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/modelfetch-dev/modelfetch/internal/logger"
	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/fsutil"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
)

// rateAlpha is the smoothing factor of the transfer-rate EMA. 0.3 keeps the
// displayed rate responsive without chasing every network burst.
const rateAlpha = 0.3

// backoffBase is the first retry delay; each retry doubles it (1s, 2s, 4s).
const backoffBase = time.Second

// Outcome is how a single file transfer ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomePaused
	OutcomeCancelled
	OutcomeFailed
)

// Validator verifies a completed download before it may be committed.
type Validator interface {
	Validate(spec model.FileSpec, path string) error
}

// Worker performs single-file transfers. Safe for use by multiple goroutines;
// all per-transfer state lives in the job's FileState.
type Worker struct {
	client      *http.Client
	chunkSize   int64
	maxRetries  int
	readTimeout time.Duration
	userAgent   string
	validator   Validator

	// sleep is swapped out in tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// Options configure a Worker.
type Options struct {
	ChunkSize   int64
	MaxRetries  int
	ReadTimeout time.Duration
	UserAgent   string
}

// NewWorker creates a transfer worker.
func NewWorker(validator Validator, opts Options) *Worker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 4 << 20
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "modelfetch/1.0"
	}
	return &Worker{
		client:      &http.Client{},
		chunkSize:   opts.ChunkSize,
		maxRetries:  opts.MaxRetries,
		readTimeout: opts.ReadTimeout,
		userAgent:   opts.UserAgent,
		validator:   validator,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run transfers the file at index idx of job into tempPath, retrying
// transient failures until the retry budget is spent. It returns the
// outcome and, for OutcomeFailed, the terminal error.
//
// The FileState is owned by this call for its duration; concurrent readers
// must go through job.Snapshot.
func (w *Worker) Run(ctx context.Context, job *model.LiveJob, idx int, tempPath string, ctl *Controls) (Outcome, error) {
	spec := fileSpec(job, idx)

	for {
		outcome, err := w.attempt(ctx, job, idx, spec, tempPath, ctl)
		if outcome != OutcomeFailed || err == nil {
			return outcome, err
		}

		if !errors.IsTransient(err) {
			setFileError(job, idx, err)
			return OutcomeFailed, err
		}

		retries := bumpRetry(job, idx, err)
		if retries >= w.maxRetries {
			err = errors.Wrapf(errors.ErrRetriesExhausted,
				"%s after %d attempts: %v", spec.Path, retries, err)
			setFileError(job, idx, err)
			return OutcomeFailed, err
		}

		// Integrity failures restart from a clean slate.
		if errors.Classify(err) == errors.ClassIntegrity {
			_ = os.Remove(tempPath)
		}

		delay := backoffBase << (retries - 1)
		logger.Warn("transfer failed, retrying", logger.Fields{
			"file":    spec.Path,
			"attempt": retries,
			"backoff": delay.String(),
			"error":   err.Error(),
		})
		if serr := w.sleep(ctx, delay); serr != nil {
			return OutcomeCancelled, nil
		}
		if ctl.Cancelled() {
			return OutcomeCancelled, nil
		}
		if ctl.Paused() {
			setFileStatus(job, idx, model.FilePaused)
			return OutcomePaused, nil
		}
	}
}

// attempt performs one streaming pass: open (or resume) the temp file,
// stream chunk by chunk, then validate.
func (w *Worker) attempt(ctx context.Context, job *model.LiveJob, idx int, spec model.FileSpec, tempPath string, ctl *Controls) (Outcome, error) {
	if err := os.MkdirAll(filepath.Dir(tempPath), fsutil.DirModePrivate); err != nil {
		return OutcomeFailed, err
	}

	offset := existingSize(tempPath)

	// Arm a per-chunk stall guard: the request context is cancelled if no
	// chunk completes within the read timeout, which routes the failure
	// into the retry path instead of hanging.
	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()
	stall := time.AfterFunc(w.readTimeout, cancelAttempt)
	defer stall.Stop()

	resp, offset, err := w.openStream(attemptCtx, spec, offset)
	if err != nil {
		return OutcomeFailed, err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(tempPath, flags, fsutil.FileModeTemp)
	if err != nil {
		return OutcomeFailed, err
	}
	defer out.Close()

	setFileStatus(job, idx, model.FileDownloading)
	setBytesDone(job, idx, offset)

	buf := make([]byte, w.chunkSize)
	lastChunk := time.Now()
	for {
		n, readErr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return OutcomeFailed, werr
			}
			now := time.Now()
			updateProgress(job, idx, int64(n), now.Sub(lastChunk))
			lastChunk = now
			stall.Reset(w.readTimeout)
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			// ErrUnexpectedEOF from ReadFull just means a short final
			// chunk; true truncation is caught by validation below.
			break
		}
		if readErr != nil {
			if ctx.Err() == nil && attemptCtx.Err() != nil {
				// The stall guard fired, not the caller.
				return OutcomeFailed, errors.Wrapf(errors.ErrDownloadFailed,
					"%s: no data for %s", spec.Path, w.readTimeout)
			}
			return OutcomeFailed, readErr
		}

		if ctl.Cancelled() {
			return OutcomeCancelled, nil
		}
		if ctl.Paused() {
			// Park without closing out the partial; Resume re-admits the
			// remaining byte range.
			if err := out.Sync(); err != nil {
				return OutcomeFailed, err
			}
			setFileStatus(job, idx, model.FilePaused)
			return OutcomePaused, nil
		}
	}

	if err := out.Sync(); err != nil {
		return OutcomeFailed, err
	}
	if err := out.Close(); err != nil {
		return OutcomeFailed, err
	}

	setFileStatus(job, idx, model.FileValidating)
	if err := w.validator.Validate(spec, tempPath); err != nil {
		return OutcomeFailed, err
	}
	setFileStatus(job, idx, model.FileCompleted)
	return OutcomeCompleted, nil
}

// openStream issues the GET, asking for a byte range when a partial temp
// file exists. It returns the effective starting offset: zero when the
// server ignored the range request and the transfer must restart.
func (w *Worker) openStream(ctx context.Context, spec model.FileSpec, offset int64) (*http.Response, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, http.NoBody)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", w.userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "request failed")
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return resp, offset, nil
	case http.StatusOK:
		// Server ignored the range; restart from zero.
		return resp, 0, nil
	case http.StatusRequestedRangeNotSatisfiable:
		// Stale partial larger than the remote file; restart clean.
		_ = resp.Body.Close()
		if offset == 0 {
			return nil, 0, &errors.HTTPStatusError{StatusCode: resp.StatusCode, URL: spec.URL}
		}
		req2, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, http.NoBody)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to create request")
		}
		req2.Header.Set("User-Agent", w.userAgent)
		resp2, err := w.client.Do(req2)
		if err != nil {
			return nil, 0, errors.Wrap(err, "request failed")
		}
		if resp2.StatusCode != http.StatusOK {
			_ = resp2.Body.Close()
			return nil, 0, &errors.HTTPStatusError{StatusCode: resp2.StatusCode, URL: spec.URL}
		}
		return resp2, 0, nil
	default:
		_ = resp.Body.Close()
		return nil, 0, &errors.HTTPStatusError{StatusCode: resp.StatusCode, URL: spec.URL}
	}
}

func existingSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func fileSpec(job *model.LiveJob, idx int) model.FileSpec {
	job.Lock()
	defer job.Unlock()
	return job.Files[idx].Spec
}

func setFileStatus(job *model.LiveJob, idx int, status model.FileStatus) {
	job.Lock()
	job.Files[idx].Status = status
	job.Unlock()
}

func setBytesDone(job *model.LiveJob, idx int, n int64) {
	job.Lock()
	job.Files[idx].BytesDone = n
	job.Unlock()
}

func setFileError(job *model.LiveJob, idx int, err error) {
	job.Lock()
	job.Files[idx].Status = model.FileFailed
	job.Files[idx].LastError = err.Error()
	job.Unlock()
}

func bumpRetry(job *model.LiveJob, idx int, err error) int {
	job.Lock()
	defer job.Unlock()
	job.Files[idx].RetryCount++
	job.Files[idx].LastError = err.Error()
	return job.Files[idx].RetryCount
}

func updateProgress(job *model.LiveJob, idx int, n int64, elapsed time.Duration) {
	job.Lock()
	defer job.Unlock()
	f := &job.Files[idx]
	f.BytesDone += n
	if elapsed <= 0 {
		return
	}
	instant := float64(n) / elapsed.Seconds()
	if f.RateEMA == 0 {
		f.RateEMA = instant
	} else {
		f.RateEMA = rateAlpha*instant + (1-rateAlpha)*f.RateEMA
	}
}
