package model

import (
	"sync"
	"time"
)

// JobStatus is the lifecycle state of an install job.
type JobStatus string

const (
	JobQueued      JobStatus = "queued"
	JobDownloading JobStatus = "downloading"
	JobPaused      JobStatus = "paused"
	JobValidating  JobStatus = "validating"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
	JobCancelled   JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// FileStatus is the lifecycle state of one file transfer within a job.
type FileStatus string

const (
	FilePending     FileStatus = "pending"
	FileDownloading FileStatus = "downloading"
	FilePaused      FileStatus = "paused"
	FileValidating  FileStatus = "validating"
	FileCompleted   FileStatus = "completed"
	FileFailed      FileStatus = "failed"
	FileCancelled   FileStatus = "cancelled"
	// FileSkipped means the file was already present and valid, so it was
	// never re-downloaded. Counts as completed for progress aggregation.
	FileSkipped FileStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s FileStatus) Terminal() bool {
	switch s {
	case FileCompleted, FileFailed, FileCancelled, FileSkipped:
		return true
	}
	return false
}

// Done reports whether the file's bytes are fully on disk and verified.
func (s FileStatus) Done() bool {
	return s == FileCompleted || s == FileSkipped
}

// FileState tracks the transfer of a single file. It is mutated only by the
// worker that owns the file; readers go through Job.Snapshot.
type FileState struct {
	Spec       FileSpec   `json:"spec"`
	BytesDone  int64      `json:"bytes_done"`
	BytesTotal int64      `json:"bytes_total"`
	Status     FileStatus `json:"status"`
	RetryCount int        `json:"retry_count"`
	// RateEMA is the exponentially smoothed transfer rate in bytes/second.
	RateEMA   float64 `json:"rate_ema"`
	LastError string  `json:"last_error,omitempty"`
}

// ETASeconds estimates the remaining transfer time from the smoothed rate.
// Returns -1 when no estimate is possible.
func (f *FileState) ETASeconds() float64 {
	if f.RateEMA <= 0 {
		return -1
	}
	remaining := f.BytesTotal - f.BytesDone
	if remaining <= 0 {
		return 0
	}
	return float64(remaining) / f.RateEMA
}

// Job represents one install cycle for one preset. It is a plain value:
// snapshots of a LiveJob hand this shape to the API, the CLI and the bus.
type Job struct {
	ID          string      `json:"id"`
	PresetID    string      `json:"preset_id"`
	Files       []FileState `json:"files"`
	Status      JobStatus   `json:"status"`
	Reason      string      `json:"reason,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   time.Time   `json:"started_at,omitzero"`
	CompletedAt time.Time   `json:"completed_at,omitzero"`
}

// Progress recomputes the aggregate byte counts across all files. Never
// cached; each call reflects the state the snapshot captured.
func (j *Job) Progress() (done, total int64) {
	for i := range j.Files {
		f := &j.Files[i]
		total += f.BytesTotal
		if f.Status.Done() {
			done += f.BytesTotal
		} else {
			done += f.BytesDone
		}
	}
	return done, total
}

// OverallPercent returns the aggregate completion percentage.
func (j *Job) OverallPercent() float64 {
	done, total := j.Progress()
	if total == 0 {
		return 100
	}
	return float64(done) / float64(total) * 100
}

// LiveJob is the mutable job tracked by the scheduler. All embedded fields
// are guarded by the job's mutex; external readers must use Snapshot.
type LiveJob struct {
	mu sync.Mutex
	Job
}

// NewJob creates a queued job for the given preset with one FileState per
// catalog file.
func NewJob(id string, preset PresetSpec) *LiveJob {
	files := make([]FileState, len(preset.Files))
	for i, spec := range preset.Files {
		files[i] = FileState{
			Spec:       spec,
			BytesTotal: spec.Size,
			Status:     FilePending,
		}
	}
	return &LiveJob{
		Job: Job{
			ID:        id,
			PresetID:  preset.ID,
			Files:     files,
			Status:    JobQueued,
			CreatedAt: time.Now().UTC(),
		},
	}
}

// Lock takes the job's mutex. Workers hold it only for short field updates.
func (j *LiveJob) Lock() { j.mu.Lock() }

// Unlock releases the job's mutex.
func (j *LiveJob) Unlock() { j.mu.Unlock() }

// Snapshot returns a deep copy of the job safe to hand to callers.
func (j *LiveJob) Snapshot() Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	copied := j.Job
	copied.Files = make([]FileState, len(j.Files))
	copy(copied.Files, j.Files)
	return copied
}
