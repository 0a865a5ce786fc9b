// Package scheduler turns install requests into prioritized transfer queues
// executed by a bounded worker pool. It owns the job registry, fair
// round-robin admission across concurrent jobs, cooperative pause/resume/
// cancel, skip-if-valid and the free-space admission check.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelfetch-dev/modelfetch/internal/logger"
	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/fsutil"
	"github.com/modelfetch-dev/modelfetch/pkg/install"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
	"github.com/modelfetch-dev/modelfetch/pkg/progress"
	"github.com/modelfetch-dev/modelfetch/pkg/transfer"
)

// Cataloger is the subset of the catalog used by the scheduler.
type Cataloger interface {
	Get(presetID string) (model.PresetSpec, error)
}

// Validating is the subset of the integrity validator used by the scheduler.
type Validating interface {
	Validate(spec model.FileSpec, path string) error
}

// Options configure the scheduler.
type Options struct {
	MaxConcurrent   int
	ChunkSize       int64
	MaxRetries      int
	ReadTimeout     time.Duration
	UserAgent       string
	PublishInterval time.Duration
	JobTimeout      time.Duration
	JobRetention    time.Duration
	// SpaceHeadroom is the fraction of extra free space required beyond the
	// byte sum of files still to download. Matches the size tolerance so a
	// job admitted at the edge cannot be sunk by metadata variance.
	SpaceHeadroom float64
}

type jobEntry struct {
	job     *model.LiveJob
	ctl     *transfer.Controls
	release func()
	// pending holds indices into job.Files awaiting a worker, in admission
	// order (tier ascending, size descending).
	pending []int
	active  int
	// remaining counts files not yet committed; reserved is the byte sum
	// still counted against the shared free-space reservation.
	remaining    int
	reserved     int64
	failure      error
	cancelReason string
	finalized    bool
	timeout      *time.Timer
}

// Scheduler is the download scheduler. Construct with New and stop with
// Close; all methods are safe for concurrent use.
type Scheduler struct {
	catalog   Cataloger
	validator Validating
	installer *install.Manager
	bus       *progress.Bus
	worker    *transfer.Worker
	opts      Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	cond     *sync.Cond
	jobs     map[string]*jobEntry
	byPreset map[string]*jobEntry
	// ring is the round-robin order of live job IDs for fair admission.
	ring   []string
	rrNext int
	// reserved is the byte sum all live jobs still intend to write. Admission
	// checks free space against it so concurrent installs cannot jointly
	// overcommit the disk.
	reserved int64
	closed   bool
}

// New creates a scheduler and starts its dispatcher, publisher and janitor
// goroutines.
func New(catalog Cataloger, validator Validating, installer *install.Manager, bus *progress.Bus, opts Options) *Scheduler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.PublishInterval <= 0 {
		opts.PublishInterval = time.Second
	}
	if opts.JobRetention <= 0 {
		opts.JobRetention = time.Hour
	}
	if opts.SpaceHeadroom <= 0 {
		opts.SpaceHeadroom = 0.02
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		catalog:   catalog,
		validator: validator,
		installer: installer,
		bus:       bus,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*jobEntry),
		byPreset:  make(map[string]*jobEntry),
	}
	s.cond = sync.NewCond(&s.mu)
	s.worker = transfer.NewWorker(validator, transfer.Options{
		ChunkSize:   opts.ChunkSize,
		MaxRetries:  opts.MaxRetries,
		ReadTimeout: opts.ReadTimeout,
		UserAgent:   opts.UserAgent,
	})

	s.wg.Add(3)
	go s.dispatch()
	go s.publishLoop()
	go s.janitor()
	return s
}

// Install starts an install job for the preset. If a live job already exists
// for the preset, its ID is returned together with ErrAlreadyInProgress; no
// second job is created.
func (s *Scheduler) Install(ctx context.Context, presetID string) (string, error) {
	preset, err := s.catalog.Get(presetID)
	if err != nil {
		return "", err
	}

	job := model.NewJob(uuid.NewString(), preset)
	e := &jobEntry{job: job, ctl: &transfer.Controls{}}

	// Take the preset lock and register the entry in one critical section so
	// a concurrent Install of the same preset always finds the live job and
	// joins it instead of bouncing off the lock.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", errors.ErrSchedulerClosed
	}
	if live, ok := s.byPreset[presetID]; ok {
		id := live.job.ID
		s.mu.Unlock()
		return id, errors.Wrap(errors.ErrAlreadyInProgress, presetID)
	}
	release, err := s.installer.TryAcquire(presetID)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}
	e.release = release
	s.jobs[job.ID] = e
	s.byPreset[presetID] = e
	s.ring = append(s.ring, job.ID)
	s.mu.Unlock()

	// Skip-if-valid: files already present and passing validation are done
	// before any byte moves. The entry has no pending files yet, so the
	// dispatcher ignores it while this pass hashes what is on disk.
	var todo []int
	var needed int64
	job.Lock()
	for i := range job.Files {
		spec := job.Files[i].Spec
		if s.validator.Validate(spec, s.installer.TargetPath(spec)) == nil {
			job.Files[i].Status = model.FileSkipped
			continue
		}
		todo = append(todo, i)
		needed += spec.Size
	}
	job.Unlock()

	// Admission order: tier ascending, ties broken by descending size so
	// the large prerequisites start while small stragglers queue.
	sort.SliceStable(todo, func(a, b int) bool {
		fa, fb := fileAt(job, todo[a]), fileAt(job, todo[b])
		if fa.Tier != fb.Tier {
			return fa.Tier < fb.Tier
		}
		return fa.Size > fb.Size
	})

	var free int64
	var haveFree bool
	if len(todo) > 0 {
		if probed, err := fsutil.FreeSpace(s.installer.RootDir()); err == nil {
			free, haveFree = probed, true
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.finalized {
		// Cancelled (or shut down) while the validation pass ran.
		if s.closed {
			return "", errors.ErrSchedulerClosed
		}
		return job.ID, nil
	}
	if s.closed {
		s.finalizeLocked(e, model.JobCancelled, "scheduler shutting down")
		return "", errors.ErrSchedulerClosed
	}

	// Free space must cover this job on top of what every other live job
	// still intends to write, with headroom matching the size tolerance.
	if haveFree && float64(free) < float64(needed+s.reserved)*(1+s.opts.SpaceHeadroom) {
		s.withdrawLocked(e)
		return "", errors.Wrapf(errors.ErrInsufficientSpace,
			"preset %s needs %d bytes, %d available, %d reserved by running jobs",
			presetID, needed, free, s.reserved)
	}

	e.pending = todo
	e.remaining = len(todo)
	e.reserved = needed
	s.reserved += needed

	if e.remaining == 0 {
		s.finalizeLocked(e, model.JobCompleted, "all files already installed and valid")
		return job.ID, nil
	}

	job.Lock()
	if job.Status != model.JobPaused {
		job.Status = model.JobQueued
	}
	job.StartedAt = time.Now().UTC()
	job.Unlock()

	if s.opts.JobTimeout > 0 {
		jobID := job.ID
		e.timeout = time.AfterFunc(s.opts.JobTimeout, func() {
			s.cancelWithReason(jobID, "job timeout exceeded")
		})
	}

	s.cond.Broadcast()
	logger.Info("install queued", logger.Fields{
		"job":    job.ID,
		"preset": presetID,
		"files":  len(todo),
		"bytes":  needed,
	})
	go s.publishJob(e, false)
	return job.ID, nil
}

// withdrawLocked removes a provisional entry rejected at admission, as if the
// install was never requested. Caller holds s.mu.
func (s *Scheduler) withdrawLocked(e *jobEntry) {
	delete(s.jobs, e.job.ID)
	delete(s.byPreset, e.job.PresetID)
	for i, id := range s.ring {
		if id == e.job.ID {
			s.ring = append(s.ring[:i], s.ring[i+1:]...)
			break
		}
	}
	if len(s.ring) > 0 {
		s.rrNext %= len(s.ring)
	} else {
		s.rrNext = 0
	}
	e.release()
}

// Pause sets the job's cooperative pause flag. In-flight chunks complete,
// then the workers park without discarding partial files.
func (s *Scheduler) Pause(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return errors.Wrap(errors.ErrJobNotFound, jobID)
	}
	if status := jobStatus(e.job); status.Terminal() {
		return errors.Wrap(errors.ErrJobTerminal, jobID)
	}
	e.ctl.Pause()
	setJobStatus(e.job, model.JobPaused, "")
	go s.publishJob(e, false)
	return nil
}

// Resume clears the pause flag and re-admits the job's remaining files.
func (s *Scheduler) Resume(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return errors.Wrap(errors.ErrJobNotFound, jobID)
	}
	if status := jobStatus(e.job); status.Terminal() {
		return errors.Wrap(errors.ErrJobTerminal, jobID)
	}
	e.ctl.Unpause()
	setJobStatus(e.job, model.JobDownloading, "")
	s.cond.Broadcast()
	go s.publishJob(e, false)
	return nil
}

// Cancel marks the job cancelled. Workers stop at the next chunk boundary;
// temp files of unfinished files are removed. Files already committed stay
// installed.
func (s *Scheduler) Cancel(jobID string) error {
	return s.cancelWithReason(jobID, "cancelled by request")
}

func (s *Scheduler) cancelWithReason(jobID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[jobID]
	if !ok {
		return errors.Wrap(errors.ErrJobNotFound, jobID)
	}
	if status := jobStatus(e.job); status.Terminal() {
		return errors.Wrap(errors.ErrJobTerminal, jobID)
	}
	e.ctl.Cancel()
	e.ctl.Unpause() // a paused job must still observe the cancel
	e.pending = nil
	e.cancelReason = reason
	e.failure = nil
	if e.active == 0 {
		s.finalizeLocked(e, model.JobCancelled, reason)
	} else {
		// Workers still running; the last one to park finalizes.
		setJobStatus(e.job, model.JobCancelled, reason)
	}
	s.cond.Broadcast()
	return nil
}

// Status returns a snapshot of the job.
func (s *Scheduler) Status(jobID string) (model.Job, error) {
	s.mu.Lock()
	e, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return model.Job{}, errors.Wrap(errors.ErrJobNotFound, jobID)
	}
	return e.job.Snapshot(), nil
}

// Jobs returns snapshots of all known jobs, oldest first.
func (s *Scheduler) Jobs() []model.Job {
	s.mu.Lock()
	entries := make([]*jobEntry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]model.Job, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.job.Snapshot())
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

// Close stops the scheduler. Live jobs are cancelled cooperatively.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, e := range s.jobs {
		if jobStatus(e.job).Terminal() {
			continue
		}
		e.cancelReason = "scheduler shutting down"
		e.ctl.Cancel()
		e.ctl.Unpause()
		e.pending = nil
		// Paused or still-queued entries have no worker to observe the
		// cancel flag; finalize them here so their preset locks release
		// and their terminal events go out.
		if e.active == 0 {
			s.finalizeLocked(e, model.JobCancelled, e.cancelReason)
		}
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// dispatch is the admission loop: it hands pending files to workers while
// respecting the pool bound, walking the job ring round-robin so concurrent
// jobs share the pool fairly.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		var e *jobEntry
		for !s.closed {
			if s.activeLocked() < s.opts.MaxConcurrent {
				if e = s.nextLocked(); e != nil {
					break
				}
			}
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		idx := e.pending[0]
		e.pending = e.pending[1:]
		e.active++
		if jobStatus(e.job) == model.JobQueued {
			setJobStatus(e.job, model.JobDownloading, "")
		}
		s.mu.Unlock()

		s.wg.Add(1)
		go func(e *jobEntry, idx int) {
			defer s.wg.Done()
			s.runFile(e, idx)
		}(e, idx)
	}
}

func (s *Scheduler) activeLocked() int {
	n := 0
	for _, e := range s.jobs {
		n += e.active
	}
	return n
}

// nextLocked returns the next dispatchable job in round-robin order, or nil.
func (s *Scheduler) nextLocked() *jobEntry {
	for i := 0; i < len(s.ring); i++ {
		id := s.ring[(s.rrNext+i)%len(s.ring)]
		e, ok := s.jobs[id]
		if !ok {
			continue
		}
		if len(e.pending) == 0 || e.ctl.Paused() || e.ctl.Cancelled() {
			continue
		}
		s.rrNext = (s.rrNext + i + 1) % len(s.ring)
		return e
	}
	return nil
}

// runFile executes one file transfer and folds its outcome back into the
// job's bookkeeping.
func (s *Scheduler) runFile(e *jobEntry, idx int) {
	spec := fileAt(e.job, idx)
	tempPath := s.installer.TempPath(e.job.PresetID, spec)

	outcome, err := s.worker.Run(s.ctx, e.job, idx, tempPath, e.ctl)

	if outcome == transfer.OutcomeCompleted {
		target := s.installer.TargetPath(spec)
		if cerr := s.installer.CommitFile(tempPath, target); cerr != nil {
			outcome = transfer.OutcomeFailed
			err = cerr
			e.job.Lock()
			e.job.Files[idx].Status = model.FileFailed
			e.job.Files[idx].LastError = cerr.Error()
			e.job.Unlock()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e.active--

	switch outcome {
	case transfer.OutcomeCompleted:
		e.remaining--
		s.releaseReservationLocked(e, spec.Size)
		logger.Info("file installed", logger.Fields{
			"job":  e.job.ID,
			"file": spec.Path,
		})
		go s.publishFile(e, idx, true)
		if e.active == 0 && len(e.pending) == 0 {
			if e.remaining == 0 {
				s.finalizeLocked(e, model.JobCompleted, "all files installed")
			} else if e.ctl.Cancelled() {
				// This worker finished its file mid-cancel; the rest stop.
				s.finalizeLocked(e, model.JobCancelled, e.reasonLocked())
			}
		}

	case transfer.OutcomePaused:
		// Put the file back at the head of the queue for resume.
		e.pending = append([]int{idx}, e.pending...)
		if e.active == 0 && e.ctl.Cancelled() {
			s.finalizeLocked(e, model.JobCancelled, e.reasonLocked())
		}

	case transfer.OutcomeCancelled:
		if e.active == 0 {
			status, reason := model.JobCancelled, e.reasonLocked()
			if e.failure != nil {
				status, reason = model.JobFailed, e.failure.Error()
			}
			s.finalizeLocked(e, status, reason)
		}

	case transfer.OutcomeFailed:
		failure := errors.Wrapf(err, "file %s (%s error)", spec.Path, errors.Classify(err))
		logger.Error("file failed", logger.Fields{
			"job":   e.job.ID,
			"file":  spec.Path,
			"class": errors.Classify(err).String(),
			"error": err.Error(),
		})
		// One terminal file failure fails the whole job: stop the rest,
		// keep what already committed.
		if e.failure == nil {
			e.failure = failure
		}
		e.pending = nil
		e.ctl.Cancel()
		go s.publishFile(e, idx, true)
		if e.active == 0 {
			s.finalizeLocked(e, model.JobFailed, e.failure.Error())
		}
	}
	s.cond.Broadcast()
}

// releaseReservationLocked returns bytes the job no longer intends to write
// to the shared free-space reservation. Caller holds s.mu.
func (s *Scheduler) releaseReservationLocked(e *jobEntry, n int64) {
	if n > e.reserved {
		n = e.reserved
	}
	e.reserved -= n
	s.reserved -= n
}

// reasonLocked returns the recorded cancel reason. Caller holds s.mu.
func (e *jobEntry) reasonLocked() string {
	if e.cancelReason != "" {
		return e.cancelReason
	}
	return "cancelled by request"
}

// finalizeLocked moves the job to a terminal state, cleans up, releases the
// preset lock and publishes the terminal event. Caller holds s.mu.
func (s *Scheduler) finalizeLocked(e *jobEntry, status model.JobStatus, reason string) {
	if e.finalized {
		return
	}
	e.finalized = true
	setJobStatus(e.job, status, reason)
	e.job.Lock()
	e.job.CompletedAt = time.Now().UTC()
	for i := range e.job.Files {
		if !e.job.Files[i].Status.Terminal() {
			switch status {
			case model.JobCancelled:
				e.job.Files[i].Status = model.FileCancelled
			case model.JobFailed:
				e.job.Files[i].Status = model.FileCancelled
			}
		}
	}
	e.job.Unlock()

	if e.timeout != nil {
		e.timeout.Stop()
	}
	s.releaseReservationLocked(e, e.reserved)
	switch status {
	case model.JobCancelled, model.JobCompleted:
		// Cancelled: drop partials. Completed: every .part was renamed into
		// the tree, only the empty namespace directory is left to remove.
		// Failed jobs keep their partials so a reinstall resumes them.
		s.installer.CleanTemp(e.job.PresetID)
	}
	delete(s.byPreset, e.job.PresetID)
	e.release()

	logger.Info("job finished", logger.Fields{
		"job":    e.job.ID,
		"preset": e.job.PresetID,
		"status": string(status),
		"reason": reason,
	})
	go s.publishJob(e, true)
}

// publishLoop emits time-bounded progress events for files actively
// downloading, one per file per tick.
func (s *Scheduler) publishLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.PublishInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		entries := make([]*jobEntry, 0, len(s.byPreset))
		for _, e := range s.byPreset {
			entries = append(entries, e)
		}
		s.mu.Unlock()

		for _, e := range entries {
			snap := e.job.Snapshot()
			for i := range snap.Files {
				if snap.Files[i].Status == model.FileDownloading {
					s.publishFileSnapshot(snap, i, false)
				}
			}
		}
	}
}

// janitor sweeps terminal jobs out of the registry after the retention
// window so Status keeps answering briefly after completion.
func (s *Scheduler) janitor() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-s.opts.JobRetention)
		s.mu.Lock()
		for id, e := range s.jobs {
			snap := e.job.Snapshot()
			if snap.Status.Terminal() && !snap.CompletedAt.IsZero() && snap.CompletedAt.Before(cutoff) {
				delete(s.jobs, id)
			}
		}
		// Compact the ring to the surviving jobs.
		ring := s.ring[:0]
		for _, id := range s.ring {
			if _, ok := s.jobs[id]; ok {
				ring = append(ring, id)
			}
		}
		s.ring = ring
		if len(s.ring) > 0 {
			s.rrNext %= len(s.ring)
		} else {
			s.rrNext = 0
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) publishJob(e *jobEntry, terminal bool) {
	snap := e.job.Snapshot()
	done, total := snap.Progress()
	ev := model.ProgressEvent{
		JobID:      snap.ID,
		PresetID:   snap.PresetID,
		BytesDone:  done,
		BytesTotal: total,
		Status:     snap.Status,
		Reason:     snap.Reason,
		Terminal:   terminal,
	}
	if total > 0 {
		ev.Percent = float64(done) / float64(total) * 100
		ev.OverallPercent = ev.Percent
	} else {
		ev.Percent = 100
		ev.OverallPercent = 100
	}
	s.bus.Publish(ev)
}

func (s *Scheduler) publishFile(e *jobEntry, idx int, terminal bool) {
	s.publishFileSnapshot(e.job.Snapshot(), idx, terminal)
}

func (s *Scheduler) publishFileSnapshot(snap model.Job, idx int, terminal bool) {
	f := snap.Files[idx]
	done, total := snap.Progress()
	ev := model.ProgressEvent{
		JobID:      snap.ID,
		PresetID:   snap.PresetID,
		File:       f.Spec.Path,
		BytesDone:  f.BytesDone,
		BytesTotal: f.BytesTotal,
		SpeedBps:   f.RateEMA,
		ETASeconds: f.ETASeconds(),
		Status:     snap.Status,
		FileStatus: f.Status,
		Terminal:   terminal,
	}
	if f.BytesTotal > 0 {
		ev.Percent = float64(f.BytesDone) / float64(f.BytesTotal) * 100
	}
	if f.Status.Done() {
		ev.Percent = 100
		ev.BytesDone = f.BytesTotal
	}
	if total > 0 {
		ev.OverallPercent = float64(done) / float64(total) * 100
	}
	s.bus.Publish(ev)
}

func fileAt(job *model.LiveJob, idx int) model.FileSpec {
	job.Lock()
	defer job.Unlock()
	return job.Files[idx].Spec
}

func jobStatus(job *model.LiveJob) model.JobStatus {
	job.Lock()
	defer job.Unlock()
	return job.Status
}

func setJobStatus(job *model.LiveJob, status model.JobStatus, reason string) {
	job.Lock()
	job.Status = status
	if reason != "" {
		job.Reason = reason
	}
	job.Unlock()
}
