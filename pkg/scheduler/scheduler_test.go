package scheduler

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelfetch-dev/modelfetch/pkg/errors"
	"github.com/modelfetch-dev/modelfetch/pkg/fsutil"
	"github.com/modelfetch-dev/modelfetch/pkg/install"
	"github.com/modelfetch-dev/modelfetch/pkg/model"
	"github.com/modelfetch-dev/modelfetch/pkg/progress"
	"github.com/modelfetch-dev/modelfetch/pkg/validate"
)

type stubCatalog map[string]model.PresetSpec

func (c stubCatalog) Get(presetID string) (model.PresetSpec, error) {
	preset, ok := c[presetID]
	if !ok {
		return model.PresetSpec{}, errors.Wrap(errors.ErrUnknownPreset, presetID)
	}
	return preset, nil
}

// fileServer serves fixed payloads in 1KiB slices and honors byte-range
// resume. It records request counts and starting offsets per path.
type fileServer struct {
	mu      sync.Mutex
	files   map[string][]byte
	fail    map[string]int // HTTP status forced for a path
	wait    map[string]time.Duration
	delay   time.Duration // per-slice pacing
	calls   map[string]int
	offsets map[string][]int64
}

func newFileServer() *fileServer {
	return &fileServer{
		files:   make(map[string][]byte),
		fail:    make(map[string]int),
		wait:    make(map[string]time.Duration),
		calls:   make(map[string]int),
		offsets: make(map[string][]int64),
	}
}

func (fs *fileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var offset int64
	if rng := r.Header.Get("Range"); rng != "" {
		fmt.Sscanf(rng, "bytes=%d-", &offset)
	}
	fs.mu.Lock()
	body, ok := fs.files[r.URL.Path]
	status := fs.fail[r.URL.Path]
	wait := fs.wait[r.URL.Path]
	fs.calls[r.URL.Path]++
	fs.offsets[r.URL.Path] = append(fs.offsets[r.URL.Path], offset)
	fs.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	if offset > 0 && offset <= int64(len(body)) {
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, len(body)-1, len(body)))
		w.WriteHeader(http.StatusPartialContent)
		body = body[offset:]
	}

	flusher, _ := w.(http.Flusher)
	for len(body) > 0 {
		n := 1024
		if n > len(body) {
			n = len(body)
		}
		if _, err := w.Write(body[:n]); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		body = body[n:]
		if fs.delay > 0 {
			time.Sleep(fs.delay)
		}
		if r.Context().Err() != nil {
			return
		}
	}
}

func (fs *fileServer) callCount(path string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.calls[path]
}

func (fs *fileServer) requestOffsets(path string) []int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]int64, len(fs.offsets[path]))
	copy(out, fs.offsets[path])
	return out
}

type testEnv struct {
	modelDir  string
	server    *fileServer
	url       string
	catalog   stubCatalog
	installer *install.Manager
	bus       *progress.Bus
	sched     *Scheduler
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	modelDir := t.TempDir()
	fs := newFileServer()
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	installer := install.NewManager(modelDir, filepath.Join(modelDir, ".tmp"))
	bus := progress.NewBus()
	t.Cleanup(bus.Close)

	if opts.ChunkSize == 0 {
		opts.ChunkSize = 1024
	}
	if opts.PublishInterval == 0 {
		opts.PublishInterval = 20 * time.Millisecond
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 2 * time.Second
	}

	env := &testEnv{
		modelDir:  modelDir,
		server:    fs,
		url:       srv.URL,
		catalog:   stubCatalog{},
		installer: installer,
		bus:       bus,
	}
	env.sched = New(env.catalog, validate.New(modelDir), installer, bus, opts)
	t.Cleanup(env.sched.Close)
	return env
}

// addFile registers content on the server and returns a FileSpec for it.
func (env *testEnv) addFile(path string, size int) model.FileSpec {
	body := make([]byte, size)
	rand.Read(body)
	env.server.mu.Lock()
	env.server.files["/"+path] = body
	env.server.mu.Unlock()
	sum := sha256.Sum256(body)
	return model.FileSpec{
		URL:      env.url + "/" + path,
		Path:     path,
		Size:     int64(size),
		Checksum: hex.EncodeToString(sum[:]),
		Tier:     model.TierForCategory(filepath.Dir(path)),
	}
}

func (env *testEnv) addPreset(id string, files ...model.FileSpec) {
	env.catalog[id] = model.PresetSpec{ID: id, Name: id, Files: files}
}

func (env *testEnv) waitStatus(t *testing.T, jobID string, want model.JobStatus) model.Job {
	t.Helper()
	var snap model.Job
	require.Eventually(t, func() bool {
		var err error
		snap, err = env.sched.Status(jobID)
		return err == nil && snap.Status == want
	}, 10*time.Second, 5*time.Millisecond, "job never reached %s (last: %+v)", want, snap)
	return snap
}

func TestInstall_DownloadsAndCommits(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 2})
	env.addPreset("sd15",
		env.addFile("unet/model.bin", 5000),
		env.addFile("vae/decoder.bin", 1500),
	)

	jobID, err := env.sched.Install(context.Background(), "sd15")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	snap := env.waitStatus(t, jobID, model.JobCompleted)
	for _, f := range snap.Files {
		assert.Equal(t, model.FileCompleted, f.Status, f.Spec.Path)

		target := filepath.Join(env.modelDir, f.Spec.Path)
		info, err := os.Stat(target)
		require.NoError(t, err, f.Spec.Path)
		assert.Equal(t, f.Spec.Size, info.Size())
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	}

	// Temp namespace must not linger after a clean install.
	_, err = os.Stat(filepath.Join(env.modelDir, ".tmp", "sd15"))
	assert.True(t, os.IsNotExist(err))
}

func TestInstall_UnknownPreset(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})

	_, err := env.sched.Install(context.Background(), "nope")
	require.ErrorIs(t, err, errors.ErrUnknownPreset)
	assert.Empty(t, env.sched.Jobs())
}

func TestInstall_SecondCallJoinsExistingJob(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	env.server.delay = 20 * time.Millisecond
	env.addPreset("slow", env.addFile("unet/big.bin", 8192))

	first, err := env.sched.Install(context.Background(), "slow")
	require.NoError(t, err)

	second, err := env.sched.Install(context.Background(), "slow")
	require.ErrorIs(t, err, errors.ErrAlreadyInProgress)
	assert.Equal(t, first, second)
	assert.Len(t, env.sched.Jobs(), 1)

	env.waitStatus(t, first, model.JobCompleted)
}

func TestInstall_SkipsValidFiles(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 2})
	kept := env.addFile("clip/encoder.bin", 2000)
	fresh := env.addFile("unet/model.bin", 3000)
	env.addPreset("mixed", kept, fresh)

	// Pre-install the first file with the exact bytes the catalog expects.
	env.server.mu.Lock()
	body := env.server.files["/clip/encoder.bin"]
	env.server.mu.Unlock()
	target := filepath.Join(env.modelDir, kept.Path)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, body, 0o644))

	jobID, err := env.sched.Install(context.Background(), "mixed")
	require.NoError(t, err)
	snap := env.waitStatus(t, jobID, model.JobCompleted)

	assert.Equal(t, model.FileSkipped, snap.Files[0].Status)
	assert.Equal(t, model.FileCompleted, snap.Files[1].Status)
	assert.Zero(t, env.server.callCount("/clip/encoder.bin"), "valid file must not be re-fetched")
	assert.Equal(t, 1, env.server.callCount("/unet/model.bin"))
}

func TestInstall_AllFilesAlreadyValid(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	spec := env.addFile("unet/model.bin", 1000)
	env.addPreset("done", spec)

	env.server.mu.Lock()
	body := env.server.files["/unet/model.bin"]
	env.server.mu.Unlock()
	target := filepath.Join(env.modelDir, spec.Path)
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, body, 0o644))

	jobID, err := env.sched.Install(context.Background(), "done")
	require.NoError(t, err)
	snap := env.waitStatus(t, jobID, model.JobCompleted)
	assert.Zero(t, env.server.callCount("/unet/model.bin"))
	assert.Equal(t, model.FileSkipped, snap.Files[0].Status)
}

func TestInstall_InsufficientSpace(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	huge := env.addFile("unet/model.bin", 1000)
	huge.Size = 1 << 60 // far beyond any test filesystem
	env.addPreset("huge", huge)

	_, err := env.sched.Install(context.Background(), "huge")
	require.ErrorIs(t, err, errors.ErrInsufficientSpace)
	assert.Empty(t, env.sched.Jobs())
	assert.False(t, env.installer.Held("huge"), "preset lock must be released on rejection")
}

func TestInstall_ReservesSpaceAcrossJobs(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 2, MaxRetries: 3})
	env.server.delay = 20 * time.Millisecond

	free, err := fsutil.FreeSpace(env.modelDir)
	require.NoError(t, err)

	// Each preset fits on its own but the pair does not.
	first := env.addFile("unet/first.bin", 4096)
	first.Size = int64(free) * 3 / 5
	second := env.addFile("unet/second.bin", 4096)
	second.Size = int64(free) * 3 / 5
	env.addPreset("one", first)
	env.addPreset("two", second)

	idOne, err := env.sched.Install(context.Background(), "one")
	require.NoError(t, err)

	// The first job has written nothing yet, so a bare Statfs probe would
	// still admit the second; its outstanding bytes must be counted.
	_, err = env.sched.Install(context.Background(), "two")
	require.ErrorIs(t, err, errors.ErrInsufficientSpace)
	assert.False(t, env.installer.Held("two"), "rejected preset must not stay locked")

	// Cancelling the first job frees its reservation once its worker parks;
	// the released preset lock marks that point.
	require.NoError(t, env.sched.Cancel(idOne))
	env.waitStatus(t, idOne, model.JobCancelled)
	require.Eventually(t, func() bool {
		return !env.installer.Held("one")
	}, 10*time.Second, 5*time.Millisecond)

	idTwo, err := env.sched.Install(context.Background(), "two")
	require.NoError(t, err)
	require.NoError(t, env.sched.Cancel(idTwo))
}

func TestInstall_ConcurrentCallersGetOneJob(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	env.server.delay = 10 * time.Millisecond
	env.addPreset("slow", env.addFile("unet/big.bin", 8192))

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = env.sched.Install(context.Background(), "slow")
		}(i)
	}
	wg.Wait()

	// Exactly one caller wins; every other joins the same job. None may see
	// ErrPresetBusy, whichever way the races fall.
	winners := 0
	for i := 0; i < callers; i++ {
		if errs[i] == nil {
			winners++
		} else {
			require.ErrorIs(t, errs[i], errors.ErrAlreadyInProgress, "caller %d", i)
		}
		assert.Equal(t, ids[0], ids[i], "caller %d", i)
	}
	require.Equal(t, 1, winners)
	require.Len(t, env.sched.Jobs(), 1)
	env.waitStatus(t, ids[0], model.JobCompleted)
}

func TestPauseResume_ResumesFromOffset(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	env.server.delay = 20 * time.Millisecond
	env.addPreset("slow", env.addFile("unet/big.bin", 8192))

	jobID, err := env.sched.Install(context.Background(), "slow")
	require.NoError(t, err)

	// Let a few chunks land before pausing.
	require.Eventually(t, func() bool {
		snap, err := env.sched.Status(jobID)
		return err == nil && snap.Files[0].BytesDone > 0
	}, 10*time.Second, 5*time.Millisecond)

	require.NoError(t, env.sched.Pause(jobID))
	env.waitStatus(t, jobID, model.JobPaused)

	// The worker must actually park, not just flip the job status.
	require.Eventually(t, func() bool {
		snap, err := env.sched.Status(jobID)
		return err == nil && snap.Files[0].Status == model.FilePaused
	}, 10*time.Second, 5*time.Millisecond)
	paused, err := env.sched.Status(jobID)
	require.NoError(t, err)
	assert.Positive(t, paused.Files[0].BytesDone)
	assert.Less(t, paused.Files[0].BytesDone, int64(8192))

	require.NoError(t, env.sched.Resume(jobID))
	env.waitStatus(t, jobID, model.JobCompleted)

	offsets := env.server.requestOffsets("/unet/big.bin")
	require.GreaterOrEqual(t, len(offsets), 2)
	assert.Zero(t, offsets[0])
	assert.Positive(t, offsets[len(offsets)-1], "resume must request a byte range, not restart")
}

func TestPause_TerminalJob(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	env.addPreset("quick", env.addFile("unet/model.bin", 512))

	jobID, err := env.sched.Install(context.Background(), "quick")
	require.NoError(t, err)
	env.waitStatus(t, jobID, model.JobCompleted)

	require.ErrorIs(t, env.sched.Pause(jobID), errors.ErrJobTerminal)
	require.ErrorIs(t, env.sched.Resume(jobID), errors.ErrJobTerminal)
	require.ErrorIs(t, env.sched.Cancel(jobID), errors.ErrJobTerminal)
	require.ErrorIs(t, env.sched.Pause("missing"), errors.ErrJobNotFound)
}

func TestCancel_KeepsCommittedRemovesTemp(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 2})
	small := env.addFile("vae/small.bin", 600)
	big := env.addFile("unet/big.bin", 16384)
	env.server.mu.Lock()
	env.server.wait["/vae/small.bin"] = 0
	env.server.mu.Unlock()
	env.server.delay = 15 * time.Millisecond
	env.addPreset("mix", small, big)

	jobID, err := env.sched.Install(context.Background(), "mix")
	require.NoError(t, err)

	// Wait until the small file has committed and the big one is mid-flight.
	require.Eventually(t, func() bool {
		snap, err := env.sched.Status(jobID)
		if err != nil {
			return false
		}
		var smallDone, bigStarted bool
		for _, f := range snap.Files {
			if f.Spec.Path == small.Path && f.Status == model.FileCompleted {
				smallDone = true
			}
			if f.Spec.Path == big.Path && f.BytesDone > 0 && !f.Status.Terminal() {
				bigStarted = true
			}
		}
		return smallDone && bigStarted
	}, 10*time.Second, 5*time.Millisecond)

	require.NoError(t, env.sched.Cancel(jobID))
	env.waitStatus(t, jobID, model.JobCancelled)

	// Workers park at the next chunk boundary; wait for the big file to
	// settle before inspecting the tree.
	var snap model.Job
	require.Eventually(t, func() bool {
		var err error
		snap, err = env.sched.Status(jobID)
		if err != nil {
			return false
		}
		for _, f := range snap.Files {
			if f.Spec.Path == big.Path {
				return f.Status == model.FileCancelled
			}
		}
		return false
	}, 10*time.Second, 5*time.Millisecond)

	// Committed file survives the cancel.
	_, err = os.Stat(filepath.Join(env.modelDir, small.Path))
	require.NoError(t, err)
	// The unfinished file never reaches the model dir and its partial is gone.
	_, err = os.Stat(filepath.Join(env.modelDir, big.Path))
	assert.True(t, os.IsNotExist(err))
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(env.modelDir, ".tmp", "mix"))
		return os.IsNotExist(err)
	}, 5*time.Second, 5*time.Millisecond)

	for _, f := range snap.Files {
		if f.Spec.Path == big.Path {
			assert.Equal(t, model.FileCancelled, f.Status)
		}
	}
	assert.False(t, env.installer.Held("mix"), "preset lock must be released")
}

func TestCancel_AllowsReinstall(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	env.server.delay = 20 * time.Millisecond
	env.addPreset("slow", env.addFile("unet/big.bin", 8192))

	first, err := env.sched.Install(context.Background(), "slow")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := env.sched.Status(first)
		return err == nil && snap.Files[0].BytesDone > 0
	}, 10*time.Second, 5*time.Millisecond)
	require.NoError(t, env.sched.Cancel(first))
	env.waitStatus(t, first, model.JobCancelled)

	env.server.delay = 0
	second, err := env.sched.Install(context.Background(), "slow")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	env.waitStatus(t, second, model.JobCompleted)
}

func TestFailure_FailsJobNamingFile(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 2, MaxRetries: 2})
	good := env.addFile("vae/good.bin", 400)
	bad := model.FileSpec{
		URL:  env.url + "/unet/missing.bin",
		Path: "unet/missing.bin",
		Size: 1000,
		Tier: model.TierForCategory("unet"),
	}
	// Delay the failure so the good file commits first.
	env.server.mu.Lock()
	env.server.wait["/unet/missing.bin"] = 150 * time.Millisecond
	env.server.mu.Unlock()
	env.addPreset("broken", good, bad)

	jobID, err := env.sched.Install(context.Background(), "broken")
	require.NoError(t, err)
	snap := env.waitStatus(t, jobID, model.JobFailed)

	assert.Contains(t, snap.Reason, "unet/missing.bin")
	assert.Contains(t, snap.Reason, "config")

	// 404 is not transient: exactly one request, no retries.
	assert.Equal(t, 1, env.server.callCount("/unet/missing.bin"))

	// The file that finished before the failure stays installed.
	_, err = os.Stat(filepath.Join(env.modelDir, good.Path))
	require.NoError(t, err)
}

func TestFailure_TransientRetriesThenSucceeds(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1, MaxRetries: 3})
	spec := env.addFile("unet/model.bin", 900)
	env.server.mu.Lock()
	env.server.fail["/unet/model.bin"] = http.StatusServiceUnavailable
	env.server.mu.Unlock()
	env.addPreset("flaky", spec)

	jobID, err := env.sched.Install(context.Background(), "flaky")
	require.NoError(t, err)

	// Heal the server after the first failed attempt.
	require.Eventually(t, func() bool {
		return env.server.callCount("/unet/model.bin") >= 1
	}, 10*time.Second, 5*time.Millisecond)
	env.server.mu.Lock()
	delete(env.server.fail, "/unet/model.bin")
	env.server.mu.Unlock()

	snap := env.waitStatus(t, jobID, model.JobCompleted)
	assert.GreaterOrEqual(t, snap.Files[0].RetryCount, 1)
	_, err = os.Stat(filepath.Join(env.modelDir, spec.Path))
	require.NoError(t, err)
}

func TestConcurrentJobs_ShareWorkerPool(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 2})
	env.server.delay = 5 * time.Millisecond
	env.addPreset("one", env.addFile("unet/a.bin", 4096))
	env.addPreset("two", env.addFile("unet/b.bin", 4096))

	idOne, err := env.sched.Install(context.Background(), "one")
	require.NoError(t, err)
	idTwo, err := env.sched.Install(context.Background(), "two")
	require.NoError(t, err)

	env.waitStatus(t, idOne, model.JobCompleted)
	env.waitStatus(t, idTwo, model.JobCompleted)

	jobs := env.sched.Jobs()
	require.Len(t, jobs, 2)
	assert.True(t, !jobs[1].CreatedAt.Before(jobs[0].CreatedAt), "Jobs() is oldest first")
}

func TestProgressEvents_TerminalDelivered(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	sub := env.bus.Subscribe(0)
	defer sub.Close()

	env.addPreset("quick", env.addFile("unet/model.bin", 2048))
	jobID, err := env.sched.Install(context.Background(), "quick")
	require.NoError(t, err)

	deadline := time.After(10 * time.Second)
	var terminal model.ProgressEvent
	var sawEvents bool
	for terminal.JobID == "" {
		select {
		case ev, ok := <-sub.C():
			require.True(t, ok, "subscription closed before terminal event")
			if ev.JobID != jobID {
				continue
			}
			sawEvents = true
			if ev.Terminal && ev.File == "" {
				terminal = ev
			}
		case <-deadline:
			t.Fatal("no terminal event")
		}
	}
	assert.True(t, sawEvents)
	assert.Equal(t, model.JobCompleted, terminal.Status)
	assert.InDelta(t, 100.0, terminal.OverallPercent, 0.01)
}

func TestClose_CancelsLiveJobs(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	env.server.delay = 20 * time.Millisecond
	env.addPreset("slow", env.addFile("unet/big.bin", 16384))

	jobID, err := env.sched.Install(context.Background(), "slow")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := env.sched.Status(jobID)
		return err == nil && snap.Files[0].BytesDone > 0
	}, 10*time.Second, 5*time.Millisecond)

	env.sched.Close()

	_, err = env.sched.Install(context.Background(), "slow")
	require.ErrorIs(t, err, errors.ErrSchedulerClosed)
}

func TestClose_FinalizesParkedJobs(t *testing.T) {
	env := newTestEnv(t, Options{MaxConcurrent: 1})
	env.server.delay = 20 * time.Millisecond
	env.addPreset("slow", env.addFile("unet/big.bin", 16384))

	jobID, err := env.sched.Install(context.Background(), "slow")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, err := env.sched.Status(jobID)
		return err == nil && snap.Files[0].BytesDone > 0
	}, 10*time.Second, 5*time.Millisecond)

	// Park the worker so the job has no one left to observe a cancel flag.
	require.NoError(t, env.sched.Pause(jobID))
	require.Eventually(t, func() bool {
		snap, err := env.sched.Status(jobID)
		return err == nil && snap.Files[0].Status == model.FilePaused
	}, 10*time.Second, 5*time.Millisecond)

	env.sched.Close()

	snap, err := env.sched.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCancelled, snap.Status)
	assert.Equal(t, "scheduler shutting down", snap.Reason)
	assert.False(t, env.installer.Held("slow"), "preset lock must release on shutdown")
}
