package convert

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sticker-press/internal/resultcache"
	"sticker-press/internal/sticker"
	"sticker-press/internal/urlstore"
)

var webpOutput = []byte("RIFF\x24\x00\x00\x00WEBPVP8 fake-encoded-payload")

// fakeEngine produces fakeSessions and counts how often it is loaded, so
// tests can prove the engine was or was not exercised.
type fakeEngine struct {
	mu       sync.Mutex
	loads    int
	loadErr  error
	runErr   error
	progress []float64
	output   []byte

	// blockOnCtx makes Run wait for cancellation instead of finishing.
	blockOnCtx bool
	// release, when set, holds Run back until the channel is closed.
	release chan struct{}
	started chan struct{}
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		progress: []float64{25, 75, 100},
		output:   webpOutput,
		started:  make(chan struct{}, 8),
	}
}

func (e *fakeEngine) Load(_ context.Context) (Session, error) {
	e.mu.Lock()
	e.loads++
	err := e.loadErr
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakeSession{engine: e}, nil
}

func (e *fakeEngine) loadCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loads
}

func (e *fakeEngine) setRunErr(err error) {
	e.mu.Lock()
	e.runErr = err
	e.mu.Unlock()
}

type fakeSession struct {
	engine *fakeEngine
}

func (s *fakeSession) WriteInput(_ string, r io.Reader) (int64, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errors.New("input file is empty")
	}
	return n, nil
}

func (s *fakeSession) Probe(_ context.Context, _ string) (sticker.ClipInfo, error) {
	return sticker.ClipInfo{Duration: 2 * time.Second, Width: 640, Height: 480}, nil
}

func (s *fakeSession) Run(ctx context.Context, _ []string, onProgress func(float64)) error {
	e := s.engine
	select {
	case e.started <- struct{}{}:
	default:
	}

	if e.blockOnCtx {
		<-ctx.Done()
		return ctx.Err()
	}

	if e.release != nil {
		select {
		case <-e.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	runErr := e.runErr
	progress := e.progress
	e.mu.Unlock()

	for _, p := range progress {
		if onProgress != nil {
			onProgress(p)
		}
	}
	return runErr
}

func (s *fakeSession) ReadOutput(_ string) ([]byte, error) {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	return s.engine.output, nil
}

func (s *fakeSession) DeleteFile(_ string) {}
func (s *fakeSession) Close()              {}

type fakeGate struct{ paused bool }

func (g fakeGate) IsPaused() bool { return g.paused }

type harness struct {
	ctrl   *Controller
	cache  *resultcache.Cache
	urls   *urlstore.Store
	engine *fakeEngine
	snaps  chan Snapshot
}

func newHarness(t *testing.T, engine *fakeEngine, opts Options) *harness {
	t.Helper()

	urls := urlstore.New()
	cache, err := resultcache.New(resultcache.DefaultConfig(), urls)
	if err != nil {
		t.Fatalf("Expected cache creation to succeed, got %v", err)
	}

	if opts.Workers == 0 {
		opts.Workers = 2
	}
	if opts.ConvertTimeout == 0 {
		opts.ConvertTimeout = 10 * time.Second
	}

	ctrl := New(engine, cache, urls, opts)

	snaps := make(chan Snapshot, 128)
	ctrl.Subscribe(func(s Snapshot) { snaps <- s })

	t.Cleanup(func() {
		ctrl.Stop()
		cache.Close()
	})

	return &harness{ctrl: ctrl, cache: cache, urls: urls, engine: engine, snaps: snaps}
}

func (h *harness) waitState(t *testing.T, id string, state State) Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if s, ok := h.ctrl.Get(id); ok && s.State == state {
			return s
		}
		select {
		case s := <-h.snaps:
			if s.ID == id && s.State == state {
				return s
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for job %s to reach state %s", id, state)
		}
	}
}

func tempSource(t *testing.T, name string) Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	data := []byte("fake video payload")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Expected temp source write to succeed, got %v", err)
	}
	return Source{
		Name:         name,
		Size:         int64(len(data)),
		LastModified: 1700000000000,
		MimeType:     "video/mp4",
		Path:         path,
	}
}

func TestConvertSuccess(t *testing.T) {
	engine := newFakeEngine()
	h := newHarness(t, engine, Options{})

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	if snap.State != StateIdle {
		t.Errorf("Expected initial state idle, got %s", snap.State)
	}
	if snap.SourceName != "clip.mp4" {
		t.Errorf("Expected source name in snapshot, got %q", snap.SourceName)
	}

	final := h.waitState(t, snap.ID, StateSucceeded)

	if final.Progress != 100 {
		t.Errorf("Expected final progress 100, got %d", final.Progress)
	}
	if final.DownloadURL == "" {
		t.Error("Expected a download URL on success")
	}
	if final.SuggestedFilename == "" {
		t.Error("Expected a suggested filename on success")
	}

	if h.urls.Len() != 1 {
		t.Errorf("Expected 1 live download URL, got %d", h.urls.Len())
	}
	if !h.cache.Contains(CacheKey("clip.mp4", 18, 1700000000000)) {
		t.Error("Expected the result to be cached under the source identity")
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	engine := newFakeEngine()
	engine.progress = []float64{5, 3, 50, 40, 100}
	h := newHarness(t, engine, Options{})

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))

	var seen []int
	deadline := time.After(5 * time.Second)
	for {
		var s Snapshot
		select {
		case s = <-h.snaps:
		case <-deadline:
			t.Fatal("Timed out waiting for conversion to finish")
		}
		if s.ID != snap.ID {
			continue
		}
		seen = append(seen, s.Progress)
		if s.State == StateSucceeded {
			break
		}
	}

	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("Expected monotonic progress, got %v", seen)
		}
	}
	if seen[len(seen)-1] != 100 {
		t.Errorf("Expected progress to end at 100, got %v", seen)
	}

	// The backward reports (3 after 5, 40 after 50) must not surface.
	for _, p := range seen {
		if p == 3 || p == 40 {
			t.Errorf("Expected stale progress values to be suppressed, got %v", seen)
		}
	}
}

func TestCacheHitSkipsEngine(t *testing.T) {
	engine := newFakeEngine()
	h := newHarness(t, engine, Options{})

	first := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	firstDone := h.waitState(t, first.ID, StateSucceeded)

	if engine.loadCount() != 1 {
		t.Fatalf("Expected exactly 1 engine load, got %d", engine.loadCount())
	}

	// Same identity, different upload path: must be served from cache.
	second := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	secondDone := h.waitState(t, second.ID, StateSucceeded)

	if engine.loadCount() != 1 {
		t.Errorf("Expected cache hit to skip the engine, got %d loads", engine.loadCount())
	}
	if secondDone.DownloadURL != firstDone.DownloadURL {
		t.Errorf("Expected cached jobs to share a download URL, got %q and %q",
			firstDone.DownloadURL, secondDone.DownloadURL)
	}
	if h.urls.Len() != 1 {
		t.Errorf("Expected a single live download URL, got %d", h.urls.Len())
	}
}

func TestSharedConversionForwardsProgress(t *testing.T) {
	engine := newFakeEngine()
	engine.release = make(chan struct{})
	engine.progress = []float64{30, 60, 100}
	h := newHarness(t, engine, Options{Workers: 2})

	leader := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	h.waitState(t, leader.ID, StateRunning)

	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the engine run to start")
	}

	// Same identity while the first run is held back: joins the in-flight
	// conversion instead of starting another.
	follower := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	h.waitState(t, follower.ID, StateRunning)
	time.Sleep(100 * time.Millisecond)

	close(engine.release)

	var followerProgress []int
	var leaderDone, followerDone Snapshot
	deadline := time.After(5 * time.Second)
	for leaderDone.State != StateSucceeded || followerDone.State != StateSucceeded {
		var s Snapshot
		select {
		case s = <-h.snaps:
		case <-deadline:
			t.Fatal("Timed out waiting for the shared conversion to finish")
		}
		switch s.ID {
		case follower.ID:
			followerProgress = append(followerProgress, s.Progress)
			if s.State == StateSucceeded {
				followerDone = s
			}
		case leader.ID:
			if s.State == StateSucceeded {
				leaderDone = s
			}
		}
	}

	if engine.loadCount() != 1 {
		t.Errorf("Expected one shared engine run, got %d loads", engine.loadCount())
	}

	intermediate := false
	for _, p := range followerProgress {
		if p > 0 && p < 100 {
			intermediate = true
		}
	}
	if !intermediate {
		t.Errorf("Expected the follower to see the shared run's progress, got %v", followerProgress)
	}

	if leaderDone.DownloadURL == "" || followerDone.DownloadURL != leaderDone.DownloadURL {
		t.Errorf("Expected both jobs to share one download URL, got %q and %q",
			leaderDone.DownloadURL, followerDone.DownloadURL)
	}
	if h.urls.Len() != 1 {
		t.Errorf("Expected one live download URL for the shared result, got %d", h.urls.Len())
	}
}

func TestFailureClassification(t *testing.T) {
	engine := newFakeEngine()
	engine.setRunErr(errors.New("ffmpeg failed: moov atom not found"))
	h := newHarness(t, engine, Options{})

	snap := h.ctrl.StartJob(tempSource(t, "broken.mp4"))
	failed := h.waitState(t, snap.ID, StateFailed)

	if failed.Category != CategoryUnsupportedFormat {
		t.Errorf("Expected category unsupported_format, got %s", failed.Category)
	}
	if failed.Error == "" {
		t.Error("Expected a user-facing error message")
	}
	if failed.Troubleshooting == "" {
		t.Error("Expected a troubleshooting hint")
	}
	if failed.Retryable {
		t.Error("Expected unsupported format to be non-retryable")
	}
	if h.urls.Len() != 0 {
		t.Errorf("Expected no download URLs after failure, got %d", h.urls.Len())
	}
}

func TestNonWebPOutputFails(t *testing.T) {
	engine := newFakeEngine()
	engine.output = []byte("definitely not webp")
	h := newHarness(t, engine, Options{})

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	failed := h.waitState(t, snap.ID, StateFailed)

	if failed.Category != CategoryProcessingFailed {
		t.Errorf("Expected category processing_failed, got %s", failed.Category)
	}
}

func TestCancelWinsRace(t *testing.T) {
	engine := newFakeEngine()
	engine.blockOnCtx = true
	h := newHarness(t, engine, Options{})

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	h.waitState(t, snap.ID, StateRunning)

	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the engine run to start")
	}

	if err := h.ctrl.Cancel(snap.ID); err != nil {
		t.Fatalf("Expected cancel to succeed, got %v", err)
	}

	cancelled := h.waitState(t, snap.ID, StateCancelled)
	if cancelled.Category != CategoryCancelled {
		t.Errorf("Expected category cancelled, got %s", cancelled.Category)
	}

	// The late-finishing attempt must not resurrect the job.
	time.Sleep(100 * time.Millisecond)
	current, ok := h.ctrl.Get(snap.ID)
	if !ok {
		t.Fatal("Expected job to still be tracked")
	}
	if current.State != StateCancelled {
		t.Errorf("Expected job to stay cancelled, got %s", current.State)
	}
	if h.urls.Len() != 0 {
		t.Errorf("Expected no download URLs after cancellation, got %d", h.urls.Len())
	}
}

func TestCancelRequiresRunningJob(t *testing.T) {
	engine := newFakeEngine()
	h := newHarness(t, engine, Options{})

	if err := h.ctrl.Cancel("no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	h.waitState(t, snap.ID, StateSucceeded)

	if err := h.ctrl.Cancel(snap.ID); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Expected ErrNotRunning for finished job, got %v", err)
	}
}

func TestRetryAfterFailure(t *testing.T) {
	engine := newFakeEngine()
	engine.setRunErr(errors.New("ffmpeg failed: conversion error"))
	h := newHarness(t, engine, Options{})

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	failed := h.waitState(t, snap.ID, StateFailed)
	if !failed.Retryable {
		t.Error("Expected generic processing failure to be retryable")
	}

	engine.setRunErr(nil)
	if err := h.ctrl.Retry(snap.ID); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}

	done := h.waitState(t, snap.ID, StateSucceeded)
	if done.DownloadURL == "" {
		t.Error("Expected a download URL after a successful retry")
	}
	if done.Error != "" {
		t.Errorf("Expected the failure to be cleared, got %q", done.Error)
	}
}

func TestRetryUnknownAndRunningJobs(t *testing.T) {
	engine := newFakeEngine()
	engine.blockOnCtx = true
	h := newHarness(t, engine, Options{})

	if err := h.ctrl.Retry("no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	h.waitState(t, snap.ID, StateRunning)

	if err := h.ctrl.Retry(snap.ID); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}
}

func TestResetRevokesURL(t *testing.T) {
	engine := newFakeEngine()
	h := newHarness(t, engine, Options{})

	src := tempSource(t, "clip.mp4")
	snap := h.ctrl.StartJob(src)
	done := h.waitState(t, snap.ID, StateSucceeded)
	if done.DownloadURL == "" {
		t.Fatal("Expected a download URL before reset")
	}

	if err := h.ctrl.Reset(snap.ID); err != nil {
		t.Fatalf("Expected reset to succeed, got %v", err)
	}

	idle := h.waitState(t, snap.ID, StateIdle)
	if idle.Progress != 0 {
		t.Errorf("Expected progress reset to 0, got %d", idle.Progress)
	}
	if idle.DownloadURL != "" {
		t.Error("Expected download URL cleared after reset")
	}

	if h.urls.Len() != 0 {
		t.Errorf("Expected the URL to be revoked exactly once, got %d live", h.urls.Len())
	}
	if h.cache.Contains(src.CacheKey()) {
		t.Error("Expected the cached entry to be dropped with its URL")
	}
}

func TestMemoryGateRefusesNewWork(t *testing.T) {
	engine := newFakeEngine()
	h := newHarness(t, engine, Options{Gate: fakeGate{paused: true}})

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	failed := h.waitState(t, snap.ID, StateFailed)

	if failed.Category != CategoryMemoryLimitExceeded {
		t.Errorf("Expected category memory_limit_exceeded, got %s", failed.Category)
	}
	if engine.loadCount() != 0 {
		t.Errorf("Expected the engine to stay untouched under memory pressure, got %d loads", engine.loadCount())
	}
}

func TestEngineUnavailable(t *testing.T) {
	engine := newFakeEngine()
	engine.loadErr = errors.New("transcoder unavailable: ffmpeg not found in PATH")
	h := newHarness(t, engine, Options{})

	snap := h.ctrl.StartJob(tempSource(t, "clip.mp4"))
	failed := h.waitState(t, snap.ID, StateFailed)

	if failed.Category != CategoryTranscoderUnavailable {
		t.Errorf("Expected category transcoder_unavailable, got %s", failed.Category)
	}
	if failed.Retryable {
		t.Error("Expected an unavailable engine to be non-retryable")
	}
}

func TestListAndGet(t *testing.T) {
	engine := newFakeEngine()
	h := newHarness(t, engine, Options{})

	if _, ok := h.ctrl.Get("absent"); ok {
		t.Error("Expected Get to miss for unknown jobs")
	}

	a := h.ctrl.StartJob(tempSource(t, "a.mp4"))
	b := h.ctrl.StartJob(tempSource(t, "b.mp4"))
	h.waitState(t, a.ID, StateSucceeded)
	h.waitState(t, b.ID, StateSucceeded)

	jobs := h.ctrl.List()
	if len(jobs) != 2 {
		t.Fatalf("Expected 2 tracked jobs, got %d", len(jobs))
	}
	if h.ctrl.TrackedJobs() != 2 {
		t.Errorf("Expected TrackedJobs=2, got %d", h.ctrl.TrackedJobs())
	}

	if _, ok := h.ctrl.Get(a.ID); !ok {
		t.Error("Expected Get to find a tracked job")
	}
}
