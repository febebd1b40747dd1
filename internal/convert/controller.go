package convert

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"sticker-press/internal/logging"
	"sticker-press/internal/metrics"
	"sticker-press/internal/resultcache"
	"sticker-press/internal/sticker"
	"sticker-press/internal/urlstore"
)

// Gate lets the controller refuse new conversions under resource pressure.
// Satisfied by memory.Monitor.
type Gate interface {
	IsPaused() bool
}

// Options tunes controller behavior. Zero values fall back to defaults.
type Options struct {
	// Workers bounds concurrent engine runs.
	Workers int

	// ConvertTimeout is the per-attempt deadline.
	ConvertTimeout time.Duration

	// JobTTL is how long a finished job (and its saved upload) is kept for
	// retry before the janitor removes it.
	JobTTL time.Duration

	// JanitorInterval is how often stale jobs are swept.
	JanitorInterval time.Duration

	// Gate, when set, refuses new work while paused.
	Gate Gate
}

const (
	defaultConvertTimeout  = 2 * time.Minute
	defaultJobTTL          = time.Hour
	defaultJanitorInterval = 5 * time.Minute
)

// Controller owns conversion jobs. It is constructed once at startup with
// its cache, URL store, and engine injected, and shared by every handler.
type Controller struct {
	engine Engine
	cache  *resultcache.Cache
	urls   *urlstore.Store
	gate   Gate

	// group collapses concurrent conversions of the same source file into
	// one engine run; followers share the leader's result and, via the
	// flights registry, its progress.
	group singleflight.Group
	sem   chan struct{}

	flightMu sync.Mutex
	flights  map[string]map[string]int

	convertTimeout  time.Duration
	jobTTL          time.Duration
	janitorInterval time.Duration

	mu        sync.Mutex
	jobs      map[string]*Job
	listeners []func(Snapshot)

	stopOnce sync.Once
	stopChan chan struct{}
}

// New creates a Controller. Call Start to run the janitor and Stop to halt it.
func New(engine Engine, cache *resultcache.Cache, urls *urlstore.Store, opts Options) *Controller {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ConvertTimeout <= 0 {
		opts.ConvertTimeout = defaultConvertTimeout
	}
	if opts.JobTTL <= 0 {
		opts.JobTTL = defaultJobTTL
	}
	if opts.JanitorInterval <= 0 {
		opts.JanitorInterval = defaultJanitorInterval
	}

	return &Controller{
		engine:          engine,
		cache:           cache,
		urls:            urls,
		gate:            opts.Gate,
		sem:             make(chan struct{}, opts.Workers),
		convertTimeout:  opts.ConvertTimeout,
		jobTTL:          opts.JobTTL,
		janitorInterval: opts.JanitorInterval,
		flights:         make(map[string]map[string]int),
		jobs:            make(map[string]*Job),
		stopChan:        make(chan struct{}),
	}
}

// Subscribe registers a listener for every job state change. Listeners are
// invoked synchronously and must not block; register before Start.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Start launches the stale-job janitor.
func (c *Controller) Start() {
	go c.janitorLoop()
}

// Stop halts the janitor. Running conversions are not interrupted.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}

// StartJob registers a new conversion and begins it asynchronously. The
// returned snapshot reflects the initial state.
func (c *Controller) StartJob(src Source) Snapshot {
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Source:    src,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}

	c.mu.Lock()
	c.jobs[job.ID] = job
	tracked := len(c.jobs)
	attempt := job.attempt
	snap := job.snapshot()
	c.mu.Unlock()

	metrics.ConversionJobsTracked.Set(float64(tracked))
	logging.Info("Conversion job %s started for %s (%d bytes)", job.ID, src.Name, src.Size)

	go c.run(job.ID, attempt)
	return snap
}

// Get returns a snapshot of one job.
func (c *Controller) Get(id string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return job.snapshot(), true
}

// List returns snapshots of all tracked jobs, most recently updated first.
func (c *Controller) List() []Snapshot {
	c.mu.Lock()
	snaps := make([]Snapshot, 0, len(c.jobs))
	for _, job := range c.jobs {
		snaps = append(snaps, job.snapshot())
	}
	c.mu.Unlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt)
	})
	return snaps
}

// Cancel stops a running job. The job transitions to cancelled immediately;
// if the engine run still completes, its result is suppressed and, when the
// cache did not take ownership, its URL is revoked.
func (c *Controller) Cancel(id string) error {
	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok {
		c.mu.Unlock()
		return ErrJobNotFound
	}
	if job.State != StateRunning {
		c.mu.Unlock()
		return ErrNotRunning
	}

	job.State = StateCancelled
	job.Category = CategoryCancelled
	job.Error = CategoryCancelled.Message()
	job.UpdatedAt = time.Now()
	cancel := job.cancel
	snap := job.snapshot()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	metrics.ConversionJobsTotal.WithLabelValues("cancelled").Inc()
	logging.Info("Conversion job %s cancelled", id)
	c.notify(snap)
	return nil
}

// Retry starts a fresh attempt for a finished job using its saved upload.
func (c *Controller) Retry(id string) error {
	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok {
		c.mu.Unlock()
		return ErrJobNotFound
	}
	if job.State == StateRunning {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if _, err := os.Stat(job.Source.Path); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("source file no longer available: %w", err)
	}

	job.attempt++
	attempt := job.attempt
	c.mu.Unlock()

	logging.Info("Conversion job %s retrying (attempt %d)", id, attempt+1)
	go c.run(id, attempt)
	return nil
}

// Reset returns a job to idle, cancelling any in-flight attempt and
// releasing its result. When the cache still owns the result its entry is
// dropped (which revokes the URL); otherwise the URL is revoked directly.
func (c *Controller) Reset(id string) error {
	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok {
		c.mu.Unlock()
		return ErrJobNotFound
	}

	job.attempt++
	cancel := job.cancel
	res := job.Result

	job.State = StateIdle
	job.Progress = 0
	job.Result = nil
	job.Error = ""
	job.Category = ""
	job.cancel = nil
	job.UpdatedAt = time.Now()
	snap := job.snapshot()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if res != nil {
		if !c.cache.RemoveOwned(res.Key, res.Token) {
			c.urls.Revoke(res.Token)
		}
	}

	logging.Info("Conversion job %s reset", id)
	c.notify(snap)
	return nil
}

// run executes one conversion attempt. Every mutation re-checks the attempt
// counter so cancels and resets that landed in between win.
func (c *Controller) run(id string, attempt int) {
	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok || job.attempt != attempt {
		c.mu.Unlock()
		return
	}
	src := job.Source
	c.mu.Unlock()

	key := src.CacheKey()

	// Cache hits bypass the engine entirely and jump straight to succeeded.
	if res, ok := c.cache.Get(key); ok {
		logging.Debug("Conversion job %s served from cache (key %s)", id, key)
		c.finish(id, attempt, res, nil)
		return
	}

	if c.gate != nil && c.gate.IsPaused() {
		c.finish(id, attempt, nil, errMemoryPressure)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.convertTimeout)
	defer cancel()

	c.mu.Lock()
	job, ok = c.jobs[id]
	if !ok || job.attempt != attempt {
		c.mu.Unlock()
		return
	}
	// A previous attempt's result that the cache no longer owns would leak
	// its URL; release it before this attempt replaces it.
	if prev := job.Result; prev != nil && !c.cache.Owns(prev.Key, prev.Token) {
		c.urls.Revoke(prev.Token)
	}
	job.State = StateRunning
	job.Progress = 0
	job.Result = nil
	job.Error = ""
	job.Category = ""
	job.cancel = cancel
	job.UpdatedAt = time.Now()
	snap := job.snapshot()
	c.mu.Unlock()
	c.notify(snap)

	metrics.ConversionsInProgress.Inc()
	defer metrics.ConversionsInProgress.Dec()

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		c.finish(id, attempt, nil, ctx.Err())
		return
	}

	c.joinFlight(key, id, attempt)
	defer c.leaveFlight(key, id, attempt)

	start := time.Now()
	res, err := c.convertShared(ctx, key, src, func(percent float64) {
		c.flightProgress(key, percent)
	})
	if err == nil {
		metrics.ConversionDuration.Observe(time.Since(start).Seconds())
	}
	c.finish(id, attempt, res, err)
}

// convertShared runs the conversion through singleflight so concurrent jobs
// for the same source share one engine run. A shared flight that fails with
// the leader's cancellation is not this caller's cancellation: forget the
// key and run once more on our own context.
func (c *Controller) convertShared(ctx context.Context, key string, src Source, onProgress func(float64)) (*resultcache.Result, error) {
	var lastErr error
	for tries := 0; tries < 2; tries++ {
		v, err, shared := c.group.Do(key, func() (interface{}, error) {
			return c.transcode(ctx, key, src, onProgress)
		})
		if err == nil {
			return v.(*resultcache.Result), nil
		}
		c.group.Forget(key)
		lastErr = err

		if shared && Classify(err) == CategoryCancelled && ctx.Err() == nil {
			if res, ok := c.cache.Get(key); ok {
				return res, nil
			}
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// transcode performs one full engine run: write input, probe, encode, read
// output, publish the download URL, and cache the result.
func (c *Controller) transcode(ctx context.Context, key string, src Source, onProgress func(float64)) (*resultcache.Result, error) {
	session, err := c.engine.Load(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	inName := sticker.InputFileName(src.MimeType)
	_, werr := session.WriteInput(inName, f)
	f.Close()
	if werr != nil {
		return nil, werr
	}

	if _, err := session.Probe(ctx, inName); err != nil {
		return nil, err
	}

	if err := session.Run(ctx, sticker.EncodeArgs(inName, sticker.OutputFileName), onProgress); err != nil {
		return nil, err
	}

	out, err := session.ReadOutput(sticker.OutputFileName)
	if err != nil {
		return nil, err
	}
	if !sticker.IsWebP(out) {
		return nil, fmt.Errorf("encoder produced non-WebP output (%d bytes)", len(out))
	}

	session.DeleteFile(inName)
	session.DeleteFile(sticker.OutputFileName)

	now := time.Now()
	res := &resultcache.Result{
		Key:               key,
		Bytes:             out,
		SuggestedFilename: sticker.SuggestedFilename(src.Name, now),
		CreatedAt:         now,
	}
	res.Token, res.DownloadURL = c.urls.Publish(out, res.SuggestedFilename, "image/webp")
	c.cache.Put(res)
	return res, nil
}

// joinFlight registers a job attempt as interested in progress for key.
func (c *Controller) joinFlight(key, id string, attempt int) {
	c.flightMu.Lock()
	m := c.flights[key]
	if m == nil {
		m = make(map[string]int)
		c.flights[key] = m
	}
	m[id] = attempt
	c.flightMu.Unlock()
}

func (c *Controller) leaveFlight(key, id string, attempt int) {
	c.flightMu.Lock()
	if m := c.flights[key]; m != nil && m[id] == attempt {
		delete(m, id)
		if len(m) == 0 {
			delete(c.flights, key)
		}
	}
	c.flightMu.Unlock()
}

// flightProgress fans a progress report out to every job sharing the flight.
// Only the singleflight leader's callback is driven by the engine; followers
// would otherwise sit at zero until their terminal state.
func (c *Controller) flightProgress(key string, percent float64) {
	c.flightMu.Lock()
	members := make(map[string]int, len(c.flights[key]))
	for id, attempt := range c.flights[key] {
		members[id] = attempt
	}
	c.flightMu.Unlock()

	for id, attempt := range members {
		c.reportProgress(id, attempt, percent)
	}
}

// reportProgress clamps a progress report to [0,100] and drops anything
// that would move the bar backward.
func (c *Controller) reportProgress(id string, attempt int, percent float64) {
	pct := int(percent)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok || job.attempt != attempt || job.State != StateRunning {
		c.mu.Unlock()
		return
	}
	if pct <= job.Progress {
		c.mu.Unlock()
		return
	}
	job.Progress = pct
	job.UpdatedAt = time.Now()
	snap := job.snapshot()
	c.mu.Unlock()

	c.notify(snap)
}

// finish records a terminal outcome for one attempt. A job that already left
// the running state (cancelled, reset) ignores the late result; its URL is
// revoked here unless the cache took ownership.
func (c *Controller) finish(id string, attempt int, res *resultcache.Result, err error) {
	c.mu.Lock()
	job, ok := c.jobs[id]
	if !ok || job.attempt != attempt || job.State.Terminal() {
		c.mu.Unlock()
		if res != nil && !c.cache.Owns(res.Key, res.Token) {
			c.urls.Revoke(res.Token)
		}
		return
	}

	if err != nil {
		cat := Classify(err)
		if cat == CategoryCancelled {
			job.State = StateCancelled
		} else {
			job.State = StateFailed
		}
		job.Category = cat
		job.Error = cat.Message()
		job.UpdatedAt = time.Now()
		snap := job.snapshot()
		c.mu.Unlock()

		if snap.State == StateCancelled {
			metrics.ConversionJobsTotal.WithLabelValues("cancelled").Inc()
		} else {
			metrics.ConversionJobsTotal.WithLabelValues("failed").Inc()
			metrics.ConversionFailuresTotal.WithLabelValues(string(cat)).Inc()
			logging.Warn("Conversion job %s failed (%s): %v", id, cat, err)
		}
		c.notify(snap)
		return
	}

	job.State = StateSucceeded
	job.Progress = 100
	job.Result = res
	job.UpdatedAt = time.Now()
	snap := job.snapshot()
	c.mu.Unlock()

	metrics.ConversionJobsTotal.WithLabelValues("succeeded").Inc()
	logging.Info("Conversion job %s succeeded (%d bytes)", id, len(res.Bytes))
	c.notify(snap)
}

func (c *Controller) notify(snap Snapshot) {
	c.mu.Lock()
	listeners := make([]func(Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// janitorLoop sweeps finished jobs whose TTL has passed, removing their
// saved uploads and any result URL the cache no longer owns.
func (c *Controller) janitorLoop() {
	ticker := time.NewTicker(c.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Controller) sweep() {
	cutoff := time.Now().Add(-c.jobTTL)

	c.mu.Lock()
	var stale []*Job
	for id, job := range c.jobs {
		if job.State != StateRunning && job.UpdatedAt.Before(cutoff) {
			stale = append(stale, job)
			delete(c.jobs, id)
		}
	}
	tracked := len(c.jobs)
	c.mu.Unlock()

	for _, job := range stale {
		if job.Source.Path != "" {
			if err := os.Remove(job.Source.Path); err != nil && !os.IsNotExist(err) {
				logging.Warn("failed to remove upload for job %s: %v", job.ID, err)
			}
		}
		if res := job.Result; res != nil && !c.cache.Owns(res.Key, res.Token) {
			c.urls.Revoke(res.Token)
		}
	}

	metrics.ConversionJobsTracked.Set(float64(tracked))
	if len(stale) > 0 {
		logging.Debug("Janitor removed %d stale conversion jobs", len(stale))
	}
}

// SourcePath returns the saved upload path for a job, for handlers that
// need to read the original clip (preview frames).
func (c *Controller) SourcePath(id string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[id]
	if !ok {
		return "", false
	}
	return job.Source.Path, true
}

// TrackedJobs returns how many jobs the controller currently holds.
func (c *Controller) TrackedJobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}
