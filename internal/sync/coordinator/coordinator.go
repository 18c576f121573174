package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"github.com/zimshelf/zim-library/internal/settings"
	"github.com/zimshelf/zim-library/internal/status"
	pkgsync "github.com/zimshelf/zim-library/internal/sync"
	"github.com/zimshelf/zim-library/internal/telemetry"
)

var (
	// ErrStopped is returned by Submit after Stop was called
	ErrStopped = errors.New("sync coordinator is stopped")

	// ErrJobNotFound is returned for ids that are unknown or no longer in flight
	ErrJobNotFound = errors.New("sync job not found")
)

// Coordinator admits sync jobs one at a time, in submission order
type Coordinator struct {
	manager           pkgsync.Manager
	settings          settings.Store
	statusPersistence status.StatusPersistence

	locale language.Tag
	now    func() time.Time
	tracer trace.Tracer

	// Metrics
	syncMetrics    *telemetry.SyncMetrics
	libraryMetrics *telemetry.LibraryMetrics

	mu      sync.Mutex
	queue   []*job
	jobs    map[uuid.UUID]*job
	latest  *job
	stopped bool

	wake chan struct{}

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*Coordinator)

// WithSyncMetrics sets the sync metrics for the coordinator
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(c *Coordinator) {
		c.syncMetrics = metrics
	}
}

// WithLibraryMetrics sets the library metrics for the coordinator
func WithLibraryMetrics(metrics *telemetry.LibraryMetrics) Option {
	return func(c *Coordinator) {
		c.libraryMetrics = metrics
	}
}

// WithStatusPersistence records the sync status after every job
func WithStatusPersistence(p status.StatusPersistence) Option {
	return func(c *Coordinator) {
		c.statusPersistence = p
	}
}

// WithLocale sets the locale whose language becomes the default filter
// after the first successful sync
func WithLocale(tag language.Tag) Option {
	return func(c *Coordinator) {
		c.locale = tag
	}
}

// WithClock overrides the clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTracer sets the tracer used for job spans
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

// New creates a coordinator and starts its worker
func New(manager pkgsync.Manager, settingsStore settings.Store, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		manager:    manager,
		settings:   settingsStore,
		locale:     DetectLocale(),
		now:        time.Now,
		jobs:       make(map[uuid.UUID]*job),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancelFunc: cancel,
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	go c.run()
	return c
}

// Submit queues a sync job behind every job submitted before it.
// With preserveExisting, packages already in the store keep their remote fields.
func (c *Coordinator) Submit(preserveExisting bool) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, ErrStopped
	}

	j := newJob(preserveExisting, c.now())
	c.queue = append(c.queue, j)
	c.jobs[j.id] = j
	c.latest = j

	slog.Debug("Sync job submitted",
		"job_id", j.id,
		"preserve_existing", preserveExisting,
		"queue_length", len(c.queue))

	select {
	case c.wake <- struct{}{}:
	default:
	}

	return &Handle{job: j, coord: c}, nil
}

// Latest returns the most recently submitted job while it is still in flight
func (c *Coordinator) Latest() (Snapshot, bool) {
	c.mu.Lock()
	j := c.latest
	c.mu.Unlock()

	if j == nil {
		return Snapshot{}, false
	}
	return j.snapshot(), true
}

// Lookup returns the job with the given id while it is still in flight
func (c *Coordinator) Lookup(id uuid.UUID) (Snapshot, error) {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()

	if !ok {
		return Snapshot{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// CancelJob cancels the queued job with the given id
func (c *Coordinator) CancelJob(id uuid.UUID) error {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()

	if !ok {
		return ErrJobNotFound
	}
	if !c.cancel(j) {
		return fmt.Errorf("sync job %s has already started", id)
	}
	return nil
}

// Stop refuses new jobs, cancels the queued ones and waits for the running
// job. When ctx ends first, the running job is aborted.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	alreadyStopped := c.stopped
	c.stopped = true
	queued := c.queue
	c.queue = nil
	c.mu.Unlock()

	if !alreadyStopped {
		slog.Info("Stopping sync coordinator", "queued_jobs", len(queued))
	}

	for _, j := range queued {
		c.cancel(j)
	}

	// The worker exits once it sees the coordinator stopped with an empty queue
	select {
	case c.wake <- struct{}{}:
	default:
	}

	select {
	case <-c.done:
		c.cancelFunc()
		return nil
	case <-ctx.Done():
		c.cancelFunc()
		<-c.done
		return ctx.Err()
	}
}

// cancel withdraws a queued job; running and finished jobs are not affected
func (c *Coordinator) cancel(j *job) bool {
	c.mu.Lock()
	j.mu.Lock()
	if j.state != JobQueued {
		j.mu.Unlock()
		c.mu.Unlock()
		return false
	}
	j.state = JobCanceled
	j.mu.Unlock()

	for i, queued := range c.queue {
		if queued == j {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			break
		}
	}
	c.forget(j)
	c.mu.Unlock()

	slog.Info("Sync job canceled", "job_id", j.id)
	j.finish(JobCanceled, Result{
		Err: pkgsync.NewError(pkgsync.KindCanceled, "Sync job canceled before it started", context.Canceled),
	})
	return true
}

// forget drops a job from the registry; callers hold c.mu
func (c *Coordinator) forget(j *job) {
	delete(c.jobs, j.id)
	if c.latest == j {
		c.latest = nil
	}
}

// run is the worker loop. It holds the only sync slot.
func (c *Coordinator) run() {
	defer close(c.done)

	for {
		j, ok := c.next()
		if !ok {
			return
		}
		if j == nil {
			select {
			case <-c.wake:
			case <-c.ctx.Done():
				return
			}
			continue
		}
		c.execute(j)
	}
}

// next pops the next queued job that can start. It reports false once the
// coordinator is stopped and nothing is left to run.
func (c *Coordinator) next() (*job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.queue) > 0 {
		j := c.queue[0]
		c.queue = c.queue[1:]
		if j.start(c.now()) {
			return j, true
		}
	}
	if c.stopped {
		return nil, false
	}
	return nil, true
}

// execute runs one job, turning panics into unclassified failures
func (c *Coordinator) execute(j *job) {
	result := func() (result Result) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Sync job panicked", "job_id", j.id, "panic", r)
				result = Result{
					Err: pkgsync.NewError(pkgsync.KindUnclassified, fmt.Sprintf("Unexpected failure: %v", r), nil),
				}
			}
		}()
		return c.performSync(c.ctx, j)
	}()

	c.mu.Lock()
	c.forget(j)
	c.mu.Unlock()

	state := JobSucceeded
	if result.Err != nil {
		state = JobFailed
	}
	j.finish(state, result)
}
