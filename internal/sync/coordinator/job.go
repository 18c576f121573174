package coordinator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgsync "github.com/zimshelf/zim-library/internal/sync"
)

// JobState is the lifecycle state of a sync job
type JobState string

const (
	// JobQueued means the job waits for the worker and can still be cancelled
	JobQueued JobState = "queued"

	// JobRunning means the job holds the sync slot
	JobRunning JobState = "running"

	// JobSucceeded means the job finished without error
	JobSucceeded JobState = "succeeded"

	// JobFailed means the job finished with an error
	JobFailed JobState = "failed"

	// JobCanceled means the job was cancelled before it started
	JobCanceled JobState = "canceled"
)

// FetchOutcome maps a finished job onto the background refresh contract
type FetchOutcome string

const (
	// FetchNewData means packages were added or removed
	FetchNewData FetchOutcome = "new_data"

	// FetchNoData means the sync succeeded without changing the package set
	FetchNoData FetchOutcome = "no_data"

	// FetchFailed means the sync failed
	FetchFailed FetchOutcome = "failed"
)

// Result is what a caller observes when a job completes
type Result struct {
	// Err is nil on success
	Err *pkgsync.Error

	HadUpdates bool

	// Sync holds the pipeline details of a successful run
	Sync *pkgsync.Result
}

// FetchOutcome reports the background refresh outcome of r
func (r Result) FetchOutcome() FetchOutcome {
	switch {
	case r.Err != nil:
		return FetchFailed
	case r.HadUpdates:
		return FetchNewData
	default:
		return FetchNoData
	}
}

// Snapshot is a point in time copy of an in-flight job
type Snapshot struct {
	ID               uuid.UUID  `json:"id"`
	State            JobState   `json:"state"`
	PreserveExisting bool       `json:"preserveExisting"`
	SubmittedAt      time.Time  `json:"submittedAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	Completed        int64      `json:"completedUnits"`
	Total            int64      `json:"totalUnits"`
}

// job is owned by the coordinator registry while it is in flight
type job struct {
	id               uuid.UUID
	preserveExisting bool
	submittedAt      time.Time
	progress         *pkgsync.Progress
	done             chan struct{}

	mu        sync.Mutex
	state     JobState
	startedAt *time.Time
	result    Result
	callbacks []func(Result)
}

func newJob(preserveExisting bool, now time.Time) *job {
	return &job{
		id:               uuid.New(),
		preserveExisting: preserveExisting,
		submittedAt:      now,
		progress:         &pkgsync.Progress{},
		done:             make(chan struct{}),
		state:            JobQueued,
	}
}

func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Snapshot{
		ID:               j.id,
		State:            j.state,
		PreserveExisting: j.preserveExisting,
		SubmittedAt:      j.submittedAt,
		Completed:        j.progress.Completed(),
		Total:            j.progress.Total(),
	}
	if j.startedAt != nil {
		started := *j.startedAt
		s.StartedAt = &started
	}
	return s
}

// start moves a queued job to running; it fails when the job was cancelled
func (j *job) start(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != JobQueued {
		return false
	}
	j.state = JobRunning
	j.startedAt = &now
	return true
}

// finish records the result, releases waiters and runs the callbacks
func (j *job) finish(state JobState, result Result) {
	j.mu.Lock()
	j.state = state
	j.result = result
	callbacks := j.callbacks
	j.callbacks = nil
	close(j.done)
	j.mu.Unlock()

	for _, fn := range callbacks {
		runCallback(j.id, fn, result)
	}
}

func runCallback(id uuid.UUID, fn func(Result), result Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Sync completion callback panicked", "job_id", id, "panic", r)
		}
	}()
	fn(result)
}

// Handle observes one submitted job
type Handle struct {
	job   *job
	coord *Coordinator
}

// ID returns the job id
func (h *Handle) ID() uuid.UUID {
	return h.job.id
}

// Done is closed when the job completed, failed or was cancelled
func (h *Handle) Done() <-chan struct{} {
	return h.job.done
}

// Result returns the job result once it is done
func (h *Handle) Result() (Result, bool) {
	select {
	case <-h.job.done:
	default:
		return Result{}, false
	}
	h.job.mu.Lock()
	defer h.job.mu.Unlock()
	return h.job.result, true
}

// OnComplete registers fn to run once with the job result. Callbacks run on
// the worker goroutine and must not block; fn runs immediately when the job
// is already done.
func (h *Handle) OnComplete(fn func(Result)) {
	if fn == nil {
		return
	}
	h.job.mu.Lock()
	select {
	case <-h.job.done:
		result := h.job.result
		h.job.mu.Unlock()
		runCallback(h.job.id, fn, result)
		return
	default:
	}
	h.job.callbacks = append(h.job.callbacks, fn)
	h.job.mu.Unlock()
}

// Cancel withdraws the job if it has not started yet and reports whether it did
func (h *Handle) Cancel() bool {
	return h.coord.cancel(h.job)
}

// Progress returns the completed and total work units
func (h *Handle) Progress() (completed, total int64) {
	return h.job.progress.Completed(), h.job.progress.Total()
}

// Snapshot returns the current state of the job
func (h *Handle) Snapshot() Snapshot {
	return h.job.snapshot()
}
