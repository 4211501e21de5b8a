package capture

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job states.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// Job is the tracked status of one batch capture run.
type Job struct {
	ID         string     `json:"id"`
	VideoPath  string     `json:"video_path"`
	State      string     `json:"state"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Result     *JobResult `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// JobRegistry tracks batch capture jobs. It is an explicit object owned
// by the server wiring and passed by reference; all access goes through
// its one mutex.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*Job)}
}

func (r *JobRegistry) Start(videoPath string) *Job {
	job := &Job{
		ID:        uuid.New().String(),
		VideoPath: videoPath,
		State:     JobRunning,
		StartedAt: time.Now(),
	}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return snapshot(job)
}

// Complete records a finished job. A partial result from a failed run is
// recorded by Fail instead.
func (r *JobRegistry) Complete(id string, result *JobResult) {
	r.finish(id, JobCompleted, result, "")
}

func (r *JobRegistry) Fail(id string, result *JobResult, errMsg string) {
	r.finish(id, JobFailed, result, errMsg)
}

func (r *JobRegistry) finish(id, state string, result *JobResult, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return
	}
	now := time.Now()
	job.State = state
	job.FinishedAt = &now
	job.Result = result
	job.Error = errMsg
}

func (r *JobRegistry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return snapshot(job), true
}

func (r *JobRegistry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, snapshot(job))
	}
	return jobs
}

// snapshot copies a job so callers never share the mutable registry row.
func snapshot(job *Job) *Job {
	copied := *job
	return &copied
}
