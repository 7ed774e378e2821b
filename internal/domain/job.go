package domain

import "time"

// JobKind enumerates the ledger job types.
type JobKind string

const (
	JobKindScrape    JobKind = "scrape"
	JobKindTransform JobKind = "transform"
)

// JobStatus tracks a job through pending -> running -> completed|failed.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Finished reports whether the status is terminal.
func (s JobStatus) Finished() bool {
	return s == JobCompleted || s == JobFailed
}

// JobResult is the free-form outcome payload stored with a job.
type JobResult struct {
	CandidatesFound   int    `json:"candidatesFound,omitempty"`
	ArticlesScraped   int    `json:"articlesScraped"`
	ArticlesSkipped   int    `json:"articlesSkipped,omitempty"`
	ArticlesProcessed int    `json:"articlesProcessed,omitempty"`
	ItemsFailed       int    `json:"itemsFailed,omitempty"`
	Error             string `json:"error,omitempty"`
}

// Job is one row of the job ledger.
type Job struct {
	ID          string         `json:"id"`
	Kind        JobKind        `json:"kind"`
	Status      JobStatus      `json:"status"`
	StartedAt   time.Time      `json:"startedAt"`
	CompletedAt time.Time      `json:"completedAt"`
	Result      JobResult      `json:"result"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// NewJob returns a pending job for the given kind and configuration payload.
func NewJob(id string, kind JobKind, payload map[string]any) Job {
	return Job{ID: id, Kind: kind, Status: JobPending, Payload: payload}
}

// Start moves a pending job to running.
func (j *Job) Start(at time.Time) {
	j.Status = JobRunning
	j.StartedAt = at
}

// Complete marks the job as finished successfully.
func (j *Job) Complete(at time.Time) {
	j.Status = JobCompleted
	j.CompletedAt = at
}

// Fail marks the job as failed and records the error text.
func (j *Job) Fail(at time.Time, err error) {
	j.Status = JobFailed
	j.CompletedAt = at
	if err != nil {
		j.Result.Error = err.Error()
	}
}
