package cron

import (
	"context"
	"sync"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry tracks cron jobs and how often each one is due. A job registered
// without a period runs on every cycle.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
}

// NewRegistry builds a registry of jobs that run every cycle.
func NewRegistry(jobs ...Job) *Registry {
	registry := &Registry{}
	for _, job := range jobs {
		registry.Register(job)
	}
	return registry
}

// Register adds a job that runs on every cycle.
func (r *Registry) Register(job Job) {
	r.RegisterEvery(job, 0)
}

// RegisterEvery adds a job that runs at most once per period.
func (r *Registry) RegisterEvery(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every < 0 {
		every = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, &entry{job: job, every: every})
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

// Due returns the jobs whose period has elapsed at now, in registration order.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, e := range r.entries {
		if e.every == 0 || e.lastRun.IsZero() || !now.Before(e.lastRun.Add(e.every)) {
			due = append(due, e.job)
		}
	}
	return due
}

// MarkRun records a successful run so periodic jobs wait for their next slot.
func (r *Registry) MarkRun(job Job, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.job == job {
			e.lastRun = at
			return
		}
	}
}
