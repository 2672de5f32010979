// Package project holds the configured jobs and turns submissions into queue items.
package project

import (
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/determined-ai/devicegate/internal/config"
	"github.com/determined-ai/devicegate/internal/sproto"
	"github.com/determined-ai/devicegate/pkg/device"
	"github.com/determined-ai/devicegate/pkg/model"
)

// ErrJobNotFound is returned for unknown job names.
var ErrJobNotFound = errors.New("job not found")

// Submitter enqueues tasks.
type Submitter interface {
	Submit(task model.Task) *sproto.Item
}

// KeyResolver maps a task to the device it deploys to.
type KeyResolver interface {
	Resolve(task model.Task) (device.UDID, bool)
}

// Job is a configured job.
type Job struct {
	Task     model.Task
	Duration time.Duration
}

// Registry holds the configured jobs by name. It is read-only after construction.
type Registry struct {
	jobs      map[string]*Job
	durations map[model.Task]time.Duration
}

// NewRegistry builds a registry from job configurations.
func NewRegistry(jobs []config.JobConfig) *Registry {
	r := &Registry{
		jobs:      make(map[string]*Job, len(jobs)),
		durations: make(map[model.Task]time.Duration),
	}
	for _, jc := range jobs {
		job := &Job{Task: jc.Task(), Duration: time.Duration(jc.SimulatedDuration)}
		r.jobs[jc.Name] = job
		r.durations[job.Task] = job.Duration
		if p, ok := job.Task.(*model.MatrixProject); ok {
			for _, cell := range p.Cells() {
				r.durations[cell] = job.Duration
			}
		}
	}
	return r
}

// Get returns the job with the given name.
func (r *Registry) Get(name string) (*Job, error) {
	job, ok := r.jobs[name]
	if !ok {
		return nil, errors.Wrapf(ErrJobNotFound, "%q", name)
	}
	return job, nil
}

// List returns all jobs sorted by name.
func (r *Registry) List() []*Job {
	result := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		result = append(result, job)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Task.DisplayName() < result[j].Task.DisplayName()
	})
	return result
}

// Duration returns the simulated duration configured for the task's job.
func (r *Registry) Duration(task model.Task) time.Duration {
	return r.durations[task]
}

// Submit enqueues the named job: one item for a standalone job, or one per cell of a
// matrix job.
func (r *Registry) Submit(q Submitter, name string) ([]*sproto.Item, error) {
	job, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	var items []*sproto.Item
	for _, task := range job.Runnable() {
		items = append(items, q.Submit(task))
	}
	return items, nil
}

// Runnable returns the tasks that are queued when the job is submitted.
func (j *Job) Runnable() []model.Task {
	p, ok := j.Task.(*model.MatrixProject)
	if !ok {
		return []model.Task{j.Task}
	}
	tasks := make([]model.Task, 0, len(p.Cells()))
	for _, cell := range p.Cells() {
		tasks = append(tasks, cell)
	}
	return tasks
}

// TaskDevice is the resolved device of one runnable task.
type TaskDevice struct {
	Task   string      `json:"task"`
	Device device.UDID `json:"device,omitempty"`
}

// Devices resolves the device of every runnable task of the job. Unconstrained tasks have
// an empty Device.
func (j *Job) Devices(resolver KeyResolver) []TaskDevice {
	var result []TaskDevice
	for _, task := range j.Runnable() {
		udid, _ := resolver.Resolve(task)
		result = append(result, TaskDevice{Task: task.DisplayName(), Device: udid})
	}
	return result
}
