package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"agenix/internal/logging"
	"agenix/internal/metrics"
)

// Backend is the key/value plus list store the worker pool reads from.
type Backend interface {
	Set(ctx context.Context, key, value string) error
	LPush(ctx context.Context, key, value string) error
}

// OpError names the backend operation that failed.
type OpError struct {
	Op  string // "set" or "lpush"
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// Submitter enqueues training jobs.
type Submitter struct {
	backend Backend
	queue   string
	metrics *metrics.Metrics
}

// NewSubmitter creates a Submitter pushing onto queueName (DefaultQueue when
// empty). m may be nil.
func NewSubmitter(b Backend, queueName string, m *metrics.Metrics) *Submitter {
	if queueName == "" {
		queueName = DefaultQueue
	}
	return &Submitter{backend: b, queue: queueName, metrics: m}
}

// Submit builds the training job for configPath and enqueues it.
func (s *Submitter) Submit(ctx context.Context, configPath, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.New("job id is required")
	}
	job := NewTrainingJob(configPath, jobID)
	return job, s.SubmitJob(ctx, job)
}

// SubmitJob writes the job record and pushes its id. Both writes are always
// attempted; every failure is returned as an *OpError, joined.
func (s *Submitter) SubmitJob(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	logging.Queue("Submitting job %s...", job.ID)

	var errs []error
	key := JobKey(job.ID)
	if err := s.backend.Set(ctx, key, string(payload)); err != nil {
		errs = append(errs, &OpError{Op: "set", Key: key, Err: err})
	}
	if err := s.backend.LPush(ctx, s.queue, job.ID); err != nil {
		errs = append(errs, &OpError{Op: "lpush", Key: s.queue, Err: err})
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		logging.QueueError("job %s: %v", job.ID, err)
		s.metrics.JobSubmitted("error")
		return err
	}
	logging.Queue("Job %s submitted to %s", job.ID, s.queue)
	s.metrics.JobSubmitted("ok")
	return nil
}
