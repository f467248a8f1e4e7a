// Package queue hands training jobs to the external worker pool.
//
// A submission is two independent writes: the job record under job:<id> and
// the job id pushed onto a list that workers pop from.
package queue

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// DefaultQueue is the list workers drain.
const DefaultQueue = "queue:default"

// TrainCommand is the worker command that runs a fine-tuning config.
const TrainCommand = "train_model"

// JobStatus is the lifecycle state of a job. Only workers move a job past
// pending.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusReady     JobStatus = "ready"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is the record stored at JobKey(ID).
type Job struct {
	ID         string            `json:"id"`
	ActionID   string            `json:"action_id"`
	PlanID     string            `json:"plan_id"`
	TaskNumber int               `json:"task_number"`
	Command    string            `json:"command"`
	Args       []string          `json:"args"`
	Env        map[string]string `json:"env"`
	Status     JobStatus         `json:"status"`
	Tags       []string          `json:"tags"` // a set, kept sorted
}

// NewTrainingJob builds the pending job that trains on configPath.
func NewTrainingJob(configPath, jobID string) Job {
	return Job{
		ID:         jobID,
		ActionID:   "action-" + jobID,
		PlanID:     "plan-" + jobID,
		TaskNumber: 1,
		Command:    TrainCommand,
		Args:       []string{configPath},
		Env:        map[string]string{},
		Status:     StatusPending,
		Tags:       NormalizeTags("gpu"),
	}
}

// JobKey is the key the job record is stored under.
func JobKey(jobID string) string {
	return "job:" + jobID
}

// NewJobID returns prefix-<8 hex chars>.
func NewJobID(prefix string) string {
	id := uuid.New()
	suffix := hex.EncodeToString(id[:])[:8]
	if prefix == "" {
		return suffix
	}
	return prefix + "-" + suffix
}

// NormalizeTags trims, de-duplicates and sorts tags.
func NormalizeTags(tags ...string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
