// Package history records import jobs and the state machine they move through.
package history

import (
	"errors"
	"fmt"
	"time"

	"github.com/cordum/modhost/core/modules/validator"
)

// Status is the lifecycle state of an import job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusValidating Status = "validating"
	StatusImporting  Status = "importing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

var (
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrTerminal          = errors.New("job is terminal")
	ErrNotFound          = errors.New("job not found")
)

var (
	terminalStates = map[Status]bool{
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusRolledBack: true,
	}
	allowedTransitions = map[Status][]Status{
		StatusPending:    {StatusValidating, StatusFailed},
		StatusValidating: {StatusImporting, StatusFailed},
		StatusImporting:  {StatusCompleted, StatusFailed},
		StatusCompleted:  {},
		StatusFailed:     {},
		StatusRolledBack: {},
	}
)

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool { return terminalStates[s] }

// CanTransition reports whether from -> to is a legal job transition.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TimelineEvent is one entry of a job's audit trail.
type TimelineEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// Job is one tracked attempt to import or roll back a module.
type Job struct {
	ID                string              `json:"id"`
	Status            Status              `json:"status"`
	CreatedAt         time.Time           `json:"createdAt"`
	CreatedBy         string              `json:"createdBy,omitempty"`
	FileName          string              `json:"fileName,omitempty"`
	FileSize          int64               `json:"fileSize"`
	ModuleID          string              `json:"moduleId,omitempty"`
	ModuleName        string              `json:"moduleName,omitempty"`
	Version           string              `json:"version,omitempty"`
	ValidationResults []validator.Finding `json:"validationResults,omitempty"`
	ErrorMessage      string              `json:"errorMessage,omitempty"`
	ErrorCode         validator.Code      `json:"errorCode,omitempty"`
	Timeline          []TimelineEvent     `json:"timeline"`
	BackupPath        string              `json:"backupPath,omitempty"`
}

// NewJob returns a pending job with a single timeline entry.
func NewJob(id, createdBy, fileName string, fileSize int64, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: now,
		CreatedBy: createdBy,
		FileName:  fileName,
		FileSize:  fileSize,
		Timeline:  []TimelineEvent{{Timestamp: now, Status: StatusPending, Message: "Import queued"}},
	}
}

// Transition moves the job to status and appends a timeline entry.
func (j *Job) Transition(to Status, message string, at time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, j.ID, j.Status)
	}
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}
	j.Status = to
	j.Timeline = append(j.Timeline, TimelineEvent{Timestamp: at.UTC(), Status: to, Message: message})
	return nil
}
