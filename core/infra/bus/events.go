// Package bus publishes import job lifecycle events.
package bus

import (
	"context"
	"strings"
	"time"
)

// SubjectPrefix is prepended to the job status to form the event subject.
const SubjectPrefix = "modhost.jobs"

// JobEvent announces that an import or rollback job reached a status.
type JobEvent struct {
	JobID     string    `json:"jobId"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"`
	ModuleID  string    `json:"moduleId,omitempty"`
	Version   string    `json:"version,omitempty"`
	Message   string    `json:"message,omitempty"`
	ErrorCode string    `json:"errorCode,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers job events. Delivery is best-effort.
type Publisher interface {
	PublishJobEvent(ctx context.Context, evt JobEvent) error
}

// Subject returns the subject a job event with the given status is sent on.
func Subject(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return SubjectPrefix
	}
	return SubjectPrefix + "." + status
}
