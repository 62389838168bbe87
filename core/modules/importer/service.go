// Package importer drives module import and rollback jobs: it validates an
// uploaded archive, installs it into the modules tree, keeps a snapshot of the
// previous install and records every step in the job history.
package importer

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cordum/modhost/core/infra/bus"
	"github.com/cordum/modhost/core/infra/config"
	"github.com/cordum/modhost/core/infra/locks"
	"github.com/cordum/modhost/core/infra/logging"
	"github.com/cordum/modhost/core/infra/metrics"
	"github.com/cordum/modhost/core/modules/history"
	"github.com/cordum/modhost/core/modules/installer"
	"github.com/cordum/modhost/core/modules/manifest"
	"github.com/cordum/modhost/core/modules/menu"
	"github.com/cordum/modhost/core/modules/registry"
)

// Job and Status are the history records this package produces.
type (
	Job    = history.Job
	Status = history.Status
)

var (
	ErrNoBackup = errors.New("no backup to rollback to")
	ErrLockHeld = errors.New("module operation already in progress")
)

const (
	globalLock = "modules:global"
	lockTTL    = 60 * time.Second
)

// Request describes one uploaded archive.
type Request struct {
	// ArchivePath is the uploaded file. It is deleted when the job ends.
	ArchivePath string
	// FileName is the name the archive was uploaded under.
	FileName string
	// FileSize is the declared upload size. Zero means use the file size.
	FileSize    int64
	RequestedBy string
	Overrides   *manifest.Overrides
	// RequireReleaseType enforces manifest.release.type (update flow).
	RequireReleaseType bool
	SkipVersionCheck   bool
}

// RollbackRequest selects the snapshot to restore. An empty JobID picks the
// most recent snapshot of the module.
type RollbackRequest struct {
	ModuleID    string
	JobID       string
	RequestedBy string
}

// Options wires a Service. Registry, History and Installer are required; the
// rest are optional.
type Options struct {
	Registry  *registry.Store
	History   *history.Store
	Installer *installer.Installer
	Policy    config.Policy

	Menu    *menu.Store
	Locks   locks.Store
	Events  bus.Publisher
	Metrics metrics.ImportMetrics

	Now   func() time.Time
	NewID func() string
}

// Service runs import and rollback jobs.
type Service struct {
	registry  *registry.Store
	history   *history.Store
	installer *installer.Installer
	policy    config.Policy
	menu      *menu.Store
	locks     locks.Store
	events    bus.Publisher
	metrics   metrics.ImportMetrics
	now       func() time.Time
	newID     func() string
}

func New(opts Options) *Service {
	s := &Service{
		registry:  opts.Registry,
		history:   opts.History,
		installer: opts.Installer,
		policy:    opts.Policy,
		menu:      opts.Menu,
		locks:     opts.Locks,
		events:    opts.Events,
		metrics:   opts.Metrics,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = NewJobID
	}
	return s
}

// NewJobID returns a short random job id.
func NewJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// lock takes an exclusive lock for owner. Without a lock store it is a no-op.
func (s *Service) lock(ctx context.Context, resource, owner string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	ok, err := s.locks.Acquire(ctx, resource, owner, lockTTL)
	if err != nil {
		return func() {}, err
	}
	if !ok {
		return func() {}, ErrLockHeld
	}
	return func() {
		_, _ = s.locks.Release(context.WithoutCancel(ctx), resource, owner)
	}, nil
}

func moduleLock(moduleID string) string { return "module:" + moduleID }

func (s *Service) publish(ctx context.Context, operation string, job *Job, message string) {
	if s.events == nil || job == nil {
		return
	}
	evt := bus.JobEvent{
		JobID:     job.ID,
		Operation: operation,
		Status:    string(job.Status),
		ModuleID:  job.ModuleID,
		Version:   job.Version,
		Message:   message,
		ErrorCode: string(job.ErrorCode),
		At:        s.now().UTC(),
	}
	if err := s.events.PublishJobEvent(ctx, evt); err != nil {
		logging.Warn("bus", "publish job event failed", "job_id", job.ID, "status", job.Status, "err", err)
	}
}

func removeUpload(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Warn("importer", "remove upload failed", "path", path, "err", err)
	}
}
