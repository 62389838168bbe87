package importer

import (
	"context"
	"fmt"

	"github.com/cordum/modhost/core/infra/logging"
	"github.com/cordum/modhost/core/infra/metrics"
	"github.com/cordum/modhost/core/modules/history"
	"github.com/cordum/modhost/core/modules/installer"
	"github.com/cordum/modhost/core/modules/registry"
)

// Rollback restores a module from a snapshot taken by an earlier import and
// re-registers whatever manifest the snapshot holds. Versions are not
// compared: the snapshot is restored as is.
func (s *Service) Rollback(ctx context.Context, req RollbackRequest) (*Job, error) {
	started := s.now()
	s.metrics.IncStarted(metrics.OpRollback)
	job, err := s.rollback(ctx, req)
	status := "failed"
	if job != nil {
		status = string(job.Status)
	}
	s.metrics.IncFinished(metrics.OpRollback, status)
	s.metrics.ObserveDuration(metrics.OpRollback, s.now().Sub(started).Seconds())
	if err != nil {
		logging.Error("rollback", "rollback failed", "module", req.ModuleID, "job_id", req.JobID, "err", err)
	}
	return job, err
}

func (s *Service) rollback(ctx context.Context, req RollbackRequest) (*Job, error) {
	owner := "rollback-" + s.newID()
	release, err := s.lock(ctx, globalLock, owner)
	if err != nil {
		return nil, err
	}
	defer release()
	releaseModule, err := s.lock(ctx, moduleLock(req.ModuleID), owner)
	if err != nil {
		return nil, err
	}
	defer releaseModule()

	entries, err := s.registry.Load(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := s.history.Load(ctx)
	if err != nil {
		return nil, err
	}
	source, ok := history.BackupCandidate(jobs, req.ModuleID, req.JobID)
	if !ok {
		return nil, ErrNoBackup
	}

	if err := s.installer.Restore(req.ModuleID, source.BackupPath); err != nil {
		return nil, err
	}
	live, err := s.installer.LiveDir(req.ModuleID)
	if err != nil {
		return nil, err
	}
	m, err := installer.ReadManifest(live)
	if err != nil {
		return nil, fmt.Errorf("read restored manifest: %w", err)
	}
	if m.ID == "" {
		m.ID = req.ModuleID
	}
	if m.ID != req.ModuleID {
		return nil, fmt.Errorf("restored manifest id %q does not match %q", m.ID, req.ModuleID)
	}

	entry := registry.NewEntry(m, req.RequestedBy, s.now())
	if err := s.registry.Save(ctx, registry.Replace(entries, entry)); err != nil {
		return nil, err
	}
	s.linkMenu(ctx, m.ID, entry)

	now := s.now().UTC()
	msg := fmt.Sprintf("Rolled back %s to %s from job %s", m.ID, m.Version, source.ID)
	job := &Job{
		ID:         s.newID(),
		Status:     history.StatusRolledBack,
		CreatedAt:  now,
		CreatedBy:  req.RequestedBy,
		ModuleID:   m.ID,
		ModuleName: m.Name,
		Version:    m.Version,
		BackupPath: source.BackupPath,
		Timeline:   []history.TimelineEvent{{Timestamp: now, Status: history.StatusRolledBack, Message: msg}},
	}
	if err := s.history.Prepend(ctx, *job); err != nil {
		return nil, fmt.Errorf("record job: %w", err)
	}
	s.publish(ctx, metrics.OpRollback, job, msg)
	logging.Info("rollback", "module restored", "module", m.ID, "version", m.Version, "backup", source.BackupPath)
	return job, nil
}
