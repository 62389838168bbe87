package importer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/cordum/modhost/core/infra/logging"
	"github.com/cordum/modhost/core/infra/metrics"
	"github.com/cordum/modhost/core/modules/archive"
	"github.com/cordum/modhost/core/modules/history"
	"github.com/cordum/modhost/core/modules/installer"
	"github.com/cordum/modhost/core/modules/registry"
	"github.com/cordum/modhost/core/modules/validator"
)

// Import validates and installs the uploaded archive. Rejections and install
// errors are reported on the returned job, which ends completed or failed;
// the error is non-nil only when the job could not be recorded.
func (s *Service) Import(ctx context.Context, req Request) (*Job, error) {
	defer removeUpload(req.ArchivePath)
	started := s.now()
	s.metrics.IncStarted(metrics.OpImport)

	size := req.FileSize
	if size <= 0 && req.ArchivePath != "" {
		if info, err := os.Stat(req.ArchivePath); err == nil {
			size = info.Size()
		}
	}
	job := history.NewJob(s.newID(), req.RequestedBy, req.FileName, size, started)
	if err := s.history.Prepend(ctx, *job); err != nil {
		return nil, fmt.Errorf("record job: %w", err)
	}
	s.publish(ctx, metrics.OpImport, job, "Import queued")
	logging.Info("importer", "job created", "job_id", job.ID, "file", req.FileName, "size", size)

	finish := func(err error) (*Job, error) {
		s.metrics.IncFinished(metrics.OpImport, string(job.Status))
		s.metrics.ObserveDuration(metrics.OpImport, s.now().Sub(started).Seconds())
		return job, err
	}

	if s.policy.MaxArchiveBytes > 0 && size > s.policy.MaxArchiveBytes {
		msg := fmt.Sprintf("Archive exceeds the %d byte limit", s.policy.MaxArchiveBytes)
		return finish(s.fail(ctx, job, msg))
	}

	release, err := s.lock(ctx, globalLock, job.ID)
	if err != nil {
		return finish(s.fail(ctx, job, fmt.Sprintf("acquire install lock: %v", err)))
	}
	defer release()

	entries, err := s.registry.Load(ctx)
	if err != nil {
		return finish(s.fail(ctx, job, err.Error()))
	}
	ar, err := archive.Open(req.ArchivePath)
	if err != nil {
		return finish(s.fail(ctx, job, err.Error()))
	}
	defer ar.Close()
	if err := s.advance(ctx, job, history.StatusValidating, "Validating archive"); err != nil {
		return finish(err)
	}

	res, err := validator.Validate(ar.Entries(), validator.Context{
		FileName:           req.FileName,
		Overrides:          req.Overrides,
		Registry:           entries,
		Policy:             s.policy,
		RequireReleaseType: req.RequireReleaseType,
		SkipVersionCheck:   req.SkipVersionCheck,
	})
	if err != nil {
		var verr *validator.Error
		if errors.As(err, &verr) {
			job.ValidationResults = verr.Findings
			job.ErrorCode = verr.Code
			s.metrics.IncValidationFailure(string(verr.Code))
			logging.Info("importer", "archive rejected", "job_id", job.ID, "code", verr.Code)
			return finish(s.fail(ctx, job, verr.Message))
		}
		return finish(s.fail(ctx, job, err.Error()))
	}

	job.ModuleID = res.ModuleID
	job.ModuleName = res.Manifest.Name
	job.Version = res.Manifest.Version
	job.ValidationResults = res.Findings
	if err := s.advance(ctx, job, history.StatusImporting, fmt.Sprintf("Installing %s@%s", res.ModuleID, res.Manifest.Version)); err != nil {
		return finish(err)
	}

	releaseModule, err := s.lock(ctx, moduleLock(res.ModuleID), job.ID)
	if err != nil {
		return finish(s.fail(ctx, job, fmt.Sprintf("acquire module lock: %v", err)))
	}
	defer releaseModule()

	backupPath, err := s.install(res)
	if backupPath != "" {
		job.BackupPath = backupPath
	}
	if err != nil {
		logging.Error("importer", "install failed", "job_id", job.ID, "module", res.ModuleID, "err", err)
		return finish(s.fail(ctx, job, err.Error()))
	}

	entry := registry.NewEntry(res.Manifest, req.RequestedBy, s.now())
	if err := s.registry.Save(ctx, registry.Replace(entries, entry)); err != nil {
		logging.Error("importer", "registry update failed", "job_id", job.ID, "module", res.ModuleID, "err", err)
		return finish(s.fail(ctx, job, err.Error()))
	}
	s.linkMenu(ctx, res.Manifest.ID, entry)

	msg := fmt.Sprintf("Installed %s@%s", res.ModuleID, res.Manifest.Version)
	if err := s.advance(ctx, job, history.StatusCompleted, msg); err != nil {
		return finish(err)
	}
	logging.Info("importer", "module installed", "job_id", job.ID, "module", res.ModuleID, "version", res.Manifest.Version, "backup", backupPath)
	return finish(nil)
}

// install extracts the validated archive, snapshots the live module and swaps
// the new tree in. The live tree is untouched until the snapshot exists.
func (s *Service) install(res *validator.Result) (backupPath string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("install %s: panic: %v", res.ModuleID, r)
		}
	}()
	if _, err := s.installer.LiveDir(res.ModuleID); err != nil {
		return "", err
	}
	extracted, err := s.installer.Extract(res.Entries, res.ModuleRoot)
	if err != nil {
		return "", fmt.Errorf("extract archive: %w", err)
	}
	if err := installer.WriteManifest(extracted, res.Manifest); err != nil {
		_ = os.RemoveAll(extracted)
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if s.installer.Installed(res.ModuleID) {
		backupPath, err = s.installer.Backup(res.ModuleID, s.now())
		if err != nil {
			_ = os.RemoveAll(extracted)
			return "", err
		}
	}
	if err := s.installer.Swap(res.ModuleID, extracted); err != nil {
		_ = os.RemoveAll(extracted)
		return backupPath, err
	}
	return backupPath, nil
}

// advance moves the job to status and persists it.
func (s *Service) advance(ctx context.Context, job *Job, status history.Status, message string) error {
	if err := job.Transition(status, message, s.now()); err != nil {
		return err
	}
	if err := s.history.Update(ctx, *job); err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	s.publish(ctx, metrics.OpImport, job, message)
	return nil
}

// fail marks the job failed with message. It returns an error only when the
// failure could not be recorded.
func (s *Service) fail(ctx context.Context, job *Job, message string) error {
	job.ErrorMessage = message
	if err := job.Transition(history.StatusFailed, message, s.now()); err != nil {
		return err
	}
	if err := s.history.Update(ctx, *job); err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	s.publish(ctx, metrics.OpImport, job, message)
	return nil
}

func (s *Service) linkMenu(ctx context.Context, moduleID string, entry registry.Entry) {
	if s.menu == nil {
		return
	}
	if _, err := s.menu.UpsertModuleItem(ctx, entry.Manifest); err != nil {
		logging.Warn("importer", "menu link failed", "module", moduleID, "err", err)
	}
}
