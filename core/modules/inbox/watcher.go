// Package inbox turns archives dropped into a directory into import jobs.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cordum/modhost/core/infra/logging"
	"github.com/cordum/modhost/core/modules/importer"
	"github.com/cordum/modhost/core/modules/manifest"
)

const (
	archiveExt      = ".zip"
	overridesSuffix = ".overrides.yaml"
	rejectedSuffix  = ".rejected"
	defaultSettle   = 500 * time.Millisecond
	defaultActor    = "inbox"
)

// Importer is the part of the import service the inbox drives.
type Importer interface {
	Import(ctx context.Context, req importer.Request) (*importer.Job, error)
}

// Config controls a Watcher.
type Config struct {
	Dir string
	// RequestedBy is recorded as the job creator.
	RequestedBy string
	// Settle is how long an archive must go without writes before import.
	Settle time.Duration
}

// Watcher imports every *.zip that lands in Dir, one at a time. A sidecar
// "<name>.overrides.yaml" supplies manifest overrides for "<name>.zip".
type Watcher struct {
	dir         string
	requestedBy string
	settle      time.Duration
	imp         Importer
}

func New(cfg Config, imp Importer) *Watcher {
	w := &Watcher{dir: cfg.Dir, requestedBy: cfg.RequestedBy, settle: cfg.Settle, imp: imp}
	if w.requestedBy == "" {
		w.requestedBy = defaultActor
	}
	if w.settle <= 0 {
		w.settle = defaultSettle
	}
	return w
}

// Run processes archives already in the inbox, then watches for new ones
// until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}
	logging.Info("inbox", "watching", "dir", w.dir)

	if err := w.Scan(ctx); err != nil {
		logging.Error("inbox", "initial scan failed", "err", err)
	}

	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !isArchive(evt.Name) {
				continue
			}
			switch {
			case evt.Has(fsnotify.Remove), evt.Has(fsnotify.Rename):
				delete(pending, evt.Name)
			case evt.Has(fsnotify.Create), evt.Has(fsnotify.Write):
				pending[evt.Name] = time.Now()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logging.Warn("inbox", "watch error", "err", err)
		case now := <-ticker.C:
			for _, path := range due(pending, now, w.settle) {
				delete(pending, path)
				w.process(ctx, path)
			}
		}
	}
}

// due returns the pending paths quiet for at least settle, in name order.
func due(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	out := []string{}
	for path, seen := range pending {
		if now.Sub(seen) >= settle {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// Scan imports every archive currently in the inbox.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !isArchive(e.Name()) {
			continue
		}
		w.process(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *Watcher) process(ctx context.Context, path string) {
	job, err := w.Process(ctx, path)
	switch {
	case err != nil:
		logging.Error("inbox", "import failed", "file", path, "err", err)
	case job != nil:
		logging.Info("inbox", "import finished", "file", filepath.Base(path), "job_id", job.ID, "status", job.Status, "module", job.ModuleID)
	}
}

// Process imports one archive. Archives with an unreadable overrides sidecar
// are renamed with a ".rejected" suffix and never imported.
func (w *Watcher) Process(ctx context.Context, path string) (*importer.Job, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sidecar := OverridesPath(path)
	overrides, err := readOverrides(sidecar)
	if err != nil {
		if renameErr := os.Rename(path, path+rejectedSuffix); renameErr != nil {
			logging.Warn("inbox", "reject rename failed", "file", path, "err", renameErr)
		}
		return nil, fmt.Errorf("overrides %s: %w", filepath.Base(sidecar), err)
	}
	job, err := w.imp.Import(ctx, importer.Request{
		ArchivePath: path,
		FileName:    filepath.Base(path),
		FileSize:    info.Size(),
		RequestedBy: w.requestedBy,
		Overrides:   overrides,
	})
	_ = os.Remove(sidecar)
	return job, err
}

// OverridesPath is the sidecar consulted for archivePath.
func OverridesPath(archivePath string) string {
	return strings.TrimSuffix(archivePath, filepath.Ext(archivePath)) + overridesSuffix
}

func readOverrides(path string) (*manifest.Overrides, error) {
	// #nosec G304 -- sidecar next to an inbox archive.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return manifest.ParseOverrides(data)
}

func isArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), archiveExt)
}
