package importer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cordum/modhost/core/infra/bus"
	"github.com/cordum/modhost/core/infra/config"
	"github.com/cordum/modhost/core/infra/docstore"
	"github.com/cordum/modhost/core/modules/archive"
	"github.com/cordum/modhost/core/modules/history"
	"github.com/cordum/modhost/core/modules/installer"
	"github.com/cordum/modhost/core/modules/menu"
	"github.com/cordum/modhost/core/modules/registry"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type sequence struct {
	mu sync.Mutex
	n  int
}

func (s *sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("job-%d", s.n)
}

type recorder struct {
	mu     sync.Mutex
	events []bus.JobEvent
}

func (r *recorder) PublishJobEvent(_ context.Context, evt bus.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) statuses(jobID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, evt := range r.events {
		if evt.JobID == jobID {
			out = append(out, evt.Status)
		}
	}
	return out
}

type fixture struct {
	t          *testing.T
	dir        string
	modulesDir string
	artifact   string
	docs       docstore.Store
	registry   *registry.Store
	history    *history.Store
	menu       *menu.Store
	installer  *installer.Installer
	events     *recorder
	svc        *Service
}

func newFixture(t *testing.T, configure ...func(*Options)) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{t: t, dir: dir}
	f.modulesDir = filepath.Join(dir, "src", "modules")
	f.artifact = filepath.Join(f.modulesDir, "generated-routes.ts")
	f.docs = docstore.NewFileStore(dir)
	f.build(configure...)
	return f
}

func (f *fixture) build(configure ...func(*Options)) {
	f.registry = registry.NewStore(f.docs, "registry.json", f.modulesDir, f.artifact)
	f.history = history.NewStore(f.docs, "import-history.json")
	f.menu = menu.NewStore(f.docs, "menu.json")
	f.installer = installer.New(f.modulesDir, filepath.Join(f.dir, "backups"), filepath.Join(f.dir, "tmp"))
	f.events = &recorder{}
	clock := &stepClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	ids := &sequence{}
	opts := Options{
		Registry:  f.registry,
		History:   f.history,
		Installer: f.installer,
		Policy:    config.DefaultPolicy(),
		Menu:      f.menu,
		Events:    f.events,
		Now:       clock.Now,
		NewID:     ids.Next,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	f.svc = New(opts)
}

func widgetsManifest(version string) string {
	return fmt.Sprintf(`{
  "id": "widgets",
  "name": "Widgets",
  "version": %q,
  "basePath": "/widgets",
  "entry": "index.tsx",
  "routes": "routes.tsx",
  "permissions": ["widgets.read"],
  "ui": {"menuLabel": "Widgets", "menuPath": "/widgets", "icon": "box"},
  "routeExport": "widgetsRoute"
}`, version)
}

func widgetsFiles(version string, extra ...archive.File) []archive.File {
	files := []archive.File{
		{Name: "widgets/"},
		{Name: "widgets/module.json", Body: []byte(widgetsManifest(version))},
		{Name: "widgets/index.tsx", Body: []byte("export default '" + version + "'")},
		{Name: "widgets/routes.tsx", Body: []byte("export const widgetsRoute = {}")},
	}
	return append(files, extra...)
}

// upload writes files as a zip under the uploads dir and returns a request for it.
func (f *fixture) upload(name string, files []archive.File) Request {
	f.t.Helper()
	var buf bytes.Buffer
	if err := archive.WriteFiles(&buf, files); err != nil {
		f.t.Fatalf("write archive: %v", err)
	}
	uploads := filepath.Join(f.dir, "uploads")
	if err := os.MkdirAll(uploads, 0o755); err != nil {
		f.t.Fatalf("mkdir uploads: %v", err)
	}
	path := filepath.Join(uploads, fmt.Sprintf("%d-%s", time.Now().UnixNano(), name))
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		f.t.Fatalf("write upload: %v", err)
	}
	return Request{ArchivePath: path, FileName: name, FileSize: int64(buf.Len()), RequestedBy: "admin"}
}

func (f *fixture) mustImport(req Request) *Job {
	f.t.Helper()
	job, err := f.svc.Import(context.Background(), req)
	if err != nil {
		f.t.Fatalf("import: %v", err)
	}
	if job.Status != history.StatusCompleted {
		f.t.Fatalf("expected completed job, got %s (%s)", job.Status, job.ErrorMessage)
	}
	return job
}

func (f *fixture) liveTree() map[string]string {
	f.t.Helper()
	root := filepath.Join(f.modulesDir, "widgets")
	out := map[string]string{}
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(root, p)
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		f.t.Fatalf("walk live tree: %v", err)
	}
	return out
}

func (f *fixture) registryVersion(id string) string {
	f.t.Helper()
	entries, err := f.registry.Load(context.Background())
	if err != nil {
		f.t.Fatalf("load registry: %v", err)
	}
	e, ok := registry.Find(entries, id)
	if !ok {
		return ""
	}
	return e.Version
}

func timelineStatuses(job *Job) []history.Status {
	out := make([]history.Status, 0, len(job.Timeline))
	for _, evt := range job.Timeline {
		out = append(out, evt.Status)
	}
	return out
}

func equalTrees(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
