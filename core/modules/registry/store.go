package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cordum/modhost/core/infra/docstore"
	"github.com/cordum/modhost/core/infra/logging"
	"github.com/cordum/modhost/core/modules/manifest"
)

const bootstrapActor = "bootstrap"

// Store reads and writes the registry document. Every successful write
// regenerates the route artifact in full.
type Store struct {
	docs         docstore.Store
	docName      string
	modulesDir   string
	artifactPath string
}

// NewStore builds a registry store. modulesDir is scanned when the registry
// is empty; artifactPath may be empty to skip route generation.
func NewStore(docs docstore.Store, docName, modulesDir, artifactPath string) *Store {
	return &Store{docs: docs, docName: docName, modulesDir: modulesDir, artifactPath: artifactPath}
}

// Load returns the installed modules. An empty registry is rebuilt from the
// module.json files found under the modules directory.
func (s *Store) Load(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if _, err := docstore.ReadJSON(ctx, s.docs, s.docName, &entries); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if len(entries) > 0 {
		return entries, nil
	}
	scanned, err := s.scan()
	if err != nil {
		return nil, fmt.Errorf("bootstrap registry: %w", err)
	}
	if len(scanned) == 0 {
		return []Entry{}, nil
	}
	if err := s.Save(ctx, scanned); err != nil {
		return nil, fmt.Errorf("bootstrap registry: %w", err)
	}
	logging.Info("registry", "bootstrapped from modules dir", "dir", s.modulesDir, "modules", len(scanned))
	return scanned, nil
}

// Save validates and persists the registry, then rewrites the route artifact.
func (s *Store) Save(ctx context.Context, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	if err := CheckInvariants(entries); err != nil {
		return err
	}
	if err := docstore.WriteJSON(ctx, s.docs, s.docName, entries); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	if s.artifactPath == "" {
		return nil
	}
	artifact, err := RenderRoutes(entries, s.importBase())
	if err != nil {
		return err
	}
	if err := docstore.WriteFileAtomic(s.artifactPath, artifact, 0o644); err != nil {
		return fmt.Errorf("write route artifact: %w", err)
	}
	return nil
}

// importBase is the import prefix from the artifact's folder to the modules
// directory.
func (s *Store) importBase() string {
	if s.modulesDir == "" {
		return "."
	}
	rel, err := filepath.Rel(filepath.Dir(s.artifactPath), s.modulesDir)
	if err != nil {
		return filepath.ToSlash(s.modulesDir)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || filepath.IsAbs(rel) || len(rel) >= 3 && rel[:3] == "../" {
		return rel
	}
	return "./" + rel
}

// scan synthesizes entries from <modulesDir>/<id>/module.json files.
func (s *Store) scan() ([]Entry, error) {
	if s.modulesDir == "" {
		return nil, nil
	}
	dirs, err := os.ReadDir(s.modulesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := []Entry{}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		path := filepath.Join(s.modulesDir, d.Name(), manifest.FileName)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		// #nosec G304 -- scanning the configured modules directory.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		m, err := manifest.Parse(data)
		if err != nil {
			logging.Warn("registry", "skip unreadable manifest", "path", path, "err", err)
			continue
		}
		if m.ID == "" {
			m.ID = d.Name()
		}
		if _, dup := Find(out, m.ID); dup {
			logging.Warn("registry", "skip duplicate module id", "path", path, "id", m.ID)
			continue
		}
		out = append(out, NewEntry(m, bootstrapActor, info.ModTime()))
	}
	if err := CheckInvariants(out); err != nil {
		return nil, err
	}
	return out, nil
}
