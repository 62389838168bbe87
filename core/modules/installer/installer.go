// Package installer performs the filesystem side of an import: extraction
// into an isolated work directory, snapshots of the live module, and the
// swap into place.
package installer

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cordum/modhost/core/modules/archive"
	"github.com/cordum/modhost/core/modules/manifest"
	"github.com/cordum/modhost/core/modules/pathpolicy"
)

var (
	// ErrUnsafePath is returned when an output path would leave its target directory.
	ErrUnsafePath = errors.New("unsafe path")
	// ErrExtractLimit is returned when extraction would exceed MaxExtractBytes.
	ErrExtractLimit = errors.New("archive expands beyond the extraction limit")
)

// backupLayout names snapshot directories; it sorts chronologically.
const backupLayout = "20060102T150405.000000000"

// Installer owns the modules tree, the backup tree and the scratch space.
type Installer struct {
	ModulesDir string
	BackupDir  string
	WorkDir    string
	// MaxExtractBytes bounds the bytes written by Extract. Zero disables it.
	MaxExtractBytes int64
}

// New returns an Installer. BackupDir is made absolute because snapshot
// paths are recorded on jobs and read back by later processes.
func New(modulesDir, backupDir, workDir string) *Installer {
	if abs, err := filepath.Abs(backupDir); err == nil {
		backupDir = abs
	}
	return &Installer{ModulesDir: modulesDir, BackupDir: backupDir, WorkDir: workDir}
}

// LiveDir is where moduleID is installed.
func (in *Installer) LiveDir(moduleID string) (string, error) {
	if err := checkModuleID(moduleID); err != nil {
		return "", err
	}
	return safeJoin(in.ModulesDir, moduleID)
}

// Installed reports whether moduleID has a live directory.
func (in *Installer) Installed(moduleID string) bool {
	dir, err := in.LiveDir(moduleID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Extract writes the entries under root into a fresh temporary directory and
// returns it. Paths are re-checked against the directory even though the
// validator already rejected traversal.
func (in *Installer) Extract(entries []archive.Entry, root string) (string, error) {
	if in.WorkDir != "" {
		if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
			return "", err
		}
	}
	tmp, err := os.MkdirTemp(in.WorkDir, "modhost-extract-")
	if err != nil {
		return "", err
	}
	budget := int64(-1)
	if in.MaxExtractBytes > 0 {
		budget = in.MaxExtractBytes
	}
	for _, e := range entries {
		if !pathpolicy.Within(e.Path, root) {
			continue
		}
		rel := strings.TrimSuffix(pathpolicy.Relative(e.Path, root), "/")
		if rel == "" {
			continue
		}
		target, err := safeJoin(tmp, filepath.FromSlash(rel))
		if err != nil {
			_ = os.RemoveAll(tmp)
			return "", err
		}
		if e.Dir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				_ = os.RemoveAll(tmp)
				return "", err
			}
			continue
		}
		written, err := writeEntry(e, target, budget)
		if err != nil {
			_ = os.RemoveAll(tmp)
			return "", fmt.Errorf("extract %s: %w", e.Path, err)
		}
		if budget >= 0 {
			budget -= written
		}
	}
	return tmp, nil
}

// writeEntry copies e to target. A non-negative budget is the number of
// bytes still allowed; the declared size is not trusted.
func writeEntry(e archive.Entry, target string, budget int64) (int64, error) {
	if budget >= 0 && e.Size > budget {
		return 0, ErrExtractLimit
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	src, err := e.Open()
	if err != nil {
		return 0, err
	}
	defer src.Close()
	// #nosec G304 -- target is confined to the extraction dir by safeJoin.
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	var n int64
	if budget >= 0 {
		n, err = io.CopyN(out, src, budget+1)
		if err == io.EOF {
			err = nil
		}
		if err == nil && n > budget {
			err = ErrExtractLimit
		}
	} else {
		n, err = io.Copy(out, src)
	}
	if err != nil {
		_ = out.Close()
		return n, err
	}
	return n, out.Close()
}

// WriteManifest writes m as module.json into dir, replacing any archived copy.
func WriteManifest(dir string, m manifest.Manifest) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifest.FileName), data, 0o644)
}

// Backup copies the live directory of moduleID into a new snapshot and
// returns its path. It returns "" when the module is not installed.
func (in *Installer) Backup(moduleID string, now time.Time) (string, error) {
	live, err := in.LiveDir(moduleID)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(live); err != nil || !info.IsDir() {
		if err != nil && !os.IsNotExist(err) {
			return "", err
		}
		return "", nil
	}
	dest := filepath.Join(in.BackupDir, moduleID, now.UTC().Format(backupLayout))
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup %s already exists", dest)
	}
	if err := CopyTree(live, dest); err != nil {
		_ = os.RemoveAll(dest)
		return "", fmt.Errorf("backup %s: %w", moduleID, err)
	}
	return dest, nil
}

// Swap replaces the live directory of moduleID with the extracted tree and
// removes the extracted tree.
func (in *Installer) Swap(moduleID, extracted string) error {
	live, err := in.LiveDir(moduleID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(live); err != nil {
		return err
	}
	if err := CopyTree(extracted, live); err != nil {
		return fmt.Errorf("install %s: %w", moduleID, err)
	}
	_ = os.RemoveAll(extracted)
	return nil
}

// Restore replaces the live directory of moduleID with a snapshot. The
// snapshot itself is left untouched.
func (in *Installer) Restore(moduleID, backupPath string) error {
	info, err := os.Stat(backupPath)
	if err != nil {
		return fmt.Errorf("backup %s: %w", backupPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup %s is not a directory", backupPath)
	}
	live, err := in.LiveDir(moduleID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(live); err != nil {
		return err
	}
	if err := CopyTree(backupPath, live); err != nil {
		return fmt.Errorf("restore %s: %w", moduleID, err)
	}
	return nil
}

// ReadManifest loads module.json from an installed or restored tree.
func ReadManifest(dir string) (manifest.Manifest, error) {
	// #nosec G304 -- dir is a module directory managed by the installer.
	data, err := os.ReadFile(filepath.Join(dir, manifest.FileName))
	if err != nil {
		return manifest.Manifest{}, err
	}
	return manifest.Parse(data)
}

// CopyTree copies regular files and directories from src into dst.
func CopyTree(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	// #nosec G304 -- src is walked from a managed tree.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func checkModuleID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || pathpolicy.IsTraversal(id) {
		return fmt.Errorf("%w: module id %q", ErrUnsafePath, id)
	}
	return nil
}

func safeJoin(base, name string) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(name))
	if clean == "." || clean == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute path %s", ErrUnsafePath, name)
	}
	target := filepath.Join(base, clean)
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}
