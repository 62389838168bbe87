// Package archive reads and writes zip module archives.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEntryTooLarge is returned when an entry exceeds the caller's read limit.
var ErrEntryTooLarge = errors.New("archive entry exceeds size limit")

// Entry is a single archive member. Content is read lazily through Open.
type Entry struct {
	Path string
	Dir  bool
	Size int64
	open func() (io.ReadCloser, error)
}

// Open returns a reader over the entry content.
func (e Entry) Open() (io.ReadCloser, error) {
	if e.open == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return e.open()
}

// ReadAll reads the whole entry, refusing content larger than limit bytes.
// A limit <= 0 disables the check.
func (e Entry) ReadAll(limit int64) ([]byte, error) {
	if limit > 0 && e.Size > limit {
		return nil, fmt.Errorf("%s: %w", e.Path, ErrEntryTooLarge)
	}
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	src := io.Reader(rc)
	if limit > 0 {
		src = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w", e.Path, ErrEntryTooLarge)
	}
	return data, nil
}

// NewEntry builds an in-memory entry, mainly for callers that synthesize
// entry lists without a zip container.
func NewEntry(path string, content []byte) Entry {
	dir := strings.HasSuffix(path, "/")
	data := append([]byte(nil), content...)
	return Entry{
		Path: path,
		Dir:  dir,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil },
	}
}

// Reader exposes the entries of an opened zip archive in directory order.
type Reader struct {
	closer  io.Closer
	entries []Entry
}

// Open opens the zip archive at path. Entries with insecure names are kept:
// rejecting them is the validator's job, with a precise error code.
func Open(path string) (*Reader, error) {
	// #nosec G304 -- path is the uploaded archive handed over by the caller.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open archive: %w", err)
	}
	r, err := NewReader(f, info.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewReader reads a zip archive from r. The caller keeps ownership of r.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Reader{entries: entriesOf(zr)}, nil
}

func entriesOf(zr *zip.Reader) []Entry {
	out := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		f := f
		out = append(out, Entry{
			Path: f.Name,
			Dir:  f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/"),
			Size: int64(f.UncompressedSize64),
			open: f.Open,
		})
	}
	return out
}

// Entries returns the archive members.
func (r *Reader) Entries() []Entry {
	if r == nil {
		return nil
	}
	return r.entries
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// File is a named blob written by WriteFiles.
type File struct {
	Name string
	Body []byte
}

// WriteFiles writes files to w as a zip archive, in the given order. Names
// ending in "/" become directory entries.
func WriteFiles(w io.Writer, files []File) error {
	zw := zip.NewWriter(w)
	for _, f := range files {
		if strings.HasSuffix(f.Name, "/") {
			if _, err := zw.Create(f.Name); err != nil {
				return err
			}
			continue
		}
		fw, err := zw.Create(f.Name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(f.Body); err != nil {
			return err
		}
	}
	return zw.Close()
}

// WriteDir archives every regular file below dir, with entry names prefixed
// by prefix (for example the module id). Entries are sorted by name.
func WriteDir(w io.Writer, dir, prefix string) error {
	prefix = strings.Trim(filepath.ToSlash(prefix), "/")
	files := []File{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		// #nosec G304 -- walking an operator-selected module directory.
		body, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if prefix != "" {
			name = prefix + "/" + name
		}
		files = append(files, File{Name: name, Body: body})
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return WriteFiles(w, files)
}
