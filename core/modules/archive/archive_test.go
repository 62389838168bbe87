package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteAndReadFiles(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFiles(&buf, []File{
		{Name: "widgets/"},
		{Name: "widgets/module.json", Body: []byte(`{"id":"widgets"}`)},
		{Name: "widgets/src/index.ts", Body: []byte("export {}")},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	entries := r.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].Dir || entries[1].Dir {
		t.Fatalf("unexpected dir flags: %#v", entries)
	}
	if entries[1].Path != "widgets/module.json" || entries[1].Size != int64(len(`{"id":"widgets"}`)) {
		t.Fatalf("unexpected entry: %#v", entries[1])
	}
	data, err := entries[2].ReadAll(0)
	if err != nil || string(data) != "export {}" {
		t.Fatalf("unexpected content %q err=%v", data, err)
	}
}

func TestReadAllLimit(t *testing.T) {
	e := NewEntry("big.ts", []byte("0123456789"))
	if _, err := e.ReadAll(4); !errors.Is(err, ErrEntryTooLarge) {
		t.Fatalf("expected ErrEntryTooLarge, got %v", err)
	}
	if data, err := e.ReadAll(10); err != nil || len(data) != 10 {
		t.Fatalf("expected full read, got %q %v", data, err)
	}
}

func TestOpenFromDisk(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "src"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "module.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "src", "a.ts"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	zipPath := filepath.Join(t.TempDir(), "widgets.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteDir(f, src, "widgets"); err != nil {
		t.Fatalf("write dir: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := Open(zipPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()
	names := []string{}
	for _, e := range r.Entries() {
		names = append(names, e.Path)
	}
	if len(names) != 2 || names[0] != "widgets/module.json" || names[1] != "widgets/src/a.ts" {
		t.Fatalf("unexpected entries %v", names)
	}
}

func TestOpenInvalidArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(path, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(path); err == nil {
		t.Fatalf("expected error for invalid archive")
	}
}
