package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cordum/modhost/core/infra/docstore"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(docstore.NewFileStore(t.TempDir()), "import-history.json")
}

func TestJobTransitions(t *testing.T) {
	now := time.Unix(100, 0)
	job := NewJob("j1", "admin", "widgets.zip", 10, now)
	if job.Status != StatusPending || len(job.Timeline) != 1 {
		t.Fatalf("unexpected new job: %+v", job)
	}
	for _, next := range []Status{StatusValidating, StatusImporting, StatusCompleted} {
		if err := job.Transition(next, "", now); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if len(job.Timeline) != 4 {
		t.Fatalf("expected 4 timeline entries, got %d", len(job.Timeline))
	}
	if err := job.Transition(StatusFailed, "late", now); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
}

func TestJobRejectsSkippedStates(t *testing.T) {
	job := NewJob("j1", "", "", 0, time.Now())
	if err := job.Transition(StatusCompleted, "", time.Now()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if err := job.Transition(StatusFailed, "too big", time.Now()); err != nil {
		t.Fatalf("pending -> failed should be allowed: %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusValidating, true},
		{StatusValidating, StatusFailed, true},
		{StatusImporting, StatusFailed, true},
		{StatusPending, StatusImporting, false},
		{StatusRolledBack, StatusPending, false},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v", tc.from, tc.to, tc.want)
		}
	}
}

func TestStoreMissingDocumentIsEmpty(t *testing.T) {
	jobs, err := newTestStore(t).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if jobs == nil || len(jobs) != 0 {
		t.Fatalf("expected empty history, got %+v", jobs)
	}
}

func TestStorePrependNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Prepend(ctx, *NewJob(id, "", "", 0, time.Now())); err != nil {
			t.Fatalf("prepend %s: %v", id, err)
		}
	}
	jobs, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 3 || jobs[0].ID != "c" || jobs[2].ID != "a" {
		t.Fatalf("unexpected order: %+v", jobs)
	}
}

func TestStoreUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	job := NewJob("j1", "", "widgets.zip", 3, time.Now())
	if err := store.Prepend(ctx, *job); err != nil {
		t.Fatalf("prepend: %v", err)
	}
	_ = job.Transition(StatusFailed, "boom", time.Now())
	job.ErrorMessage = "boom"
	if err := store.Update(ctx, *job); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.ErrorMessage != "boom" || len(got.Timeline) != 2 {
		t.Fatalf("unexpected stored job: %+v", got)
	}
	got.ErrorMessage = "rewritten"
	if err := store.Update(ctx, got); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected terminal jobs to be immutable, got %v", err)
	}
	if err := store.Update(ctx, Job{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListByModule(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jobs := []Job{{ID: "1", ModuleID: "widgets"}, {ID: "2", ModuleID: "tools"}, {ID: "3", ModuleID: "widgets"}}
	if err := store.Save(ctx, jobs); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.ListByModule(ctx, "widgets")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "3" {
		t.Fatalf("unexpected jobs: %+v", got)
	}
}

func TestBackupCandidate(t *testing.T) {
	base := time.Unix(1000, 0)
	jobs := []Job{
		{ID: "new-no-backup", ModuleID: "widgets", CreatedAt: base.Add(3 * time.Hour)},
		{ID: "older", ModuleID: "widgets", CreatedAt: base, BackupPath: filepath.Join("b", "1")},
		{ID: "newer", ModuleID: "widgets", CreatedAt: base.Add(time.Hour), BackupPath: filepath.Join("b", "2")},
		{ID: "other", ModuleID: "tools", CreatedAt: base.Add(2 * time.Hour), BackupPath: "x"},
	}
	got, ok := BackupCandidate(jobs, "widgets", "")
	if !ok || got.ID != "newer" {
		t.Fatalf("expected newest backup, got %+v ok=%v", got, ok)
	}
	got, ok = BackupCandidate(jobs, "widgets", "older")
	if !ok || got.ID != "older" {
		t.Fatalf("expected requested job, got %+v ok=%v", got, ok)
	}
	if _, ok := BackupCandidate(jobs, "widgets", "other"); ok {
		t.Fatalf("job of another module must not match")
	}
	if _, ok := BackupCandidate(jobs, "missing", ""); ok {
		t.Fatalf("expected no candidate")
	}
}
