package history

import (
	"context"
	"fmt"
	"sort"

	"github.com/cordum/modhost/core/infra/docstore"
)

// Store keeps the import history document, newest job first. Every mutation
// rewrites the whole document.
type Store struct {
	docs    docstore.Store
	docName string
}

func NewStore(docs docstore.Store, docName string) *Store {
	return &Store{docs: docs, docName: docName}
}

// Load returns all jobs, newest first. A missing document is an empty history.
func (s *Store) Load(ctx context.Context) ([]Job, error) {
	jobs := []Job{}
	if _, err := docstore.ReadJSON(ctx, s.docs, s.docName, &jobs); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if jobs == nil {
		jobs = []Job{}
	}
	return jobs, nil
}

// Save replaces the history document.
func (s *Store) Save(ctx context.Context, jobs []Job) error {
	if jobs == nil {
		jobs = []Job{}
	}
	if err := docstore.WriteJSON(ctx, s.docs, s.docName, jobs); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}

// Prepend records a new job at the head of the history.
func (s *Store) Prepend(ctx context.Context, job Job) error {
	jobs, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return s.Save(ctx, append([]Job{job}, jobs...))
}

// Update replaces the stored job with the same id. Jobs already stored in a
// terminal state are never rewritten.
func (s *Store) Update(ctx context.Context, job Job) error {
	jobs, err := s.Load(ctx)
	if err != nil {
		return err
	}
	for i := range jobs {
		if jobs[i].ID != job.ID {
			continue
		}
		if jobs[i].Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrTerminal, job.ID, jobs[i].Status)
		}
		jobs[i] = job
		return s.Save(ctx, jobs)
	}
	return fmt.Errorf("%w: job %s", ErrNotFound, job.ID)
}

// Get returns the job with the given id.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	jobs, err := s.Load(ctx)
	if err != nil {
		return Job{}, err
	}
	if job, ok := findJob(jobs, id); ok {
		return job, nil
	}
	return Job{}, fmt.Errorf("%w: job %s", ErrNotFound, id)
}

// ListByModule returns the jobs for moduleID, newest first.
func (s *Store) ListByModule(ctx context.Context, moduleID string) ([]Job, error) {
	jobs, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	out := []Job{}
	for _, j := range jobs {
		if j.ModuleID == moduleID {
			out = append(out, j)
		}
	}
	return out, nil
}

func findJob(jobs []Job, id string) (Job, bool) {
	for _, j := range jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// BackupCandidate picks the most recent job for moduleID that captured a
// backup. When jobID is set only that job is considered.
func BackupCandidate(jobs []Job, moduleID, jobID string) (Job, bool) {
	candidates := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		if j.ModuleID != moduleID || j.BackupPath == "" {
			continue
		}
		if jobID != "" && j.ID != jobID {
			continue
		}
		candidates = append(candidates, j)
	}
	if len(candidates) == 0 {
		return Job{}, false
	}
	sort.SliceStable(candidates, func(i, k int) bool {
		return candidates[i].CreatedAt.After(candidates[k].CreatedAt)
	})
	return candidates[0], true
}
