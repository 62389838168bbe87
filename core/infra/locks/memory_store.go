package locks

import (
	"context"
	"sync"
	"time"
)

type memoryLock struct {
	owner     string
	expiresAt time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: map[string]memoryLock{}, now: time.Now}
}

func (s *MemoryStore) Acquire(_ context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := normalizeArgs(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if cur, ok := s.locks[resource]; ok && cur.owner != owner && now.Before(cur.expiresAt) {
		return false, nil
	}
	s.locks[resource] = memoryLock{owner: owner, expiresAt: now.Add(normalizeTTL(ttl))}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, resource, owner string) (bool, error) {
	resource, owner, err := normalizeArgs(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.locks[resource]
	if !ok || cur.owner != owner {
		return false, nil
	}
	delete(s.locks, resource)
	return true, nil
}
