// Package locks provides exclusive, expiring locks keyed by resource name.
package locks

import (
	"context"
	"errors"
	"strings"
	"time"
)

const defaultTTL = 60 * time.Second

var errInvalidArgs = errors.New("resource and owner required")

// Store grants exclusive locks. Acquire is reentrant for the same owner and
// refreshes the TTL; it reports false when another owner holds the lock.
type Store interface {
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, resource, owner string) (bool, error)
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}

func normalizeArgs(resource, owner string) (string, string, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return "", "", errInvalidArgs
	}
	return resource, owner, nil
}
