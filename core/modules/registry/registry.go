// Package registry persists the set of installed modules and regenerates the
// route aggregation file the host application imports.
package registry

import (
	"errors"
	"fmt"
	"time"

	"github.com/cordum/modhost/core/modules/manifest"
)

// Status of an installed module.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var (
	ErrDuplicateID       = errors.New("duplicate module id")
	ErrDuplicateBasePath = errors.New("duplicate module basePath")
)

// Entry is an installed module: its manifest plus install metadata.
type Entry struct {
	manifest.Manifest
	InstalledAt time.Time `json:"installedAt"`
	InstalledBy string    `json:"installedBy,omitempty"`
	Status      Status    `json:"status"`
}

// NewEntry builds an active entry for m installed now by installedBy. A
// missing routeExport is derived from the module id.
func NewEntry(m manifest.Manifest, installedBy string, now time.Time) Entry {
	if m.RouteExport == "" {
		m.RouteExport = manifest.DeriveRouteExport(m.ID)
	}
	return Entry{
		Manifest:    m,
		InstalledAt: now.UTC(),
		InstalledBy: installedBy,
		Status:      StatusActive,
	}
}

// Find returns the entry with the given id.
func Find(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Replace drops any entry with e's id and appends e.
func Replace(entries []Entry, e Entry) []Entry {
	out := make([]Entry, 0, len(entries)+1)
	for _, existing := range entries {
		if existing.ID != e.ID {
			out = append(out, existing)
		}
	}
	return append(out, e)
}

// CheckInvariants verifies ids are unique and no two modules share a basePath.
func CheckInvariants(entries []Entry) error {
	ids := make(map[string]struct{}, len(entries))
	basePaths := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		ids[e.ID] = struct{}{}
		if e.BasePath == "" {
			continue
		}
		if owner, dup := basePaths[e.BasePath]; dup {
			return fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateBasePath, e.BasePath, owner, e.ID)
		}
		basePaths[e.BasePath] = e.ID
	}
	return nil
}
