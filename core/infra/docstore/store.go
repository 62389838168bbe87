// Package docstore persists whole JSON documents. Callers read an entire
// document, mutate it in memory and write it back; there are no partial
// updates.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Load when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Store loads and saves named documents.
type Store interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// ReadJSON decodes the named document into out. A missing document is not an
// error: found is false and out is left untouched.
func ReadJSON(ctx context.Context, s Store, name string, out any) (bool, error) {
	data, err := s.Load(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// WriteJSON encodes v as indented JSON and saves it under name.
func WriteJSON(ctx context.Context, s Store, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.Save(ctx, name, append(data, '\n'))
}
