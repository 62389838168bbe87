package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cordum/modhost/core/infra/redisutil"
)

const docKeyPrefix = "modhost:doc:"

// RedisStore keeps documents in Redis, wrapped in an envelope carrying a
// revision counter and the update time.
type RedisStore struct {
	client redis.UniversalClient
}

type envelope struct {
	Revision int64           `json:"revision"`
	Updated  time.Time       `json:"updated_at"`
	Data     json.RawMessage `json:"data"`
}

// NewRedisStore connects to Redis at url.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Close shuts down the Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Load fetches a document's payload.
func (s *RedisStore) Load(ctx context.Context, name string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("document store unavailable")
	}
	raw, err := s.client.Get(ctx, docKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s envelope: %w", name, err)
	}
	return env.Data, nil
}

// Save overwrites a document, bumping its revision. The single SET replaces
// the value atomically.
func (s *RedisStore) Save(ctx context.Context, name string, data []byte) error {
	if s == nil || s.client == nil {
		return errors.New("document store unavailable")
	}
	if !json.Valid(data) {
		return fmt.Errorf("save %s: payload is not valid json", name)
	}
	rev, err := s.Revision(ctx, name)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope{Revision: rev + 1, Updated: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", name, err)
	}
	return s.client.Set(ctx, docKey(name), payload, 0).Err()
}

// Revision returns the current revision of a document, zero when missing.
func (s *RedisStore) Revision(ctx context.Context, name string) (int64, error) {
	raw, err := s.client.Get(ctx, docKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return 0, fmt.Errorf("decode %s envelope: %w", name, err)
	}
	return env.Revision, nil
}

func docKey(name string) string {
	return docKeyPrefix + strings.TrimSpace(name)
}
