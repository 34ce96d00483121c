package rl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrVersionConflict reports that another pass saved the table between our
// read and write. The caller re-reads and retries.
var ErrVersionConflict = errors.New("q-table version conflict")

// Store persists the Q-table as one serialized mapping guarded by a version
// counter, so concurrent department passes cannot silently drop each other's
// updates.
type Store interface {
	Load(ctx context.Context) (Table, int64, error)
	Save(ctx context.Context, table Table, version int64) error
}

// RedisStore keeps the table under a single key with a companion version
// counter, written together inside a WATCH transaction.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) versionKey() string {
	return s.key + ":version"
}

func (s *RedisStore) Load(ctx context.Context) (Table, int64, error) {
	payload, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Table{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load q-table: %w", err)
	}

	var table Table
	if err := json.Unmarshal(payload, &table); err != nil {
		return nil, 0, fmt.Errorf("decode q-table: %w", err)
	}

	version, err := s.client.Get(ctx, s.versionKey()).Int64()
	if errors.Is(err, redis.Nil) {
		version = 0
	} else if err != nil {
		return nil, 0, fmt.Errorf("load q-table version: %w", err)
	}
	return table, version, nil
}

func (s *RedisStore) Save(ctx context.Context, table Table, version int64) error {
	payload, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("encode q-table: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, s.versionKey()).Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != version {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.key, payload, 0)
			pipe.Incr(ctx, s.versionKey())
			return nil
		})
		return err
	}, s.key, s.versionKey())

	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

// MemoryStore is the in-process implementation used by tests and by
// single-node deployments without redis.
type MemoryStore struct {
	mu      sync.Mutex
	table   Table
	version int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{table: Table{}}
}

func (s *MemoryStore) Load(ctx context.Context) (Table, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Clone(), s.version, nil
}

func (s *MemoryStore) Save(ctx context.Context, table Table, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version != s.version {
		return ErrVersionConflict
	}
	s.table = table.Clone()
	s.version++
	return nil
}
