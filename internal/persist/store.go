package persist

import (
	"context"
	stderrors "errors"
	"os"

	"subfeed/pkg/errors"
	"subfeed/pkg/redis"
)

// ErrNoSnapshot is returned by Load when nothing has been stored yet
var ErrNoSnapshot = stderrors.New("no snapshot stored")

// Store holds the single snapshot blob
type Store interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// FileStore keeps the snapshot in one JSON file
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store at path; the file is created on first Save
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the snapshot location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the snapshot file
func (s *FileStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSnapshot
		}
		return nil, errors.NewStorageError("Failed to read snapshot file", err)
	}
	return data, nil
}

// Save replaces the snapshot file atomically
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w, err := newAtomicWriter(s.path)
	if err != nil {
		return errors.NewStorageError("Failed to write snapshot file", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.abort()
		return errors.NewStorageError("Failed to write snapshot file", err)
	}
	if err := w.commit(); err != nil {
		return errors.NewStorageError("Failed to write snapshot file", err)
	}
	return nil
}

// RedisStore keeps the snapshot under one Redis key. Several processes may
// share it; the last Save wins.
type RedisStore struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore stores the snapshot of profile in client
func NewRedisStore(client *redis.Client, profile string) *RedisStore {
	return &RedisStore{client: client, key: client.KeyBuilder.KeySnapshot(profile)}
}

// Key returns the Redis key used
func (s *RedisStore) Key() string {
	return s.key
}

// Load fetches the snapshot
func (s *RedisStore) Load(ctx context.Context) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key)
	if err != nil {
		if stderrors.Is(err, redis.ErrNil) {
			return nil, ErrNoSnapshot
		}
		return nil, errors.NewStorageError("Failed to read snapshot from Redis", err)
	}
	return []byte(val), nil
}

// Save overwrites the snapshot without expiry
func (s *RedisStore) Save(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, string(data), 0); err != nil {
		return errors.NewStorageError("Failed to write snapshot to Redis", err)
	}
	return nil
}
