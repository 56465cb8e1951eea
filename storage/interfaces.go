package storage

import "context"

// Backend is a key-value store that caps the size of a single value.
// Get reports a missing key with ok == false and a nil error.
type Backend interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
	MaxValueSize() int
	Close() error
}

// KV is the string store the repository is built on.
type KV interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
}
