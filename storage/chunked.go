package storage

import (
	"context"
	"fmt"
	"strconv"
	"unicode/utf8"
)

const sequenceSuffix = "_sequence"

// ChunkedStore stores values larger than the backend's per-record limit as
// numbered chunks key_0..key_n plus a key_sequence record holding n.
// Values at or under the limit are stored as a single record.
type ChunkedStore struct {
	backend Backend
}

// NewChunkedStore wraps backend.
func NewChunkedStore(backend Backend) *ChunkedStore {
	return &ChunkedStore{backend: backend}
}

func sequenceKey(key string) string { return key + sequenceSuffix }

func chunkKey(key string, i int) string { return key + "_" + strconv.Itoa(i) }

// Put replaces whatever is stored under key with value. The new records are
// written before the old ones are dropped, so a failed write of a value that
// was not chunked before leaves that value readable.
func (s *ChunkedStore) Put(ctx context.Context, key, value string) error {
	oldLast, wasChunked, err := s.sequence(ctx, key)
	if err != nil {
		return err
	}

	limit := s.backend.MaxValueSize()
	if len(value) <= limit {
		if err := s.backend.Put(ctx, key, value); err != nil {
			return fmt.Errorf("store: put %q: %w", key, err)
		}
		if !wasChunked {
			return nil
		}
		if err := s.backend.Delete(ctx, sequenceKey(key)); err != nil {
			return fmt.Errorf("store: delete sequence of %q: %w", key, err)
		}
		return s.deleteChunks(ctx, key, 0, oldLast)
	}

	chunks := splitChunks(value, limit)
	for i, c := range chunks {
		if err := s.backend.Put(ctx, chunkKey(key, i), c); err != nil {
			return fmt.Errorf("store: put chunk %d of %q: %w", i, key, err)
		}
	}
	last := len(chunks) - 1
	if err := s.backend.Put(ctx, sequenceKey(key), strconv.Itoa(last)); err != nil {
		return fmt.Errorf("store: put sequence of %q: %w", key, err)
	}

	if !wasChunked {
		if err := s.backend.Delete(ctx, key); err != nil {
			return fmt.Errorf("store: delete %q: %w", key, err)
		}
		return nil
	}
	return s.deleteChunks(ctx, key, last+1, oldLast)
}

func (s *ChunkedStore) deleteChunks(ctx context.Context, key string, from, to int) error {
	for i := from; i <= to; i++ {
		if err := s.backend.Delete(ctx, chunkKey(key, i)); err != nil {
			return fmt.Errorf("store: delete chunk %d of %q: %w", i, key, err)
		}
	}
	return nil
}

// Get returns the value under key, reassembling chunks when a sequence record exists.
func (s *ChunkedStore) Get(ctx context.Context, key string) (string, bool, error) {
	last, chunked, err := s.sequence(ctx, key)
	if err != nil {
		return "", false, err
	}
	if !chunked {
		v, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			return "", false, fmt.Errorf("store: get %q: %w", key, err)
		}
		return v, ok, nil
	}

	buf := make([]byte, 0, (last+1)*s.backend.MaxValueSize())
	for i := 0; i <= last; i++ {
		c, ok, err := s.backend.Get(ctx, chunkKey(key, i))
		if err != nil {
			return "", false, fmt.Errorf("store: get chunk %d of %q: %w", i, key, err)
		}
		if !ok {
			return "", false, fmt.Errorf("store: chunk %d of %q is missing", i, key)
		}
		buf = append(buf, c...)
	}
	return string(buf), true, nil
}

// Delete removes key, its sequence record and every chunk.
func (s *ChunkedStore) Delete(ctx context.Context, key string) error {
	last, chunked, err := s.sequence(ctx, key)
	if err != nil {
		return err
	}
	if chunked {
		if err := s.deleteChunks(ctx, key, 0, last); err != nil {
			return err
		}
		if err := s.backend.Delete(ctx, sequenceKey(key)); err != nil {
			return fmt.Errorf("store: delete sequence of %q: %w", key, err)
		}
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

func (s *ChunkedStore) sequence(ctx context.Context, key string) (int, bool, error) {
	raw, ok, err := s.backend.Get(ctx, sequenceKey(key))
	if err != nil {
		return 0, false, fmt.Errorf("store: get sequence of %q: %w", key, err)
	}
	if !ok {
		return 0, false, nil
	}
	last, err := strconv.Atoi(raw)
	if err != nil || last < 0 {
		return 0, false, fmt.Errorf("store: corrupt sequence record for %q: %q", key, raw)
	}
	return last, true, nil
}

// splitChunks cuts value into pieces of at most limit bytes without
// splitting a UTF-8 sequence.
func splitChunks(value string, limit int) []string {
	var chunks []string
	for len(value) > 0 {
		end := limit
		if end >= len(value) {
			chunks = append(chunks, value)
			break
		}
		for end > 0 && !utf8.RuneStart(value[end]) {
			end--
		}
		if end == 0 {
			end = limit
		}
		chunks = append(chunks, value[:end])
		value = value[end:]
	}
	return chunks
}
