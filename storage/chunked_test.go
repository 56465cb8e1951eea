package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// flakyBackend fails every Put to failKey.
type flakyBackend struct {
	*MemoryBackend
	failKey string
}

func (f *flakyBackend) Put(ctx context.Context, key, value string) error {
	if key == f.failKey {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Put(ctx, key, value)
}

func TestChunkedRoundTrip(t *testing.T) {
	const limit = 32
	ctx := context.Background()

	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"small", "hello"},
		{"exactly at limit", strings.Repeat("a", limit)},
		{"one over limit", strings.Repeat("b", limit+1)},
		{"exact multiple", strings.Repeat("c", limit*3)},
		{"several chunks", strings.Repeat("0123456789", 17)},
		{"multibyte", strings.Repeat("£200 pw — ", 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewChunkedStore(NewMemoryBackend(limit))
			if err := store.Put(ctx, "k", tt.value); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, ok, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !ok {
				t.Fatal("value not found")
			}
			if got != tt.value {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(tt.value))
			}
		})
	}
}

func TestChunkedLayout(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(10)
	store := NewChunkedStore(backend)

	if err := store.Put(ctx, "k", strings.Repeat("x", 25)); err != nil {
		t.Fatalf("put: %v", err)
	}

	seq, ok, _ := backend.Get(ctx, "k_sequence")
	if !ok || seq != "2" {
		t.Errorf("sequence record: got %q (present=%t), want \"2\"", seq, ok)
	}
	for _, key := range []string{"k_0", "k_1", "k_2"} {
		if _, ok, _ := backend.Get(ctx, key); !ok {
			t.Errorf("chunk %s missing", key)
		}
	}
	if _, ok, _ := backend.Get(ctx, "k"); ok {
		t.Error("chunked value should not leave a plain record")
	}
}

func TestChunkedAtLimitHasNoSequence(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(10)
	store := NewChunkedStore(backend)

	if err := store.Put(ctx, "k", strings.Repeat("y", 10)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok, _ := backend.Get(ctx, "k_sequence"); ok {
		t.Error("value at the limit must not be chunked")
	}
	if backend.Len() != 1 {
		t.Errorf("records: got %d, want 1", backend.Len())
	}
}

func TestChunkedDeleteRemovesEverything(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(8)
	store := NewChunkedStore(backend)

	if err := store.Put(ctx, "k", strings.Repeat("z", 40)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if backend.Len() != 0 {
		t.Errorf("records left after delete: %d", backend.Len())
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Error("deleted key still readable")
	}
}

func TestChunkedShrinkingValueDropsOldChunks(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(8)
	store := NewChunkedStore(backend)

	if err := store.Put(ctx, "k", strings.Repeat("long", 10)); err != nil {
		t.Fatalf("put long: %v", err)
	}
	if err := store.Put(ctx, "k", "short"); err != nil {
		t.Fatalf("put short: %v", err)
	}
	got, _, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "short" {
		t.Errorf("got %q, want %q", got, "short")
	}
	if backend.Len() != 1 {
		t.Errorf("stale chunks left: %d records", backend.Len())
	}
}

func TestChunkedFewerChunksDropsStaleOnes(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(8)
	store := NewChunkedStore(backend)

	if err := store.Put(ctx, "k", strings.Repeat("a", 40)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "k", strings.Repeat("b", 12)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, _, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != strings.Repeat("b", 12) {
		t.Errorf("got %q", got)
	}
	// k_0, k_1 and the sequence record
	if backend.Len() != 3 {
		t.Errorf("records: got %d, want 3", backend.Len())
	}
}

func TestChunkedFailedPutKeepsPreviousValue(t *testing.T) {
	ctx := context.Background()
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend(8), failKey: "k_2"}
	store := NewChunkedStore(backend)

	if err := store.Put(ctx, "k", "small"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Put(ctx, "k", strings.Repeat("x", 30)); err == nil {
		t.Fatal("expected the chunk write to fail")
	}

	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%t err=%v", ok, err)
	}
	if got != "small" {
		t.Errorf("got %q, want the previous value", got)
	}
}

func TestSplitChunksKeepsRunesWhole(t *testing.T) {
	value := strings.Repeat("££££", 5)
	for _, c := range splitChunks(value, 5) {
		if len(c) > 5 {
			t.Errorf("chunk over limit: %d bytes", len(c))
		}
		if !strings.HasPrefix(c, "£") {
			t.Errorf("chunk starts mid-rune: %q", c)
		}
	}
}
