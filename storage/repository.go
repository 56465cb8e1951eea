package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"room-triage/models"
)

const (
	keyMessages    = "messages"
	keyListings    = "properties"
	keyScored      = "properties_with_distances"
	keyScoredIndex = "properties_with_distances_index"
	keyCookies     = "cookies"
)

// Repository keeps the three logical collections (messages, listings, scored
// listings) as JSON arrays wrapped in {"data": [...]}. Identity comparisons
// are exact, so callers must store normalized URLs.
type Repository struct {
	kv KV
}

// NewRepository builds a repository on top of kv, normally a ChunkedStore.
func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

type collection[T any] struct {
	Data []T `json:"data"`
}

func load[T any](ctx context.Context, kv KV, key string) ([]T, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var c collection[T]
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("repository: decode %q: %w", key, err)
	}
	return c.Data, nil
}

func save[T any](ctx context.Context, kv KV, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(collection[T]{Data: items})
	if err != nil {
		return fmt.Errorf("repository: encode %q: %w", key, err)
	}
	return kv.Put(ctx, key, string(raw))
}

// Messages returns the stored inbox messages.
func (r *Repository) Messages(ctx context.Context) ([]models.Message, error) {
	return load[models.Message](ctx, r.kv, keyMessages)
}

// SaveMessages replaces the message collection.
func (r *Repository) SaveMessages(ctx context.Context, messages []models.Message) error {
	return save(ctx, r.kv, keyMessages, messages)
}

// UpsertMessages replaces stored messages with the same URL and appends new ones.
// It returns the resulting collection size.
func (r *Repository) UpsertMessages(ctx context.Context, messages ...models.Message) (int, error) {
	stored, err := r.Messages(ctx)
	if err != nil {
		return 0, err
	}
	for _, m := range messages {
		stored = upsert(stored, m, func(x models.Message) string { return x.URL })
	}
	return len(stored), r.SaveMessages(ctx, stored)
}

// DeleteMessages drops the messages with the given URLs and returns how many
// were removed.
func (r *Repository) DeleteMessages(ctx context.Context, urls ...string) (int, error) {
	stored, err := r.Messages(ctx)
	if err != nil {
		return 0, err
	}
	drop := make(map[string]bool, len(urls))
	for _, u := range urls {
		drop[u] = true
	}
	kept := stored[:0]
	for _, m := range stored {
		if !drop[m.URL] {
			kept = append(kept, m)
		}
	}
	removed := len(stored) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, r.SaveMessages(ctx, kept)
}

func (r *Repository) ClearMessages(ctx context.Context) error {
	return r.kv.Delete(ctx, keyMessages)
}

// Listings returns the stored listings.
func (r *Repository) Listings(ctx context.Context) ([]models.Listing, error) {
	return load[models.Listing](ctx, r.kv, keyListings)
}

// SaveListings replaces the listing collection.
func (r *Repository) SaveListings(ctx context.Context, listings []models.Listing) error {
	return save(ctx, r.kv, keyListings, listings)
}

// UpsertListings replaces stored listings with the same URL and appends new ones.
// It returns the resulting collection size.
func (r *Repository) UpsertListings(ctx context.Context, listings ...models.Listing) (int, error) {
	stored, err := r.Listings(ctx)
	if err != nil {
		return 0, err
	}
	for _, l := range listings {
		stored = upsert(stored, l, func(x models.Listing) string { return x.URL })
	}
	return len(stored), r.SaveListings(ctx, stored)
}

func (r *Repository) ClearListings(ctx context.Context) error {
	return r.kv.Delete(ctx, keyListings)
}

// ScoredListings returns the stored scored listings.
func (r *Repository) ScoredListings(ctx context.Context) ([]models.ScoredListing, error) {
	return load[models.ScoredListing](ctx, r.kv, keyScored)
}

// SaveScoredListings replaces the scored collection. Indexes are written as given.
func (r *Repository) SaveScoredListings(ctx context.Context, scored []models.ScoredListing) error {
	return save(ctx, r.kv, keyScored, scored)
}

// UpsertScored stores each scored listing keyed by URL. A listing already in
// the collection keeps its index; a new one gets the next value of the
// persisted counter. Indexes are written back into items.
func (r *Repository) UpsertScored(ctx context.Context, items ...*models.ScoredListing) error {
	stored, err := r.ScoredListings(ctx)
	if err != nil {
		return err
	}
	existing := make(map[string]int, len(stored))
	for _, s := range stored {
		existing[s.URL] = s.Index
	}

	next, err := r.lastIndex(ctx)
	if err != nil {
		return err
	}
	counterMoved := false
	for _, item := range items {
		if idx, ok := existing[item.URL]; ok {
			item.Index = idx
		} else {
			next++
			item.Index = next
			existing[item.URL] = next
			counterMoved = true
		}
		stored = upsert(stored, *item, func(x models.ScoredListing) string { return x.URL })
	}

	if counterMoved {
		if err := r.kv.Put(ctx, keyScoredIndex, strconv.Itoa(next)); err != nil {
			return fmt.Errorf("repository: save index counter: %w", err)
		}
	}
	return r.SaveScoredListings(ctx, stored)
}

// ClearScored drops the scored collection. The index counter is kept so
// indexes are never reused.
func (r *Repository) ClearScored(ctx context.Context) error {
	return r.kv.Delete(ctx, keyScored)
}

func (r *Repository) lastIndex(ctx context.Context) (int, error) {
	raw, ok, err := r.kv.Get(ctx, keyScoredIndex)
	if err != nil {
		return 0, err
	}
	if ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("repository: corrupt index counter %q", raw)
		}
		return n, nil
	}
	// No counter yet: continue after the highest index already stored.
	stored, err := r.ScoredListings(ctx)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, s := range stored {
		if s.Index > highest {
			highest = s.Index
		}
	}
	return highest, nil
}

// Removal counts what Remove deleted from each collection.
type Removal struct {
	MessageLinks int
	Messages     int
	Listings     int
	Scored       int
}

// Any reports whether anything was removed.
func (r Removal) Any() bool {
	return r.MessageLinks+r.Messages+r.Listings+r.Scored > 0
}

// Remove deletes url from every collection. Messages left without any
// listing URL are deleted too.
func (r *Repository) Remove(ctx context.Context, url string) (Removal, error) {
	var res Removal

	messages, err := r.Messages(ctx)
	if err != nil {
		return res, err
	}
	kept := messages[:0]
	for _, m := range messages {
		links := m.ListingURLs[:0]
		dropped := false
		for _, l := range m.ListingURLs {
			if l == url {
				res.MessageLinks++
				dropped = true
				continue
			}
			links = append(links, l)
		}
		m.ListingURLs = links
		if dropped && len(links) == 0 {
			res.Messages++
			continue
		}
		kept = append(kept, m)
	}
	if res.MessageLinks > 0 {
		if err := r.SaveMessages(ctx, kept); err != nil {
			return res, err
		}
	}

	listings, err := r.Listings(ctx)
	if err != nil {
		return res, err
	}
	listings, res.Listings = removeByURL(listings, url, func(x models.Listing) string { return x.URL })
	if res.Listings > 0 {
		if err := r.SaveListings(ctx, listings); err != nil {
			return res, err
		}
	}

	scored, err := r.ScoredListings(ctx)
	if err != nil {
		return res, err
	}
	scored, res.Scored = removeByURL(scored, url, func(x models.ScoredListing) string { return x.URL })
	if res.Scored > 0 {
		if err := r.SaveScoredListings(ctx, scored); err != nil {
			return res, err
		}
	}
	return res, nil
}

// Cookies returns the serialized browser session, if any.
func (r *Repository) Cookies(ctx context.Context) (string, bool, error) {
	return r.kv.Get(ctx, keyCookies)
}

func (r *Repository) SaveCookies(ctx context.Context, raw string) error {
	return r.kv.Put(ctx, keyCookies, raw)
}

func (r *Repository) ClearCookies(ctx context.Context) error {
	return r.kv.Delete(ctx, keyCookies)
}

func upsert[T any](items []T, item T, id func(T) string) []T {
	key := id(item)
	for i := range items {
		if id(items[i]) == key {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func removeByURL[T any](items []T, url string, id func(T) string) ([]T, int) {
	kept := items[:0]
	removed := 0
	for _, it := range items {
		if id(it) == url {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	return kept, removed
}
