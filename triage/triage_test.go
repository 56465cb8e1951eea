package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-triage/config"
	"room-triage/models"
	"room-triage/services"
	"room-triage/storage"
	"room-triage/utils"
)

const root = "https://www.spareroom.co.uk"

type tagCall struct {
	url string
	tag models.Tag
}

type fakeSite struct {
	messages   []models.Message
	harvestErr error
	listings   map[string]*models.Listing
	extractErr map[string]error
	search     []string
	tagErr     error

	extracted []string
	marked    []string
	tags      []tagCall
}

func newFakeSite() *fakeSite {
	return &fakeSite{listings: map[string]*models.Listing{}, extractErr: map[string]error{}}
}

func (f *fakeSite) Harvest(context.Context) ([]models.Message, error) {
	return f.messages, f.harvestErr
}

func (f *fakeSite) Extract(_ context.Context, url string, sender, messageURL *string) (*models.Listing, error) {
	f.extracted = append(f.extracted, url)
	if err := f.extractErr[url]; err != nil {
		return nil, err
	}
	l, ok := f.listings[url]
	if !ok {
		return nil, errors.New("no such page")
	}
	c := *l
	c.SenderName = sender
	c.MessageURL = messageURL
	return &c, nil
}

func (f *fakeSite) SearchResults(context.Context, string) ([]string, error) {
	return f.search, nil
}

func (f *fakeSite) MarkUnsuitable(_ context.Context, url string) error {
	f.marked = append(f.marked, url)
	return nil
}

func (f *fakeSite) TagMessage(_ context.Context, messageURL string, tags ...models.Tag) error {
	if f.tagErr != nil {
		return f.tagErr
	}
	for _, t := range tags {
		f.tags = append(f.tags, tagCall{messageURL, t})
	}
	return nil
}

// fakeDistances returns one destination with the given minutes per listing URL.
type fakeDistances struct {
	minutes map[string]int
	calls   int
}

func (f *fakeDistances) Distances(_ context.Context, l *models.Listing) ([]models.Distance, error) {
	f.calls++
	m, ok := f.minutes[l.URL]
	if !ok {
		return nil, nil
	}
	return []models.Distance{{Destination: "Work", Routes: []models.Route{{DurationMinutes: m}}}}, nil
}

func good(id string) *models.Listing {
	l := models.NewListing(root + "/" + id)
	l.Title = "room " + id
	l.Prices = []models.Price{{Original: "£700 pcm", Monthly: "£700 pcm", MonthlyAmount: 700}}
	l.Furnishings = "Furnished"
	return l
}

func unfurnished(id string) *models.Listing {
	l := good(id)
	l.Furnishings = "Unfurnished"
	return l
}

type fixture struct {
	site      *fakeSite
	distances *fakeDistances
	repo      *storage.Repository
	orch      *Orchestrator
}

func newFixture() *fixture {
	site := newFakeSite()
	dist := &fakeDistances{minutes: map[string]int{}}
	repo := storage.NewRepository(storage.NewChunkedStore(storage.NewMemoryBackend(512)))
	th := config.Thresholds{MaxMonthlyPrice: 850, MaxCommuteMinutes: 40, MaxFlatmates: 3, MaxBedrooms: 4}
	orch := New(site, repo, dist, services.NewValidator(th),
		services.Scorer{MaxMinutes: th.MaxCommuteMinutes},
		services.NewURLNormalizer(root), utils.NewNopLogger())
	return &fixture{site: site, distances: dist, repo: repo, orch: orch}
}

func (f *fixture) message(t *testing.T, url string, links ...string) {
	t.Helper()
	_, err := f.repo.UpsertMessages(context.Background(), models.Message{SenderName: "Anna", URL: url, ListingURLs: links})
	require.NoError(t, err)
}

func (f *fixture) tagsFor(url string) []models.Tag {
	var out []models.Tag
	for _, c := range f.site.tags {
		if c.url == url {
			out = append(out, c.tag)
		}
	}
	return out
}

func TestRejectionTagging(t *testing.T) {
	tests := []struct {
		name     string
		rejected int
		want     []models.Tag
	}{
		{"none rejected", 0, nil},
		{"one of three rejected", 1, []models.Tag{models.TagPartiallyRejected}},
		{"all three rejected", 3, []models.Tag{models.TagRejected}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			var links []string
			for i, id := range []string{"1", "2", "3"} {
				l := good(id)
				if i < tt.rejected {
					l = unfurnished(id)
				}
				f.site.listings[l.URL] = l
				links = append(links, l.URL)
			}
			msg := root + "/flatshare/mythreads.pl?thread_id=1"
			f.message(t, msg, links...)

			sum, err := f.orch.ProcessMessages(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.want, f.tagsFor(msg))
			assert.Equal(t, tt.rejected, sum.Rejected)
			assert.Len(t, f.site.marked, tt.rejected)

			stored, err := f.repo.Listings(context.Background())
			require.NoError(t, err)
			assert.Len(t, stored, 3-tt.rejected)
			for _, l := range stored {
				assert.Equal(t, "Anna", l.Sender())
				assert.Equal(t, msg, l.Origin())
			}
		})
	}
}

func TestProcessSkipsKnownListings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.repo.UpsertListings(ctx, *good("1"))
	require.NoError(t, err)
	f.site.listings[root+"/2"] = good("2")
	f.message(t, root+"/msg", "http://www.spareroom.co.uk/1", root+"/2")

	sum, err := f.orch.ProcessMessages(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{root + "/2"}, f.site.extracted)
	assert.Equal(t, 1, sum.Skipped)
	stored, err := f.repo.Listings(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestProcessSideBranches(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	wanted := good("w")
	wanted.Wanted = true
	noPrice := good("p")
	noPrice.Prices = []models.Price{{Original: "POA", Monthly: "POA", MonthlyAmount: models.MissingAmount}}
	alreadyMarked := unfurnished("u")
	alreadyMarked.Unsuitable = true
	for _, l := range []*models.Listing{wanted, noPrice, alreadyMarked} {
		f.site.listings[l.URL] = l
	}

	f.message(t, root+"/m-wanted", wanted.URL, "https://example.com/elsewhere")
	f.message(t, root+"/m-price", noPrice.URL)
	f.message(t, root+"/m-none")
	f.message(t, root+"/m-marked", alreadyMarked.URL)

	_, err := f.orch.ProcessMessages(ctx)
	require.NoError(t, err)

	assert.Equal(t, []models.Tag{models.TagBuddyUp}, f.tagsFor(root+"/m-wanted"))
	assert.Equal(t, []models.Tag{models.TagPriceMissing}, f.tagsFor(root+"/m-price"))
	assert.Equal(t, []models.Tag{models.TagNoLinks}, f.tagsFor(root+"/m-none"))
	assert.Equal(t, []models.Tag{models.TagRejected}, f.tagsFor(root+"/m-marked"))
	assert.Empty(t, f.site.marked, "an already unsuitable listing is not marked again")
	assert.NotContains(t, f.site.extracted, "https://example.com/elsewhere")

	stored, err := f.repo.Listings(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestNoLinksMessageIsTaggedOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.site.listings[root+"/1"] = good("1")
	f.message(t, root+"/m-none")
	f.message(t, root+"/m-one", root+"/1")

	for i := 0; i < 3; i++ {
		_, err := f.orch.ProcessMessages(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []models.Tag{models.TagNoLinks}, f.tagsFor(root+"/m-none"))
	messages, err := f.repo.Messages(ctx)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, root+"/m-one", messages[0].URL)
}

func TestNoLinksMessageKeptWhenTaggingFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.site.tagErr = errors.New("label menu missing")
	f.message(t, root+"/m-none")

	_, err := f.orch.ProcessMessages(ctx)
	require.NoError(t, err)

	messages, err := f.repo.Messages(ctx)
	require.NoError(t, err)
	assert.Len(t, messages, 1, "retried on the next pass")
}

func TestScoreListingsIncludesSiteFlaggedListings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	flagged := good("42")
	flagged.Unsuitable = true
	f.site.listings[flagged.URL] = flagged
	f.message(t, root+"/m42", flagged.URL)
	f.distances.minutes[flagged.URL] = 20

	_, err := f.orch.ProcessMessages(ctx)
	require.NoError(t, err)
	sum, err := f.orch.ScoreListings(ctx)
	require.NoError(t, err)

	assert.Equal(t, ScoreSummary{Scored: 1}, sum)
	assert.Equal(t, 1, f.distances.calls)
	scored, err := f.repo.ScoredListings(ctx)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, flagged.URL, scored[0].URL)
}

func TestProcessStopsOnExtractionFailureAndKeepsProgress(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.site.listings[root+"/1"] = good("1")
	f.site.extractErr[root+"/2"] = errors.New("browser crashed")
	f.site.listings[root+"/3"] = good("3")
	f.message(t, root+"/m1", root+"/1")
	f.message(t, root+"/m2", root+"/2")
	f.message(t, root+"/m3", root+"/3")

	_, err := f.orch.ProcessMessages(ctx)
	require.Error(t, err)

	stored, err := f.repo.Listings(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, root+"/1", stored[0].URL)
	assert.NotContains(t, f.site.extracted, root+"/3")
}

func TestHarvestStoresPartialResult(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.site.messages = []models.Message{{SenderName: "Anna", URL: root + "/m1", ListingURLs: []string{root + "/1"}}}
	f.site.harvestErr = errors.New("next thread failed")

	n, err := f.orch.HarvestMessages(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	stored, err := f.repo.Messages(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestScoreListings(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	near, far, cached := good("near"), good("far"), good("cached")
	msg := root + "/m-far"
	far.MessageURL = &msg
	_, err := f.repo.UpsertListings(ctx, *near, *far, *cached)
	require.NoError(t, err)
	require.NoError(t, f.repo.UpsertScored(ctx, &models.ScoredListing{Listing: *cached}))

	f.distances.minutes[near.URL] = 25
	f.distances.minutes[far.URL] = 55

	sum, err := f.orch.ScoreListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScoreSummary{Scored: 1, Rejected: 1, Cached: 1}, sum)
	assert.Equal(t, 2, f.distances.calls)

	assert.Equal(t, []string{far.URL}, f.site.marked)
	assert.Equal(t, []models.Tag{models.TagRejected}, f.tagsFor(msg))

	scored, err := f.repo.ScoredListings(ctx)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, 1, scored[0].Index)
	assert.Equal(t, near.URL, scored[1].URL)
	assert.Equal(t, 2, scored[1].Index)

	listings, err := f.repo.Listings(ctx)
	require.NoError(t, err)
	for _, l := range listings {
		assert.Equal(t, l.URL == far.URL, l.Rejected, l.URL)
	}

	// a second pass finds nothing new and the rejected listing is not rescored
	sum, err = f.orch.ScoreListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, ScoreSummary{Cached: 2}, sum)
	assert.Equal(t, 2, f.distances.calls)
}

func TestScoreKeepsIndexAfterRemoval(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a, b := good("a"), good("b")
	_, err := f.repo.UpsertListings(ctx, *a)
	require.NoError(t, err)
	_, err = f.orch.ScoreListings(ctx)
	require.NoError(t, err)

	_, err = f.orch.Remove(ctx, a.URL, false)
	require.NoError(t, err)

	_, err = f.repo.UpsertListings(ctx, *b)
	require.NoError(t, err)
	_, err = f.orch.ScoreListings(ctx)
	require.NoError(t, err)

	scored, err := f.repo.ScoredListings(ctx)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, 2, scored[0].Index, "indexes are never reused")
}

func TestScrapeSearch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	ok, tooFar, bad := good("s1"), good("s2"), unfurnished("s3")
	for _, l := range []*models.Listing{ok, tooFar, bad} {
		f.site.listings[l.URL] = l
	}
	f.site.search = []string{ok.URL, tooFar.URL, bad.URL}
	f.distances.minutes[ok.URL] = 10
	f.distances.minutes[tooFar.URL] = 90

	saved, err := f.orch.ScrapeSearch(ctx, root+"/flatshare/search.pl?id=1")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, ok.URL, saved[0].URL)
	assert.Equal(t, 1, saved[0].Index)
	assert.Nil(t, saved[0].SenderName)

	assert.ElementsMatch(t, []string{tooFar.URL, bad.URL}, f.site.marked)
	assert.Equal(t, 2, f.distances.calls, "unfurnished listing is rejected before any directions call")

	listings, err := f.repo.Listings(ctx)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestInspect(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	l := good("12345")
	f.site.listings[l.URL] = l
	f.distances.minutes[l.URL] = 50

	s, reason, err := f.orch.Inspect(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, services.RejectTooFar, reason)
	assert.Equal(t, l.URL, s.URL)
	assert.Equal(t, []string{l.URL}, f.site.marked)

	stored, err := f.repo.ScoredListings(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	_, _, err = f.orch.Inspect(ctx, "https://example.com/1")
	assert.True(t, errors.Is(err, ErrInvalidURL))
}

func TestRemoveAndMark(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	l := good("1")
	_, err := f.repo.UpsertListings(ctx, *l)
	require.NoError(t, err)
	f.message(t, root+"/m1", l.URL)

	res, err := f.orch.Remove(ctx, "m.spareroom.co.uk/1", true)
	require.NoError(t, err)
	assert.Equal(t, storage.Removal{MessageLinks: 1, Messages: 1, Listings: 1}, res)
	assert.Equal(t, []string{l.URL}, f.site.marked)
}

func TestSetSender(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	l := good("1")
	_, err := f.repo.UpsertListings(ctx, *l)
	require.NoError(t, err)
	require.NoError(t, f.repo.UpsertScored(ctx, &models.ScoredListing{Listing: *l}))

	n, err := f.orch.SetSender(ctx, l.URL, "Dora")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	scored, err := f.repo.ScoredListings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Dora", scored[0].Sender())
}
