// Package triage drives the listing pipeline: harvest the inbox, extract and
// pre-validate every linked listing, score commutes and validate again.
// Rejections become marks and labels on the source site instead of records.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"room-triage/models"
	"room-triage/services"
	"room-triage/storage"
	"room-triage/utils"
)

// Site is the source site as the pipeline sees it.
type Site interface {
	Harvest(ctx context.Context) ([]models.Message, error)
	Extract(ctx context.Context, url string, sender, messageURL *string) (*models.Listing, error)
	SearchResults(ctx context.Context, url string) ([]string, error)
	MarkUnsuitable(ctx context.Context, url string) error
	TagMessage(ctx context.Context, messageURL string, tags ...models.Tag) error
}

// DistanceSource computes a listing's commute distances.
type DistanceSource interface {
	Distances(ctx context.Context, l *models.Listing) ([]models.Distance, error)
}

// ErrInvalidURL is returned for user input that names no listing of the source site.
var ErrInvalidURL = errors.New("triage: not a listing url or id")

// Orchestrator owns one pass of the pipeline at a time. It is not safe for
// concurrent use: the Site holds a single browser page.
type Orchestrator struct {
	site      Site
	repo      *storage.Repository
	distances DistanceSource
	validator *services.Validator
	scorer    services.Scorer
	urls      *services.URLNormalizer
	logger    *utils.Logger
}

// New creates an Orchestrator.
func New(site Site, repo *storage.Repository, distances DistanceSource, validator *services.Validator,
	scorer services.Scorer, urls *services.URLNormalizer, logger *utils.Logger) *Orchestrator {
	return &Orchestrator{
		site:      site,
		repo:      repo,
		distances: distances,
		validator: validator,
		scorer:    scorer,
		urls:      urls,
		logger:    logger,
	}
}

// run returns a logger stamped with a fresh run id.
func (o *Orchestrator) run(op string) *utils.Logger {
	l := o.logger.With("run", uuid.NewString())
	l.Debug("[triage] Starting %s", op)
	return l
}

// HarvestMessages reads the inbox and upserts every message found. A harvest
// that fails midway still stores what it collected.
func (o *Orchestrator) HarvestMessages(ctx context.Context) (int, error) {
	log := o.run("harvest")

	messages, harvestErr := o.site.Harvest(ctx)
	if len(messages) == 0 {
		return 0, harvestErr
	}
	total, err := o.repo.UpsertMessages(ctx, messages...)
	if err != nil {
		return 0, fmt.Errorf("triage: save messages: %w", err)
	}
	log.Info("[triage] Stored %d messages (%d in total)", len(messages), total)
	if harvestErr != nil {
		return len(messages), fmt.Errorf("triage: harvest stopped early: %w", harvestErr)
	}
	return len(messages), nil
}

// ProcessSummary counts what ProcessMessages did.
type ProcessSummary struct {
	Messages  int
	Extracted int
	Accepted  int
	Rejected  int
	Skipped   int
}

// ProcessMessages extracts every listing linked from the stored messages that
// is not a known listing yet. Accepted listings are stored; rejected ones are
// marked unsuitable on the site and their messages labelled. Messages without
// links are labelled once and dropped from the store. An extraction
// failure stops the pass after storing what was accepted so far.
func (o *Orchestrator) ProcessMessages(ctx context.Context) (ProcessSummary, error) {
	log := o.run("process")
	var sum ProcessSummary

	messages, err := o.repo.Messages(ctx)
	if err != nil {
		return sum, err
	}
	if len(messages) == 0 {
		log.Info("[triage] No messages. Fetch inbox first or scrape a search result.")
		return sum, nil
	}
	stored, err := o.repo.Listings(ctx)
	if err != nil {
		return sum, err
	}
	known := utils.NewURLSet()
	for _, l := range stored {
		known.Add(l.URL)
	}

	var accepted []models.Listing
	var passErr error
	var tagged []string
	for _, m := range messages {
		sum.Messages++
		if len(m.ListingURLs) == 0 {
			log.Info("[triage] %s sent no links", m.SenderName)
			if o.tag(ctx, log, m.URL, models.TagNoLinks) {
				tagged = append(tagged, m.URL)
			}
			continue
		}
		if err := o.processMessage(ctx, log, m, known, &accepted, &sum); err != nil {
			passErr = err
			log.Error("[triage] Stopping at message from %s: %v", m.SenderName, err)
			break
		}
	}

	// Labelled messages without links have nothing left to process.
	if len(tagged) > 0 {
		if _, err := o.repo.DeleteMessages(ctx, tagged...); err != nil {
			return sum, fmt.Errorf("triage: drop tagged messages: %w", err)
		}
	}

	if len(accepted) > 0 {
		total, err := o.repo.UpsertListings(ctx, accepted...)
		if err != nil {
			return sum, fmt.Errorf("triage: save listings: %w", err)
		}
		log.Info("[triage] Stored %d new listings (%d in total)", len(accepted), total)
	}
	log.Info("[triage] %d messages read, %d listing urls seen", sum.Messages, known.Size())
	return sum, passErr
}

func (o *Orchestrator) processMessage(ctx context.Context, log *utils.Logger, m models.Message,
	known *utils.URLSet, accepted *[]models.Listing, sum *ProcessSummary) error {
	sender, origin := m.SenderName, m.URL
	var links []string
	rejected := make(map[string]bool)
	for _, raw := range m.ListingURLs {
		link := o.urls.Normalize(raw)
		if _, seen := rejected[link]; seen {
			continue
		}
		links = append(links, link)
		rejected[link] = false

		if known.Contains(link) {
			log.Debug("[triage] %s already known", link)
			sum.Skipped++
			continue
		}
		if !o.urls.IsSource(link) {
			log.Info("[triage] Not a listing url: %s (%s)", link, m.SenderName)
			sum.Skipped++
			continue
		}

		log.Info("[triage] Scraping %s (sent by %s)", link, m.SenderName)
		l, err := o.site.Extract(ctx, link, &sender, &origin)
		if err != nil {
			return fmt.Errorf("extract %s: %w", link, err)
		}
		sum.Extracted++
		known.Add(link)

		if l.Wanted {
			log.Info("[triage] %s is a buddy-up ad", link)
			o.tag(ctx, log, m.URL, models.TagBuddyUp)
			continue
		}

		if reason := o.validator.Validate(l, nil); !reason.OK() {
			log.Info("[triage] Rejected %s: %s", link, reason)
			o.markUnsuitable(ctx, log, l)
			rejected[link] = true
			sum.Rejected++
			continue
		}

		if !l.HasPrice() {
			log.Info("[triage] No price on %s", link)
			o.tag(ctx, log, m.URL, models.TagPriceMissing)
			continue
		}

		*accepted = append(*accepted, *l)
		sum.Accepted++
	}

	n := 0
	for _, r := range rejected {
		if r {
			n++
		}
	}
	switch {
	case n == 0:
	case n == len(links):
		o.tag(ctx, log, m.URL, models.TagRejected)
	default:
		o.tag(ctx, log, m.URL, models.TagPartiallyRejected)
		var b strings.Builder
		for _, link := range links {
			verdict := "fine"
			if rejected[link] {
				verdict = "rejected"
			}
			fmt.Fprintf(&b, "\n  %s -> %s", link, verdict)
		}
		log.Info("[triage] Partial rejection for %s:%s", m.SenderName, b.String())
	}
	return nil
}

// ScoreSummary counts what ScoreListings did.
type ScoreSummary struct {
	Scored   int
	Rejected int
	Cached   int
}

// ScoreListings computes distances for every stored listing without a cached
// score, validates again with the distances and stores the ones that pass.
// Each scored listing is stored as soon as it passes so an interrupted pass
// keeps its progress.
func (o *Orchestrator) ScoreListings(ctx context.Context) (ScoreSummary, error) {
	log := o.run("score")
	var sum ScoreSummary

	listings, err := o.repo.Listings(ctx)
	if err != nil {
		return sum, err
	}
	if len(listings) == 0 {
		log.Info("[triage] No saved listings. Do some scraping.")
		return sum, nil
	}
	scored, err := o.repo.ScoredListings(ctx)
	if err != nil {
		return sum, err
	}
	cached := utils.NewURLSet()
	for _, s := range scored {
		cached.Add(s.URL)
	}

	for i := range listings {
		l := &listings[i]
		if cached.Contains(l.URL) {
			sum.Cached++
			continue
		}
		if l.Rejected {
			log.Debug("[triage] %s was rejected on an earlier pass", l.URL)
			continue
		}

		s, reason, err := o.score(ctx, l)
		if err != nil {
			log.Error("[triage] Stopping after %d scored: %v", sum.Scored, err)
			return sum, err
		}
		if !reason.OK() {
			log.Info("[triage] Rejected %s: %s", l.URL, reason)
			o.markUnsuitable(ctx, log, l)
			if origin := l.Origin(); origin != "" {
				o.tag(ctx, log, origin, models.TagRejected)
			}
			l.Rejected = true
			if _, err := o.repo.UpsertListings(ctx, *l); err != nil {
				return sum, fmt.Errorf("triage: save listing: %w", err)
			}
			sum.Rejected++
			continue
		}

		if err := o.repo.UpsertScored(ctx, s); err != nil {
			return sum, fmt.Errorf("triage: save scored listing: %w", err)
		}
		log.Info("[triage] #%d %s %s (score %d)", s.Index, l.Sender(), l.URL, o.scorer.Score(s.Distances))
		sum.Scored++
	}
	return sum, nil
}

// score computes the distances of l and validates it with them.
func (o *Orchestrator) score(ctx context.Context, l *models.Listing) (*models.ScoredListing, services.Reason, error) {
	distances, err := o.distances.Distances(ctx, l)
	if err != nil {
		return nil, services.Accepted, err
	}
	s := &models.ScoredListing{Listing: *l, Distances: distances}
	return s, o.validator.Validate(l, distances), nil
}

// ScrapeSearch runs every listing of a search results page through the whole
// pipeline and returns the ones stored.
func (o *Orchestrator) ScrapeSearch(ctx context.Context, searchURL string) ([]models.ScoredListing, error) {
	log := o.run("search")

	urls, err := o.site.SearchResults(ctx, o.urls.Normalize(searchURL))
	if err != nil {
		return nil, err
	}
	scored, err := o.repo.ScoredListings(ctx)
	if err != nil {
		return nil, err
	}
	cached := utils.NewURLSet()
	for _, s := range scored {
		cached.Add(s.URL)
	}

	var saved []models.ScoredListing
	for _, u := range urls {
		if cached.Contains(u) {
			log.Debug("[triage] %s already scored", u)
			continue
		}
		if !o.urls.IsSource(u) {
			log.Info("[triage] Not a listing url: %s", u)
			continue
		}

		l, err := o.site.Extract(ctx, u, nil, nil)
		if err != nil {
			return saved, fmt.Errorf("extract %s: %w", u, err)
		}
		if l.Wanted {
			log.Info("[triage] %s is a buddy-up ad, skipping", u)
			continue
		}
		// pre-validate to save directions calls
		if reason := o.validator.Validate(l, nil); !reason.OK() {
			log.Info("[triage] Rejected %s: %s", u, reason)
			o.markUnsuitable(ctx, log, l)
			continue
		}

		s, reason, err := o.score(ctx, l)
		if err != nil {
			return saved, err
		}
		if !reason.OK() {
			log.Info("[triage] Rejected %s: %s", u, reason)
			o.markUnsuitable(ctx, log, l)
			continue
		}

		if _, err := o.repo.UpsertListings(ctx, *l); err != nil {
			return saved, fmt.Errorf("triage: save listing: %w", err)
		}
		if err := o.repo.UpsertScored(ctx, s); err != nil {
			return saved, fmt.Errorf("triage: save scored listing: %w", err)
		}
		cached.Add(u)
		saved = append(saved, *s)
	}
	log.Info("[triage] Search stored %d of %d results", len(saved), len(urls))
	return saved, nil
}

// Inspect extracts and scores one listing without storing it. A listing
// that fails validation is marked unsuitable.
func (o *Orchestrator) Inspect(ctx context.Context, input string) (*models.ScoredListing, services.Reason, error) {
	log := o.run("inspect")

	u, ok := o.urls.Resolve(input)
	if !ok {
		return nil, services.Accepted, fmt.Errorf("%w: %q", ErrInvalidURL, input)
	}
	l, err := o.site.Extract(ctx, u, nil, nil)
	if err != nil {
		return nil, services.Accepted, err
	}
	s, reason, err := o.score(ctx, l)
	if err != nil {
		return nil, services.Accepted, err
	}
	if !reason.OK() {
		log.Info("[triage] Rejected %s: %s", u, reason)
		o.markUnsuitable(ctx, log, l)
	}
	return s, reason, nil
}

// Remove deletes a listing from every collection and, when mark is set,
// marks it unsuitable on the site.
func (o *Orchestrator) Remove(ctx context.Context, input string, mark bool) (storage.Removal, error) {
	u, ok := o.urls.Resolve(input)
	if !ok {
		return storage.Removal{}, fmt.Errorf("%w: %q", ErrInvalidURL, input)
	}
	res, err := o.repo.Remove(ctx, u)
	if err != nil {
		return res, err
	}
	if !res.Any() {
		o.logger.Info("[triage] %s was not stored", u)
	}
	if mark {
		if err := o.site.MarkUnsuitable(ctx, u); err != nil {
			return res, err
		}
	}
	return res, nil
}

// SetSender renames the sender of a stored listing in both listing
// collections and returns how many records changed.
func (o *Orchestrator) SetSender(ctx context.Context, input, name string) (int, error) {
	u, ok := o.urls.Resolve(input)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidURL, input)
	}
	changed := 0

	listings, err := o.repo.Listings(ctx)
	if err != nil {
		return 0, err
	}
	for i := range listings {
		if listings[i].URL == u {
			listings[i].SenderName = &name
			changed++
		}
	}
	if changed > 0 {
		if err := o.repo.SaveListings(ctx, listings); err != nil {
			return 0, err
		}
	}

	scored, err := o.repo.ScoredListings(ctx)
	if err != nil {
		return changed, err
	}
	n := 0
	for i := range scored {
		if scored[i].URL == u {
			scored[i].SenderName = &name
			n++
		}
	}
	if n > 0 {
		if err := o.repo.SaveScoredListings(ctx, scored); err != nil {
			return changed, err
		}
	}
	return changed + n, nil
}

// Ranked returns the stored scored listings ordered by descending score with
// their scores.
func (o *Orchestrator) Ranked(ctx context.Context) ([]models.ScoredListing, []int, error) {
	scored, err := o.repo.ScoredListings(ctx)
	if err != nil {
		return nil, nil, err
	}
	ranked, scores := o.scorer.Rank(scored)
	return ranked, scores, nil
}

func (o *Orchestrator) markUnsuitable(ctx context.Context, log *utils.Logger, l *models.Listing) {
	if l.Unsuitable {
		log.Debug("[triage] %s already marked unsuitable", l.URL)
		return
	}
	if err := o.site.MarkUnsuitable(ctx, l.URL); err != nil {
		log.Warn("[triage] Could not mark %s unsuitable: %v", l.URL, err)
		return
	}
	l.Unsuitable = true
}

// tag labels a message on the site and reports whether it worked.
func (o *Orchestrator) tag(ctx context.Context, log *utils.Logger, messageURL string, tag models.Tag) bool {
	if messageURL == "" {
		return false
	}
	if err := o.site.TagMessage(ctx, messageURL, tag); err != nil {
		log.Warn("[triage] Could not tag %s as %q: %v", messageURL, tag, err)
		return false
	}
	return true
}
