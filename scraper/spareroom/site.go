// Package spareroom drives the room listing site through a browser session:
// it harvests inbox threads, extracts listings and applies marks and labels.
package spareroom

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"room-triage/models"
	"room-triage/services"
	"room-triage/utils"
)

var (
	// ErrNotApplicable is returned for URLs outside the source site.
	ErrNotApplicable = errors.New("spareroom: not a listing url of the source site")
	// ErrMarkFailed is returned when no mark-unsuitable control was found.
	ErrMarkFailed = errors.New("spareroom: no way to mark listing as unsuitable")
)

// Site implements the scraping and side-effect operations the triage
// pipeline consumes, on top of a single Driver.
type Site struct {
	driver     Driver
	urls       *services.URLNormalizer
	prices     *services.PriceNormalizer
	throttle   *utils.Throttle
	depthLimit int
	logger     *utils.Logger
}

// NewSite creates a Site. depthLimit bounds the message body walk.
func NewSite(driver Driver, urls *services.URLNormalizer, prices *services.PriceNormalizer,
	throttle *utils.Throttle, depthLimit int, logger *utils.Logger) *Site {
	if depthLimit <= 0 {
		depthLimit = 64
	}
	return &Site{
		driver:     driver,
		urls:       urls,
		prices:     prices,
		throttle:   throttle,
		depthLimit: depthLimit,
		logger:     logger,
	}
}

func (s *Site) open(ctx context.Context, url string) error {
	if err := s.throttle.Wait(ctx); err != nil {
		return err
	}
	return s.driver.Navigate(ctx, url)
}

func (s *Site) page(ctx context.Context) (string, *url.URL, error) {
	html, err := s.driver.HTML(ctx)
	if err != nil {
		return "", nil, err
	}
	loc, err := s.driver.Location(ctx)
	if err != nil {
		return "", nil, err
	}
	base, err := url.Parse(loc)
	if err != nil {
		base = nil
	}
	return html, base, nil
}

// Harvest walks the inbox oldest first and returns one Message per untagged
// thread. A failure mid-walk stops the walk; the messages collected so far
// are returned along with the error.
func (s *Site) Harvest(ctx context.Context) ([]models.Message, error) {
	var messages []models.Message

	if err := s.open(ctx, s.urls.Root()+"/flatshare/mythreads.pl"); err != nil {
		return nil, fmt.Errorf("harvest: open inbox: %w", err)
	}
	if _, err := s.driver.ClickLink(ctx, linkOldestFirst); err != nil {
		return nil, fmt.Errorf("harvest: sort inbox: %w", err)
	}

	html, _, err := s.page(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvest: read inbox: %w", err)
	}
	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("harvest: parse inbox: %w", err)
	}
	if countThreads(doc) == 0 {
		s.logger.Info("[harvest] No messages found")
		return messages, nil
	}
	if _, err := s.driver.Click(ctx, selThreadRow); err != nil {
		return nil, fmt.Errorf("harvest: open first thread: %w", err)
	}

	for {
		msg, tagged, err := s.readThread(ctx)
		if err != nil {
			s.logger.Error("[harvest] Stopping after %d messages: %v", len(messages), err)
			return messages, err
		}
		if tagged {
			s.logger.Debug("[harvest] Skipping labelled thread %s", msg.URL)
		} else {
			s.logger.Info("[harvest] %s (%d links)", msg.SenderName, len(msg.ListingURLs))
			messages = append(messages, msg)
		}

		if err := s.throttle.Wait(ctx); err != nil {
			return messages, err
		}
		more, err := s.driver.ClickLink(ctx, linkNextThread)
		if err != nil {
			s.logger.Error("[harvest] Stopping after %d messages: %v", len(messages), err)
			return messages, err
		}
		if !more {
			break
		}
	}

	s.logger.Info("[harvest] Collected %d messages", len(messages))
	return messages, nil
}

func (s *Site) readThread(ctx context.Context) (models.Message, bool, error) {
	html, base, err := s.page(ctx)
	if err != nil {
		return models.Message{}, false, err
	}
	doc, err := parseDocument(html)
	if err != nil {
		return models.Message{}, false, err
	}
	t := parseThread(doc, base, s.depthLimit)

	msg := models.Message{SenderName: t.Sender, ListingURLs: []string{}}
	if base != nil {
		msg.URL = s.urls.Normalize(base.String())
	}
	if len(t.Tags) > 0 {
		return msg, true, nil
	}

	links := t.Links
	if len(links) == 0 && t.AdLink != "" {
		links = []string{t.AdLink}
	}
	for _, l := range links {
		msg.ListingURLs = append(msg.ListingURLs, s.urls.Normalize(l))
	}
	return msg, false, nil
}

// Extract opens url and reads the listing on it. Fields that cannot be found
// are left as models.Missing. URLs outside the source site return
// ErrNotApplicable without touching the browser.
func (s *Site) Extract(ctx context.Context, rawURL string, sender, messageURL *string) (*models.Listing, error) {
	u := s.urls.Normalize(rawURL)
	if !s.urls.IsSource(u) {
		return nil, ErrNotApplicable
	}

	if err := s.open(ctx, u); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	html, err := s.driver.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("extract: parse %s: %w", u, err)
	}
	p := parseListingPage(doc, html)

	l := models.NewListing(u)
	l.Title = p.Title
	l.Unsuitable = p.Unsuitable
	l.Wanted = p.Wanted
	l.SenderName = sender
	l.MessageURL = messageURL
	l.Prices = s.prices.NormalizeAll(p.Prices)
	l.Location = p.Location
	l.BillsIncluded = p.Fields["bills"]
	l.Deposit = p.Fields["deposit"]
	l.Available = p.Fields["available"]
	l.MinTerm = p.Fields["minTerm"]
	l.MaxTerm = p.Fields["maxTerm"]
	l.Furnishings = p.Fields["furnishings"]
	l.Broadband = p.Fields["broadband"]
	l.LivingRoom = p.Fields["livingRoom"]
	l.Flatmates = p.Fields["flatmates"]
	l.TotalRooms = p.Fields["totalRooms"]
	l.HouseholdGender = p.Fields["householdGender"]
	l.PreferredGender = p.Fields["preferredGender"]
	l.Occupation = p.Fields["occupation"]

	if l.Location == nil {
		s.logger.Warn("[extract] No coordinates found on %s", u)
	}
	return l, nil
}

// SearchResults returns the listing URLs on a search results page, skipping
// results already marked unsuitable.
func (s *Site) SearchResults(ctx context.Context, searchURL string) ([]string, error) {
	if err := s.open(ctx, searchURL); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	html, base, err := s.page(ctx)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	doc, err := parseDocument(html)
	if err != nil {
		return nil, fmt.Errorf("search: parse: %w", err)
	}

	var urls []string
	for _, u := range parseSearchResults(doc, base) {
		urls = append(urls, s.urls.Normalize(u))
	}
	s.logger.Info("[search] %d results on %s", len(urls), searchURL)
	return urls, nil
}

// MarkUnsuitable opens the listing and marks it unsuitable through whichever
// control the page offers.
func (s *Site) MarkUnsuitable(ctx context.Context, listingURL string) error {
	if err := s.open(ctx, listingURL); err != nil {
		return fmt.Errorf("mark: %w", err)
	}

	if ok, err := s.driver.ClickLink(ctx, linkMarkUnsuitable); err != nil || ok {
		return s.marked(listingURL, err)
	}

	if ok, err := s.driver.ClickLink(ctx, linkSavedRemoveAd); err != nil {
		return s.marked(listingURL, err)
	} else if ok {
		if err := s.open(ctx, listingURL); err != nil {
			return fmt.Errorf("mark: %w", err)
		}
		if ok, err := s.driver.ClickLink(ctx, linkMarkUnsuitable); err != nil || ok {
			return s.marked(listingURL, err)
		}
	}

	if ok, err := s.driver.ClickLink(ctx, linkContacted); err != nil {
		return s.marked(listingURL, err)
	} else if ok {
		if _, err := s.driver.Click(ctx, selUnsuitable); err != nil {
			return s.marked(listingURL, err)
		}
		_, err := s.driver.Click(ctx, selSubmit)
		return s.marked(listingURL, err)
	}

	s.logger.Warn("[mark] Failed to mark %s as unsuitable", listingURL)
	return fmt.Errorf("%w: %s", ErrMarkFailed, listingURL)
}

func (s *Site) marked(listingURL string, err error) error {
	if err != nil {
		return fmt.Errorf("mark: %s: %w", listingURL, err)
	}
	s.logger.Info("[mark] Marked %s as unsuitable", listingURL)
	return nil
}

// TagMessage opens the thread and applies each label in turn. A label the
// menu does not offer closes the menu and is skipped.
func (s *Site) TagMessage(ctx context.Context, messageURL string, tags ...models.Tag) error {
	if err := s.open(ctx, messageURL); err != nil {
		return fmt.Errorf("tag: %w", err)
	}

	for _, tag := range tags {
		id, ok := tagIDs[tag]
		if !ok {
			return fmt.Errorf("tag: unknown label %q", tag)
		}
		opened, err := s.driver.Click(ctx, selTagMenu)
		if err != nil {
			return fmt.Errorf("tag: open label menu: %w", err)
		}
		if !opened {
			s.logger.Warn("[tag] No label menu on %s", messageURL)
			continue
		}
		applied, err := s.driver.Click(ctx, "#"+id)
		if err != nil {
			return fmt.Errorf("tag: apply %q: %w", tag, err)
		}
		if !applied {
			s.logger.Warn("[tag] Label %q not offered on %s", tag, messageURL)
			if _, err := s.driver.Click(ctx, selTagMenuClose); err != nil {
				return fmt.Errorf("tag: close label menu: %w", err)
			}
			continue
		}
		s.logger.Info("[tag] Tagged %s as %q", messageURL, tag)
	}
	return nil
}
