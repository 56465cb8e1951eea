package spareroom

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"room-triage/models"
)

// Link texts and selectors of the source site.
const (
	linkOldestFirst      = "Oldest first"
	linkNextThread       = "Next thread»"
	linkViewTheirAd      = "view their ad"
	linkMarkedUnsuitable = "Marked as Unsuitable"
	linkUnsuitable       = "Unsuitable"
	linkMoreInfo         = "More info"
	linkMarkUnsuitable   = "Mark as unsuitable"
	linkSavedRemoveAd    = "Saved - remove ad"
	linkContacted        = "Contacted"
	linkLogIn            = "Log In"

	selThreadRow    = ".msg_row"
	selSenderName   = ".message_in__name"
	selMessageBody  = "dd.message_body"
	selAttachedTag  = ".add-label__attached-label"
	selTagMenu      = ".add-label__link"
	selTagMenuClose = ".add-label__close"
	selPriceRows    = "div.property-details section.feature--price_room_only ul li"
	selFieldKey     = "dt.feature-list__key"
	selHousehold    = "section.feature--current-household"
	selPreferences  = "section.feature--household-preferences"
	selKeyFeature   = ".key-features__feature"
	selSearchResult = ".listing-result"
	selUnsuitable   = `input[value="unsuitable"]`
	selSubmit       = ".submit"
)

var coordinatesRegexp = regexp.MustCompile(`latitude: "(.*?)",longitude: "(.*?)"`)

// Thread is what a single open inbox thread shows.
type Thread struct {
	Sender string
	Tags   []string
	Links  []string
	AdLink string
}

// listingPage holds the raw values read from a listing page.
type listingPage struct {
	Title      string
	Unsuitable bool
	Wanted     bool
	Prices     []string
	Location   *models.Coordinate
	Fields     map[string]string
}

func parseDocument(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// countThreads returns the number of rows in the inbox listing.
func countThreads(doc *goquery.Document) int {
	return doc.Find(selThreadRow).Length()
}

// parseThread reads the open thread. Hrefs are resolved against base and
// the body is walked at most depthLimit levels deep.
func parseThread(doc *goquery.Document, base *url.URL, depthLimit int) Thread {
	t := Thread{
		Sender: strings.TrimSpace(doc.Find(selSenderName).First().Text()),
	}
	doc.Find(selAttachedTag).Each(func(_ int, s *goquery.Selection) {
		if tag := strings.TrimSpace(s.Text()); tag != "" {
			t.Tags = append(t.Tags, tag)
		}
	})

	body := doc.Find(selMessageBody).First()
	var raw []string
	collectLinks(body, 0, depthLimit, &raw)
	for _, href := range raw {
		t.Links = append(t.Links, resolve(base, href))
	}

	if ad := findLink(doc.Selection, linkViewTheirAd); ad != nil {
		if href, ok := ad.Attr("href"); ok {
			t.AdLink = resolve(base, href)
		}
	}
	return t
}

// collectLinks walks the element tree below sel depth first and appends every
// non-blank href it finds, in document order.
func collectLinks(sel *goquery.Selection, depth, limit int, out *[]string) {
	if depth >= limit {
		return
	}
	sel.Children().Each(func(_ int, child *goquery.Selection) {
		if href, ok := child.Attr("href"); ok && strings.TrimSpace(href) != "" {
			*out = append(*out, strings.TrimSpace(href))
		}
		collectLinks(child, depth+1, limit, out)
	})
}

func parseListingPage(doc *goquery.Document, html string) listingPage {
	p := listingPage{
		Title:      text(doc.Find("h1").First()),
		Unsuitable: findLink(doc.Selection, linkMarkedUnsuitable) != nil,
		Fields:     make(map[string]string),
	}

	doc.Find(selPriceRows).Each(func(_ int, li *goquery.Selection) {
		if strings.Contains(li.Find("small").Text(), "NOW LET") {
			return
		}
		if price := strings.TrimSpace(li.Find("strong").First().Text()); price != "" {
			p.Prices = append(p.Prices, price)
		}
	})

	if m := coordinatesRegexp.FindStringSubmatch(html); m != nil {
		p.Location = &models.Coordinate{Latitude: m[1], Longitude: m[2]}
	}

	doc.Find(selKeyFeature).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		p.Wanted = strings.Contains(s.Text(), "wanted")
		return !p.Wanted
	})

	all := doc.Selection
	household := doc.Find(selHousehold)
	preferences := doc.Find(selPreferences)

	p.Fields["bills"] = fieldExact(all, "Bills included?")
	p.Fields["deposit"] = fieldExact(all, "Deposit")
	p.Fields["available"] = fieldExact(all, "Available")
	p.Fields["minTerm"] = fieldExact(all, "Minimum term")
	p.Fields["maxTerm"] = fieldExact(all, "Maximum term")
	p.Fields["furnishings"] = fieldExact(all, "Furnishings")
	p.Fields["broadband"] = fieldExact(all, "Broadband")
	p.Fields["livingRoom"] = fieldExact(all, "Living room")
	p.Fields["flatmates"] = fieldContains(household, "flatmates", "housemates")
	p.Fields["totalRooms"] = fieldContains(household, "Total # rooms")
	p.Fields["householdGender"] = fieldContains(household, "Gender")
	p.Fields["preferredGender"] = fieldContains(preferences, "Gender")
	p.Fields["occupation"] = fieldContains(preferences, "Occupation")

	return p
}

// parseSearchResults returns the "More info" hrefs of every result not
// already shown as unsuitable.
func parseSearchResults(doc *goquery.Document, base *url.URL) []string {
	var urls []string
	doc.Find(selSearchResult).Each(func(_ int, s *goquery.Selection) {
		// featured results show up even when marked unsuitable
		if findLink(s, linkUnsuitable) != nil {
			return
		}
		more := findLink(s, linkMoreInfo)
		if more == nil {
			return
		}
		if href, ok := more.Attr("href"); ok && strings.TrimSpace(href) != "" {
			urls = append(urls, resolve(base, strings.TrimSpace(href)))
		}
	})
	return urls
}

// findLink returns the first anchor below sel whose text is exactly linkText.
func findLink(sel *goquery.Selection, linkText string) *goquery.Selection {
	match := sel.Find("a").FilterFunction(func(_ int, a *goquery.Selection) bool {
		return strings.TrimSpace(a.Text()) == linkText
	}).First()
	if match.Length() == 0 {
		return nil
	}
	return match
}

func hasLink(html, linkText string) bool {
	doc, err := parseDocument(html)
	if err != nil {
		return false
	}
	return findLink(doc.Selection, linkText) != nil
}

// fieldExact returns the dd following the key whose text equals label.
func fieldExact(scope *goquery.Selection, label string) string {
	return fieldWhere(scope, func(key string) bool { return key == label })
}

// fieldContains returns the dd following the first key containing any of labels.
func fieldContains(scope *goquery.Selection, labels ...string) string {
	return fieldWhere(scope, func(key string) bool {
		for _, l := range labels {
			if strings.Contains(key, l) {
				return true
			}
		}
		return false
	})
}

func fieldWhere(scope *goquery.Selection, match func(string) bool) string {
	value := models.Missing
	scope.Find(selFieldKey).EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		if !match(strings.TrimSpace(dt.Text())) {
			return true
		}
		if dd := dt.NextAllFiltered("dd").First(); dd.Length() > 0 {
			value = strings.Join(strings.Fields(dd.Text()), " ")
		}
		return false
	})
	return value
}

func text(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return models.Missing
	}
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
