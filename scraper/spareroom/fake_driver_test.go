package spareroom

import (
	"context"
	"fmt"

	"room-triage/services"
	"room-triage/utils"
)

const root = "https://www.spareroom.co.uk"

type action func(d *fakeDriver)

func goTo(url string) action {
	return func(d *fakeDriver) { d.current = url }
}

type fakePage struct {
	html   string
	links  map[string]action
	clicks map[string]action
}

// fakeDriver serves canned pages and records what was clicked.
type fakeDriver struct {
	pages     map[string]*fakePage
	current   string
	navigated []string
	clicked   []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{pages: make(map[string]*fakePage)}
}

func (d *fakeDriver) add(url, html string) *fakePage {
	p := &fakePage{html: html, links: map[string]action{}, clicks: map[string]action{}}
	d.pages[url] = p
	return p
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.navigated = append(d.navigated, url)
	if _, ok := d.pages[url]; !ok {
		return fmt.Errorf("404 %s", url)
	}
	d.current = url
	return nil
}

func (d *fakeDriver) Location(context.Context) (string, error) {
	return d.current, nil
}

func (d *fakeDriver) HTML(context.Context) (string, error) {
	p, ok := d.pages[d.current]
	if !ok {
		return "", fmt.Errorf("page %s crashed", d.current)
	}
	return p.html, nil
}

func (d *fakeDriver) ClickLink(_ context.Context, text string) (bool, error) {
	return d.do(text, func(p *fakePage) (action, bool) { a, ok := p.links[text]; return a, ok })
}

func (d *fakeDriver) Click(_ context.Context, selector string) (bool, error) {
	return d.do(selector, func(p *fakePage) (action, bool) { a, ok := p.clicks[selector]; return a, ok })
}

func (d *fakeDriver) do(name string, lookup func(p *fakePage) (action, bool)) (bool, error) {
	p, ok := d.pages[d.current]
	if !ok {
		return false, fmt.Errorf("page %s crashed", d.current)
	}
	a, ok := lookup(p)
	if !ok {
		return false, nil
	}
	d.clicked = append(d.clicked, name)
	if a != nil {
		a(d)
	}
	return true, nil
}

func newTestSite(d Driver) *Site {
	logger := utils.NewNopLogger()
	return NewSite(d, services.NewURLNormalizer(root), services.NewPriceNormalizer(logger),
		utils.NewThrottle(0), 16, logger)
}
