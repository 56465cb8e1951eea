package spareroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"room-triage/utils"
)

// Driver is the browser capability the scraper needs. Only one page is
// open at a time and every call acts on it.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	// ClickLink clicks the first anchor whose text is exactly text and
	// reports whether one was found.
	ClickLink(ctx context.Context, text string) (bool, error)
	// Click clicks the first element matching a CSS selector and reports
	// whether one was found.
	Click(ctx context.Context, selector string) (bool, error)
}

// CookieStore persists the serialized browser session.
type CookieStore interface {
	Cookies(ctx context.Context) (string, bool, error)
	SaveCookies(ctx context.Context, raw string) error
}

// SessionOptions configures the chromedp session.
type SessionOptions struct {
	RootURL   string
	Email     string
	Password  string
	ChromeBin string
	Headless  bool
	// Settle is how long to wait after a click for the page to react.
	Settle time.Duration
	// Timeout bounds a single browser action.
	Timeout time.Duration
}

// Session is the single chromedp-backed browser tab. It is started lazily
// on first use, restores cookies from the store and logs in when needed.
// Close must be called at exit.
type Session struct {
	opts    SessionOptions
	cookies CookieStore
	logger  *utils.Logger

	mu          sync.Mutex
	tab         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewSession creates a Session. No browser is launched until the first call.
func NewSession(opts SessionOptions, cookies CookieStore, logger *utils.Logger) *Session {
	if opts.Settle <= 0 {
		opts.Settle = 1500 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Session{opts: opts, cookies: cookies, logger: logger}
}

// ensure launches the browser and establishes the logged-in session once.
func (s *Session) ensure(ctx context.Context) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tab != nil {
		return s.tab, nil
	}

	chromeBin := s.opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("[session] Starting browser (binary: %q, headless: %v)", chromeBin, s.opts.Headless)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("start-maximized", true),
		chromedp.UserAgent("Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 "+
			"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	// Suppress chromedp log noise
	tab, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	if err := chromedp.Run(tab, chromedp.Navigate(s.opts.RootURL)); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("session: start browser: %w", err)
	}
	s.tab, s.cancelTab, s.cancelAlloc = tab, cancelTab, cancelAlloc

	if err := s.restoreCookies(ctx); err != nil {
		s.logger.Warn("[session] Could not restore cookies: %v", err)
	}

	if err := s.loginIfNeeded(ctx); err != nil {
		s.logger.Error("[session] Login failed: %v", err)
	}
	return s.tab, nil
}

type storedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
	SameSite string  `json:"sameSite,omitempty"`
}

func (s *Session) restoreCookies(ctx context.Context) error {
	raw, ok, err := s.cookies.Cookies(ctx)
	if err != nil || !ok || raw == "" {
		return err
	}

	var stored []storedCookie
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return fmt.Errorf("decode cookies: %w", err)
	}

	params := make([]*network.CookieParam, 0, len(stored))
	for _, c := range stored {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: network.CookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &expires
		}
		params = append(params, p)
	}

	s.logger.Debug("[session] Restoring %d cookies", len(params))
	return chromedp.Run(s.tab,
		network.SetCookies(params),
		chromedp.Navigate(s.opts.RootURL),
	)
}

func (s *Session) saveCookies(ctx context.Context) error {
	var cookies []*network.Cookie
	err := chromedp.Run(s.tab, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}

	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	return s.cookies.SaveCookies(ctx, string(raw))
}

func (s *Session) loginIfNeeded(ctx context.Context) error {
	html, err := s.html(s.tab)
	if err != nil {
		return err
	}
	if !hasLink(html, linkLogIn) {
		s.logger.Debug("[session] Already logged in")
		return nil
	}
	if s.opts.Email == "" || s.opts.Password == "" {
		return errors.New("login required but SITE_EMAIL/SITE_PASSWORD are not set")
	}

	s.logger.Info("[session] Logging in as %s", s.opts.Email)
	runCtx, cancel := context.WithTimeout(s.tab, s.opts.Timeout)
	defer cancel()
	err = chromedp.Run(runCtx,
		chromedp.Click("#show-user-auth-popup", chromedp.ByID),
		chromedp.WaitVisible("#loginemail", chromedp.ByID),
		chromedp.SendKeys("#loginemail", s.opts.Email, chromedp.ByID),
		chromedp.SendKeys("#loginpass", s.opts.Password, chromedp.ByID),
		chromedp.Click("#sign-in-button", chromedp.ByID),
		chromedp.Sleep(s.opts.Settle),
	)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	return s.saveCookies(ctx)
}

// run executes actions on the tab, bounded by the session timeout and ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	tab, err := s.ensure(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(tab, s.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("session: navigate %s: %w", url, err)
	}
	return nil
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("session: location: %w", err)
	}
	return loc, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	tab, err := s.ensure(ctx)
	if err != nil {
		return "", err
	}
	return s.html(tab)
}

func (s *Session) html(tab context.Context) (string, error) {
	runCtx, cancel := context.WithTimeout(tab, s.opts.Timeout)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("session: read page: %w", err)
	}
	return html, nil
}

func (s *Session) ClickLink(ctx context.Context, text string) (bool, error) {
	return s.clickFirst(ctx, "//a[normalize-space(.)="+xpathLiteral(text)+"]", chromedp.BySearch)
}

func (s *Session) Click(ctx context.Context, selector string) (bool, error) {
	return s.clickFirst(ctx, selector, chromedp.ByQueryAll)
}

// clickFirst clicks the first node matching sel without waiting for it to
// appear; a page without a match reports false.
func (s *Session) clickFirst(ctx context.Context, sel string, by chromedp.QueryOption) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("session: find %s: %w", sel, err)
	}
	if len(nodes) == 0 {
		return false, nil
	}
	err := s.run(ctx,
		chromedp.MouseClickNode(nodes[0]),
		chromedp.Sleep(s.opts.Settle),
	)
	if err != nil {
		return false, fmt.Errorf("session: click %s: %w", sel, err)
	}
	return true, nil
}

// Close saves the session cookies and shuts the browser down. It is safe to
// call on a session that never started.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tab == nil {
		return
	}
	if err := s.saveCookies(ctx); err != nil {
		s.logger.Warn("[session] Could not save cookies: %v", err)
	}
	s.cancelTab()
	s.cancelAlloc()
	s.tab = nil
	s.logger.Info("[session] Browser closed")
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
