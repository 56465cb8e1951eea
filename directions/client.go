// Package directions queries the transit directions API used to score commutes.
package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"room-triage/models"
	"room-triage/utils"
)

// Client implements services.RouteFinder over the directions API.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	throttle *utils.Throttle
	retry    *utils.RetryConfig
	logger   *utils.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	RateLimitMs int
	MaxRetries  int
	Timeout     time.Duration
	Logger      *utils.Logger
}

// NewClient creates a directions Client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  opts.BaseURL,
		apiKey:   opts.APIKey,
		http:     &http.Client{Timeout: opts.Timeout},
		throttle: utils.NewThrottle(opts.RateLimitMs),
		retry: &utils.RetryConfig{
			MaxAttempts: opts.MaxRetries,
			BaseDelay:   500 * time.Millisecond,
			Logger:      opts.Logger,
		},
		logger: opts.Logger,
	}
}

type response struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Duration struct {
				Value int `json:"value"`
			} `json:"duration"`
			Distance struct {
				Value int `json:"value"`
			} `json:"distance"`
		} `json:"legs"`
	} `json:"routes"`
}

// statusError is returned for API statuses other than OK and ZERO_RESULTS.
type statusError struct {
	Status  string
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return "directions: status " + e.Status
	}
	return "directions: status " + e.Status + ": " + e.Message
}

// Routes returns every transit route from one coordinate to another,
// preferring fewer transfers. ZERO_RESULTS yields an empty slice.
func (c *Client) Routes(ctx context.Context, from, to models.Coordinate) ([]models.Route, error) {
	q := url.Values{}
	q.Set("origin", from.APIParam())
	q.Set("destination", to.APIParam())
	q.Set("key", c.apiKey)
	q.Set("mode", "transit")
	q.Set("transit_routing_preference", "fewer_transfers")
	endpoint := c.baseURL + "?" + q.Encode()

	var resp response
	err := c.retry.Do(ctx, "directions "+from.APIParam()+" → "+to.APIParam(), func() error {
		if err := c.throttle.Wait(ctx); err != nil {
			return err
		}
		r, err := c.fetch(ctx, endpoint)
		if err != nil {
			return err
		}
		resp = *r
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case "OK", "":
	case "ZERO_RESULTS":
		return []models.Route{}, nil
	default:
		return nil, &statusError{Status: resp.Status, Message: resp.ErrorMessage}
	}

	routes := make([]models.Route, 0, len(resp.Routes))
	for _, r := range resp.Routes {
		var seconds, meters int
		for _, leg := range r.Legs {
			seconds += leg.Duration.Value
			meters += leg.Distance.Value
		}
		routes = append(routes, models.Route{
			Changes:         len(r.Legs),
			DurationMinutes: seconds / 60,
			DistanceKm:      meters / 1000,
		})
	}
	c.logger.Debug("[directions] %s → %s: %d routes", from.APIParam(), to.APIParam(), len(routes))
	return routes, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("directions: build request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directions: request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		err := fmt.Errorf("directions: http %d: %s", res.StatusCode, body)
		// only server errors and throttling are transient
		if res.StatusCode < 500 && res.StatusCode != http.StatusTooManyRequests {
			return nil, utils.Permanent(err)
		}
		return nil, err
	}

	var out response
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("directions: decode: %w", err)
	}
	return &out, nil
}
