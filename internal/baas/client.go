// Package baas reads class exports from the hosted backend-as-a-service the
// logbook used before it moved to a relational store. Requests are rate
// limited and results are paged with limit/skip until a short page comes back.
package baas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultPageSize  = 100
	DefaultRateLimit = 2 // requests per second
	DefaultBurst     = 4
	DefaultUserAgent = "FlightLogbook-Migrate/1.0"
)

// Object is one stored object of a class, decoded as generic JSON.
type Object map[string]any

type Client struct {
	baseURL     string
	appID       string
	apiKey      string
	pageSize    int
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

type pageResponse struct {
	Results []Object `json:"results"`
}

func NewClient(baseURL, appID, apiKey string, rateLimit float64) *Client {
	if rateLimit <= 0 {
		rateLimit = DefaultRateLimit
	}
	return &Client{
		baseURL:  baseURL,
		appID:    appID,
		apiKey:   apiKey,
		pageSize: DefaultPageSize,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimit), DefaultBurst),
	}
}

// SetPageSize overrides the page size used by FetchPage callers.
func (c *Client) SetPageSize(n int) {
	if n > 0 {
		c.pageSize = n
	}
}

func (c *Client) PageSize() int { return c.pageSize }

// FetchPage returns up to PageSize objects of class starting at skip.
func (c *Client) FetchPage(ctx context.Context, class string, skip int) ([]Object, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("skip", strconv.Itoa(skip))
	q.Set("order", "createdAt")
	u := fmt.Sprintf("%s/classes/%s?%s", c.baseURL, url.PathEscape(class), q.Encode())

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("fetching %s at %d: %w", class, skip, err)
	}

	var page pageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parsing %s at %d: %w", class, skip, err)
	}
	log.Debug().Str("class", class).Int("skip", skip).Int("count", len(page.Results)).Msg("fetched baas page")
	return page.Results, nil
}

// FetchClass reads every object of class into memory.
func (c *Client) FetchClass(ctx context.Context, class string) ([]Object, error) {
	var all []Object
	for skip := 0; ; skip += c.pageSize {
		page, err := c.FetchPage(ctx, class, skip)
		if err != nil {
			return all, err
		}
		all = append(all, page...)
		if len(page) < c.pageSize {
			break
		}
	}
	log.Info().Str("class", class).Int("objects", len(all)).Msg("fetched baas class")
	return all, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("X-Parse-Application-Id", c.appID)
	if c.apiKey != "" {
		req.Header.Set("X-Parse-REST-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		limit := len(body)
		if limit > 200 {
			limit = 200
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body[:limit]))
	}

	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}
