package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dwizi/groundbot/internal/cache"
	"github.com/dwizi/groundbot/internal/evidence"
)

const (
	defaultURL      = "https://google.serper.dev/search"
	defaultResults  = 6
	defaultCacheTTL = 5 * time.Minute
)

var errUpstream = errors.New("serper upstream rejected request")

type Config struct {
	APIKey   string
	URL      string
	Results  int
	Country  string
	Language string
	Timeout  time.Duration
	CacheTTL time.Duration
	// Now overrides the cache clock.
	Now func() time.Time
}

// Client queries the Serper web search API. Results are cached per
// normalized query and concurrent identical queries share one request.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *cache.Cache[[]evidence.Source]
	group      singleflight.Group
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = defaultURL
	}
	if cfg.Results < 1 {
		cfg.Results = defaultResults
	}
	if strings.TrimSpace(cfg.Country) == "" {
		cfg.Country = "tw"
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "zh-tw"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cache.New[[]evidence.Source](cfg.CacheTTL, cache.WithClock[[]evidence.Source](cfg.Now)),
		logger: logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Search returns up to Results organic hits. A missing key, a non-2xx status,
// or a malformed body yield an empty result with no error and nothing is cached.
// Transport failures are returned.
func (c *Client) Search(ctx context.Context, query string) ([]evidence.Source, error) {
	query = strings.TrimSpace(query)
	if query == "" || !c.Enabled() {
		return nil, nil
	}
	key := cache.Key("serp", query)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	// The shared fetch is detached from any one caller; httpClient.Timeout bounds it
	// and each caller stops waiting when its own ctx ends.
	shared := c.group.DoChan(key, func() (any, error) {
		if cached, ok := c.cache.Get(key); ok {
			return cached, nil
		}
		results, err := c.fetch(context.WithoutCancel(ctx), query)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, results)
		return results, nil
	})
	var result singleflight.Result
	select {
	case result = <-shared:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	value, err := result.Val, result.Err
	if errors.Is(err, errUpstream) {
		return []evidence.Source{}, nil
	}
	if err != nil {
		return nil, err
	}
	return value.([]evidence.Source), nil
}

func (c *Client) fetch(ctx context.Context, query string) ([]evidence.Source, error) {
	body, err := json.Marshal(map[string]any{
		"q":   query,
		"num": c.cfg.Results,
		"gl":  c.cfg.Country,
		"hl":  c.cfg.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal serper request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", strings.TrimSpace(c.cfg.APIKey))
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	defer res.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(res.Body, 2<<20))
	if err != nil {
		return nil, fmt.Errorf("read serper response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Warn("serper search failed", "status", res.StatusCode, "body", truncate(strings.TrimSpace(string(respBody)), 300))
		return nil, fmt.Errorf("%w: status %d", errUpstream, res.StatusCode)
	}

	var response searchResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		c.logger.Warn("serper response malformed", "error", err)
		return nil, fmt.Errorf("%w: %v", errUpstream, err)
	}

	results := make([]evidence.Source, 0, len(response.Organic))
	for _, item := range response.Organic {
		if len(results) >= c.cfg.Results {
			break
		}
		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" && link == "" {
			continue
		}
		results = append(results, evidence.Source{
			Title:   title,
			Snippet: strings.TrimSpace(item.Snippet),
			Link:    link,
			Origin:  "serper",
		})
	}
	return results, nil
}

type searchResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
