package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dwizi/groundbot/internal/cache"
	"github.com/dwizi/groundbot/internal/evidence"
)

const (
	defaultAPIURL  = "https://ff14.huijiwiki.com/api.php"
	defaultTimeout = 4500 * time.Millisecond
	snippetLimit   = 600
)

type Config struct {
	APIURL   string
	Timeout  time.Duration
	CacheTTL time.Duration
	Now      func() time.Time
}

// Client looks pages up on a MediaWiki install: opensearch for the title,
// then parse for the rendered text.
type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *cache.Cache[evidence.Source]
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = defaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		cache:      cache.New[evidence.Source](cfg.CacheTTL, cache.WithClock[evidence.Source](cfg.Now)),
		logger:     logger,
	}
}

// Lookup returns a snippet of the best-matching page. The whole exchange is
// bounded by Timeout; a timeout or a miss is reported as evidence.ErrNoData.
func (c *Client) Lookup(ctx context.Context, term string) (evidence.Source, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return evidence.Source{}, evidence.ErrNoData
	}
	key := cache.Key("wiki", term)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	title, link, err := c.search(ctx, term)
	if err != nil {
		return evidence.Source{}, c.classify(ctx, err)
	}
	text, err := c.parse(ctx, title)
	if err != nil {
		return evidence.Source{}, c.classify(ctx, err)
	}
	snippet := truncate(StripHTML(text), snippetLimit)
	if snippet == "" {
		return evidence.Source{}, fmt.Errorf("%w: page %q has no text", evidence.ErrNoData, title)
	}
	if link == "" {
		link = c.pageURL(title)
	}
	source := evidence.Source{
		Title:   "灰機Wiki：" + title,
		Snippet: snippet,
		Link:    link,
		Origin:  "wiki",
	}
	c.cache.Set(key, source)
	return source, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		c.logger.Warn("wiki lookup timed out", "timeout", c.cfg.Timeout)
		return fmt.Errorf("%w: %v", evidence.ErrNoData, ctx.Err())
	}
	return err
}

func (c *Client) search(ctx context.Context, term string) (string, string, error) {
	query := url.Values{}
	query.Set("action", "opensearch")
	query.Set("search", term)
	query.Set("limit", "1")
	query.Set("namespace", "0")
	query.Set("format", "json")

	var raw []json.RawMessage
	if err := c.getJSON(ctx, query, &raw); err != nil {
		return "", "", err
	}
	if len(raw) < 2 {
		return "", "", fmt.Errorf("%w: unexpected opensearch shape", evidence.ErrNoData)
	}
	var titles []string
	if err := json.Unmarshal(raw[1], &titles); err != nil || len(titles) == 0 || strings.TrimSpace(titles[0]) == "" {
		return "", "", fmt.Errorf("%w: no page for %q", evidence.ErrNoData, term)
	}
	link := ""
	if len(raw) >= 4 {
		var links []string
		if err := json.Unmarshal(raw[3], &links); err == nil && len(links) > 0 {
			link = strings.TrimSpace(links[0])
		}
	}
	return strings.TrimSpace(titles[0]), link, nil
}

func (c *Client) parse(ctx context.Context, title string) (string, error) {
	query := url.Values{}
	query.Set("action", "parse")
	query.Set("page", title)
	query.Set("prop", "text")
	query.Set("format", "json")
	query.Set("formatversion", "2")
	query.Set("redirects", "1")

	var response struct {
		Parse struct {
			Title string `json:"title"`
			Text  string `json:"text"`
		} `json:"parse"`
		Error *struct {
			Code string `json:"code"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := c.getJSON(ctx, query, &response); err != nil {
		return "", err
	}
	if response.Error != nil {
		return "", fmt.Errorf("%w: wiki parse %s: %s", evidence.ErrNoData, response.Error.Code, response.Error.Info)
	}
	return response.Parse.Text, nil
}

func (c *Client) getJSON(ctx context.Context, query url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.APIURL+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("wiki request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read wiki response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("%w: wiki status %d", evidence.ErrNoData, res.StatusCode)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: decode wiki response: %v", evidence.ErrNoData, err)
	}
	return nil
}

func (c *Client) pageURL(title string) string {
	base := strings.TrimSuffix(c.cfg.APIURL, "api.php")
	return base + "wiki/" + url.PathEscape(strings.ReplaceAll(title, " ", "_"))
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "…"
}
