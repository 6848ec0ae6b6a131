package openmeteo

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

	"golang.org/x/sync/singleflight"

	"github.com/dwizi/groundbot/internal/cache"
	"github.com/dwizi/groundbot/internal/evidence"
)

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	CanonicalLink      = "https://open-meteo.com/"

	currentFields = "temperature_2m,apparent_temperature,precipitation,rain,showers,snowfall,weather_code,wind_speed_10m"
	dailyFields   = "temperature_2m_max,temperature_2m_min,precipitation_sum,precipitation_probability_max"
)

type Config struct {
	GeocodeURL  string
	ForecastURL string
	Timezone    string
	Timeout     time.Duration
	CacheTTL    time.Duration
	Now         func() time.Time
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	cache      *cache.Cache[evidence.Source]
	group      singleflight.Group
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if strings.TrimSpace(cfg.GeocodeURL) == "" {
		cfg.GeocodeURL = defaultGeocodeURL
	}
	if strings.TrimSpace(cfg.ForecastURL) == "" {
		cfg.ForecastURL = defaultForecastURL
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = "Asia/Taipei"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  cache.New[evidence.Source](cfg.CacheTTL, cache.WithClock[evidence.Source](cfg.Now)),
		logger: logger,
	}
}

// Lookup geocodes location, fetches its forecast and renders a fixed-field
// weather block. Unknown places and upstream rejections return evidence.ErrNoData.
func (c *Client) Lookup(ctx context.Context, location string) (evidence.Source, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return evidence.Source{}, evidence.ErrNoData
	}
	key := cache.Key("wx", location)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}

	// Joined callers each wait on their own ctx; the shared fetch only ends on
	// httpClient.Timeout.
	shared := c.group.DoChan(key, func() (any, error) {
		if cached, ok := c.cache.Get(key); ok {
			return cached, nil
		}
		detached := context.WithoutCancel(ctx)
		place, err := c.Geocode(detached, location)
		if err != nil {
			return nil, err
		}
		forecast, err := c.Forecast(detached, place.Latitude, place.Longitude)
		if err != nil {
			return nil, err
		}
		source := evidence.Source{
			Title:   fmt.Sprintf("天氣資料：%s（Open-Meteo）", location),
			Snippet: FormatBlock(location, place, forecast),
			Link:    CanonicalLink,
			Origin:  "weather",
		}
		c.cache.Set(key, source)
		return source, nil
	})
	var result singleflight.Result
	select {
	case result = <-shared:
	case <-ctx.Done():
		return evidence.Source{}, ctx.Err()
	}
	if result.Err != nil {
		return evidence.Source{}, result.Err
	}
	return result.Val.(evidence.Source), nil
}

type Place struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	Admin1    string  `json:"admin1"`
	Timezone  string  `json:"timezone"`
}

func (c *Client) Geocode(ctx context.Context, name string) (Place, error) {
	query := url.Values{}
	query.Set("name", name)
	query.Set("count", "1")
	query.Set("language", "zh")
	query.Set("format", "json")

	var response struct {
		Results []Place `json:"results"`
	}
	if err := c.getJSON(ctx, c.cfg.GeocodeURL, query, &response); err != nil {
		return Place{}, err
	}
	if len(response.Results) == 0 {
		return Place{}, fmt.Errorf("%w: no place named %q", evidence.ErrNoData, name)
	}
	return response.Results[0], nil
}

// Forecast fields are pointers so absent values are skipped rather than rendered as zero.
type Forecast struct {
	Current struct {
		Temperature         *float64 `json:"temperature_2m"`
		ApparentTemperature *float64 `json:"apparent_temperature"`
		Precipitation       *float64 `json:"precipitation"`
		Rain                *float64 `json:"rain"`
		Showers             *float64 `json:"showers"`
		Snowfall            *float64 `json:"snowfall"`
		WeatherCode         *int     `json:"weather_code"`
		WindSpeed           *float64 `json:"wind_speed_10m"`
	} `json:"current"`
	Daily struct {
		TemperatureMax           []*float64 `json:"temperature_2m_max"`
		TemperatureMin           []*float64 `json:"temperature_2m_min"`
		PrecipitationSum         []*float64 `json:"precipitation_sum"`
		PrecipitationProbability []*float64 `json:"precipitation_probability_max"`
	} `json:"daily"`
}

func (c *Client) Forecast(ctx context.Context, latitude, longitude float64) (Forecast, error) {
	query := url.Values{}
	query.Set("latitude", formatNumber(latitude))
	query.Set("longitude", formatNumber(longitude))
	query.Set("current", currentFields)
	query.Set("daily", dailyFields)
	query.Set("timezone", c.cfg.Timezone)

	var forecast Forecast
	if err := c.getJSON(ctx, c.cfg.ForecastURL, query, &forecast); err != nil {
		return Forecast{}, err
	}
	return forecast, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("open-meteo request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read open-meteo response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		c.logger.Warn("open-meteo request failed", "endpoint", endpoint, "status", res.StatusCode)
		return fmt.Errorf("%w: open-meteo status %d", evidence.ErrNoData, res.StatusCode)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("%w: decode open-meteo response: %v", evidence.ErrNoData, err)
	}
	return nil
}
