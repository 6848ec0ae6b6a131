package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort string
	LogLevel string

	DiscordToken         string
	DiscordAPI           string
	DiscordWSURL         string
	DiscordApplicationID string
	DiscordGuildIDsCSV   string
	CommandSyncEnabled   bool

	AIChannelID       string
	DailyLimitPerUser int
	Cooldown          time.Duration
	MemoryTurns       int
	Timezone          string

	LLMProvider   string // gemini | openai
	LLMTimeout    time.Duration
	GeminiAPIKey  string
	GeminiModel   string
	GeminiAPIBase string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	PersonaFile   string

	SerperAPIKey    string
	SerperAPIURL    string
	SearchCacheTTL  time.Duration
	FetchTimeout    time.Duration
	WeatherProvider string
	WeatherCacheTTL time.Duration
	DefaultCity     string
	GeocodeAPIURL   string
	ForecastAPIURL  string
	WikiAPIURL      string
	WikiTimeout     time.Duration

	LeaveChannelID  string
	ReportChannelID string
}

func FromEnv() Config {
	return Config{
		HTTPPort: stringOrDefault("PORT", "3000"),
		LogLevel: stringOrDefault("LOG_LEVEL", "info"),

		DiscordToken:         strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		DiscordAPI:           stringOrDefault("DISCORD_API_BASE", "https://discord.com/api/v10"),
		DiscordWSURL:         stringOrDefault("DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json"),
		DiscordApplicationID: strings.TrimSpace(os.Getenv("CLIENT_ID")),
		DiscordGuildIDsCSV:   strings.TrimSpace(os.Getenv("GUILD_ID")),
		CommandSyncEnabled:   boolOrDefault("DISCORD_COMMAND_SYNC_ENABLED", true),

		AIChannelID:       strings.TrimSpace(os.Getenv("AI_CHANNEL_ID")),
		DailyLimitPerUser: intOrDefault("AI_DAILY_LIMIT_PER_USER", 20),
		Cooldown:          durationOrDefault("AI_COOLDOWN_MS", time.Millisecond, 1200*time.Millisecond),
		MemoryTurns:       intOrDefault("AI_MEMORY_TURNS", 6),
		Timezone:          stringOrDefault("AI_TIMEZONE", "Asia/Taipei"),

		LLMProvider:   strings.ToLower(stringOrDefault("LLM_PROVIDER", "gemini")),
		LLMTimeout:    durationOrDefault("LLM_TIMEOUT_SECONDS", time.Second, 30*time.Second),
		GeminiAPIKey:  firstNonEmpty("GEMINI_API_KEY", "GEMINI_KEY", "key"),
		GeminiModel:   strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		GeminiAPIBase: stringOrDefault("GEMINI_API_BASE", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: stringOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   stringOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		PersonaFile:   strings.TrimSpace(os.Getenv("PERSONA_FILE")),

		SerperAPIKey:    strings.TrimSpace(os.Getenv("SERPER_API_KEY")),
		SerperAPIURL:    stringOrDefault("SERPER_API_URL", "https://google.serper.dev/search"),
		SearchCacheTTL:  durationOrDefault("SEARCH_CACHE_TTL_SECONDS", time.Second, 5*time.Minute),
		FetchTimeout:    durationOrDefault("FETCH_TIMEOUT_SECONDS", time.Second, 8*time.Second),
		WeatherProvider: strings.ToLower(stringOrDefault("WEATHER_PROVIDER", "openmeteo")),
		WeatherCacheTTL: durationOrDefault("WEATHER_CACHE_TTL_SECONDS", time.Second, 10*time.Minute),
		DefaultCity:     stringOrDefault("DEFAULT_CITY", "台北"),
		GeocodeAPIURL:   stringOrDefault("OPENMETEO_GEOCODE_URL", "https://geocoding-api.open-meteo.com/v1/search"),
		ForecastAPIURL:  stringOrDefault("OPENMETEO_FORECAST_URL", "https://api.open-meteo.com/v1/forecast"),
		WikiAPIURL:      stringOrDefault("WIKI_API_URL", "https://ff14.huijiwiki.com/api.php"),
		WikiTimeout:     durationOrDefault("WIKI_TIMEOUT_MS", time.Millisecond, 4500*time.Millisecond),

		LeaveChannelID:  strings.TrimSpace(os.Getenv("LEAVE_CHANNEL_ID")),
		ReportChannelID: strings.TrimSpace(os.Getenv("REPORT_CHANNEL_ID")),
	}
}

// GuildIDs splits GUILD_ID, which may hold a comma separated list.
func (c Config) GuildIDs() []string {
	return splitCSV(c.DiscordGuildIDsCSV)
}

func (c Config) HTTPAddr() string {
	port := strings.TrimSpace(c.HTTPPort)
	if strings.Contains(port, ":") {
		return port
	}
	return ":" + port
}

// WikiEnabled is false when WIKI_API_URL is set to off or none.
func (c Config) WikiEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.WikiAPIURL)) {
	case "", "off", "none":
		return false
	}
	return true
}

// Warnings lists configuration gaps that degrade a feature. They are logged once at startup.
func (c Config) Warnings() []string {
	warnings := []string{}
	if c.AIChannelID != "" {
		switch c.LLMProvider {
		case "openai":
			if c.OpenAIAPIKey == "" && !strings.Contains(strings.ToLower(c.OpenAIBaseURL), "localhost") {
				warnings = append(warnings, "AI_CHANNEL_ID is set but OPENAI_API_KEY is missing")
			}
		default:
			if c.GeminiAPIKey == "" {
				warnings = append(warnings, "AI_CHANNEL_ID is set but GEMINI_API_KEY is missing")
			}
		}
		if c.SerperAPIKey == "" {
			warnings = append(warnings, "AI_CHANNEL_ID is set but SERPER_API_KEY is missing, search-first answering is disabled")
		}
	}
	if c.WeatherProvider != "openmeteo" {
		warnings = append(warnings, "WEATHER_PROVIDER "+c.WeatherProvider+" is not supported, weather lookups are disabled")
	}
	if c.DiscordToken == "" {
		warnings = append(warnings, "DISCORD_TOKEN is missing, discord connector is disabled")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		warnings = append(warnings, "AI_TIMEZONE "+c.Timezone+" is invalid, falling back to Asia/Taipei")
	}
	return warnings
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func firstNonEmpty(names ...string) string {
	for _, name := range names {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return ""
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func durationOrDefault(name string, unit, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return time.Duration(parsed) * unit
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if value := strings.TrimSpace(part); value != "" {
			values = append(values, value)
		}
	}
	return values
}
