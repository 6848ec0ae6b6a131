package app

import (
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/dwizi/groundbot/internal/assistant"
	"github.com/dwizi/groundbot/internal/config"
	"github.com/dwizi/groundbot/internal/evidence"
	"github.com/dwizi/groundbot/internal/intent"
	"github.com/dwizi/groundbot/internal/ledger"
	"github.com/dwizi/groundbot/internal/llm"
	"github.com/dwizi/groundbot/internal/llm/gemini"
	"github.com/dwizi/groundbot/internal/llm/openai"
	"github.com/dwizi/groundbot/internal/mcpserver"
	"github.com/dwizi/groundbot/internal/persona"
	"github.com/dwizi/groundbot/internal/sources/openmeteo"
	"github.com/dwizi/groundbot/internal/sources/serper"
	"github.com/dwizi/groundbot/internal/sources/wiki"
)

const fallbackTimezone = "Asia/Taipei"

// Pipeline is the platform-independent answering stack. The Discord runtime,
// the ask command and the MCP server all share it.
type Pipeline struct {
	Location   *time.Location
	Cooldown   *ledger.Cooldown
	Quota      *ledger.Quota
	Memory     *ledger.Memory
	Personas   *persona.Store
	Models     *llm.Fallback
	Classifier *intent.Classifier
	Search     *serper.Client
	Weather    *openmeteo.Client // nil when WEATHER_PROVIDER is not openmeteo
	Wiki       *wiki.Client      // nil when the wiki is disabled
	Assembler  *evidence.Assembler
	Assistant  *assistant.Service
}

func NewPipeline(cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		location, err = time.LoadLocation(fallbackTimezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone: %w", err)
		}
	}
	personas, err := persona.NewStore(cfg.PersonaFile, logger.With("component", "persona"))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		Location: location,
		Cooldown: ledger.NewCooldown(cfg.Cooldown, nil),
		Quota:    ledger.NewQuota(cfg.DailyLimitPerUser, location, nil),
		Memory:   ledger.NewMemory(cfg.MemoryTurns, nil),
		Personas: personas,
		Models:   llm.NewFallback(newGenerator(cfg, logger), modelPreference(cfg), logger.With("component", "llm-fallback")),
		Search: serper.New(serper.Config{
			APIKey:   cfg.SerperAPIKey,
			URL:      cfg.SerperAPIURL,
			Timeout:  cfg.FetchTimeout,
			CacheTTL: cfg.SearchCacheTTL,
		}, logger.With("component", "serper")),
	}
	p.Classifier = intent.New(p.Models, logger.With("component", "intent"), intent.WithTimeout(cfg.FetchTimeout))

	var weather evidence.WeatherLookup
	if cfg.WeatherProvider == "openmeteo" {
		p.Weather = openmeteo.New(openmeteo.Config{
			GeocodeURL:  cfg.GeocodeAPIURL,
			ForecastURL: cfg.ForecastAPIURL,
			Timezone:    location.String(),
			Timeout:     cfg.FetchTimeout,
			CacheTTL:    cfg.WeatherCacheTTL,
		}, logger.With("component", "openmeteo"))
		weather = p.Weather
	}
	var wikiLookup evidence.WikiLookup
	if cfg.WikiEnabled() {
		p.Wiki = wiki.New(wiki.Config{
			APIURL:   cfg.WikiAPIURL,
			Timeout:  cfg.WikiTimeout,
			CacheTTL: cfg.SearchCacheTTL,
		}, logger.With("component", "wiki"))
		wikiLookup = p.Wiki
	}
	p.Assembler = evidence.NewAssembler(p.Search, weather, wikiLookup, evidence.Config{
		DefaultCity: cfg.DefaultCity,
	}, logger.With("component", "evidence"))

	p.Assistant = assistant.New(assistant.Dependencies{
		Cooldown:   p.Cooldown,
		Quota:      p.Quota,
		Memory:     p.Memory,
		Classifier: p.Classifier,
		Assembler:  p.Assembler,
		Generator:  p.Models,
		Personas:   p.Personas,
	}, logger.With("component", "assistant"))
	return p, nil
}

func newGenerator(cfg config.Config, logger *slog.Logger) llm.Generator {
	if cfg.LLMProvider == "openai" {
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.LLMTimeout,
		}, logger.With("component", "llm-openai"))
	}
	return gemini.New(gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiAPIBase,
		Model:   cfg.GeminiModel,
		Timeout: cfg.LLMTimeout,
	}, logger.With("component", "llm-gemini"))
}

func modelPreference(cfg config.Config) []string {
	if cfg.LLMProvider == "openai" {
		return llm.ModelList(cfg.OpenAIModel)
	}
	return llm.ModelList(append([]string{cfg.GeminiModel}, llm.DefaultGeminiModels...)...)
}

// MCPDependencies exposes the pipeline as MCP tools. Disabled fetch clients
// stay nil so their tools are not offered.
func (p *Pipeline) MCPDependencies(logger *slog.Logger) mcpserver.Dependencies {
	deps := mcpserver.Dependencies{
		Classifier: p.Classifier,
		Assistant:  p.Assistant,
		Version:    Version,
		Logger:     logger,
	}
	if p.Search != nil && p.Search.Enabled() {
		deps.Search = p.Search
	}
	if p.Weather != nil {
		deps.Weather = p.Weather
	}
	if p.Wiki != nil {
		deps.Wiki = p.Wiki
	}
	return deps
}
