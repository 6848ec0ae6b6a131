package evidence

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// MaxSources caps how many sources reach the prompt.
const MaxSources = 8

// MaxOrdinalExtras caps the raw ordinal-lookup hits kept next to the
// synthesized evidence, so targeted searches cannot crowd out later steps.
const MaxOrdinalExtras = 3

var ErrNoData = errors.New("no evidence")

// Source is one titled, linked snippet of third-party evidence.
type Source struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Origin  string `json:"origin,omitempty"`
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]Source, error)
}

type WeatherLookup interface {
	Lookup(ctx context.Context, location string) (Source, error)
}

type WikiLookup interface {
	Lookup(ctx context.Context, term string) (Source, error)
}

type Config struct {
	DefaultCity string
	MaxSources  int
}

type Assembler struct {
	search  Searcher
	weather WeatherLookup
	wiki    WikiLookup
	cfg     Config
	logger  *slog.Logger
}

// NewAssembler wires the fetch clients. Any of them may be nil, which skips its step.
func NewAssembler(search Searcher, weather WeatherLookup, wiki WikiLookup, cfg Config, logger *slog.Logger) *Assembler {
	if strings.TrimSpace(cfg.DefaultCity) == "" {
		cfg.DefaultCity = "台北"
	}
	if cfg.MaxSources < 1 {
		cfg.MaxSources = MaxSources
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		search:  search,
		weather: weather,
		wiki:    wiki,
		cfg:     cfg,
		logger:  logger,
	}
}

// Assemble gathers sources for a search-classified message. Steps run in a fixed
// order and append to one list; a failing step contributes nothing.
func (a *Assembler) Assemble(ctx context.Context, text string) []Source {
	list := &sourceList{limit: a.cfg.MaxSources, seen: map[string]struct{}{}}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var ordinalExtra []Source
	if a.search != nil && IsOrdinalQuery(text) {
		evidence, extra := a.findOrdinalEvidence(ctx, text)
		if evidence != nil {
			list.add(*evidence)
		}
		if len(extra) > MaxOrdinalExtras {
			extra = extra[:MaxOrdinalExtras]
		}
		ordinalExtra = extra
	}

	if a.wiki != nil && IsGameQuery(text) {
		if term := ExtractLikelyQuestName(text); term != "" {
			source, err := a.wiki.Lookup(ctx, term)
			switch {
			case err == nil:
				list.add(source)
			case !errors.Is(err, ErrNoData):
				a.logger.Warn("wiki lookup failed", "term", term, "error", err)
			}
		}
	}

	if a.weather != nil && IsWeatherQuery(text) {
		location := GuessLocation(text, a.cfg.DefaultCity)
		source, err := a.weather.Lookup(ctx, location)
		switch {
		case err == nil:
			list.add(source)
		case !errors.Is(err, ErrNoData):
			a.logger.Warn("weather lookup failed", "location", location, "error", err)
		}
	}

	list.add(ordinalExtra...)

	if a.search != nil {
		results, err := a.search.Search(ctx, text)
		if err != nil {
			a.logger.Warn("web search failed", "error", err)
		}
		list.add(results...)
	}

	return list.items
}

type sourceList struct {
	items []Source
	seen  map[string]struct{}
	limit int
}

func (l *sourceList) add(sources ...Source) {
	for _, source := range sources {
		if len(l.items) >= l.limit {
			return
		}
		link := strings.TrimSpace(source.Link)
		if link != "" {
			if _, exists := l.seen[link]; exists {
				continue
			}
			l.seen[link] = struct{}{}
		}
		l.items = append(l.items, source)
	}
}
