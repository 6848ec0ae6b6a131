package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// DefaultGeminiModels is tried in order after any configured preference.
var DefaultGeminiModels = []string{
	"gemini-2.0-flash",
	"gemini-1.5-flash-latest",
	"gemini-1.5-flash",
	"gemini-1.5-pro-latest",
	"gemini-1.5-pro",
	"gemini-pro",
}

// Fallback walks an ordered model list, moving on only when the provider
// reports ErrModelNotFound. The last model that answered is tried first.
type Fallback struct {
	next   Generator
	models []string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func NewFallback(next Generator, models []string, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		next:   next,
		models: ModelList(models...),
		logger: logger,
	}
}

// ModelList drops blank and duplicate names, keeping first occurrence order.
func ModelList(names ...string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Enabled defers to the wrapped generator when it can report readiness.
func (f *Fallback) Enabled() bool {
	if checker, ok := f.next.(interface{ Enabled() bool }); ok {
		return checker.Enabled()
	}
	return f.next != nil
}

func (f *Fallback) Models() []string {
	return append([]string(nil), f.models...)
}

// Last returns the model that most recently answered, if any.
func (f *Fallback) Last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *Fallback) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Model) != "" {
		return f.next.Generate(ctx, req)
	}
	candidates := f.order()
	if len(candidates) == 0 {
		return f.next.Generate(ctx, req)
	}

	var lastErr error
	for _, model := range candidates {
		attempt := req
		attempt.Model = model
		text, err := f.next.Generate(ctx, attempt)
		if err == nil {
			f.remember(model)
			return text, nil
		}
		if !errors.Is(err, ErrModelNotFound) {
			return "", err
		}
		f.logger.Warn("model not found, trying next", "model", model)
		lastErr = err
	}
	return "", fmt.Errorf("no configured model available: %w", lastErr)
}

func (f *Fallback) order() []string {
	f.mu.Lock()
	last := f.last
	f.mu.Unlock()
	if last == "" {
		return f.models
	}
	out := make([]string, 0, len(f.models))
	out = append(out, last)
	for _, model := range f.models {
		if model != last {
			out = append(out, model)
		}
	}
	return out
}

func (f *Fallback) remember(model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last != model {
		f.logger.Info("llm model resolved", "model", model)
	}
	f.last = model
}
