package llm

import (
	"context"
	"errors"
)

var (
	ErrUnavailable   = errors.New("llm unavailable")
	ErrModelNotFound = errors.New("llm model not found")
)

type Request struct {
	// Model may be empty; the client uses its configured default.
	Model             string
	SystemInstruction string
	Prompt            string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
