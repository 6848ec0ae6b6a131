// Package mcpserver exposes the evidence sources and the answering pipeline
// as MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dwizi/groundbot/internal/assistant"
	"github.com/dwizi/groundbot/internal/evidence"
	"github.com/dwizi/groundbot/internal/intent"
	"github.com/dwizi/groundbot/internal/prompt"
)

const defaultUserID = "mcp"

type Classifier interface {
	Classify(ctx context.Context, text string) intent.Decision
}

type Responder interface {
	Handle(ctx context.Context, msg assistant.Message) assistant.Reply
}

type Lookup interface {
	Lookup(ctx context.Context, query string) (evidence.Source, error)
}

// Dependencies may leave any field nil; the matching tool is then not offered.
type Dependencies struct {
	Search     evidence.Searcher
	Weather    Lookup
	Wiki       Lookup
	Classifier Classifier
	Assistant  Responder
	Version    string
	Logger     *slog.Logger
}

type Server struct {
	deps   Dependencies
	server *sdkmcp.Server
	tools  []string
	logger *slog.Logger
}

func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if strings.TrimSpace(deps.Version) == "" {
		deps.Version = "dev"
	}
	s := &Server{
		deps:   deps,
		server: sdkmcp.NewServer(&sdkmcp.Implementation{Name: "groundbot", Version: deps.Version}, nil),
		logger: deps.Logger,
	}
	if deps.Search != nil {
		s.addTool("web_search", "Search the web and return numbered sources.", "query", "Search query", s.webSearch)
	}
	if deps.Weather != nil {
		s.addTool("weather", "Current conditions and forecast for a place name.", "location", "Place name, e.g. 台北", s.lookup(deps.Weather))
	}
	if deps.Wiki != nil {
		s.addTool("wiki_lookup", "Look a page up on the configured wiki.", "term", "Page title or search term", s.lookup(deps.Wiki))
	}
	if deps.Classifier != nil {
		s.addTool("classify_intent", "Classify a message as chat or search.", "text", "Message text", s.classify)
	}
	if deps.Assistant != nil {
		s.addTool("ask", "Answer a message through the full grounded pipeline.", "text", "Message text", s.ask)
	}
	return s
}

// Tools lists the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server started", "transport", "stdio", "tools", strings.Join(s.tools, ","))
	if err := s.server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio server: %w", err)
	}
	return nil
}

// Handler serves the same tools over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return s.server }, nil)
}

type arguments map[string]any

func (a arguments) text(name string) string {
	value, _ := a[name].(string)
	return strings.TrimSpace(value)
}

type toolFunc func(ctx context.Context, args arguments, primary string) (string, error)

func (s *Server) addTool(name, description, argName, argDescription string, fn toolFunc) {
	properties := map[string]any{
		argName: map[string]any{"type": "string", "description": argDescription},
	}
	if name == "ask" {
		properties["user_id"] = map[string]any{"type": "string", "description": "Caller identity for quota and memory"}
		properties["author_name"] = map[string]any{"type": "string", "description": "Display name used in the prompt"}
	}
	s.server.AddTool(&sdkmcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   []string{argName},
		},
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest) (*sdkmcp.CallToolResult, error) {
		args := arguments{}
		if req != nil && req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Sprintf("invalid arguments: %v", err)), nil
			}
		}
		text, err := fn(ctx, args, args.text(argName))
		if err != nil {
			s.logger.Warn("mcp tool failed", "tool", name, "error", err)
			return errorResult(err.Error()), nil
		}
		return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}}}, nil
	})
	s.tools = append(s.tools, name)
}

func errorResult(message string) *sdkmcp.CallToolResult {
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: message}},
	}
}

func (s *Server) webSearch(ctx context.Context, _ arguments, query string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	sources, err := s.deps.Search.Search(ctx, query)
	if err != nil {
		return "", err
	}
	return prompt.SourcesBlock(sources), nil
}

func (s *Server) lookup(source Lookup) toolFunc {
	return func(ctx context.Context, _ arguments, query string) (string, error) {
		if query == "" {
			return "", fmt.Errorf("a query is required")
		}
		found, err := source.Lookup(ctx, query)
		if errors.Is(err, evidence.ErrNoData) {
			return prompt.NoSources, nil
		}
		if err != nil {
			return "", err
		}
		return prompt.SourcesBlock([]evidence.Source{found}), nil
	}
}

func (s *Server) classify(ctx context.Context, _ arguments, text string) (string, error) {
	decision := s.deps.Classifier.Classify(ctx, text)
	payload, err := json.Marshal(map[string]string{"label": string(decision.Label), "reason": decision.Reason})
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func (s *Server) ask(ctx context.Context, args arguments, text string) (string, error) {
	userID := args.text("user_id")
	if userID == "" {
		userID = defaultUserID
	}
	reply := s.deps.Assistant.Handle(ctx, assistant.Message{
		RequestID:  uuid.NewString(),
		UserID:     userID,
		AuthorName: args.text("author_name"),
		Text:       text,
	})
	if reply.Kind == assistant.KindDropped {
		return "", fmt.Errorf("cooldown active, retry shortly")
	}
	return reply.Text, nil
}
