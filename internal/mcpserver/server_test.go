package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dwizi/groundbot/internal/assistant"
	"github.com/dwizi/groundbot/internal/evidence"
	"github.com/dwizi/groundbot/internal/intent"
)

type fakeSearch struct{ queries []string }

func (f *fakeSearch) Search(ctx context.Context, query string) ([]evidence.Source, error) {
	f.queries = append(f.queries, query)
	return []evidence.Source{{Title: "Taipei", Snippet: "capital", Link: "https://example.com/taipei"}}, nil
}

type fakeLookup struct{ err error }

func (f fakeLookup) Lookup(ctx context.Context, query string) (evidence.Source, error) {
	if f.err != nil {
		return evidence.Source{}, f.err
	}
	return evidence.Source{Title: "天氣資料：" + query + "（Open-Meteo）", Snippet: "Current temp: 24.5°C", Link: "https://open-meteo.com/"}, nil
}

type fakeAssistant struct{ messages []assistant.Message }

func (f *fakeAssistant) Handle(ctx context.Context, msg assistant.Message) assistant.Reply {
	f.messages = append(f.messages, msg)
	return assistant.Reply{Kind: assistant.KindAnswer, Text: "答案：" + msg.Text}
}

func connect(t *testing.T, server *Server) *sdkmcp.ClientSession {
	t.Helper()
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), &sdkmcp.StreamableClientTransport{Endpoint: httpServer.URL}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callText(t *testing.T, session *sdkmcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	parts := []string{}
	for _, content := range result.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), result.IsError
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestServerRegistersOnlyConfiguredTools(t *testing.T) {
	server := New(Dependencies{Search: &fakeSearch{}, Logger: quietLogger()})
	if got := strings.Join(server.Tools(), ","); got != "web_search" {
		t.Fatalf("expected only web_search, got %s", got)
	}
	all := New(Dependencies{
		Search:     &fakeSearch{},
		Weather:    fakeLookup{},
		Wiki:       fakeLookup{},
		Classifier: intent.New(nil, quietLogger()),
		Assistant:  &fakeAssistant{},
		Logger:     quietLogger(),
	})
	if got := strings.Join(all.Tools(), ","); got != "web_search,weather,wiki_lookup,classify_intent,ask" {
		t.Fatalf("unexpected tools: %s", got)
	}
}

func TestToolsOverStreamableHTTP(t *testing.T) {
	search := &fakeSearch{}
	answers := &fakeAssistant{}
	session := connect(t, New(Dependencies{
		Search:     search,
		Weather:    fakeLookup{},
		Wiki:       fakeLookup{err: evidence.ErrNoData},
		Classifier: intent.New(nil, quietLogger()),
		Assistant:  answers,
		Logger:     quietLogger(),
	}))

	text, isErr := callText(t, session, "web_search", map[string]any{"query": "台北 人口"})
	if isErr || !strings.HasPrefix(text, "[#1] Taipei\ncapital\nSource: https://example.com/taipei") {
		t.Fatalf("unexpected search result: %q", text)
	}
	if len(search.queries) != 1 || search.queries[0] != "台北 人口" {
		t.Fatalf("unexpected upstream queries: %v", search.queries)
	}

	text, _ = callText(t, session, "weather", map[string]any{"location": "台北"})
	if !strings.Contains(text, "24.5") || !strings.Contains(text, "https://open-meteo.com/") {
		t.Fatalf("unexpected weather result: %q", text)
	}

	text, isErr = callText(t, session, "wiki_lookup", map[string]any{"term": "不存在"})
	if isErr || text != "（沒有取得可用來源）" {
		t.Fatalf("expected no-source text for missing page, got %q", text)
	}

	text, _ = callText(t, session, "classify_intent", map[string]any{"text": "台北天氣"})
	if !strings.Contains(text, `"label":"search"`) {
		t.Fatalf("expected search label, got %q", text)
	}

	text, _ = callText(t, session, "ask", map[string]any{"text": "嗨", "user_id": "u-1"})
	if text != "答案：嗨" || answers.messages[0].UserID != "u-1" || answers.messages[0].RequestID == "" {
		t.Fatalf("unexpected ask result %q %+v", text, answers.messages)
	}

	if _, isErr := callText(t, session, "web_search", map[string]any{}); !isErr {
		t.Fatal("expected missing query to be a tool error")
	}
}
