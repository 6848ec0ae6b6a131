package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dwizi/groundbot/internal/assistant"
)

type fakeResponder struct {
	mu       sync.Mutex
	messages []assistant.Message
	reply    assistant.Reply
}

func (f *fakeResponder) Handle(ctx context.Context, msg assistant.Message) assistant.Reply {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	if msg.Typing != nil {
		msg.Typing()
	}
	return f.reply
}

func (f *fakeResponder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   string
}

type fakeAPI struct {
	mu       sync.Mutex
	requests []recordedRequest
	// fail maps "METHOD path" to a status and error body.
	fail map[string]string
}

func (f *fakeAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Method: req.Method, Path: req.URL.Path, Auth: req.Header.Get("Authorization"), Body: string(body)})
		failure, shouldFail := f.fail[req.Method+" "+req.URL.Path]
		f.mu.Unlock()
		if shouldFail {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, failure)
			return
		}
		if req.Method == http.MethodGet && strings.HasPrefix(req.URL.Path, "/channels/") {
			_ = json.NewEncoder(w).Encode(map[string]any{"id": strings.TrimPrefix(req.URL.Path, "/channels/"), "type": 0})
			return
		}
		if req.URL.Path == "/oauth2/applications/@me" {
			_ = json.NewEncoder(w).Encode(map[string]any{"id": "app-1"})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "msg-1"})
	})
}

func (f *fakeAPI) snapshot() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConnector(t *testing.T, api *fakeAPI, responder Responder) *Connector {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)
	connector := New("bot-token", server.URL, "", responder, testLogger(), WithAIChannel("ai-chan"))
	connector.setIdentity("bot-1", "")
	return connector
}

func TestHandleMessageCreateRepliesToMention(t *testing.T) {
	api := &fakeAPI{}
	responder := &fakeResponder{reply: assistant.Reply{Kind: assistant.KindAnswer, Text: "台北現在 24.5°C"}}
	connector := newTestConnector(t, api, responder)

	err := connector.handleMessageCreate(context.Background(), messageCreate{
		ID:        "m-1",
		ChannelID: "ai-chan",
		Content:   "<@!bot-1> 台北天氣",
		Author:    User{ID: "u-1", Username: "kai"},
		Mentions:  []User{{ID: "bot-1"}},
	})
	if err != nil {
		t.Fatalf("handleMessageCreate failed: %v", err)
	}
	if responder.count() != 1 {
		t.Fatalf("expected one pipeline call, got %d", responder.count())
	}
	msg := responder.messages[0]
	if msg.Text != "台北天氣" || msg.AuthorName != "kai" || msg.UserID != "u-1" || msg.RequestID == "" {
		t.Fatalf("unexpected pipeline message: %+v", msg)
	}

	requests := api.snapshot()
	if len(requests) != 2 {
		t.Fatalf("expected typing and reply requests, got %+v", requests)
	}
	if requests[0].Path != "/channels/ai-chan/typing" {
		t.Fatalf("expected typing first, got %s", requests[0].Path)
	}
	if requests[1].Auth != "Bot bot-token" {
		t.Fatalf("expected bot auth header, got %s", requests[1].Auth)
	}
	var sent MessageSend
	if err := json.Unmarshal([]byte(requests[1].Body), &sent); err != nil {
		t.Fatalf("decode reply body: %v", err)
	}
	if sent.Content != "台北現在 24.5°C" || sent.Reference == nil || sent.Reference.MessageID != "m-1" {
		t.Fatalf("unexpected reply payload: %+v", sent)
	}
}

func TestHandleMessageCreateFiltersMessages(t *testing.T) {
	cases := []struct {
		name    string
		message messageCreate
	}{
		{"bot author", messageCreate{ChannelID: "ai-chan", Content: "<@bot-1> hi", Author: User{ID: "b", Bot: true}, Mentions: []User{{ID: "bot-1"}}}},
		{"other channel", messageCreate{ChannelID: "general", Content: "<@bot-1> hi", Author: User{ID: "u"}, Mentions: []User{{ID: "bot-1"}}}},
		{"no mention", messageCreate{ChannelID: "ai-chan", Content: "台北天氣", Author: User{ID: "u"}}},
		{"other mention", messageCreate{ChannelID: "ai-chan", Content: "<@someone> hi", Author: User{ID: "u"}, Mentions: []User{{ID: "someone"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api := &fakeAPI{}
			responder := &fakeResponder{reply: assistant.Reply{Kind: assistant.KindAnswer, Text: "x"}}
			connector := newTestConnector(t, api, responder)
			if err := connector.handleMessageCreate(context.Background(), tc.message); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if responder.count() != 0 || len(api.snapshot()) != 0 {
				t.Fatalf("expected message to be ignored")
			}
		})
	}
}

func TestHandleMessageCreateWithoutAIChannelIgnoresEverything(t *testing.T) {
	responder := &fakeResponder{}
	connector := New("bot-token", "https://discord.test/api/v10", "", responder, testLogger())
	connector.setIdentity("bot-1", "")
	err := connector.handleMessageCreate(context.Background(), messageCreate{ChannelID: "c", Content: "<@bot-1>", Author: User{ID: "u"}, Mentions: []User{{ID: "bot-1"}}})
	if err != nil || responder.count() != 0 {
		t.Fatalf("expected silent ignore, err=%v calls=%d", err, responder.count())
	}
}

func TestHandleMessageCreateFallsBackToChannelSend(t *testing.T) {
	var posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		if strings.HasSuffix(req.URL.Path, "/messages") {
			posts.Add(1)
			if strings.Contains(string(body), "message_reference") {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"message":"Unknown message","code":10008}`)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	responder := &fakeResponder{reply: assistant.Reply{Kind: assistant.KindAnswer, Text: "答案"}}
	connector := New("bot-token", server.URL, "", responder, testLogger(), WithAIChannel("ai-chan"))
	connector.setIdentity("bot-1", "")

	err := connector.handleMessageCreate(context.Background(), messageCreate{
		ID: "m-1", ChannelID: "ai-chan", Content: "<@bot-1> 嗨",
		Author: User{ID: "u-1", Username: "kai"}, Mentions: []User{{ID: "bot-1"}},
	})
	if err != nil {
		t.Fatalf("expected fallback send to succeed, got %v", err)
	}
	if got := posts.Load(); got != 2 {
		t.Fatalf("expected reply then channel send, got %d posts", got)
	}
}

func TestHandleMessageCreateSkipsDroppedReply(t *testing.T) {
	api := &fakeAPI{}
	responder := &fakeResponder{reply: assistant.Reply{Kind: assistant.KindDropped}}
	connector := newTestConnector(t, api, responder)
	err := connector.handleMessageCreate(context.Background(), messageCreate{
		ID: "m-1", ChannelID: "ai-chan", Content: "<@bot-1>", Author: User{ID: "u-1"}, Mentions: []User{{ID: "bot-1"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, req := range api.snapshot() {
		if strings.HasSuffix(req.Path, "/messages") {
			t.Fatalf("expected no message for a dropped reply, got %+v", req)
		}
	}
}

func TestStripMention(t *testing.T) {
	if got := stripMention("<@123> 台北 <@!123>天氣", "123"); got != "台北 天氣" {
		t.Fatalf("unexpected strip result %q", got)
	}
	if got := stripMention("  <@123>  ", "123"); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
	if got := stripMention("<@1234> hi <@12>", "123"); got != "<@1234> hi <@12>" {
		t.Fatalf("expected other mentions untouched, got %q", got)
	}
}

func TestClientDecodesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"Unknown interaction","code":10062}`)
	}))
	defer server.Close()

	err := NewClient("t", server.URL).RespondInteraction(context.Background(), "i-1", "tok", InteractionResponse{Type: ResponseDeferredChannelMessage})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != 10062 || apiErr.Message != "Unknown interaction" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestSyncCommandsRegistersGuildCommands(t *testing.T) {
	api := &fakeAPI{}
	server := httptest.NewServer(api.handler())
	defer server.Close()
	connector := New("bot-token", server.URL, "", &fakeResponder{}, testLogger(),
		WithCommandGuildIDs([]string{"g-1", " g-1 ", ""}),
		WithCommands(Command{Name: "setup_leave_button", Description: "在目前頻道發送「請假」按鈕"}),
	)

	if err := connector.syncCommands(context.Background()); err != nil {
		t.Fatalf("syncCommands failed: %v", err)
	}
	requests := api.snapshot()
	if len(requests) != 2 || requests[0].Path != "/oauth2/applications/@me" {
		t.Fatalf("expected application lookup then upsert, got %+v", requests)
	}
	if requests[1].Method != http.MethodPut || requests[1].Path != "/applications/app-1/guilds/g-1/commands" {
		t.Fatalf("unexpected upsert request: %+v", requests[1])
	}
	var commands []Command
	if err := json.Unmarshal([]byte(requests[1].Body), &commands); err != nil {
		t.Fatalf("decode commands: %v", err)
	}
	if len(commands) != 1 || commands[0].Type != 1 || commands[0].Name != "setup_leave_button" {
		t.Fatalf("unexpected commands payload: %+v", commands)
	}
}

func TestSyncCommandsWithoutGuildSkips(t *testing.T) {
	connector := New("bot-token", "http://127.0.0.1:0", "", &fakeResponder{}, testLogger(), WithCommands(Command{Name: "x"}))
	if err := connector.syncCommands(context.Background()); err != nil {
		t.Fatalf("expected skip without guild, got %v", err)
	}
}

type fakeInteractions struct {
	seen chan Interaction
}

func (f *fakeInteractions) HandleInteraction(ctx context.Context, interaction Interaction) {
	f.seen <- interaction
}

func TestGatewaySessionDispatchesEvents(t *testing.T) {
	api := &fakeAPI{}
	apiServer := httptest.NewServer(api.handler())
	defer apiServer.Close()

	identified := make(chan map[string]any, 1)
	upgrader := websocket.Upgrader{}
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"op": 10, "d": map[string]any{"heartbeat_interval": 45000}})
		var identify map[string]any
		if err := conn.ReadJSON(&identify); err != nil {
			return
		}
		identified <- identify
		_ = conn.WriteJSON(map[string]any{"op": 0, "t": "READY", "s": 1, "d": map[string]any{"user": map[string]any{"id": "bot-1"}, "application": map[string]any{"id": "app-9"}}})
		_ = conn.WriteJSON(map[string]any{"op": 0, "t": "MESSAGE_CREATE", "s": 2, "d": map[string]any{
			"id": "m-1", "channel_id": "ai-chan", "content": "<@bot-1> 嗨",
			"author": map[string]any{"id": "u-1", "username": "kai"}, "mentions": []any{map[string]any{"id": "bot-1"}},
		}})
		_ = conn.WriteJSON(map[string]any{"op": 0, "t": "INTERACTION_CREATE", "s": 3, "d": map[string]any{
			"id": "i-1", "type": 3, "token": "tok", "data": map[string]any{"custom_id": "leave_button"},
		}})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer gateway.Close()

	responder := &fakeResponder{reply: assistant.Reply{Kind: assistant.KindAnswer, Text: "嗨嗨"}}
	interactions := &fakeInteractions{seen: make(chan Interaction, 1)}
	connector := New("bot-token", apiServer.URL, "ws"+strings.TrimPrefix(gateway.URL, "http"), responder, testLogger(),
		WithAIChannel("ai-chan"),
		WithInteractionHandler(interactions),
		WithCommandSync(false),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- connector.Start(ctx) }()

	select {
	case identify := <-identified:
		d, _ := identify["d"].(map[string]any)
		if identify["op"] != float64(2) || d["token"] != "bot-token" || d["intents"] != float64(intentGuilds|intentGuildMessages|intentMessageContents) {
			t.Fatalf("unexpected identify payload: %+v", identify)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected identify")
	}
	select {
	case interaction := <-interactions.seen:
		if interaction.Data.CustomID != "leave_button" {
			t.Fatalf("unexpected interaction: %+v", interaction)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected interaction dispatch")
	}
	deadline := time.Now().Add(2 * time.Second)
	for responder.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if responder.count() != 1 {
		t.Fatalf("expected message dispatch, got %d", responder.count())
	}
	if connector.ApplicationID() != "app-9" {
		t.Fatalf("expected application id from READY, got %q", connector.ApplicationID())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connector did not stop")
	}
}
