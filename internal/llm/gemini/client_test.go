package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dwizi/groundbot/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGenerateSuccess(t *testing.T) {
	var receivedKey, receivedPath, receivedSystem, receivedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		receivedKey = req.Header.Get("x-goog-api-key")
		receivedPath = req.URL.Path
		var body generateRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.SystemInstruction != nil && len(body.SystemInstruction.Parts) > 0 {
			receivedSystem = body.SystemInstruction.Parts[0].Text
		}
		if len(body.Contents) > 0 && len(body.Contents[0].Parts) > 0 {
			receivedPrompt = body.Contents[0].Parts[0].Text
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "台北現在 "}, {"text": "24.5°C"}}}},
			},
		})
	}))
	defer server.Close()

	client := New(Config{APIKey: "secret", BaseURL: server.URL}, testLogger())
	text, err := client.Generate(context.Background(), llm.Request{
		Model:             "gemini-1.5-flash",
		SystemInstruction: "persona",
		Prompt:            "台北天氣",
	})
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if text != "台北現在 24.5°C" {
		t.Fatalf("unexpected text: %q", text)
	}
	if receivedKey != "secret" {
		t.Fatalf("expected api key header, got %q", receivedKey)
	}
	if receivedPath != "/models/gemini-1.5-flash:generateContent" {
		t.Fatalf("unexpected path: %s", receivedPath)
	}
	if receivedSystem != "persona" || receivedPrompt != "台北天氣" {
		t.Fatalf("unexpected payload: system=%q prompt=%q", receivedSystem, receivedPrompt)
	}
}

func TestGenerateMissingKey(t *testing.T) {
	client := New(Config{}, testLogger())
	_, err := client.Generate(context.Background(), llm.Request{Prompt: "hi"})
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestGenerateModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"models/gemini-pro is not found","status":"NOT_FOUND"}}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "secret", BaseURL: server.URL}, testLogger())
	_, err := client.Generate(context.Background(), llm.Request{Model: "gemini-pro", Prompt: "hi"})
	if !errors.Is(err, llm.ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestGenerateServerErrorIsNotModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`))
	}))
	defer server.Close()

	client := New(Config{APIKey: "secret", BaseURL: server.URL}, testLogger())
	_, err := client.Generate(context.Background(), llm.Request{Prompt: "hi"})
	if err == nil || errors.Is(err, llm.ErrModelNotFound) {
		t.Fatalf("expected plain failure, got %v", err)
	}
	if !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status in error, got %v", err)
	}
}
