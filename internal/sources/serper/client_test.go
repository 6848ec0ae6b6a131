package serper

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func organicHandler(t *testing.T, calls *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(calls, 1)
		if req.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", req.Method)
		}
		if got := req.Header.Get("X-API-KEY"); got != "secret" {
			t.Fatalf("expected api key header, got %q", got)
		}
		var body struct {
			Q   string `json:"q"`
			Num int    `json:"num"`
			GL  string `json:"gl"`
			HL  string `json:"hl"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Num != 6 || body.GL != "tw" || body.HL != "zh-tw" {
			t.Fatalf("unexpected request body: %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"organic": []map[string]any{
				{"title": "Go", "link": "https://go.dev", "snippet": "The Go language"},
				{"title": "Tour", "link": "https://go.dev/tour"},
			},
		})
	}
}

func TestSearchCachesWithinTTL(t *testing.T) {
	var calls int32
	server := httptest.NewServer(organicHandler(t, &calls))
	defer server.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	client := New(Config{
		APIKey:   "secret",
		URL:      server.URL,
		CacheTTL: 5 * time.Minute,
		Now:      func() time.Time { return now },
	}, testLogger())

	first, err := client.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(first) != 2 || first[0].Link != "https://go.dev" || first[0].Snippet != "The Go language" {
		t.Fatalf("unexpected results: %+v", first)
	}

	now = now.Add(4 * time.Minute)
	if _, err := client.Search(context.Background(), "  GOLANG "); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one upstream call within ttl, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	if _, err := client.Search(context.Background(), "golang"); err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected refetch after ttl, got %d calls", got)
	}
}

func TestSearchWithoutKeyReturnsNothing(t *testing.T) {
	var calls int32
	server := httptest.NewServer(organicHandler(t, &calls))
	defer server.Close()

	client := New(Config{URL: server.URL}, testLogger())
	results, err := client.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(results) != 0 || calls != 0 {
		t.Fatalf("expected no upstream call, got %d results and %d calls", len(results), calls)
	}
}

func TestSearchUpstreamErrorIsEmptyAndUncached(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := New(Config{APIKey: "secret", URL: server.URL}, testLogger())
	for i := 0; i < 2; i++ {
		results, err := client.Search(context.Background(), "golang")
		if err != nil {
			t.Fatalf("expected degraded empty result, got %v", err)
		}
		if len(results) != 0 {
			t.Fatalf("expected no results, got %+v", results)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected failures not to be cached, got %d calls", got)
	}
}

func TestSearchMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	client := New(Config{APIKey: "secret", URL: server.URL}, testLogger())
	results, err := client.Search(context.Background(), "golang")
	if err != nil || len(results) != 0 {
		t.Fatalf("expected empty result, got %+v err=%v", results, err)
	}
}

func TestSearchSharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		_ = json.NewEncoder(w).Encode(map[string]any{
			"organic": []map[string]any{{"title": "Go", "link": "https://go.dev"}},
		})
	}))
	defer server.Close()
	client := New(Config{APIKey: "secret", URL: server.URL}, testLogger())

	firstCtx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := client.Search(firstCtx, "golang")
		firstDone <- err
	}()
	<-started
	cancel()
	if err := <-firstDone; err == nil {
		t.Fatal("expected cancelled caller to return an error")
	}

	secondDone := make(chan struct{})
	var second []string
	go func() {
		results, err := client.Search(context.Background(), "golang")
		if err != nil {
			t.Errorf("expected joined caller to succeed, got %v", err)
		}
		for _, r := range results {
			second = append(second, r.Link)
		}
		close(secondDone)
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)
	<-secondDone

	if len(second) != 1 || second[0] != "https://go.dev" {
		t.Fatalf("expected shared result for joined caller, got %v", second)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one upstream request, got %d", got)
	}
}
