package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dwizi/groundbot/internal/evidence"
	"github.com/dwizi/groundbot/internal/intent"
	"github.com/dwizi/groundbot/internal/ledger"
	"github.com/dwizi/groundbot/internal/llm"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

type fakeClassifier struct {
	label intent.Label
	seen  []string
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) intent.Decision {
	f.seen = append(f.seen, text)
	return intent.Decision{Label: f.label, Reason: "test"}
}

type fakeAssembler struct {
	sources []evidence.Source
	calls   int
}

func (f *fakeAssembler) Assemble(ctx context.Context, text string) []evidence.Source {
	f.calls++
	return f.sources
}

type fakeGenerator struct {
	output   string
	err      error
	disabled bool
	requests []llm.Request
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.requests = append(f.requests, req)
	return f.output, f.err
}

func (f *fakeGenerator) Enabled() bool { return !f.disabled }

type staticPersona string

func (p staticPersona) SystemInstruction(userID string) string { return string(p) + ":" + userID }

type fixture struct {
	clock      *fakeClock
	classifier *fakeClassifier
	assembler  *fakeAssembler
	generator  *fakeGenerator
	quota      *ledger.Quota
	memory     *ledger.Memory
	service    *Service
}

func newFixture(label intent.Label) *fixture {
	f := &fixture{
		clock:      &fakeClock{now: time.Date(2026, 5, 1, 4, 0, 0, 0, time.UTC)},
		classifier: &fakeClassifier{label: label},
		assembler:  &fakeAssembler{},
		generator:  &fakeGenerator{output: "好的"},
	}
	f.quota = ledger.NewQuota(20, time.UTC, f.clock.Now)
	f.memory = ledger.NewMemory(6, f.clock.Now)
	f.service = New(Dependencies{
		Cooldown:   ledger.NewCooldown(1200*time.Millisecond, f.clock.Now),
		Quota:      f.quota,
		Memory:     f.memory,
		Classifier: f.classifier,
		Assembler:  f.assembler,
		Generator:  f.generator,
		Personas:   staticPersona("persona"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) handle(text string) Reply {
	f.clock.now = f.clock.now.Add(2 * time.Second)
	return f.service.Handle(context.Background(), Message{RequestID: "r", UserID: "u1", AuthorName: "kai", Text: text})
}

func TestHandleQuotaRejectsTwentyFirst(t *testing.T) {
	f := newFixture(intent.Chat)
	for i := 0; i < 20; i++ {
		if reply := f.handle("嗨"); reply.Kind != KindAnswer {
			t.Fatalf("expected answer %d, got %s", i+1, reply.Kind)
		}
	}
	calls := len(f.generator.requests)
	reply := f.handle("嗨")
	if reply.Kind != KindQuota {
		t.Fatalf("expected quota rejection, got %s", reply.Kind)
	}
	if !strings.Contains(reply.Text, "2026-05-01") || !strings.Contains(reply.Text, "20") {
		t.Fatalf("expected day key and limit in quota message, got %q", reply.Text)
	}
	if len(f.generator.requests) != calls || len(f.classifier.seen) != 20 {
		t.Fatal("expected no external calls after quota exhaustion")
	}
}

func TestHandleFailureDoesNotCount(t *testing.T) {
	f := newFixture(intent.Chat)
	f.generator.err = errors.New("connection reset")

	reply := f.handle("嗨")
	if reply.Kind != KindError || reply.Text != ErrorMessage {
		t.Fatalf("expected error reply, got %+v", reply)
	}
	if used := f.quota.Used("u1"); used != 0 {
		t.Fatalf("expected failed attempt to be free, used=%d", used)
	}

	f.generator.err = nil
	f.handle("嗨")
	if used := f.quota.Used("u1"); used != 1 {
		t.Fatalf("expected success to count, used=%d", used)
	}
}

func TestHandleSearchWithoutSourcesSkipsModel(t *testing.T) {
	f := newFixture(intent.Search)
	reply := f.handle("2030 年世界盃冠軍")
	if reply.Kind != KindNoSources || reply.Text != NoSourceMessage {
		t.Fatalf("expected no-source sentinel, got %+v", reply)
	}
	if len(f.generator.requests) != 0 {
		t.Fatal("expected LLM not to be called without sources")
	}
	if f.quota.Used("u1") != 0 {
		t.Fatal("expected sentinel reply not to count")
	}
}

func TestHandleSearchRendersCitations(t *testing.T) {
	f := newFixture(intent.Search)
	f.assembler.sources = []evidence.Source{
		{Title: "天氣資料：台北（Open-Meteo）", Snippet: "Current temp: 24.5°C", Link: "https://open-meteo.com/"},
	}
	f.generator.output = "台北現在 24.5°C。\n來源：#1"

	reply := f.handle("台北天氣")
	if reply.Kind != KindAnswer {
		t.Fatalf("expected answer, got %+v", reply)
	}
	if !strings.Contains(reply.Text, "24.5") || !strings.Contains(reply.Text, "- 天氣資料：台北（Open-Meteo）\n  https://open-meteo.com/") {
		t.Fatalf("expected rendered citation, got %q", reply.Text)
	}
	req := f.generator.requests[0]
	if req.SystemInstruction != "persona:u1" {
		t.Fatalf("expected persona system instruction, got %q", req.SystemInstruction)
	}
	if !strings.Contains(req.Prompt, "[#1] 天氣資料：台北（Open-Meteo）") {
		t.Fatalf("expected numbered sources in prompt, got %q", req.Prompt)
	}
}

func TestHandleEmptyMentionIsChat(t *testing.T) {
	classifier := intent.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f := newFixture(intent.Chat)
	f.service.deps.Classifier = classifier

	reply := f.handle("")
	if reply.Kind != KindAnswer || reply.Intent != intent.Chat {
		t.Fatalf("expected chat answer, got %+v", reply)
	}
	if f.assembler.calls != 0 {
		t.Fatal("expected no evidence assembly for an empty mention")
	}
	prompt := f.generator.requests[0].Prompt
	if !strings.HasSuffix(prompt, "(只標我，沒內容)") || strings.Contains(prompt, "Sources:") {
		t.Fatalf("expected empty mention framing without sources, got %q", prompt)
	}
	history := f.memory.History("u1")
	if len(history) != 2 || history[0].Text != "(只標我，沒內容)" || history[1].Role != ledger.RoleAssistant {
		t.Fatalf("unexpected memory: %+v", history)
	}
}

func TestHandleCooldownDrops(t *testing.T) {
	f := newFixture(intent.Chat)
	f.handle("嗨")
	reply := f.service.Handle(context.Background(), Message{UserID: "u1", Text: "again"})
	if reply.Kind != KindDropped || reply.Send() {
		t.Fatalf("expected silent drop, got %+v", reply)
	}
}

func TestHandleMissingKey(t *testing.T) {
	f := newFixture(intent.Search)
	f.generator.disabled = true
	reply := f.handle("台北天氣")
	if reply.Kind != KindMissingKey || reply.Text != MissingKeyMessage {
		t.Fatalf("expected missing key reply, got %+v", reply)
	}
	if f.assembler.calls != 0 || len(f.generator.requests) != 0 {
		t.Fatal("expected no calls without a key")
	}
}

func TestHandleEmptyOutputAndTrim(t *testing.T) {
	f := newFixture(intent.Chat)
	f.generator.output = "   "
	if reply := f.handle("嗨"); reply.Kind != KindEmpty || reply.Text != EmptyOutputMessage {
		t.Fatalf("expected empty output fallback, got %+v", reply)
	}

	f.generator.output = strings.Repeat("字", 2000)
	reply := f.handle("嗨")
	if got := len([]rune(reply.Text)); got != MaxReplyRunes+1 || !strings.HasSuffix(reply.Text, "…") {
		t.Fatalf("expected trimmed reply, got %d runes", got)
	}
}

func TestHandleHistoryExcludesCurrentTurn(t *testing.T) {
	f := newFixture(intent.Chat)
	f.handle("第一句")
	f.handle("第二句")
	prompt := f.generator.requests[1].Prompt
	if strings.Count(prompt, "第二句") != 1 || !strings.Contains(prompt, "使用者：第一句") {
		t.Fatalf("unexpected history rendering: %q", prompt)
	}
}
