// Package assistant sequences one inbound chat message through gating,
// classification, evidence, generation and citation rendering. It knows
// nothing about the chat platform.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dwizi/groundbot/internal/citation"
	"github.com/dwizi/groundbot/internal/evidence"
	"github.com/dwizi/groundbot/internal/intent"
	"github.com/dwizi/groundbot/internal/ledger"
	"github.com/dwizi/groundbot/internal/llm"
	"github.com/dwizi/groundbot/internal/prompt"
)

type Kind string

const (
	KindAnswer     Kind = "answer"
	KindDropped    Kind = "dropped"
	KindQuota      Kind = "quota"
	KindMissingKey Kind = "missing_key"
	KindNoSources  Kind = "no_sources"
	KindEmpty      Kind = "empty_output"
	KindError      Kind = "error"
)

type Message struct {
	RequestID  string
	UserID     string
	AuthorName string
	Text       string
	// Typing, when set, is called once the message passes cooldown and quota.
	Typing func()
}

type Reply struct {
	Kind    Kind
	Text    string
	Intent  intent.Label
	Sources []evidence.Source
}

// Send reports whether the reply should be delivered to the user.
func (r Reply) Send() bool {
	return r.Kind != KindDropped && strings.TrimSpace(r.Text) != ""
}

type Classifier interface {
	Classify(ctx context.Context, text string) intent.Decision
}

type Assembler interface {
	Assemble(ctx context.Context, text string) []evidence.Source
}

type Personas interface {
	SystemInstruction(userID string) string
}

type Dependencies struct {
	Cooldown   *ledger.Cooldown
	Quota      *ledger.Quota
	Memory     *ledger.Memory
	Classifier Classifier
	Assembler  Assembler
	Generator  llm.Generator
	Personas   Personas
}

type Service struct {
	deps   Dependencies
	logger *slog.Logger
}

func New(deps Dependencies, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{deps: deps, logger: logger}
}

// Handle never returns an error; every failure maps to a canned reply.
func (s *Service) Handle(ctx context.Context, msg Message) Reply {
	logger := s.logger.With("request_id", msg.RequestID, "user_id", msg.UserID)
	text := strings.TrimSpace(msg.Text)

	if s.deps.Cooldown != nil && !s.deps.Cooldown.Allow(msg.UserID) {
		logger.Debug("message dropped by cooldown")
		return Reply{Kind: KindDropped}
	}
	if s.deps.Quota != nil {
		if _, ok := s.deps.Quota.Check(msg.UserID); !ok {
			logger.Info("daily quota exhausted", "day_key", s.deps.Quota.DayKey())
			return Reply{Kind: KindQuota, Text: QuotaMessage(s.deps.Quota.DayKey(), s.deps.Quota.Limit())}
		}
	}
	if msg.Typing != nil {
		msg.Typing()
	}

	var history []ledger.Turn
	if s.deps.Memory != nil {
		history = s.deps.Memory.History(msg.UserID)
		userTurn := text
		if userTurn == "" {
			userTurn = prompt.EmptyMention
		}
		s.deps.Memory.Push(msg.UserID, ledger.RoleUser, userTurn)
	}

	reply := s.answer(ctx, logger, msg, text, history)
	reply.Text = Trim(reply.Text)

	if reply.Kind == KindAnswer && s.deps.Quota != nil {
		s.deps.Quota.Record(msg.UserID)
	}
	if s.deps.Memory != nil {
		s.deps.Memory.Push(msg.UserID, ledger.RoleAssistant, reply.Text)
	}
	logger.Info("message handled", "kind", string(reply.Kind), "intent", string(reply.Intent), "sources", len(reply.Sources))
	return reply
}

func (s *Service) answer(ctx context.Context, logger *slog.Logger, msg Message, text string, history []ledger.Turn) Reply {
	if !s.generatorReady() {
		return Reply{Kind: KindMissingKey, Text: MissingKeyMessage}
	}

	decision := intent.Decision{Label: intent.Chat, Reason: "no_classifier"}
	if s.deps.Classifier != nil {
		decision = s.deps.Classifier.Classify(ctx, text)
	}
	logger.Debug("intent classified", "intent", string(decision.Label), "reason", decision.Reason)

	input := prompt.Input{
		AuthorName: msg.AuthorName,
		Text:       text,
		History:    history,
	}
	payload := ""
	if decision.Label == intent.Search {
		if s.deps.Assembler != nil {
			input.Sources = s.deps.Assembler.Assemble(ctx, text)
		}
		if len(input.Sources) == 0 {
			return Reply{Kind: KindNoSources, Text: NoSourceMessage, Intent: decision.Label}
		}
		payload = prompt.Search(input)
	} else {
		payload = prompt.Chat(input)
	}

	system := ""
	if s.deps.Personas != nil {
		system = s.deps.Personas.SystemInstruction(msg.UserID)
	}
	output, err := s.deps.Generator.Generate(ctx, llm.Request{
		SystemInstruction: system,
		Prompt:            payload,
	})
	if err != nil {
		if errors.Is(err, llm.ErrUnavailable) {
			return Reply{Kind: KindMissingKey, Text: MissingKeyMessage, Intent: decision.Label, Sources: input.Sources}
		}
		logger.Error("llm generation failed", "error", err)
		return Reply{Kind: KindError, Text: ErrorMessage, Intent: decision.Label, Sources: input.Sources}
	}
	output = strings.TrimSpace(output)
	if output == "" {
		return Reply{Kind: KindEmpty, Text: EmptyOutputMessage, Intent: decision.Label, Sources: input.Sources}
	}
	if decision.Label == intent.Search {
		output = citation.Render(output, input.Sources)
	}
	return Reply{Kind: KindAnswer, Text: output, Intent: decision.Label, Sources: input.Sources}
}

type enabler interface {
	Enabled() bool
}

func (s *Service) generatorReady() bool {
	if s.deps.Generator == nil {
		return false
	}
	if checker, ok := s.deps.Generator.(enabler); ok {
		return checker.Enabled()
	}
	return true
}
