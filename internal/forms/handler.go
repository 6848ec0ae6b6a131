package forms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/groundbot/internal/connectors/discord"
)

const (
	codeUnknownInteraction  = 10062
	codeAlreadyAcknowledged = 40060

	genericError = "❌ 發生錯誤，請稍後再試"
)

// IsIgnorable reports errors caused by an expired or already answered
// interaction. They are expected when a user clicks stale UI.
func IsIgnorable(err error) bool {
	var apiErr *discord.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == codeUnknownInteraction || apiErr.Code == codeAlreadyAcknowledged
}

type API interface {
	RespondInteraction(ctx context.Context, interactionID, interactionToken string, response discord.InteractionResponse) error
	EditOriginalResponse(ctx context.Context, applicationID, interactionToken, content string) error
	GetChannel(ctx context.Context, channelID string) (discord.Channel, error)
	SendMessage(ctx context.Context, channelID string, message discord.MessageSend) error
}

type Config struct {
	LeaveChannelID  string
	ReportChannelID string
	// ApplicationID is used when an interaction does not carry its own.
	ApplicationID func() string
	Timeout       time.Duration
	Now           func() time.Time
}

type Handler struct {
	api    API
	cfg    Config
	logger *slog.Logger
}

func New(api API, cfg Config, logger *slog.Logger) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ApplicationID == nil {
		cfg.ApplicationID = func() string { return "" }
	}
	cfg.LeaveChannelID = strings.TrimSpace(cfg.LeaveChannelID)
	cfg.ReportChannelID = strings.TrimSpace(cfg.ReportChannelID)
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{api: api, cfg: cfg, logger: logger}
}

// exchange tracks how far one interaction has been acknowledged.
type exchange struct {
	h           *Handler
	interaction discord.Interaction
	replied     bool
	deferred    bool
}

func (e *exchange) reply(ctx context.Context, content string) error {
	err := e.h.api.RespondInteraction(ctx, e.interaction.ID, e.interaction.Token, discord.InteractionResponse{
		Type: discord.ResponseChannelMessage,
		Data: &discord.InteractionResponseData{Content: content, Flags: discord.FlagEphemeral},
	})
	if err == nil {
		e.replied = true
	}
	return err
}

func (e *exchange) deferReply(ctx context.Context) error {
	err := e.h.api.RespondInteraction(ctx, e.interaction.ID, e.interaction.Token, discord.InteractionResponse{
		Type: discord.ResponseDeferredChannelMessage,
		Data: &discord.InteractionResponseData{Flags: discord.FlagEphemeral},
	})
	if err == nil {
		e.deferred = true
	}
	return err
}

func (e *exchange) showModal(ctx context.Context, modal discord.InteractionResponse) error {
	err := e.h.api.RespondInteraction(ctx, e.interaction.ID, e.interaction.Token, modal)
	if err == nil {
		e.replied = true
	}
	return err
}

func (e *exchange) editReply(ctx context.Context, content string) error {
	applicationID := strings.TrimSpace(e.interaction.ApplicationID)
	if applicationID == "" {
		applicationID = e.h.cfg.ApplicationID()
	}
	return e.h.api.EditOriginalResponse(ctx, applicationID, e.interaction.Token, content)
}

// HandleInteraction never returns an error; failures are logged and the
// user gets a generic message when the interaction can still carry one.
func (h *Handler) HandleInteraction(ctx context.Context, interaction discord.Interaction) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	ex := &exchange{h: h, interaction: interaction}
	err := h.route(ctx, ex)
	if err == nil {
		return
	}
	logger := h.logger.With("interaction_id", interaction.ID, "type", interaction.Type, "custom_id", interaction.Data.CustomID, "command", interaction.Data.Name)
	if IsIgnorable(err) {
		var apiErr *discord.APIError
		errors.As(err, &apiErr)
		logger.Warn("ignored interaction error", "code", apiErr.Code)
		return
	}
	logger.Error("interaction failed", "error", err)

	var notifyErr error
	switch {
	case !ex.replied && !ex.deferred:
		notifyErr = ex.reply(ctx, genericError)
	case ex.deferred:
		notifyErr = ex.editReply(ctx, genericError)
	}
	if notifyErr != nil {
		logger.Debug("interaction error notice failed", "error", notifyErr)
	}
}

func (h *Handler) route(ctx context.Context, ex *exchange) error {
	interaction := ex.interaction
	switch interaction.Type {
	case discord.InteractionApplicationCommand:
		switch interaction.Data.Name {
		case CommandSetupLeave:
			return h.setupPanel(ctx, ex, "✅ 已在此頻道建立請假按鈕", LeaveButtonMessage())
		case CommandSetupReport:
			return h.setupPanel(ctx, ex, "✅ 已在此頻道建立問題回報按鈕", ReportButtonMessage())
		}
	case discord.InteractionMessageComponent:
		switch interaction.Data.CustomID {
		case LeaveButtonID:
			return ex.showModal(ctx, LeaveModal())
		case ReportButtonID:
			return ex.showModal(ctx, ReportModal())
		}
	case discord.InteractionModalSubmit:
		switch interaction.Data.CustomID {
		case LeaveModalID:
			return h.submitLeave(ctx, ex)
		case ReportModalID:
			return h.submitReport(ctx, ex)
		}
	}
	return nil
}

func (h *Handler) setupPanel(ctx context.Context, ex *exchange, confirmation string, panel discord.MessageSend) error {
	if err := ex.reply(ctx, confirmation); err != nil {
		return err
	}
	if err := h.api.SendMessage(ctx, ex.interaction.ChannelID, panel); err != nil {
		return fmt.Errorf("post form panel: %w", err)
	}
	return nil
}

func (h *Handler) submitLeave(ctx context.Context, ex *exchange) error {
	if err := ex.deferReply(ctx); err != nil {
		return err
	}
	data := ex.interaction.Data
	request := LeaveRequest{
		Applicant: ex.interaction.Invoker(),
		Dates:     data.Value(LeaveDatesField),
		Reason:    data.Value(LeaveReasonField),
		Note:      data.Value(LeaveNoteField),
	}
	return h.deliver(ctx, ex, destination{
		channelID: h.cfg.LeaveChannelID,
		missing:   "❌ 未設定 LEAVE_CHANNEL_ID（Render 環境變數）",
		notText:   "❌ 請假頻道不存在/不是文字頻道（LEAVE_CHANNEL_ID 可能錯）",
		done:      "✅ 已送出請假申請",
	}, request.Embed(h.cfg.Now()))
}

func (h *Handler) submitReport(ctx context.Context, ex *exchange) error {
	if err := ex.deferReply(ctx); err != nil {
		return err
	}
	data := ex.interaction.Data
	report := ProblemReport{
		Reporter:    ex.interaction.Invoker(),
		Title:       data.Value(ReportTitleField),
		Type:        data.Value(ReportTypeField),
		Description: data.Value(ReportDescField),
	}
	return h.deliver(ctx, ex, destination{
		channelID: h.cfg.ReportChannelID,
		missing:   "❌ 未設定 REPORT_CHANNEL_ID（Render 環境變數）",
		notText:   "❌ 問題回報頻道不存在/不是文字頻道（REPORT_CHANNEL_ID 可能錯）",
		done:      "✅ 已送出問題回報，感謝！",
	}, report.Embed(h.cfg.Now()))
}

type destination struct {
	channelID string
	missing   string
	notText   string
	done      string
}

func (h *Handler) deliver(ctx context.Context, ex *exchange, dest destination, embed discord.Embed) error {
	if dest.channelID == "" {
		return ex.editReply(ctx, dest.missing)
	}
	channel, err := h.api.GetChannel(ctx, dest.channelID)
	if err != nil {
		h.logger.Warn("form channel lookup failed", "channel_id", dest.channelID, "error", err)
		return ex.editReply(ctx, dest.notText)
	}
	if !channel.IsText() {
		return ex.editReply(ctx, dest.notText)
	}
	if err := h.api.SendMessage(ctx, dest.channelID, discord.MessageSend{Embeds: []discord.Embed{embed}}); err != nil {
		return fmt.Errorf("post form embed: %w", err)
	}
	return ex.editReply(ctx, dest.done)
}
