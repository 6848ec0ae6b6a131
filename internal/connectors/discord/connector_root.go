// Package discord speaks the Discord gateway and REST API directly: it
// answers mentions in the AI channel through a Responder and hands every
// interaction to an InteractionHandler.
package discord

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dwizi/groundbot/internal/assistant"
	"github.com/dwizi/groundbot/internal/heartbeat"
)

const (
	componentName = "discord"

	intentGuilds          = 1 << 0
	intentGuildMessages   = 1 << 9
	intentMessageContents = 1 << 15
)

type Responder interface {
	Handle(ctx context.Context, msg assistant.Message) assistant.Reply
}

type InteractionHandler interface {
	HandleInteraction(ctx context.Context, interaction Interaction)
}

type Connector struct {
	token           string
	gatewayURL      string
	aiChannelID     string
	commandSync     bool
	commandGuildIDs []string
	commands        []Command
	rest            *Client
	responder       Responder
	interactions    InteractionHandler
	logger          *slog.Logger
	reporter        heartbeat.Reporter
	reconnectDelay  time.Duration

	mu            sync.RWMutex
	botUserID     string
	applicationID string
}

type Option func(*Connector)

// WithAIChannel restricts AI replies to one channel. Without it the bot
// never answers chat messages.
func WithAIChannel(channelID string) Option {
	return func(connector *Connector) {
		connector.aiChannelID = strings.TrimSpace(channelID)
	}
}

func WithCommandSync(enabled bool) Option {
	return func(connector *Connector) {
		connector.commandSync = enabled
	}
}

func WithCommandGuildIDs(guildIDs []string) Option {
	return func(connector *Connector) {
		clean := make([]string, 0, len(guildIDs))
		seen := map[string]struct{}{}
		for _, guildID := range guildIDs {
			value := strings.TrimSpace(guildID)
			if value == "" {
				continue
			}
			if _, exists := seen[value]; exists {
				continue
			}
			seen[value] = struct{}{}
			clean = append(clean, value)
		}
		connector.commandGuildIDs = clean
	}
}

func WithApplicationID(applicationID string) Option {
	return func(connector *Connector) {
		connector.applicationID = strings.TrimSpace(applicationID)
	}
}

// WithCommands sets the guild commands registered at startup.
func WithCommands(commands ...Command) Option {
	return func(connector *Connector) {
		connector.commands = append(connector.commands, commands...)
	}
}

func WithInteractionHandler(handler InteractionHandler) Option {
	return func(connector *Connector) {
		connector.interactions = handler
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(connector *Connector) {
		if client != nil {
			connector.rest.httpClient = client
		}
	}
}

func New(token, apiBase, gatewayURL string, responder Responder, logger *slog.Logger, opts ...Option) *Connector {
	if strings.TrimSpace(gatewayURL) == "" {
		gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"
	}
	if logger == nil {
		logger = slog.Default()
	}
	connector := &Connector{
		token:          strings.TrimSpace(token),
		gatewayURL:     strings.TrimSpace(gatewayURL),
		commandSync:    true,
		rest:           NewClient(token, apiBase),
		responder:      responder,
		logger:         logger,
		reconnectDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(connector)
		}
	}
	return connector
}

func (c *Connector) Name() string {
	return componentName
}

func (c *Connector) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	c.reporter = reporter
}

// REST exposes the connector's REST client for interaction handlers.
func (c *Connector) REST() *Client {
	return c.rest
}

func (c *Connector) BotUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botUserID
}

func (c *Connector) setIdentity(botUserID, applicationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if botUserID != "" {
		c.botUserID = botUserID
	}
	if c.applicationID == "" && applicationID != "" {
		c.applicationID = applicationID
	}
}

func (c *Connector) report(fn func(heartbeat.Reporter)) {
	if c.reporter != nil {
		fn(c.reporter)
	}
}
