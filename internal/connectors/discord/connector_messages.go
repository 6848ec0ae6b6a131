package discord

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwizi/groundbot/internal/assistant"
)

const typingTimeout = 3 * time.Second

func (c *Connector) handleMessageCreate(ctx context.Context, message messageCreate) error {
	if message.Author.Bot || c.responder == nil {
		return nil
	}
	if c.aiChannelID == "" || message.ChannelID != c.aiChannelID {
		return nil
	}
	botUserID := c.BotUserID()
	if !mentionsUser(message, botUserID) {
		return nil
	}

	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "channel_id", message.ChannelID, "message_id", message.ID)
	reply := c.responder.Handle(ctx, assistant.Message{
		RequestID:  requestID,
		UserID:     message.Author.ID,
		AuthorName: message.authorName(),
		Text:       stripMention(message.Content, botUserID),
		Typing: func() {
			typingCtx, cancel := context.WithTimeout(ctx, typingTimeout)
			defer cancel()
			if err := c.rest.TriggerTyping(typingCtx, message.ChannelID); err != nil {
				logger.Debug("typing indicator failed", "error", err)
			}
		},
	})
	if !reply.Send() {
		return nil
	}
	return c.deliver(ctx, message, reply.Text)
}

// deliver replies to the message and falls back to a plain channel send when
// the reply is rejected, for example because the message was deleted.
func (c *Connector) deliver(ctx context.Context, message messageCreate, text string) error {
	err := c.rest.Reply(ctx, message.ChannelID, message.ID, text)
	if err == nil {
		return nil
	}
	c.logger.Warn("discord reply failed, sending to channel", "error", err, "channel_id", message.ChannelID, "message_id", message.ID)
	return c.rest.SendMessage(ctx, message.ChannelID, MessageSend{Content: text})
}

func mentionsUser(message messageCreate, userID string) bool {
	if userID == "" {
		return false
	}
	for _, mention := range message.Mentions {
		if strings.TrimSpace(mention.ID) == userID {
			return true
		}
	}
	return strings.Contains(message.Content, "<@"+userID+">") || strings.Contains(message.Content, "<@!"+userID+">")
}

func stripMention(content, userID string) string {
	if userID == "" {
		return strings.TrimSpace(content)
	}
	mention := strings.NewReplacer("<@"+userID+">", "", "<@!"+userID+">", "")
	return strings.TrimSpace(mention.Replace(content))
}
