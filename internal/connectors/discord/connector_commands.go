package discord

import (
	"context"
	"fmt"
	"strings"
)

const commandTypeChatInput = 1

func (c *Connector) syncCommands(ctx context.Context) error {
	commands := normalizeCommands(c.commands)
	if len(commands) == 0 {
		return nil
	}
	if len(c.commandGuildIDs) == 0 {
		c.logger.Warn("discord command sync skipped, GUILD_ID missing")
		return nil
	}
	applicationID, err := c.resolveApplicationID(ctx)
	if err != nil {
		return err
	}
	for _, guildID := range c.commandGuildIDs {
		if err := c.rest.PutGuildCommands(ctx, applicationID, guildID, commands); err != nil {
			return fmt.Errorf("register commands for guild %s: %w", guildID, err)
		}
	}
	c.logger.Info("discord commands synced", "guild_count", len(c.commandGuildIDs), "command_count", len(commands))
	return nil
}

// ApplicationID returns the configured or discovered application ID.
func (c *Connector) ApplicationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.applicationID
}

func (c *Connector) resolveApplicationID(ctx context.Context) (string, error) {
	if applicationID := c.ApplicationID(); applicationID != "" {
		return applicationID, nil
	}
	applicationID, err := c.rest.CurrentApplicationID(ctx)
	if err != nil {
		return "", err
	}
	c.setIdentity("", applicationID)
	return applicationID, nil
}

func normalizeCommands(commands []Command) []Command {
	out := make([]Command, 0, len(commands))
	for _, command := range commands {
		name := strings.TrimSpace(command.Name)
		if name == "" {
			continue
		}
		command.Name = name
		command.Description = commandDescription(command.Description)
		if command.Type == 0 {
			command.Type = commandTypeChatInput
		}
		out = append(out, command)
	}
	return out
}

func commandDescription(description string) string {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return "groundbot command"
	}
	runes := []rune(trimmed)
	if len(runes) > 100 {
		return strings.TrimSpace(string(runes[:100]))
	}
	return trimmed
}
