package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const userAgent = "DiscordBot (https://github.com/dwizi/groundbot, 0.1)"

// Client is a small REST client covering the calls the bot makes.
type Client struct {
	token      string
	apiBase    string
	httpClient *http.Client
}

func NewClient(token, apiBase string) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://discord.com/api/v10"
	}
	return &Client{
		token:      strings.TrimSpace(token),
		apiBase:    strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		httpClient: &http.Client{Timeout: 12 * time.Second},
	}
}

func (c *Client) SendMessage(ctx context.Context, channelID string, message MessageSend) error {
	return c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/messages", message, nil)
}

// Reply posts content as a reply to messageID.
func (c *Client) Reply(ctx context.Context, channelID, messageID, content string) error {
	return c.SendMessage(ctx, channelID, MessageSend{
		Content:   content,
		Reference: &MessageReference{MessageID: messageID, FailIfNotExists: true},
	})
}

func (c *Client) TriggerTyping(ctx context.Context, channelID string) error {
	return c.do(ctx, http.MethodPost, "/channels/"+url.PathEscape(channelID)+"/typing", nil, nil)
}

func (c *Client) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	var channel Channel
	err := c.do(ctx, http.MethodGet, "/channels/"+url.PathEscape(channelID), nil, &channel)
	return channel, err
}

func (c *Client) RespondInteraction(ctx context.Context, interactionID, interactionToken string, response InteractionResponse) error {
	if strings.TrimSpace(interactionID) == "" || strings.TrimSpace(interactionToken) == "" {
		return fmt.Errorf("missing interaction id or token")
	}
	path := fmt.Sprintf("/interactions/%s/%s/callback", url.PathEscape(interactionID), url.PathEscape(interactionToken))
	return c.do(ctx, http.MethodPost, path, response, nil)
}

// EditOriginalResponse replaces the content of a deferred or sent interaction reply.
func (c *Client) EditOriginalResponse(ctx context.Context, applicationID, interactionToken, content string) error {
	if strings.TrimSpace(applicationID) == "" {
		return fmt.Errorf("missing application id")
	}
	path := fmt.Sprintf("/webhooks/%s/%s/messages/@original", url.PathEscape(applicationID), url.PathEscape(interactionToken))
	return c.do(ctx, http.MethodPatch, path, map[string]string{"content": content}, nil)
}

func (c *Client) PutGuildCommands(ctx context.Context, applicationID, guildID string, commands []Command) error {
	path := fmt.Sprintf("/applications/%s/guilds/%s/commands", url.PathEscape(applicationID), url.PathEscape(guildID))
	return c.do(ctx, http.MethodPut, path, commands, nil)
}

func (c *Client) CurrentApplicationID(ctx context.Context) (string, error) {
	var payload struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/oauth2/applications/@me", nil, &payload); err != nil {
		return "", err
	}
	applicationID := strings.TrimSpace(payload.ID)
	if applicationID == "" {
		return "", fmt.Errorf("discord application lookup returned empty id")
	}
	return applicationID, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return decodeAPIError(res)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("decode discord %s %s: %w", method, path, err)
	}
	return nil
}

func decodeAPIError(res *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	apiErr := &APIError{Status: res.StatusCode}
	if err := json.Unmarshal(bodyBytes, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(bodyBytes))
	}
	return apiErr
}
