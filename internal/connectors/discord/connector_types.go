package discord

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	InteractionPing               = 1
	InteractionApplicationCommand = 2
	InteractionMessageComponent   = 3
	InteractionModalSubmit        = 5

	ResponseChannelMessage         = 4
	ResponseDeferredChannelMessage = 5
	ResponseModal                  = 9

	FlagEphemeral = 1 << 6

	ComponentActionRow = 1
	ComponentButton    = 2
	ComponentTextInput = 4

	ButtonPrimary = 1
	ButtonDanger  = 4

	TextInputShort     = 1
	TextInputParagraph = 2
)

// textChannelTypes are the channel types that accept plain messages:
// guild text, announcement and the three thread kinds.
var textChannelTypes = map[int]struct{}{0: {}, 5: {}, 10: {}, 11: {}, 12: {}}

type gatewayEnvelope struct {
	Op int             `json:"op"`
	T  string          `json:"t"`
	S  *int64          `json:"s"`
	D  json.RawMessage `json:"d"`
}

type gatewayHello struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval"`
}

type gatewayReady struct {
	User        User `json:"user"`
	Application struct {
		ID string `json:"id"`
	} `json:"application"`
}

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Bot        bool   `json:"bot"`
}

// DisplayName prefers the global name, then the username, then the ID.
func (u User) DisplayName() string {
	for _, name := range []string{u.GlobalName, u.Username, u.ID} {
		if value := strings.TrimSpace(name); value != "" {
			return value
		}
	}
	return "user"
}

// Mention renders the user as a clickable mention.
func (u User) Mention() string {
	return "<@" + u.ID + ">"
}

type Member struct {
	User User   `json:"user"`
	Nick string `json:"nick"`
}

type messageCreate struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Author    User   `json:"author"`
	Mentions  []User `json:"mentions"`
}

func (m messageCreate) authorName() string {
	if name := strings.TrimSpace(m.Author.Username); name != "" {
		return name
	}
	return "使用者"
}

type Interaction struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Type          int             `json:"type"`
	Token         string          `json:"token"`
	ChannelID     string          `json:"channel_id"`
	GuildID       string          `json:"guild_id"`
	Member        *Member         `json:"member"`
	User          *User           `json:"user"`
	Data          InteractionData `json:"data"`
}

// Invoker returns whoever triggered the interaction, in a guild or a DM.
func (i Interaction) Invoker() User {
	if i.Member != nil && strings.TrimSpace(i.Member.User.ID) != "" {
		return i.Member.User
	}
	if i.User != nil {
		return *i.User
	}
	return User{}
}

type InteractionData struct {
	Name       string      `json:"name"`
	CustomID   string      `json:"custom_id"`
	Components []Component `json:"components"`
}

// Value returns the submitted text of a modal input by custom ID.
func (d InteractionData) Value(customID string) string {
	for _, row := range d.Components {
		for _, field := range row.Components {
			if field.CustomID == customID {
				return field.Value
			}
		}
	}
	return ""
}

type Component struct {
	Type        int         `json:"type"`
	CustomID    string      `json:"custom_id,omitempty"`
	Label       string      `json:"label,omitempty"`
	Style       int         `json:"style,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Required    *bool       `json:"required,omitempty"`
	MaxLength   int         `json:"max_length,omitempty"`
	Value       string      `json:"value,omitempty"`
	Components  []Component `json:"components,omitempty"`
}

type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type MessageReference struct {
	MessageID       string `json:"message_id"`
	FailIfNotExists bool   `json:"fail_if_not_exists"`
}

type MessageSend struct {
	Content    string            `json:"content,omitempty"`
	Embeds     []Embed           `json:"embeds,omitempty"`
	Components []Component       `json:"components,omitempty"`
	Reference  *MessageReference `json:"message_reference,omitempty"`
}

type InteractionResponseData struct {
	Content    string      `json:"content,omitempty"`
	Flags      int         `json:"flags,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Title      string      `json:"title,omitempty"`
	Components []Component `json:"components,omitempty"`
}

type InteractionResponse struct {
	Type int                      `json:"type"`
	Data *InteractionResponseData `json:"data,omitempty"`
}

type Channel struct {
	ID   string `json:"id"`
	Type int    `json:"type"`
	Name string `json:"name"`
}

// IsText reports whether plain messages can be posted to the channel.
func (c Channel) IsText() bool {
	_, ok := textChannelTypes[c.Type]
	return ok
}

// Command is a chat input command registered to a guild.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Type        int    `json:"type"`
}

// APIError is a non-2xx response from the REST API.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("discord api: status=%d code=%d message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("discord api: status=%d message=%s", e.Status, e.Message)
}
