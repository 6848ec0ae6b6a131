// Package prompt renders the text payloads sent to the LLM.
package prompt

import (
	"fmt"
	"strings"

	"github.com/dwizi/groundbot/internal/evidence"
	"github.com/dwizi/groundbot/internal/ledger"
)

// EmptyMention frames a message that only mentioned the bot.
const EmptyMention = "(只標我，沒內容)"

const NoSources = "（沒有取得可用來源）"

// SearchRules constrains the model to the supplied sources and asks for the
// trailing citation line the post-processor rewrites.
const SearchRules = `你必須「只根據 Sources」回答，不准自行腦補。
- 若 Sources 內有明確數字證據（例如「主線任務62」「第62個」），你必須直接給出該數字結論。
- 若 Sources 沒有足夠資訊：直接說「查不到/不確定」，並建議使用者補充關鍵字。
- 若 Sources 互相矛盾：指出矛盾，並偏向官方/權威來源。
- 回答用繁體中文，條列、簡潔。
- 最後加上：來源：#1 #2 ...（只列你真的用到的）`

type Input struct {
	AuthorName string
	Text       string
	History    []ledger.Turn
	Sources    []evidence.Source
}

// Conversation renders the speaker, recent turns and the current message.
func Conversation(input Input) string {
	author := strings.TrimSpace(input.AuthorName)
	if author == "" {
		author = "使用者"
	}
	lines := []string{"使用者名稱：" + author}
	if len(input.History) > 0 {
		lines = append(lines, "近期對話（僅供理解上下文）：")
		for _, turn := range input.History {
			speaker := "你"
			if turn.Role == ledger.RoleUser {
				speaker = "使用者"
			}
			lines = append(lines, speaker+"："+turn.Text)
		}
	}
	lines = append(lines, "使用者這次訊息：")
	text := strings.TrimSpace(input.Text)
	if text == "" {
		text = EmptyMention
	}
	lines = append(lines, text)
	return strings.Join(lines, "\n")
}

// Chat is the payload for conversational replies. No source block is attached.
func Chat(input Input) string {
	return Conversation(input)
}

// Search is the grounded payload: rules, conversation, then numbered sources.
func Search(input Input) string {
	return strings.Join([]string{
		SearchRules,
		"",
		Conversation(input),
		"",
		"Sources:",
		SourcesBlock(input.Sources),
	}, "\n")
}

// SourcesBlock numbers sources from 1, capped at evidence.MaxSources.
func SourcesBlock(sources []evidence.Source) string {
	if len(sources) == 0 {
		return NoSources
	}
	if len(sources) > evidence.MaxSources {
		sources = sources[:evidence.MaxSources]
	}
	blocks := make([]string, 0, len(sources))
	for i, source := range sources {
		index := i + 1
		title := strings.TrimSpace(source.Title)
		if title == "" {
			title = fmt.Sprintf("Source #%d", index)
		}
		block := fmt.Sprintf("[#%d] %s\n%s\nSource: %s", index, title, strings.TrimSpace(source.Snippet), strings.TrimSpace(source.Link))
		blocks = append(blocks, strings.TrimSpace(block))
	}
	return strings.Join(blocks, "\n\n")
}
