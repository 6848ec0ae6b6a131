// Package intent decides whether a message needs grounded search or can be
// answered conversationally.
package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dwizi/groundbot/internal/evidence"
	"github.com/dwizi/groundbot/internal/llm"
)

type Label string

const (
	Chat   Label = "chat"
	Search Label = "search"
)

type Decision struct {
	Label  Label
	Reason string
}

// Rule pairs a pattern with the label it forces. Rules are evaluated in slice order.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Label   Label
}

// DefaultRules lists the hard rules in precedence order: chat cues are checked
// before search cues, so text matching both is chat.
var DefaultRules = []Rule{
	{
		Name:    "kinship",
		Pattern: regexp.MustCompile(`(爸爸|媽媽|老爸|老媽|哥哥|姊姊|姐姐|弟弟|妹妹|老婆|老公|女友|男友|寶貝)`),
		Label:   Chat,
	},
	{
		Name:    "feelings",
		Pattern: regexp.MustCompile(`(?i)(想你|愛你|喜歡你|討厭你|抱抱|陪我|好累|好煩|好難過|難過|傷心|心情|寂寞|無聊|生氣|開心|委屈|哭了|崩潰|壓力好大|miss you|love you)`),
		Label:   Chat,
	},
	{
		Name:    "greeting",
		Pattern: regexp.MustCompile(`(?i)^\s*(早安|午安|晚安|你好|嗨|哈囉|安安|在嗎|在幹嘛|謝謝|謝啦|掰掰|hi|hello|hey|thanks?|good (morning|night))\s*[!！~～。.?？]*\s*$`),
		Label:   Chat,
	},
	{
		Name:    "about_bot",
		Pattern: regexp.MustCompile(`(你是誰|你叫什麼|你幾歲|你喜歡什麼|你覺得我|你會不會)`),
		Label:   Chat,
	},
	{
		Name:    "game",
		Pattern: regexp.MustCompile(`(?i)(ff14|ffxiv|最終幻想14|太空戰士14|暗影之逆焰|主線|主线|副本|坐騎|攻略)`),
		Label:   Search,
	},
	{
		Name:    "numeric",
		Pattern: regexp.MustCompile(`(多少|幾點|幾號|幾歲|幾個|第幾|幾年|匯率|股價|價格|票價|比分|排名|人口|距離|營業時間)`),
		Label:   Search,
	},
	{
		Name:    "factual",
		Pattern: regexp.MustCompile(`(?i)(新聞|最新|是什麼|是誰|什麼是|哪裡|哪一|什麼時候|何時|為什麼會|定義|官方|查一下|幫我查|搜尋|google|what is|who is|when|where|latest|news|price)`),
		Label:   Search,
	},
	{
		Name:    "procedure",
		Pattern: regexp.MustCompile(`(?i)(怎麼做|怎麼用|怎麼設定|如何|教學|步驟|方法|安裝|設定|how to|tutorial)`),
		Label:   Search,
	},
}

const classifierInstruction = `你是訊息分類器，只能輸出一個英文單字：chat 或 search。
- 閒聊、情緒、關係、問候、對你本人的問題：chat
- 需要查證的事實、數字、時事、教學步驟、遊戲資料：search
範例：
「今天好累喔」→ chat
「你覺得我今天穿得好看嗎」→ chat
「iPhone 16 什麼時候發售」→ search
「FF14 7.0 主線第幾個任務開始會飛」→ search
「晚餐吃什麼好」→ chat
「美元兌台幣現在多少」→ search
只輸出 chat 或 search，不要輸出其他文字。`

// Classifier applies the rule table and falls back to the LLM when no rule fires.
type Classifier struct {
	rules   []Rule
	llm     llm.Generator
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Classifier)

func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = rules
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Classifier) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// New builds a classifier. generator may be nil, in which case unmatched text is chat.
func New(generator llm.Generator, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{
		rules:   DefaultRules,
		llm:     generator,
		timeout: 8 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Classifier) Classify(ctx context.Context, text string) Decision {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Decision{Label: Chat, Reason: "empty"}
	}
	if evidence.IsWeatherQuery(trimmed) {
		return Decision{Label: Search, Reason: "weather"}
	}
	if decision, ok := MatchRules(c.rules, trimmed); ok {
		return decision
	}
	return c.askModel(ctx, trimmed)
}

// MatchRules returns the first rule that matches text.
func MatchRules(rules []Rule, text string) (Decision, bool) {
	for _, rule := range rules {
		if rule.Pattern != nil && rule.Pattern.MatchString(text) {
			return Decision{Label: rule.Label, Reason: "rule:" + rule.Name}, true
		}
	}
	return Decision{}, false
}

func (c *Classifier) askModel(ctx context.Context, text string) Decision {
	if c.llm == nil {
		return Decision{Label: Chat, Reason: "no_model"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := c.llm.Generate(ctx, llm.Request{
		SystemInstruction: classifierInstruction,
		Prompt:            "訊息：" + text,
	})
	if err != nil {
		c.logger.Warn("intent classifier fell back to chat", "error", err)
		return Decision{Label: Chat, Reason: "model_error"}
	}
	label, ok := ParseLabel(output)
	if !ok {
		c.logger.Debug("intent classifier output unparseable", "output", output)
		return Decision{Label: Chat, Reason: "model_unparseable"}
	}
	return Decision{Label: label, Reason: "model"}
}

// ParseLabel accepts exactly one of the two tokens, ignoring case, surrounding
// whitespace, quotes and trailing punctuation.
func ParseLabel(output string) (Label, bool) {
	cleaned := strings.ToLower(strings.TrimSpace(output))
	cleaned = strings.Trim(cleaned, " \t\r\n\"'`.。!！「」")
	switch Label(cleaned) {
	case Chat:
		return Chat, true
	case Search:
		return Search, true
	}
	return "", false
}
