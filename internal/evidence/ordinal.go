package evidence

import (
	"context"
	"fmt"
	"strings"
)

type ordinalMatch struct {
	ordinal int
	source  Source
	quest   string
}

// findOrdinalEvidence runs targeted searches that tend to surface a quest's
// sequence number in the snippet. It stops at the first query that yields one.
func (a *Assembler) findOrdinalEvidence(ctx context.Context, text string) (*Source, []Source) {
	quest := ExtractLikelyQuestName(text)
	if quest == "" {
		return nil, nil
	}

	queries := []string{
		fmt.Sprintf("FF14 %s 主線任務 第幾個", quest),
		fmt.Sprintf("FF14 %s 主线任务 第几个", quest),
		fmt.Sprintf("暗影之逆焰 %s 主線任務", quest),
		fmt.Sprintf("Shadowbringers %s MSQ quest order", quest),
	}

	extra := []Source{}
	var best *ordinalMatch
	for _, query := range queries {
		results := a.searchQuietly(ctx, query)
		for _, item := range results {
			extra = append(extra, item)
			if best != nil {
				continue
			}
			if ordinal, ok := ExtractOrdinal(item.Title + " " + item.Snippet); ok {
				best = &ordinalMatch{ordinal: ordinal, source: item, quest: quest}
			}
		}
		if best != nil {
			break
		}
	}

	if best == nil {
		for _, item := range a.searchQuietly(ctx, fmt.Sprintf("%q 主线任务", quest)) {
			extra = append(extra, item)
			if ordinal, ok := ExtractOrdinal(item.Title + " " + item.Snippet); ok {
				best = &ordinalMatch{ordinal: ordinal, source: item, quest: quest}
				break
			}
		}
	}

	if best == nil || strings.TrimSpace(best.source.Link) == "" {
		return nil, extra
	}
	snippet := strings.TrimSpace(fmt.Sprintf(
		"在搜尋結果中找到明確序號：主線任務 %d\n（從標題/摘要抽取）\n對應來源：%s\n%s",
		best.ordinal,
		best.source.Title,
		best.source.Snippet,
	))
	return &Source{
		Title:   "FF14 主線序號證據：" + best.quest,
		Snippet: snippet,
		Link:    best.source.Link,
		Origin:  "ordinal",
	}, extra
}

func (a *Assembler) searchQuietly(ctx context.Context, query string) []Source {
	results, err := a.search.Search(ctx, query)
	if err != nil {
		a.logger.Warn("ordinal lookup search failed", "query", query, "error", err)
		return nil
	}
	return results
}
