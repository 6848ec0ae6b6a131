package evidence

import (
	"regexp"
	"sort"
	"strings"
)

var (
	weatherPattern  = regexp.MustCompile(`(?i)(天氣|氣溫|溫度|下雨|降雨|雷雨|雨量|風速|體感|紫外線|濕度|weather|forecast)`)
	locationPattern = regexp.MustCompile(`(臺北|台北|新北|桃園|臺中|台中|臺南|台南|高雄|基隆|新竹|苗栗|彰化|南投|雲林|嘉義|屏東|宜蘭|花蓮|臺東|台東|澎湖|金門|連江)`)

	gamePattern        = regexp.MustCompile(`(?i)(ff14|ffxiv|最終幻想14|太空戰士14|暗影之逆焰|主線|主线)`)
	ordinalCuePattern  = regexp.MustCompile(`(第幾個|第几个|第幾|第几|序號|順序|順番|任務順序|任务顺序)`)
	quotedNamePattern  = regexp.MustCompile(`[「『【](.+?)[」』】]`)
	cjkRunPattern      = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,20}`)
	questStopPattern   = regexp.MustCompile(`(?i)(主線|主线|任務|任务|版本|第幾|第几|哪個|哪个|詳細|详细|資料|资料|順序|顺序|FF14|FFXIV|暗影之逆焰)`)
	mainQuestNoPattern = regexp.MustCompile(`主[线線]\s*任[務务]?\s*([0-9]{1,3})`)
	ordinalNoPattern   = regexp.MustCompile(`第\s*([0-9]{1,3})\s*個`)
)

// IsWeatherQuery reports whether text asks about weather conditions.
func IsWeatherQuery(text string) bool {
	return weatherPattern.MatchString(text)
}

// GuessLocation picks the first known Taiwan city in text, normalizing 臺 to 台.
func GuessLocation(text, fallback string) string {
	match := locationPattern.FindString(text)
	if match == "" {
		return fallback
	}
	return strings.ReplaceAll(match, "臺", "台")
}

// IsGameQuery reports whether text is about the game the wiki covers.
func IsGameQuery(text string) bool {
	return gamePattern.MatchString(text)
}

// IsOrdinalQuery matches questions like "which main scenario quest number is X".
func IsOrdinalQuery(text string) bool {
	return gamePattern.MatchString(text) && ordinalCuePattern.MatchString(text)
}

// ExtractLikelyQuestName prefers a bracket-quoted name, else the longest CJK run that is not a stop word.
func ExtractLikelyQuestName(text string) string {
	if match := quotedNamePattern.FindStringSubmatch(text); len(match) > 1 {
		name := strings.TrimSpace(match[1])
		if len([]rune(name)) >= 2 {
			return name
		}
	}
	candidates := []string{}
	for _, part := range cjkRunPattern.FindAllString(text, -1) {
		part = strings.TrimSpace(part)
		if part == "" || questStopPattern.MatchString(part) {
			continue
		}
		candidates = append(candidates, part)
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return len([]rune(candidates[i])) > len([]rune(candidates[j]))
	})
	return candidates[0]
}

// ExtractOrdinal pulls an explicit sequence number such as 主線任務62 or 第62個.
func ExtractOrdinal(text string) (int, bool) {
	for _, pattern := range []*regexp.Regexp{mainQuestNoPattern, ordinalNoPattern} {
		match := pattern.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		value := 0
		for _, r := range match[1] {
			value = value*10 + int(r-'0')
		}
		return value, true
	}
	return 0, false
}
