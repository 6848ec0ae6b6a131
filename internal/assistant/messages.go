package assistant

import "fmt"

// Canned replies. Users only ever see these or model output.
const (
	MissingKeyMessage  = "我現在腦袋還沒接上電（缺 GEMINI_API_KEY）😵‍💫\n叫管理員把環境變數補好啦～我才有魔力。"
	NoSourceMessage    = "我現在沒辦法取得可驗證的來源，所以我不會亂猜。\n你可以：\n1) 叫管理員補上 SERPER_API_KEY（搜尋）\n2) 或把關鍵字講更完整（地點/版本/專有名詞）。"
	ErrorMessage       = "我剛剛連線斷了一下。再 @ 我一次，或把關鍵字說完整點。"
	EmptyOutputMessage = "……我剛剛腦袋打結了😵‍💫 你再說一次（或換個問法）"
)

// QuotaMessage names the exhausted day and the limit.
func QuotaMessage(dayKey string, limit int) string {
	return fmt.Sprintf("😈 今天（%s）你已經把我用到冒煙了！\n每人每天最多 %d 次～明天再來折磨我 😼", dayKey, limit)
}

// MaxReplyRunes is the reply ceiling before the ellipsis is appended.
const MaxReplyRunes = 1900

// Trim caps text at MaxReplyRunes runes, appending "…" when cut.
func Trim(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxReplyRunes {
		return text
	}
	return string(runes[:MaxReplyRunes]) + "…"
}
