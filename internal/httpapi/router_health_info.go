package httpapi

import (
	"io"
	"net/http"
	"time"
)

func (r *router) handleLiveness(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if req.Method != http.MethodHead {
		_, _ = io.WriteString(w, "ok")
	}
}

func (r *router) handleHeartbeat(w http.ResponseWriter, req *http.Request) {
	if r.deps.Heartbeat == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  "heartbeat is disabled",
		})
		return
	}
	writeJSON(w, http.StatusOK, r.deps.Heartbeat.Snapshot())
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	cfg := r.deps.Config
	payload := map[string]any{
		"name":             "groundbot",
		"version":          r.deps.Version,
		"ai_channel":       cfg.AIChannelID != "",
		"llm_provider":     cfg.LLMProvider,
		"search_enabled":   cfg.SerperAPIKey != "",
		"weather_provider": cfg.WeatherProvider,
		"wiki_enabled":     cfg.WikiEnabled(),
		"daily_limit":      cfg.DailyLimitPerUser,
		"timezone":         cfg.Timezone,
	}
	if !r.deps.StartedAt.IsZero() {
		payload["uptime_seconds"] = int64(time.Since(r.deps.StartedAt).Seconds())
	}
	if r.deps.Models != nil {
		payload["models"] = r.deps.Models.Models()
		payload["active_model"] = r.deps.Models.Last()
	}
	writeJSON(w, http.StatusOK, payload)
}
