package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dwizi/groundbot/internal/config"
	"github.com/dwizi/groundbot/internal/connectors"
	"github.com/dwizi/groundbot/internal/heartbeat"
	"github.com/dwizi/groundbot/internal/ledger"
)

type Runtime struct {
	cfg              config.Config
	logger           *slog.Logger
	pipeline         *Pipeline
	httpServer       *http.Server
	connectors       []connectors.Connector
	pruner           *ledger.Pruner
	heartbeat        *heartbeat.Registry
	heartbeatMonitor *heartbeat.Monitor
	startedAt        time.Time
}
