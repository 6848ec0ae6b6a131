// Package app assembles the runtime from configuration and runs its
// long-lived components until shutdown.
package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dwizi/groundbot/internal/config"
	"github.com/dwizi/groundbot/internal/connectors"
	"github.com/dwizi/groundbot/internal/connectors/discord"
	"github.com/dwizi/groundbot/internal/forms"
	"github.com/dwizi/groundbot/internal/heartbeat"
	"github.com/dwizi/groundbot/internal/httpapi"
	"github.com/dwizi/groundbot/internal/ledger"
)

// Version is stamped at build time.
var Version = "dev"

const discordStaleAfter = 3 * time.Minute

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, warning := range cfg.Warnings() {
		logger.Warn("configuration warning", "detail", warning)
	}

	pipeline, err := NewPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}
	registry := heartbeat.NewRegistry(nil)
	registry.Expect("discord", discordStaleAfter)
	startedAt := time.Now()

	connector := discord.New(cfg.DiscordToken, cfg.DiscordAPI, cfg.DiscordWSURL, pipeline.Assistant, logger.With("component", "discord"),
		discord.WithAIChannel(cfg.AIChannelID),
		discord.WithApplicationID(cfg.DiscordApplicationID),
		discord.WithCommandSync(cfg.CommandSyncEnabled),
		discord.WithCommandGuildIDs(cfg.GuildIDs()),
		discord.WithCommands(forms.Commands()...),
	)
	formHandler := forms.New(connector.REST(), forms.Config{
		LeaveChannelID:  cfg.LeaveChannelID,
		ReportChannelID: cfg.ReportChannelID,
		ApplicationID:   connector.ApplicationID,
	}, logger.With("component", "forms"))
	discord.WithInteractionHandler(formHandler)(connector)

	pruner := ledger.NewPruner(pipeline.Cooldown, pipeline.Quota, ledger.DefaultPruneSchedule, pipeline.Location, logger.With("component", "ledger"))
	pruner.SetHeartbeatReporter(registry)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Config:    cfg,
		Heartbeat: registry,
		Models:    pipeline.Models,
		Version:   Version,
		StartedAt: startedAt,
		Logger:    logger.With("component", "http"),
	})
	runtime := &Runtime{
		cfg:      cfg,
		logger:   logger,
		pipeline: pipeline,
		httpServer: &http.Server{
			Addr:              cfg.HTTPAddr(),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		connectors:       []connectors.Connector{connector},
		pruner:           pruner,
		heartbeat:        registry,
		heartbeatMonitor: heartbeat.NewMonitor(registry, heartbeat.MonitorConfig{}, logger.With("component", "heartbeat")),
		startedAt:        startedAt,
	}
	for _, conn := range runtime.connectors {
		if aware, ok := conn.(connectors.HeartbeatAware); ok {
			aware.SetHeartbeatReporter(registry)
		}
	}
	return runtime, nil
}

func (r *Runtime) Pipeline() *Pipeline {
	return r.pipeline
}
