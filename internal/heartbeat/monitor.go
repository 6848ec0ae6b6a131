package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

type Transition struct {
	Component string `json:"component"`
	From      State  `json:"from"`
	To        State  `json:"to"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
}

type MonitorConfig struct {
	Interval time.Duration
	// OnTransition defaults to logging the change.
	OnTransition func(context.Context, Transition)
}

// Monitor polls a Registry and emits a Transition whenever a component's
// state differs from the previous poll. The first poll only records state.
type Monitor struct {
	registry     *Registry
	interval     time.Duration
	logger       *slog.Logger
	onTransition func(context.Context, Transition)
	previous     map[string]State
}

func NewMonitor(registry *Registry, cfg MonitorConfig, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		registry:     registry,
		interval:     cfg.Interval,
		logger:       logger,
		onTransition: cfg.OnTransition,
		previous:     map[string]State{},
	}
	if m.onTransition == nil {
		m.onTransition = m.logTransition
	}
	return m
}

func (m *Monitor) Start(ctx context.Context) error {
	if m.registry == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.logger.Info("heartbeat monitor started", "interval", m.interval.String())
	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			m.logger.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll takes one snapshot and fires OnTransition for every changed component.
func (m *Monitor) Poll(ctx context.Context) {
	for _, item := range m.registry.Snapshot().Components {
		before, seen := m.previous[item.Name]
		m.previous[item.Name] = item.State
		if !seen || before == item.State {
			continue
		}
		m.onTransition(ctx, Transition{
			Component: item.Name,
			From:      before,
			To:        item.State,
			Message:   item.Message,
			Error:     item.Error,
		})
	}
}

func (m *Monitor) logTransition(_ context.Context, t Transition) {
	attrs := []any{"component", t.Component, "from", string(t.From), "to", string(t.To), "message", t.Message}
	if t.Error != "" {
		attrs = append(attrs, "error", t.Error)
	}
	if t.To == StateDegraded || t.To == StateStale {
		m.logger.Warn("component health changed", attrs...)
		return
	}
	m.logger.Info("component health changed", attrs...)
}
