package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwizi/groundbot/internal/heartbeat"
)

const DefaultPruneSchedule = "@hourly"

// Pruner periodically clears expired cooldown stamps and stale quota buckets.
type Pruner struct {
	cooldown *Cooldown
	quota    *Quota
	schedule string
	location *time.Location
	logger   *slog.Logger
	reporter heartbeat.Reporter
}

func NewPruner(cooldown *Cooldown, quota *Quota, schedule string, location *time.Location, logger *slog.Logger) *Pruner {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		cooldown: cooldown,
		quota:    quota,
		schedule: schedule,
		location: location,
		logger:   logger,
	}
}

func (p *Pruner) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	p.reporter = reporter
}

// PruneOnce runs one sweep and returns how many entries were removed.
func (p *Pruner) PruneOnce() (cooldowns, quotas int) {
	if p.cooldown != nil {
		cooldowns = p.cooldown.Prune()
	}
	if p.quota != nil {
		quotas = p.quota.Prune()
	}
	return cooldowns, quotas
}

func (p *Pruner) Start(ctx context.Context) error {
	runner := cron.New(cron.WithLocation(p.location))
	if _, err := runner.AddFunc(p.schedule, func() {
		cooldowns, quotas := p.PruneOnce()
		p.logger.Debug("ledger pruned", "cooldowns", cooldowns, "quota_buckets", quotas)
		if p.reporter != nil {
			p.reporter.Beat("ledger", fmt.Sprintf("pruned %d cooldowns, %d quota buckets", cooldowns, quotas))
		}
	}); err != nil {
		if p.reporter != nil {
			p.reporter.Degrade("ledger", "invalid prune schedule", err)
		}
		return fmt.Errorf("schedule ledger prune: %w", err)
	}
	runner.Start()
	if p.reporter != nil {
		p.reporter.Starting("ledger", "started")
		p.reporter.Beat("ledger", "prune scheduled "+p.schedule)
	}
	p.logger.Info("ledger pruner started", "schedule", p.schedule, "timezone", p.location.String())

	<-ctx.Done()
	stopped := runner.Stop()
	<-stopped.Done()
	if p.reporter != nil {
		p.reporter.Stopped("ledger", "stopped")
	}
	p.logger.Info("ledger pruner stopped")
	return nil
}
