// Package connectors holds the contract shared by chat platform connectors.
package connectors

import (
	"context"

	"github.com/dwizi/groundbot/internal/heartbeat"
)

// Connector is a long-running platform session. Start blocks until ctx is
// done and returns nil on a clean shutdown.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
}

// HeartbeatAware connectors report their session health.
type HeartbeatAware interface {
	SetHeartbeatReporter(reporter heartbeat.Reporter)
}
