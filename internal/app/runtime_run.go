package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwizi/groundbot/internal/heartbeat"
)

// componentBeatInterval keeps passive components fresh in the heartbeat snapshot.
const componentBeatInterval = 30 * time.Second

func (r *Runtime) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", r.httpServer.Addr)
	if err != nil {
		return err
	}
	return r.Serve(ctx, listener)
}

// Serve runs every component on listener until ctx is done or one fails.
func (r *Runtime) Serve(ctx context.Context, listener net.Listener) error {
	r.logger.Info("groundbot starting", "addr", listener.Addr().String(), "version", Version)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return runMonitored(groupCtx, r.heartbeat, "http", componentBeatInterval, func(runCtx context.Context) error {
			err := r.httpServer.Serve(listener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		return runMonitored(groupCtx, r.heartbeat, "persona", componentBeatInterval, r.pipeline.Personas.Watch)
	})
	// Connectors and the pruner report their own health.
	for _, conn := range r.connectors {
		connector := conn
		group.Go(func() error {
			return connector.Start(groupCtx)
		})
	}
	group.Go(func() error {
		return r.pruner.Start(groupCtx)
	})
	if r.heartbeatMonitor != nil {
		group.Go(func() error {
			return r.heartbeatMonitor.Start(groupCtx)
		})
	}

	err := group.Wait()
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	r.logger.Info("groundbot stopped")
	return err
}

func runMonitored(
	ctx context.Context,
	reporter heartbeat.Reporter,
	component string,
	beatInterval time.Duration,
	run func(context.Context) error,
) error {
	if run == nil {
		return nil
	}
	if reporter != nil {
		reporter.Starting(component, "starting")
		reporter.Beat(component, "running")
	}

	var stopHeartbeat func()
	if reporter != nil && beatInterval > 0 {
		heartbeatCtx, cancel := context.WithCancel(ctx)
		stopHeartbeat = cancel
		go func() {
			ticker := time.NewTicker(beatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-heartbeatCtx.Done():
					return
				case <-ticker.C:
					reporter.Beat(component, "running")
				}
			}
		}()
	}

	err := run(ctx)
	if stopHeartbeat != nil {
		stopHeartbeat()
	}
	if reporter == nil {
		return err
	}
	if err != nil && ctx.Err() == nil {
		reporter.Degrade(component, "component failed", err)
		return err
	}
	reporter.Stopped(component, "stopped")
	return err
}
