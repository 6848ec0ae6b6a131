package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dwizi/groundbot/internal/heartbeat"
)

func (c *Connector) Start(ctx context.Context) error {
	c.report(func(r heartbeat.Reporter) { r.Starting(componentName, "starting") })
	if c.token == "" {
		c.report(func(r heartbeat.Reporter) { r.Disabled(componentName, "token missing") })
		c.logger.Info("connector disabled, token missing")
		<-ctx.Done()
		return nil
	}
	if c.responder == nil && c.interactions == nil {
		c.report(func(r heartbeat.Reporter) { r.Disabled(componentName, "no handlers") })
		c.logger.Info("connector disabled, no handlers")
		<-ctx.Done()
		return nil
	}

	c.logger.Info("connector started", "mode", "gateway", "ai_channel", c.aiChannelID)
	if c.commandSync {
		if err := c.syncCommands(ctx); err != nil {
			c.logger.Warn("discord command sync failed", "error", err)
		}
	}
	for {
		if ctx.Err() != nil {
			return c.stopped()
		}
		err := c.runSession(ctx)
		if ctx.Err() != nil {
			return c.stopped()
		}
		c.report(func(r heartbeat.Reporter) { r.Degrade(componentName, "gateway session error", err) })
		c.logger.Error("discord session ended, reconnecting", "error", err)
		select {
		case <-ctx.Done():
			return c.stopped()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Connector) stopped() error {
	c.report(func(r heartbeat.Reporter) { r.Stopped(componentName, "stopped") })
	c.logger.Info("connector stopped")
	return nil
}

func (c *Connector) runSession(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.gatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial discord gateway: %w", err)
	}
	defer conn.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()

	var (
		writeMu  sync.Mutex
		sequence atomic.Int64
	)
	sequence.Store(-1)

	interval, err := readHello(conn)
	if err != nil {
		return err
	}
	if err := c.sendIdentify(conn, &writeMu); err != nil {
		return err
	}
	c.report(func(r heartbeat.Reporter) { r.Beat(componentName, "gateway session established") })
	go c.heartbeatLoop(sessionCtx, conn, &writeMu, &sequence, interval)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read gateway message: %w", err)
		}
		var envelope gatewayEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.logger.Error("decode gateway envelope failed", "error", err)
			continue
		}
		if envelope.S != nil {
			sequence.Store(*envelope.S)
		}

		switch envelope.Op {
		case 0:
			c.dispatch(ctx, envelope)
		case 1:
			if err := sendHeartbeat(conn, &writeMu, sequence.Load()); err != nil {
				return err
			}
		case 7:
			return fmt.Errorf("gateway requested reconnect")
		case 9:
			return fmt.Errorf("gateway invalid session")
		case 11:
			c.report(func(r heartbeat.Reporter) { r.Beat(componentName, "gateway heartbeat acknowledged") })
		}
	}
}

// dispatch runs each event on its own goroutine so a slow pipeline never
// blocks the read loop.
func (c *Connector) dispatch(ctx context.Context, envelope gatewayEnvelope) {
	switch envelope.T {
	case "READY":
		var ready gatewayReady
		if err := json.Unmarshal(envelope.D, &ready); err != nil {
			c.logger.Error("decode ready failed", "error", err)
			return
		}
		c.setIdentity(strings.TrimSpace(ready.User.ID), strings.TrimSpace(ready.Application.ID))
		c.logger.Info("discord session ready", "bot_user_id", ready.User.ID, "username", ready.User.Username)
	case "MESSAGE_CREATE":
		var message messageCreate
		if err := json.Unmarshal(envelope.D, &message); err != nil {
			c.logger.Error("decode message create failed", "error", err)
			return
		}
		go func() {
			if err := c.handleMessageCreate(ctx, message); err != nil {
				c.logger.Error("handle discord message failed", "error", err, "channel_id", message.ChannelID, "message_id", message.ID)
			}
		}()
	case "INTERACTION_CREATE":
		var interaction Interaction
		if err := json.Unmarshal(envelope.D, &interaction); err != nil {
			c.logger.Error("decode interaction create failed", "error", err)
			return
		}
		if c.interactions == nil {
			return
		}
		go c.interactions.HandleInteraction(ctx, interaction)
	}
}

func readHello(conn *websocket.Conn) (time.Duration, error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return 0, fmt.Errorf("read hello: %w", err)
		}
		var envelope gatewayEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			return 0, fmt.Errorf("decode hello payload: %w", err)
		}
		if envelope.Op != 10 {
			continue
		}
		var hello gatewayHello
		if err := json.Unmarshal(envelope.D, &hello); err != nil {
			return 0, fmt.Errorf("decode hello body: %w", err)
		}
		return time.Duration(hello.HeartbeatIntervalMS) * time.Millisecond, nil
	}
}

func (c *Connector) heartbeatLoop(ctx context.Context, conn *websocket.Conn, writeMu *sync.Mutex, seq *atomic.Int64, interval time.Duration) {
	if interval < time.Second {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sendHeartbeat(conn, writeMu, seq.Load()); err != nil {
				c.logger.Error("heartbeat failed", "error", err)
				return
			}
		}
	}
}

func (c *Connector) sendIdentify(conn *websocket.Conn, writeMu *sync.Mutex) error {
	payload := map[string]any{
		"op": 2,
		"d": map[string]any{
			"token":   c.token,
			"intents": intentGuilds | intentGuildMessages | intentMessageContents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "groundbot",
				"device":  "groundbot",
			},
		},
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("send identify: %w", err)
	}
	return nil
}

// sendHeartbeat sends the last sequence number, or null before the first dispatch.
func sendHeartbeat(conn *websocket.Conn, writeMu *sync.Mutex, seq int64) error {
	payload := map[string]any{"op": 1, "d": nil}
	if seq >= 0 {
		payload["d"] = seq
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	return nil
}
