// Package heartbeat tracks the liveness of long-running components and
// reports transitions between their states.
package heartbeat

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type State string

const (
	StateStarting State = "starting"
	StateHealthy  State = "healthy"
	StateDegraded State = "degraded"
	StateDisabled State = "disabled"
	StateStopped  State = "stopped"
	StateStale    State = "stale"

	// OverallIdle is reported when every component is disabled or stopped.
	OverallIdle State = "idle"
	// OverallUnknown is reported before any component has registered.
	OverallUnknown State = "unknown"
)

// Reporter is implemented by Registry and handed to components so they can
// announce their own lifecycle.
type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name       string `json:"name"`
	State      State  `json:"state"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	LastBeatAt int64  `json:"last_beat_at_unix,omitempty"`
	UpdatedAt  int64  `json:"updated_at_unix"`
}

type Snapshot struct {
	GeneratedAt int64             `json:"generated_at_unix"`
	Overall     State             `json:"overall"`
	Components  []ComponentStatus `json:"components"`
}

type record struct {
	state      State
	message    string
	lastError  string
	lastBeatAt time.Time
	updatedAt  time.Time
}

type Registry struct {
	now func() time.Time

	mu         sync.RWMutex
	components map[string]record
	expect     map[string]time.Duration
}

func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		now:        now,
		components: map[string]record{},
		expect:     map[string]time.Duration{},
	}
}

// Expect marks a component as stale once it goes longer than every without a
// beat while healthy or starting. Components without an expectation never go
// stale; the ledger pruner only beats hourly for instance.
func (r *Registry) Expect(component string, every time.Duration) {
	name := normalizeComponent(component)
	if name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if every <= 0 {
		delete(r.expect, name)
		return
	}
	r.expect[name] = every
}

func (r *Registry) Starting(component, message string) {
	r.set(component, StateStarting, message, "")
}

func (r *Registry) Beat(component, message string) {
	r.set(component, StateHealthy, message, "")
}

func (r *Registry) Degrade(component, message string, err error) {
	text := ""
	if err != nil {
		text = strings.TrimSpace(err.Error())
	}
	r.set(component, StateDegraded, message, text)
}

func (r *Registry) Disabled(component, message string) {
	r.set(component, StateDisabled, message, "")
}

func (r *Registry) Stopped(component, message string) {
	r.set(component, StateStopped, message, "")
}

func (r *Registry) set(component string, state State, message, errText string) {
	name := normalizeComponent(component)
	if name == "" {
		return
	}
	now := r.now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.components[name]
	rec.state = state
	rec.message = strings.TrimSpace(message)
	rec.lastError = errText
	rec.updatedAt = now
	if state == StateHealthy || rec.lastBeatAt.IsZero() {
		rec.lastBeatAt = now
	}
	r.components[name] = rec
}

func (r *Registry) Snapshot() Snapshot {
	now := r.now().UTC()
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]ComponentStatus, 0, len(r.components))
	for name, rec := range r.components {
		status := ComponentStatus{
			Name:       name,
			State:      rec.state,
			Message:    rec.message,
			Error:      rec.lastError,
			LastBeatAt: rec.lastBeatAt.Unix(),
			UpdatedAt:  rec.updatedAt.Unix(),
		}
		if every, ok := r.expect[name]; ok && (rec.state == StateHealthy || rec.state == StateStarting) {
			if now.Sub(rec.lastBeatAt) > every {
				status.State = StateStale
			}
		}
		items = append(items, status)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	return Snapshot{
		GeneratedAt: now.Unix(),
		Overall:     overall(items),
		Components:  items,
	}
}

func normalizeComponent(component string) string {
	return strings.ToLower(strings.TrimSpace(component))
}

func overall(items []ComponentStatus) State {
	if len(items) == 0 {
		return OverallUnknown
	}
	starting, healthy := false, false
	for _, item := range items {
		switch item.State {
		case StateDegraded, StateStale:
			return StateDegraded
		case StateStarting:
			starting = true
		case StateHealthy:
			healthy = true
		}
	}
	switch {
	case starting:
		return StateStarting
	case healthy:
		return StateHealthy
	default:
		return OverallIdle
	}
}
