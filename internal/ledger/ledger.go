// Package ledger keeps per-user bookkeeping in process memory: request
// cooldowns, daily quotas and a short rolling conversation window. Nothing
// here is persisted; a restart clears every counter.
package ledger

import (
	"strings"
	"sync"
	"time"
)

type Clock func() time.Time

func clockOrNow(now Clock) Clock {
	if now == nil {
		return time.Now
	}
	return now
}

// Cooldown enforces a minimum interval between accepted requests per user.
// Allow checks and records under a single lock, so two simultaneous requests
// from one user cannot both pass. This closes the check-then-set race a
// plain read followed by a write would leave open; the quota keeps its race
// (see Quota).
type Cooldown struct {
	window time.Duration
	now    Clock

	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown(window time.Duration, now Clock) *Cooldown {
	return &Cooldown{
		window: window,
		now:    clockOrNow(now),
		last:   map[string]time.Time{},
	}
}

// Allow reports whether userID may proceed. Rejected requests do not extend the window.
func (c *Cooldown) Allow(userID string) bool {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.last[userID]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[userID] = now
	return true
}

// Prune drops stamps older than the window and returns how many went.
func (c *Cooldown) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for user, last := range c.last {
		if now.Sub(last) >= c.window {
			delete(c.last, user)
			removed++
		}
	}
	return removed
}

type usage struct {
	dayKey string
	count  int
}

// Quota counts successful replies per user per calendar day in a fixed
// timezone. Check and Record are separate calls: concurrent requests from one
// user may both pass Check before either records, overshooting by the number
// of in-flight requests.
type Quota struct {
	limit    int
	location *time.Location
	now      Clock

	mu    sync.Mutex
	usage map[string]usage
}

func NewQuota(limit int, location *time.Location, now Clock) *Quota {
	if location == nil {
		location = time.UTC
	}
	return &Quota{
		limit:    limit,
		location: location,
		now:      clockOrNow(now),
		usage:    map[string]usage{},
	}
}

func (q *Quota) Limit() int {
	return q.limit
}

// DayKey is today's YYYY-MM-DD in the quota timezone.
func (q *Quota) DayKey() string {
	return q.now().In(q.location).Format("2006-01-02")
}

// Check returns the remaining allowance and whether one more reply is allowed.
// A stale day bucket counts as zero.
func (q *Quota) Check(userID string) (int, bool) {
	today := q.DayKey()
	q.mu.Lock()
	defer q.mu.Unlock()
	current, ok := q.usage[userID]
	if !ok || current.dayKey != today {
		return q.limit, q.limit > 0
	}
	remaining := q.limit - current.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, remaining > 0
}

// Record counts one successful reply for today.
func (q *Quota) Record(userID string) {
	today := q.DayKey()
	q.mu.Lock()
	defer q.mu.Unlock()
	current := q.usage[userID]
	if current.dayKey != today {
		current = usage{dayKey: today}
	}
	current.count++
	q.usage[userID] = current
}

// Used returns today's count for userID.
func (q *Quota) Used(userID string) int {
	today := q.DayKey()
	q.mu.Lock()
	defer q.mu.Unlock()
	current, ok := q.usage[userID]
	if !ok || current.dayKey != today {
		return 0
	}
	return current.count
}

// Prune drops buckets from previous days.
func (q *Quota) Prune() int {
	today := q.DayKey()
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for user, current := range q.usage {
		if current.dayKey != today {
			delete(q.usage, user)
			removed++
		}
	}
	return removed
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Turn struct {
	Role Role
	Text string
	At   time.Time
}

// Memory keeps the most recent turns per user, oldest evicted first.
type Memory struct {
	capacity int
	now      Clock

	mu     sync.Mutex
	byUser map[string][]Turn
}

func NewMemory(capacity int, now Clock) *Memory {
	if capacity < 0 {
		capacity = 0
	}
	return &Memory{
		capacity: capacity,
		now:      clockOrNow(now),
		byUser:   map[string][]Turn{},
	}
}

func (m *Memory) Push(userID string, role Role, text string) {
	if m.capacity == 0 {
		return
	}
	turn := Turn{Role: role, Text: strings.TrimSpace(text), At: m.now()}
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := append(m.byUser[userID], turn)
	if overflow := len(turns) - m.capacity; overflow > 0 {
		turns = append([]Turn(nil), turns[overflow:]...)
	}
	m.byUser[userID] = turns
}

// History returns a copy of userID's turns, oldest first.
func (m *Memory) History(userID string) []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Turn(nil), m.byUser[userID]...)
}

func (m *Memory) Reset(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byUser, userID)
}
