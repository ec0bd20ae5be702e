package session

import (
	"sort"
	"sync"
	"time"
)

// Manager tracks live sessions for the admin surface and enforces the daily
// call cap. One Manager per process.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Controller
	cap      int
	day      string
	admitted int
	now      func() time.Time
}

// RateLimitStatus is the admin view of the daily cap.
type RateLimitStatus struct {
	Date      string `json:"date"`
	Admitted  int    `json:"admitted"`
	Cap       int    `json:"cap"`
	Remaining int    `json:"remaining"`
}

// NewManager creates a Manager with the given daily cap. A cap of zero or
// less means unlimited.
func NewManager(dailyCap int) *Manager {
	return &Manager{
		sessions: make(map[string]*Controller),
		cap:      dailyCap,
		now:      time.Now,
	}
}

// Admit counts one inbound call against today's cap and reports whether it
// may proceed. The counter resets at local midnight.
func (m *Manager) Admit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	if m.cap > 0 && m.admitted >= m.cap {
		return false
	}
	m.admitted++
	return true
}

// RateLimit returns today's cap usage.
func (m *Manager) RateLimit() RateLimitStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDayLocked()

	remaining := -1
	if m.cap > 0 {
		remaining = m.cap - m.admitted
		if remaining < 0 {
			remaining = 0
		}
	}
	return RateLimitStatus{
		Date:      m.day,
		Admitted:  m.admitted,
		Cap:       m.cap,
		Remaining: remaining,
	}
}

// Register adds a live session under the given key, normally the stream ID.
func (m *Manager) Register(id string, c *Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = c
}

// Unregister removes a session.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Active returns the number of live sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Snapshots returns the admin view of every live session, ordered by key.
func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	controllers := make([]*Controller, len(keys))
	for i, k := range keys {
		controllers[i] = m.sessions[k]
	}
	m.mu.Unlock()

	// Snapshot outside the lock; each controller takes its own.
	out := make([]Snapshot, len(controllers))
	for i, c := range controllers {
		out[i] = c.Snapshot()
	}
	return out
}

// rollDayLocked resets the counter when the date changes. m.mu must be held.
func (m *Manager) rollDayLocked() {
	today := m.now().Format("2006-01-02")
	if m.day != today {
		m.day = today
		m.admitted = 0
	}
}
