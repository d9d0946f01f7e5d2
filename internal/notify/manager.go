// Package notify manages the lifecycle of on-screen notifications: at most
// one info and one error notification, each cleared after its display
// duration.
package notify

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fairyhunter13/vending-kiosk/internal/obs"
)

// Kind distinguishes the two independent notification slots.
type Kind int

const (
	Info Kind = iota
	Error
)

func (k Kind) String() string {
	if k == Error {
		return "error"
	}
	return "info"
}

// MarshalText renders the kind as "info" or "error".
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Notification is one displayed message.
type Notification struct {
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type slot struct {
	n      Notification
	active bool
	timer  clockwork.Timer
	// gen invalidates callbacks of timers that fired after being replaced.
	gen uint64
}

// Manager holds the info and error slots. Each slot is Idle or Shown.
type Manager struct {
	clock   clockwork.Clock
	metrics *obs.Metrics

	mu       sync.Mutex
	slots    [2]slot
	onChange func()
}

// NewManager creates a Manager driven by clock.
func NewManager(clock clockwork.Clock, m *obs.Metrics) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{clock: clock, metrics: m}
}

// OnChange registers fn to run after every show, clear or expiry.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Show displays text in the kind's slot for ttl, replacing any notification
// and pending timer of that kind. Empty text clears the slot.
func (m *Manager) Show(kind Kind, text string, ttl time.Duration) {
	if text == "" {
		m.clear(kind)
		return
	}
	now := m.clock.Now()

	m.mu.Lock()
	s := &m.slots[kind]
	old := s.timer
	s.gen++
	gen := s.gen
	s.n = Notification{Kind: kind, Text: text, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	s.active = true
	s.timer = nil
	fn := m.onChange
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	// The timer is armed outside the lock; a newer Show or clear may have
	// taken the slot in between.
	t := m.clock.AfterFunc(ttl, func() { m.expire(kind, gen) })
	m.mu.Lock()
	stale := s.gen != gen
	if !stale {
		s.timer = t
	}
	m.mu.Unlock()
	if stale {
		t.Stop()
	}

	m.metrics.NotificationShown(kind.String())
	obs.Logger.Debug("notification_shown", "kind", kind.String(), "ttl_ms", ttl.Milliseconds())
	if fn != nil {
		fn()
	}
}

// ClearAll forces both slots to Idle immediately.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	var timers []clockwork.Timer
	changed := false
	for i := range m.slots {
		s := &m.slots[i]
		if s.timer != nil {
			timers = append(timers, s.timer)
		}
		changed = changed || s.active
		s.gen++
		s.timer = nil
		s.active = false
		s.n = Notification{}
	}
	fn := m.onChange
	m.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
	if changed && fn != nil {
		fn()
	}
}

func (m *Manager) clear(kind Kind) {
	m.mu.Lock()
	s := &m.slots[kind]
	old := s.timer
	changed := s.active
	s.gen++
	s.timer = nil
	s.active = false
	s.n = Notification{}
	fn := m.onChange
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	if changed && fn != nil {
		fn()
	}
}

func (m *Manager) expire(kind Kind, gen uint64) {
	m.mu.Lock()
	s := &m.slots[kind]
	if s.gen != gen || !s.active {
		m.mu.Unlock()
		return
	}
	s.active = false
	s.timer = nil
	s.n = Notification{}
	fn := m.onChange
	m.mu.Unlock()

	obs.Logger.Debug("notification_expired", "kind", kind.String())
	if fn != nil {
		fn()
	}
}

// Active returns the notification shown in kind's slot, if any.
func (m *Manager) Active(kind Kind) (Notification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.slots[kind]
	return s.n, s.active
}

// Text returns the displayed text of kind, or "" when Idle.
func (m *Manager) Text(kind Kind) string {
	n, _ := m.Active(kind)
	return n.Text
}

// Snapshot returns the active notifications, info first.
func (m *Manager) Snapshot() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for _, s := range m.slots {
		if s.active {
			out = append(out, s.n)
		}
	}
	return out
}
