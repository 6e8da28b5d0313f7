package lobby

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNoGame = errors.New("no such game")

// DefaultNames seats two players when a request names nobody.
var DefaultNames = []string{"Player 1", "Player 2"}

// Manager manages multiple lobbies and remembers which one is current.
// Requests that do not name a game are routed to the current one.
type Manager struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby
	current string
	now     func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		lobbies: make(map[string]*Lobby),
		now:     time.Now,
	}
}

// Create seats the named players in a new lobby, makes it current and
// returns it.
func (m *Manager) Create(names []string) (*Lobby, error) {
	if len(names) == 0 {
		names = DefaultNames
	}
	lob := NewLobby(uuid.NewString(), m.now())
	for _, n := range names {
		if _, err := lob.Join(n); err != nil {
			return nil, fmt.Errorf("create game: %w", err)
		}
	}
	if err := lob.Ready(); err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lobbies[lob.ID] = lob
	m.current = lob.ID
	return lob, nil
}

// Adopt registers a lobby for a game restored from storage. The most
// recently active adopted lobby becomes current.
func (m *Manager) Adopt(id string, players []PlayerInfo, lastActive time.Time) *Lobby {
	lob := NewLobby(id, lastActive)
	for i := range players {
		p := players[i]
		lob.Players = append(lob.Players, &p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lobbies[id] = lob
	if cur, ok := m.lobbies[m.current]; !ok || cur.LastActive.Before(lastActive) {
		m.current = id
	}
	return lob
}

// Get returns a lobby by ID.
func (m *Manager) Get(id string) *Lobby {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lobbies[id]
}

// Resolve returns the lobby for id, or the current lobby when id is empty.
func (m *Manager) Resolve(id string) (*Lobby, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == "" {
		id = m.current
	}
	lob, ok := m.lobbies[id]
	if !ok {
		return nil, ErrNoGame
	}
	return lob, nil
}

// Current returns the current game id, or "".
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IDs lists known games, oldest first.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	lobs := make([]*Lobby, 0, len(m.lobbies))
	for _, l := range m.lobbies {
		lobs = append(lobs, l)
	}
	sort.Slice(lobs, func(i, j int) bool {
		if lobs[i].CreatedAt.Equal(lobs[j].CreatedAt) {
			return lobs[i].ID < lobs[j].ID
		}
		return lobs[i].CreatedAt.Before(lobs[j].CreatedAt)
	})
	ids := make([]string, len(lobs))
	for i, l := range lobs {
		ids[i] = l.ID
	}
	return ids
}

// Touch marks a game as active now.
func (m *Manager) Touch(id string) {
	if lob := m.Get(id); lob != nil {
		lob.Touch(m.now())
	}
}

// Sweep removes lobbies idle for longer than ttl and returns their ids.
// The current lobby is never removed. A non-positive ttl disables sweeping.
func (m *Manager) Sweep(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, lob := range m.lobbies {
		if id == m.current {
			continue
		}
		if lob.IdleSince(now) > ttl {
			delete(m.lobbies, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	return removed
}
