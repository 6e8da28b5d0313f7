package lobby

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// PlayerInfo holds lobby-level player information.
type PlayerInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Lobby is the registry entry for one game: who sits at it and when it
// was last used.
type Lobby struct {
	mu         sync.Mutex
	ID         string
	Players    []*PlayerInfo
	MaxPlayers int
	MinPlayers int
	CreatedAt  time.Time
	LastActive time.Time
}

// NewLobby creates a new lobby.
func NewLobby(id string, now time.Time) *Lobby {
	return &Lobby{
		ID:         id,
		MaxPlayers: 4,
		MinPlayers: 2,
		CreatedAt:  now,
		LastActive: now,
	}
}

// Join seats a player. A blank name becomes "Player N".
func (l *Lobby) Join(name string) (PlayerInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.Players) >= l.MaxPlayers {
		return PlayerInfo{}, fmt.Errorf("lobby is full")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Player %d", len(l.Players)+1)
	}
	for _, p := range l.Players {
		if strings.EqualFold(p.Name, name) {
			return PlayerInfo{}, fmt.Errorf("name %q already taken", name)
		}
	}
	p := &PlayerInfo{ID: len(l.Players), Name: name}
	l.Players = append(l.Players, p)
	return *p, nil
}

// Ready returns an error unless enough players are seated.
func (l *Lobby) Ready() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.Players) < l.MinPlayers {
		return fmt.Errorf("need at least %d players, have %d", l.MinPlayers, len(l.Players))
	}
	return nil
}

// Touch records activity.
func (l *Lobby) Touch(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.LastActive = now
}

// IdleSince returns how long the lobby has been unused at now.
func (l *Lobby) IdleSince(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return now.Sub(l.LastActive)
}

// GetPlayers returns a copy of the player list.
func (l *Lobby) GetPlayers() []PlayerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]PlayerInfo, len(l.Players))
	for i, p := range l.Players {
		out[i] = *p
	}
	return out
}
