package engine

// StateView is the wire form of a game served by /api/state.
type StateView struct {
	GameID        string       `json:"game_id"`
	CurrentPlayer int          `json:"current_player"`
	Turn          int          `json:"turn"`
	Phase         string       `json:"phase"`
	Winner        int          `json:"winner"`
	Robber        int          `json:"robber"`
	SetupNode     int          `json:"setup_node"`
	Players       []PlayerView `json:"players"`
	Tiles         []Tile       `json:"tiles"`
	Nodes         []Node       `json:"nodes"`
	LastRoll      *RollResult  `json:"last_roll,omitempty"`
}

// PlayerView is one entry of StateView.Players.
type PlayerView struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Resources   Hand   `json:"resources"`
	Settlements []int  `json:"settlements"`
	Cities      []int  `json:"cities"`
	Roads       []Edge `json:"roads"`
	VP          int    `json:"vp"`
}

// State returns a detached copy of the game for serialisation.
func (g *Game) State() StateView {
	sv := StateView{
		GameID:        g.ID,
		CurrentPlayer: g.CurrentPlayer,
		Turn:          g.Turn,
		Phase:         g.Phase.String(),
		Winner:        g.Winner,
		Robber:        g.Robber,
		SetupNode:     g.SetupNode,
		Tiles:         make([]Tile, len(g.Tiles)),
		Nodes:         g.board.Nodes(),
	}
	copy(sv.Tiles, g.Tiles)

	if g.LastRoll != nil {
		lr := *g.LastRoll
		lr.Distribution = append([]Grant{}, g.LastRoll.Distribution...)
		sv.LastRoll = &lr
	}

	for _, p := range g.Players {
		sv.Players = append(sv.Players, PlayerView{
			ID:          p.ID,
			Name:        p.Name,
			Resources:   p.Resources.Clone(),
			Settlements: append([]int{}, p.Settlements...),
			Cities:      append([]int{}, p.Cities...),
			Roads:       append([]Edge{}, p.Roads...),
			VP:          p.VP,
		})
	}
	return sv
}
