package engine

import (
	"encoding/json"
	"fmt"
)

// Snapshot encodes the full game state.
func (g *Game) Snapshot() ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("snapshot game %s: %w", g.ID, err)
	}
	return data, nil
}

// Restore rebuilds a game from Snapshot output. Dice state is not part of
// a snapshot, so the caller supplies fresh dice.
func Restore(data []byte, dice Dice) (*Game, error) {
	g := &Game{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("restore game: %w", err)
	}
	if len(g.Players) == 0 {
		return nil, fmt.Errorf("restore game %s: no players", g.ID)
	}
	if len(g.Tiles) != StandardBoard().TileCount() {
		return nil, fmt.Errorf("restore game %s: %d tiles", g.ID, len(g.Tiles))
	}
	for _, p := range g.Players {
		if p.Resources == nil {
			p.Resources = NewHand()
		}
		// VP is derived; trust the pieces over the stored count.
		p.VP = Score(p)
	}
	g.board = StandardBoard()
	g.dice = dice
	return g, nil
}
