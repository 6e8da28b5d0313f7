package engine

// ScoreEntry holds the scoring breakdown for one player.
type ScoreEntry struct {
	PlayerID    int    `json:"player_id"`
	PlayerName  string `json:"player_name"`
	Settlements int    `json:"settlements"`
	Cities      int    `json:"cities"`
	Total       int    `json:"total"`
}

// Score counts a player's victory points from the pieces on the board:
// one per settlement, two per city.
func Score(p *Player) int {
	return len(p.Settlements) + 2*len(p.Cities)
}

// CalculateScores computes the standings for all players in seat order.
func (g *Game) CalculateScores() []ScoreEntry {
	entries := make([]ScoreEntry, len(g.Players))
	for i, p := range g.Players {
		entries[i] = ScoreEntry{
			PlayerID:    p.ID,
			PlayerName:  p.Name,
			Settlements: len(p.Settlements),
			Cities:      len(p.Cities),
			Total:       Score(p),
		}
	}
	return entries
}
