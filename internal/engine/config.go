package engine

// GameConfig holds configuration for creating a new game.
type GameConfig struct {
	Tiles          []Tile `json:"tiles"`           // starting layout, one per board tile
	VictoryPoints  int    `json:"victory_points"`  // points needed to win (default 10)
	TradeRatio     int    `json:"trade_ratio"`     // cards given per card in a bank trade (default 4)
	MaxSettlements int    `json:"max_settlements"` // pieces per player
	MaxCities      int    `json:"max_cities"`
	MaxRoads       int    `json:"max_roads"`
}

func DefaultConfig() GameConfig {
	return GameConfig{
		Tiles:          StandardTiles(),
		VictoryPoints:  10,
		TradeRatio:     4,
		MaxSettlements: 5,
		MaxCities:      4,
		MaxRoads:       15,
	}
}
