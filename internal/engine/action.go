package engine

// ActionType identifies player actions sent to Game.Apply.
type ActionType string

const (
	ActionRoll       ActionType = "roll"
	ActionBuild      ActionType = "build"
	ActionMoveRobber ActionType = "move_robber"
	ActionTrade      ActionType = "trade"
	ActionEndTurn    ActionType = "end_turn"
)

// BuildType selects what an ActionBuild places.
type BuildType string

const (
	BuildSettlement BuildType = "settlement"
	BuildRoad       BuildType = "road"
	BuildCity       BuildType = "city"
)

// Action is a player's action input.
type Action struct {
	Type ActionType `json:"type"`
	// Params depend on Type:
	// build: Build plus Node (settlement, city) or Edge (road)
	// move_robber: Tile
	// trade: Give, Get
	Build BuildType `json:"build,omitempty"`
	Node  int       `json:"node"`
	Edge  Edge      `json:"edge,omitempty"`
	Tile  int       `json:"tile"`
	Give  Resource  `json:"give,omitempty"`
	Get   Resource  `json:"get,omitempty"`
}

// EventType identifies events emitted by the engine.
type EventType string

const (
	EventSetupPlaced EventType = "setup_placed"
	EventSetupDone   EventType = "setup_done"
	EventDiceRolled  EventType = "dice_rolled"
	EventRobber      EventType = "robber"
	EventRobberMoved EventType = "robber_moved"
	EventBuilt       EventType = "built"
	EventTraded      EventType = "traded"
	EventTurnEnd     EventType = "turn_end"
	EventPhaseChange EventType = "phase_change"
	EventGameOver    EventType = "game_over"
)

// Event is emitted by the engine after state changes.
type Event struct {
	Type   EventType   `json:"type"`
	Player int         `json:"player"`
	Data   interface{} `json:"data,omitempty"`
}

// Grant is one resource payout from a roll.
type Grant struct {
	Player   int      `json:"player"`
	Resource Resource `json:"resource"`
	Node     int      `json:"node"`
	Amount   int      `json:"amount"`
}

// RollResult records the outcome of the latest roll.
type RollResult struct {
	Dice         [2]int  `json:"dice"`
	Total        int     `json:"total"`
	Distribution []Grant `json:"distribution"`
}
