package protocol

import (
	"settlers/internal/engine"
	"settlers/internal/store"
)

// Message types: Server → Client
const (
	MsgGameState  = "game_state"
	MsgRollResult = "roll_result"
	MsgEvent      = "event"
	MsgError      = "error"
)

// Message types: Client → Server. Actions share their names with the
// engine's ActionType values.
const (
	MsgState      = "state"
	MsgRoll       = string(engine.ActionRoll)
	MsgBuild      = string(engine.ActionBuild)
	MsgMoveRobber = string(engine.ActionMoveRobber)
	MsgTrade      = string(engine.ActionTrade)
	MsgEndTurn    = string(engine.ActionEndTurn)
)

// NewGameRequest is the body of POST /api/new_game. Both fields are
// optional.
type NewGameRequest struct {
	Players []string `json:"players,omitempty"`
	Seed    uint64   `json:"seed,omitempty"`
}

// ActionRequest carries any player action. Which fields matter depends on
// the action: build reads Type plus Node or Edge, move_robber reads Tile,
// trade reads Give and Get. A nil Player means the current player.
type ActionRequest struct {
	Player *int            `json:"player,omitempty"`
	Type   string          `json:"type,omitempty"`
	Node   *int            `json:"node,omitempty"`
	Edge   *engine.Edge    `json:"edge,omitempty"`
	Tile   *int            `json:"tile,omitempty"`
	Give   engine.Resource `json:"give,omitempty"`
	Get    engine.Resource `json:"get,omitempty"`
}

// NewGameResponse answers POST /api/new_game.
type NewGameResponse struct {
	Status string           `json:"status"`
	State  engine.StateView `json:"state"`
}

// RollResponse answers POST /api/roll.
type RollResponse struct {
	Dice         [2]int           `json:"dice"`
	Total        int              `json:"total"`
	Distribution []engine.Grant   `json:"distribution"`
	Events       []engine.Event   `json:"events,omitempty"`
	State        engine.StateView `json:"state"`
}

// ResultResponse answers build, robber, trade and end_turn.
type ResultResponse struct {
	Result string           `json:"result"`
	Events []engine.Event   `json:"events,omitempty"`
	State  engine.StateView `json:"state"`
}

// LegalResponse answers GET /api/legal.
type LegalResponse struct {
	Player int           `json:"player"`
	Type   string        `json:"type"`
	Nodes  []int         `json:"nodes,omitempty"`
	Edges  []engine.Edge `json:"edges,omitempty"`
}

// BoardResponse answers GET /api/board.
type BoardResponse struct {
	Rows  []int         `json:"rows"`
	Tiles []engine.Tile `json:"tiles"`
	Nodes []engine.Node `json:"nodes"`
	Edges []engine.Edge `json:"edges"`
}

// GamesResponse answers GET /api/games.
type GamesResponse struct {
	Current string   `json:"current"`
	Games   []string `json:"games"`
}

// EventsResponse answers GET /api/events.
type EventsResponse struct {
	Game   string              `json:"game"`
	Events []store.StoredEvent `json:"events"`
}

// ErrorMsg is sent to a client on error. Have lists the player's holdings
// when the error was a shortage.
type ErrorMsg struct {
	Error string      `json:"error"`
	Have  engine.Hand `json:"have,omitempty"`
}
