package engine

// GamePhase represents the current phase of the game state machine.
type GamePhase int

const (
	PhaseSetup    GamePhase = iota // free opening settlements and roads, snake order
	PhaseRoll                      // current player must roll
	PhaseRobber                    // a 7 was rolled; current player moves the robber
	PhaseBuild                     // current player builds, trades or ends the turn
	PhaseGameOver                  // someone reached the victory point target
)

var phaseNames = map[GamePhase]string{
	PhaseSetup:    "setup",
	PhaseRoll:     "roll",
	PhaseRobber:   "robber",
	PhaseBuild:    "build",
	PhaseGameOver: "game_over",
}

func (p GamePhase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return "unknown"
}
