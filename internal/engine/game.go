package engine

import (
	"errors"
	"fmt"
)

var (
	ErrNotYourTurn         = errors.New("not your turn")
	ErrInvalidAction       = errors.New("invalid action")
	ErrPlayerNotFound      = errors.New("player not found")
	ErrWrongPhase          = errors.New("wrong phase for this action")
	ErrNotEnoughResources  = errors.New("not enough resources")
	ErrUnknownBuildType    = errors.New("unknown build type")
	ErrInvalidNode         = errors.New("invalid node")
	ErrNodeOccupied        = errors.New("node already occupied")
	ErrNodeTooClose        = errors.New("adjacent node already occupied")
	ErrInvalidEdge         = errors.New("invalid edge")
	ErrEdgeOccupied        = errors.New("edge already occupied")
	ErrNotConnected        = errors.New("not connected to your roads or buildings")
	ErrNotYourSettlement   = errors.New("no settlement of yours on that node")
	ErrNoPiecesLeft        = errors.New("no pieces of that type left")
	ErrInvalidTile         = errors.New("invalid tile")
	ErrRobberAlreadyThere  = errors.New("robber is already on that tile")
	ErrInvalidTrade        = errors.New("invalid trade")
	ErrSetupRoadNotAdjoins = errors.New("setup road must touch the settlement just placed")
)

// Game holds the entire game state. All exported fields round-trip
// through JSON; see Snapshot and Restore.
type Game struct {
	ID      string     `json:"id"`
	Players []*Player  `json:"players"`
	Tiles   []Tile     `json:"tiles"`
	Config  GameConfig `json:"config"`

	Phase         GamePhase `json:"phase"`
	CurrentPlayer int       `json:"current_player"`
	Turn          int       `json:"turn"`
	Robber        int       `json:"robber"`
	Winner        int       `json:"winner"` // -1 until the game is over

	// Setup tracking: SetupStep indexes SetupOrder; SetupNode is the
	// settlement still waiting for its road, or -1.
	SetupStep int `json:"setup_step"`
	SetupNode int `json:"setup_node"`

	LastRoll *RollResult `json:"last_roll,omitempty"`

	board *Board
	dice  Dice
}

// NewGame creates a game in the setup phase. The robber starts on the
// desert.
func NewGame(id string, players []*Player, config GameConfig, dice Dice) *Game {
	if len(config.Tiles) == 0 {
		config.Tiles = StandardTiles()
	}
	tiles := make([]Tile, len(config.Tiles))
	copy(tiles, config.Tiles)

	g := &Game{
		ID:        id,
		Players:   players,
		Tiles:     tiles,
		Config:    config,
		Phase:     PhaseSetup,
		Robber:    -1,
		Winner:    -1,
		SetupNode: -1,
		board:     StandardBoard(),
		dice:      dice,
	}
	for i, t := range g.Tiles {
		if t.Resource == Desert {
			g.Tiles[i].Robbed = true
			g.Robber = i
			break
		}
	}
	return g
}

// Board returns the topology the game is played on.
func (g *Game) Board() *Board {
	return g.board
}

// SetupOrder returns the snake order of setup placements: each player once
// forward, then once in reverse.
func SetupOrder(n int) []int {
	order := make([]int, 0, 2*n)
	for i := 0; i < n; i++ {
		order = append(order, i)
	}
	for i := n - 1; i >= 0; i-- {
		order = append(order, i)
	}
	return order
}

// Apply is the single entry point for player actions.
func (g *Game) Apply(playerID int, action Action) ([]Event, error) {
	if g.GetPlayer(playerID) == nil {
		return nil, ErrPlayerNotFound
	}
	if g.Phase == PhaseGameOver {
		return nil, ErrWrongPhase
	}
	if playerID != g.CurrentPlayer {
		return nil, ErrNotYourTurn
	}

	switch action.Type {
	case ActionRoll:
		return g.applyRoll(playerID)
	case ActionBuild:
		if g.Phase == PhaseSetup {
			return g.applySetupBuild(playerID, action)
		}
		return g.applyBuild(playerID, action)
	case ActionMoveRobber:
		return g.applyMoveRobber(playerID, action)
	case ActionTrade:
		return g.applyTrade(playerID, action)
	case ActionEndTurn:
		return g.applyEndTurn(playerID)
	default:
		return nil, ErrInvalidAction
	}
}

func (g *Game) applySetupBuild(playerID int, action Action) ([]Event, error) {
	p := g.GetPlayer(playerID)

	switch action.Build {
	case BuildSettlement:
		if g.SetupNode >= 0 {
			return nil, fmt.Errorf("place a road next to node %d first: %w", g.SetupNode, ErrWrongPhase)
		}
		if err := g.checkSettlementSite(action.Node); err != nil {
			return nil, err
		}
		p.Settlements = append(p.Settlements, action.Node)
		p.VP++
		g.SetupNode = action.Node

		data := map[string]interface{}{"build": BuildSettlement, "node": action.Node}
		// Second-round settlements collect one card per adjacent tile.
		if g.SetupStep >= len(g.Players) {
			var grants []Grant
			for _, t := range g.board.TilesAt(action.Node) {
				tile := g.Tiles[t]
				if tile.Resource == Desert {
					continue
				}
				p.Resources[tile.Resource]++
				grants = append(grants, Grant{Player: p.ID, Resource: tile.Resource, Node: action.Node, Amount: 1})
			}
			data["grants"] = grants
		}
		return []Event{{Type: EventSetupPlaced, Player: playerID, Data: data}}, nil

	case BuildRoad:
		if g.SetupNode < 0 {
			return nil, fmt.Errorf("place a settlement first: %w", ErrWrongPhase)
		}
		e := NewEdge(action.Edge.A, action.Edge.B)
		if !g.board.IsEdge(e) {
			return nil, ErrInvalidEdge
		}
		if g.RoadOwner(e) >= 0 {
			return nil, ErrEdgeOccupied
		}
		if !e.Touches(g.SetupNode) {
			return nil, ErrSetupRoadNotAdjoins
		}
		p.Roads = append(p.Roads, e)
		g.SetupNode = -1
		g.SetupStep++

		events := []Event{{Type: EventSetupPlaced, Player: playerID, Data: map[string]interface{}{
			"build": BuildRoad, "edge": e,
		}}}

		order := SetupOrder(len(g.Players))
		if g.SetupStep < len(order) {
			g.CurrentPlayer = order[g.SetupStep]
			return events, nil
		}
		g.CurrentPlayer = 0
		g.Phase = PhaseRoll
		events = append(events,
			Event{Type: EventSetupDone, Player: -1},
			Event{Type: EventPhaseChange, Player: g.CurrentPlayer, Data: map[string]interface{}{
				"phase": PhaseRoll.String(),
			}},
		)
		return events, nil

	default:
		return nil, ErrUnknownBuildType
	}
}

func (g *Game) applyRoll(playerID int) ([]Event, error) {
	if g.Phase != PhaseRoll {
		return nil, ErrWrongPhase
	}
	d1, d2 := g.dice.Roll()
	total := d1 + d2
	g.Turn++

	result := &RollResult{Dice: [2]int{d1, d2}, Total: total, Distribution: []Grant{}}
	g.LastRoll = result

	if total == 7 {
		g.Phase = PhaseRobber
		return []Event{
			{Type: EventDiceRolled, Player: playerID, Data: result},
			{Type: EventRobber, Player: playerID, Data: map[string]interface{}{"number": 7}},
			{Type: EventPhaseChange, Player: playerID, Data: map[string]interface{}{
				"phase": PhaseRobber.String(),
			}},
		}, nil
	}

	result.Distribution = g.Distribute(total)
	g.Phase = PhaseBuild
	return []Event{
		{Type: EventDiceRolled, Player: playerID, Data: result},
		{Type: EventPhaseChange, Player: playerID, Data: map[string]interface{}{
			"phase": PhaseBuild.String(),
		}},
	}, nil
}

// Distribute pays out every unrobbed producing tile numbered total and
// returns the grants in tile, node, player order.
func (g *Game) Distribute(total int) []Grant {
	grants := []Grant{}
	for tid, tile := range g.Tiles {
		if tile.Number != total || tile.Resource == Desert || tile.Robbed {
			continue
		}
		for _, nid := range g.board.NodesOf(tid) {
			for _, p := range g.Players {
				n := p.Yield(nid)
				if n == 0 {
					continue
				}
				p.Resources[tile.Resource] += n
				grants = append(grants, Grant{Player: p.ID, Resource: tile.Resource, Node: nid, Amount: n})
			}
		}
	}
	return grants
}

func (g *Game) applyMoveRobber(playerID int, action Action) ([]Event, error) {
	if g.Phase != PhaseRobber {
		return nil, ErrWrongPhase
	}
	if !g.board.ValidTile(action.Tile) {
		return nil, ErrInvalidTile
	}
	if action.Tile == g.Robber {
		return nil, ErrRobberAlreadyThere
	}
	if g.Robber >= 0 {
		g.Tiles[g.Robber].Robbed = false
	}
	g.Tiles[action.Tile].Robbed = true
	g.Robber = action.Tile
	g.Phase = PhaseBuild

	return []Event{
		{Type: EventRobberMoved, Player: playerID, Data: map[string]interface{}{"tile": action.Tile}},
		{Type: EventPhaseChange, Player: playerID, Data: map[string]interface{}{
			"phase": PhaseBuild.String(),
		}},
	}, nil
}

func (g *Game) applyBuild(playerID int, action Action) ([]Event, error) {
	if g.Phase != PhaseBuild {
		return nil, ErrWrongPhase
	}
	p := g.GetPlayer(playerID)

	var data map[string]interface{}
	switch action.Build {
	case BuildSettlement:
		if len(p.Settlements) >= g.Config.MaxSettlements {
			return nil, ErrNoPiecesLeft
		}
		if err := g.checkSettlementSite(action.Node); err != nil {
			return nil, err
		}
		if !p.RoadTouches(action.Node) {
			return nil, ErrNotConnected
		}
		if !p.Resources.Covers(SettlementCost) {
			return nil, ErrNotEnoughResources
		}
		p.Resources.Pay(SettlementCost)
		p.Settlements = append(p.Settlements, action.Node)
		p.VP++
		data = map[string]interface{}{"build": BuildSettlement, "node": action.Node}

	case BuildRoad:
		if len(p.Roads) >= g.Config.MaxRoads {
			return nil, ErrNoPiecesLeft
		}
		e := NewEdge(action.Edge.A, action.Edge.B)
		if err := g.checkRoadSite(p, e); err != nil {
			return nil, err
		}
		if !p.Resources.Covers(RoadCost) {
			return nil, ErrNotEnoughResources
		}
		p.Resources.Pay(RoadCost)
		p.Roads = append(p.Roads, e)
		data = map[string]interface{}{"build": BuildRoad, "edge": e}

	case BuildCity:
		if len(p.Cities) >= g.Config.MaxCities {
			return nil, ErrNoPiecesLeft
		}
		if !p.HasSettlement(action.Node) {
			return nil, ErrNotYourSettlement
		}
		if !p.Resources.Covers(CityCost) {
			return nil, ErrNotEnoughResources
		}
		p.Resources.Pay(CityCost)
		p.upgrade(action.Node)
		p.VP++
		data = map[string]interface{}{"build": BuildCity, "node": action.Node}

	default:
		return nil, ErrUnknownBuildType
	}

	events := []Event{{Type: EventBuilt, Player: playerID, Data: data}}
	return append(events, g.checkWinner(p)...), nil
}

// checkSettlementSite applies the distance rule and reports which part of
// it failed.
func (g *Game) checkSettlementSite(node int) error {
	if !g.board.ValidNode(node) {
		return ErrInvalidNode
	}
	occupied := g.Occupied()
	if occupied[node] {
		return ErrNodeOccupied
	}
	if !g.board.Buildable(node, occupied) {
		return ErrNodeTooClose
	}
	return nil
}

// checkRoadSite validates a road outside setup. A road connects through an
// endpoint holding the player's building, or through one of their roads
// as long as no opponent building sits on the shared node.
func (g *Game) checkRoadSite(p *Player, e Edge) error {
	if !g.board.IsEdge(e) {
		return ErrInvalidEdge
	}
	if g.RoadOwner(e) >= 0 {
		return ErrEdgeOccupied
	}
	for _, n := range []int{e.A, e.B} {
		if p.HasBuilding(n) {
			return nil
		}
		owner := g.BuildingOwner(n)
		if owner >= 0 && owner != p.ID {
			continue
		}
		if p.RoadTouches(n) {
			return nil
		}
	}
	return ErrNotConnected
}

func (g *Game) applyTrade(playerID int, action Action) ([]Event, error) {
	if g.Phase != PhaseBuild {
		return nil, ErrWrongPhase
	}
	if !action.Give.Tradable() || !action.Get.Tradable() || action.Give == action.Get {
		return nil, ErrInvalidTrade
	}
	p := g.GetPlayer(playerID)
	cost := Hand{action.Give: g.Config.TradeRatio}
	if !p.Resources.Covers(cost) {
		return nil, ErrNotEnoughResources
	}
	p.Resources.Pay(cost)
	p.Resources[action.Get]++

	return []Event{{Type: EventTraded, Player: playerID, Data: map[string]interface{}{
		"give": action.Give, "get": action.Get, "ratio": g.Config.TradeRatio,
	}}}, nil
}

func (g *Game) applyEndTurn(playerID int) ([]Event, error) {
	if g.Phase != PhaseBuild {
		return nil, ErrWrongPhase
	}
	g.CurrentPlayer = (g.CurrentPlayer + 1) % len(g.Players)
	g.Phase = PhaseRoll

	return []Event{
		{Type: EventTurnEnd, Player: playerID, Data: map[string]interface{}{"turn": g.Turn}},
		{Type: EventPhaseChange, Player: g.CurrentPlayer, Data: map[string]interface{}{
			"phase": PhaseRoll.String(),
		}},
	}, nil
}

func (g *Game) checkWinner(p *Player) []Event {
	if p.VP < g.Config.VictoryPoints {
		return nil
	}
	g.Phase = PhaseGameOver
	g.Winner = p.ID
	return []Event{
		{Type: EventGameOver, Player: p.ID, Data: map[string]interface{}{
			"vp": p.VP, "name": p.Name, "scores": g.CalculateScores(),
		}},
		{Type: EventPhaseChange, Player: p.ID, Data: map[string]interface{}{
			"phase": PhaseGameOver.String(),
		}},
	}
}

// GetPlayer finds a player by ID.
func (g *Game) GetPlayer(id int) *Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Occupied returns the set of nodes holding any building.
func (g *Game) Occupied() map[int]bool {
	occ := make(map[int]bool)
	for _, p := range g.Players {
		for _, n := range p.Settlements {
			occ[n] = true
		}
		for _, n := range p.Cities {
			occ[n] = true
		}
	}
	return occ
}

// BuildingOwner returns the id of the player with a building on node, or -1.
func (g *Game) BuildingOwner(node int) int {
	for _, p := range g.Players {
		if p.HasBuilding(node) {
			return p.ID
		}
	}
	return -1
}

// RoadOwner returns the id of the player owning e, or -1.
func (g *Game) RoadOwner(e Edge) int {
	e = NewEdge(e.A, e.B)
	for _, p := range g.Players {
		if p.HasRoad(e) {
			return p.ID
		}
	}
	return -1
}

// LegalSettlements lists the nodes where playerID could place a settlement
// right now, ignoring cost and turn order.
func (g *Game) LegalSettlements(playerID int) []int {
	p := g.GetPlayer(playerID)
	if p == nil {
		return nil
	}
	if g.Phase == PhaseSetup && g.SetupNode >= 0 {
		// The pending setup road comes first.
		return []int{}
	}
	nodes := g.board.BuildableNodes(g.Occupied())
	if g.Phase == PhaseSetup {
		return nodes
	}
	out := []int{}
	for _, n := range nodes {
		if p.RoadTouches(n) {
			out = append(out, n)
		}
	}
	return out
}

// LegalRoads lists the edges where playerID could place a road right now,
// ignoring cost and turn order.
func (g *Game) LegalRoads(playerID int) []Edge {
	p := g.GetPlayer(playerID)
	if p == nil {
		return nil
	}
	out := []Edge{}
	for _, e := range g.board.Edges() {
		if g.Phase == PhaseSetup {
			if g.SetupNode >= 0 && e.Touches(g.SetupNode) && g.RoadOwner(e) < 0 {
				out = append(out, e)
			}
			continue
		}
		if g.checkRoadSite(p, e) == nil {
			out = append(out, e)
		}
	}
	return out
}
