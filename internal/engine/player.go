package engine

// Player holds one player's state.
type Player struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Resources   Hand   `json:"resources"`
	Settlements []int  `json:"settlements"`
	Cities      []int  `json:"cities"`
	Roads       []Edge `json:"roads"`
	VP          int    `json:"vp"`
}

func NewPlayer(id int, name string) *Player {
	return &Player{
		ID:          id,
		Name:        name,
		Resources:   NewHand(),
		Settlements: []int{},
		Cities:      []int{},
		Roads:       []Edge{},
	}
}

// HasSettlement returns true if the player has a settlement on node.
func (p *Player) HasSettlement(node int) bool {
	return containsInt(p.Settlements, node)
}

// HasCity returns true if the player has a city on node.
func (p *Player) HasCity(node int) bool {
	return containsInt(p.Cities, node)
}

// HasBuilding returns true if the player has a settlement or city on node.
func (p *Player) HasBuilding(node int) bool {
	return p.HasSettlement(node) || p.HasCity(node)
}

// HasRoad returns true if the player owns e.
func (p *Player) HasRoad(e Edge) bool {
	for _, r := range p.Roads {
		if r == e {
			return true
		}
	}
	return false
}

// RoadTouches returns true if any of the player's roads ends at node.
func (p *Player) RoadTouches(node int) bool {
	for _, r := range p.Roads {
		if r.Touches(node) {
			return true
		}
	}
	return false
}

// Yield returns how many cards a building on node produces: 1 for a
// settlement, 2 for a city, 0 otherwise.
func (p *Player) Yield(node int) int {
	switch {
	case p.HasCity(node):
		return 2
	case p.HasSettlement(node):
		return 1
	}
	return 0
}

// upgrade turns the settlement on node into a city.
func (p *Player) upgrade(node int) {
	for i, n := range p.Settlements {
		if n == node {
			p.Settlements = append(p.Settlements[:i], p.Settlements[i+1:]...)
			break
		}
	}
	p.Cities = append(p.Cities, node)
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
