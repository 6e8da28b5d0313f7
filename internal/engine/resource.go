package engine

import "fmt"

// Resource identifies what a tile produces.
type Resource string

const (
	Wood   Resource = "wood"
	Brick  Resource = "brick"
	Wheat  Resource = "wheat"
	Sheep  Resource = "sheep"
	Ore    Resource = "ore"
	Desert Resource = "desert"
)

// Resources returns the five tradable resources in display order.
func Resources() []Resource {
	return []Resource{Wood, Brick, Wheat, Sheep, Ore}
}

// Tradable reports whether r can be held in a hand.
func (r Resource) Tradable() bool {
	switch r {
	case Wood, Brick, Wheat, Sheep, Ore:
		return true
	}
	return false
}

// Hand counts resource cards held by a player.
type Hand map[Resource]int

// NewHand returns a hand with every tradable resource present at zero,
// so the JSON form always lists all five keys.
func NewHand() Hand {
	h := make(Hand, 5)
	for _, r := range Resources() {
		h[r] = 0
	}
	return h
}

// Covers returns true if h holds at least cost of every resource.
func (h Hand) Covers(cost Hand) bool {
	for r, n := range cost {
		if h[r] < n {
			return false
		}
	}
	return true
}

// Pay removes cost from h. Callers check Covers first.
func (h Hand) Pay(cost Hand) {
	for r, n := range cost {
		h[r] -= n
	}
}

// Total returns the number of cards in the hand.
func (h Hand) Total() int {
	n := 0
	for _, c := range h {
		n += c
	}
	return n
}

// Clone returns an independent copy.
func (h Hand) Clone() Hand {
	out := make(Hand, len(h))
	for r, n := range h {
		out[r] = n
	}
	return out
}

func (h Hand) String() string {
	return fmt.Sprintf("wood:%d brick:%d wheat:%d sheep:%d ore:%d",
		h[Wood], h[Brick], h[Wheat], h[Sheep], h[Ore])
}

// Build costs.
var (
	SettlementCost = Hand{Wood: 1, Brick: 1, Wheat: 1, Sheep: 1}
	RoadCost       = Hand{Wood: 1, Brick: 1}
	CityCost       = Hand{Wheat: 2, Ore: 3}
)
