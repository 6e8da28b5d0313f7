package engine

import (
	"encoding/json"
	"fmt"
	"sort"
)

// RowLayout is the number of tiles in each board row, top to bottom.
var RowLayout = []int{3, 4, 5, 4, 3}

// DesertIndex is where StandardTiles places the desert.
const DesertIndex = 9

// Point is a position on the board lattice. Horizontally adjacent tile
// centres are 2 units apart and rows are 3 units apart, which puts every
// hex corner on an integer point.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pointy-top corners, clockwise from the top.
var cornerOffsets = [6]Point{
	{X: 0, Y: -2},
	{X: 1, Y: -1},
	{X: 1, Y: 1},
	{X: 0, Y: 2},
	{X: -1, Y: 1},
	{X: -1, Y: -1},
}

// Tile is one hex of the board.
type Tile struct {
	Resource Resource `json:"resource"`
	Number   int      `json:"number"`
	Robbed   bool     `json:"robbed"`
}

// StandardTiles returns the fixed starting layout. The desert sits in the
// centre and carries a 7, which no roll ever distributes.
func StandardTiles() []Tile {
	numbers := []int{5, 2, 6, 3, 8, 10, 9, 12, 11, 4, 8, 10, 9, 4, 5, 6, 3, 11}
	resources := []Resource{
		Wood, Brick, Wheat, Sheep, Ore, Wood, Brick, Wheat,
		Sheep, Wood, Sheep, Wheat, Brick, Ore, Wood, Sheep, Brick, Wheat,
	}

	tiles := make([]Tile, 0, len(numbers)+1)
	for i := range numbers {
		if i == DesertIndex {
			tiles = append(tiles, Tile{Resource: Desert, Number: 7})
		}
		tiles = append(tiles, Tile{Resource: resources[i], Number: numbers[i]})
	}
	return tiles
}

// Node is a hex corner where settlements and cities are placed.
type Node struct {
	ID        int   `json:"id"`
	X         int   `json:"x"`
	Y         int   `json:"y"`
	Tiles     []int `json:"tiles"`
	Neighbors []int `json:"neighbors"`
}

// Edge is an unordered pair of adjacent nodes. A is always the lower id.
type Edge struct {
	A int
	B int
}

// NewEdge normalises the pair so that equal edges compare equal.
func NewEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// Touches reports whether node is an endpoint of e.
func (e Edge) Touches(node int) bool {
	return e.A == node || e.B == node
}

func (e Edge) String() string {
	return fmt.Sprintf("%d-%d", e.A, e.B)
}

// MarshalJSON encodes the edge as a two-element array.
func (e Edge) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{e.A, e.B})
}

// UnmarshalJSON accepts a two-element array in either order.
func (e *Edge) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("edge: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("edge: want 2 node ids, got %d", len(pair))
	}
	*e = NewEdge(pair[0], pair[1])
	return nil
}

// Board is the fixed node and edge topology of the 19-tile layout.
// It carries no game state and is safe to share.
type Board struct {
	centers   []Point
	nodes     []Node
	edges     []Edge
	edgeSet   map[Edge]struct{}
	tileNodes [][6]int
}

var standardBoard = NewBoard()

// StandardBoard returns the shared board for RowLayout.
func StandardBoard() *Board {
	return standardBoard
}

// TileCenters returns the lattice centre of every tile, row by row.
func TileCenters() []Point {
	var out []Point
	mid := len(RowLayout) / 2
	for row, n := range RowLayout {
		y := (row - mid) * 3
		for i := 0; i < n; i++ {
			out = append(out, Point{X: 2*i - (n - 1), Y: y})
		}
	}
	return out
}

// NewBoard builds the topology. Node ids are handed out in order of first
// appearance while walking tiles and then corners, so corners shared by
// neighbouring tiles collapse into one node.
func NewBoard() *Board {
	centers := TileCenters()
	b := &Board{
		centers:   centers,
		edgeSet:   make(map[Edge]struct{}),
		tileNodes: make([][6]int, len(centers)),
	}

	index := make(map[Point]int)
	for t, c := range centers {
		for k, off := range cornerOffsets {
			p := Point{X: c.X + off.X, Y: c.Y + off.Y}
			id, ok := index[p]
			if !ok {
				id = len(b.nodes)
				index[p] = id
				b.nodes = append(b.nodes, Node{ID: id, X: p.X, Y: p.Y})
			}
			b.nodes[id].Tiles = append(b.nodes[id].Tiles, t)
			b.tileNodes[t][k] = id
		}
	}

	for t := range centers {
		for k := 0; k < 6; k++ {
			b.addEdge(b.tileNodes[t][k], b.tileNodes[t][(k+1)%6])
		}
	}
	for i := range b.nodes {
		sort.Ints(b.nodes[i].Neighbors)
	}
	return b
}

func (b *Board) addEdge(x, y int) {
	e := NewEdge(x, y)
	if _, ok := b.edgeSet[e]; ok {
		return
	}
	b.edgeSet[e] = struct{}{}
	b.edges = append(b.edges, e)
	b.nodes[x].Neighbors = append(b.nodes[x].Neighbors, y)
	b.nodes[y].Neighbors = append(b.nodes[y].Neighbors, x)
}

func (b *Board) TileCount() int { return len(b.centers) }
func (b *Board) NodeCount() int { return len(b.nodes) }
func (b *Board) EdgeCount() int { return len(b.edges) }

// ValidNode reports whether id names a node of this board.
func (b *Board) ValidNode(id int) bool {
	return id >= 0 && id < len(b.nodes)
}

// ValidTile reports whether id names a tile of this board.
func (b *Board) ValidTile(id int) bool {
	return id >= 0 && id < len(b.centers)
}

// IsEdge reports whether e joins two adjacent nodes.
func (b *Board) IsEdge(e Edge) bool {
	_, ok := b.edgeSet[NewEdge(e.A, e.B)]
	return ok
}

// Node returns the node with the given id. The slices are shared and must
// not be modified.
func (b *Board) Node(id int) (Node, bool) {
	if !b.ValidNode(id) {
		return Node{}, false
	}
	return b.nodes[id], true
}

// Nodes returns all nodes ordered by id.
func (b *Board) Nodes() []Node {
	out := make([]Node, len(b.nodes))
	copy(out, b.nodes)
	return out
}

// Edges returns all edges in discovery order.
func (b *Board) Edges() []Edge {
	out := make([]Edge, len(b.edges))
	copy(out, b.edges)
	return out
}

// Neighbors returns the nodes one edge away from id.
func (b *Board) Neighbors(id int) []int {
	if !b.ValidNode(id) {
		return nil
	}
	return b.nodes[id].Neighbors
}

// TilesAt returns the tiles that have id as a corner.
func (b *Board) TilesAt(id int) []int {
	if !b.ValidNode(id) {
		return nil
	}
	return b.nodes[id].Tiles
}

// NodesOf returns the six corners of tile t, clockwise from the top.
func (b *Board) NodesOf(t int) [6]int {
	return b.tileNodes[t]
}

// Center returns the lattice centre of tile t.
func (b *Board) Center(t int) Point {
	return b.centers[t]
}

// Buildable reports whether a settlement may stand on node: nobody owns
// the node or any node adjacent to it.
func (b *Board) Buildable(node int, occupied map[int]bool) bool {
	if !b.ValidNode(node) || occupied[node] {
		return false
	}
	for _, n := range b.nodes[node].Neighbors {
		if occupied[n] {
			return false
		}
	}
	return true
}

// BuildableNodes returns every node that passes Buildable, ascending.
func (b *Board) BuildableNodes(occupied map[int]bool) []int {
	var out []int
	for id := range b.nodes {
		if b.Buildable(id, occupied) {
			out = append(out, id)
		}
	}
	return out
}
