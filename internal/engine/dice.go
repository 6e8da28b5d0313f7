package engine

import "math/rand/v2"

// Dice produces a pair of six-sided die results.
type Dice interface {
	Roll() (int, int)
}

type randomDice struct {
	r *rand.Rand
}

// NewDice returns dice backed by a PCG source. A zero seed picks a random
// one; any other seed gives a reproducible sequence.
func NewDice(seed uint64) Dice {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &randomDice{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (d *randomDice) Roll() (int, int) {
	return d.r.IntN(6) + 1, d.r.IntN(6) + 1
}

// FixedDice replays a scripted sequence of rolls and then repeats the last.
type FixedDice struct {
	Rolls [][2]int
	next  int
}

func (d *FixedDice) Roll() (int, int) {
	if len(d.Rolls) == 0 {
		return 1, 1
	}
	i := d.next
	if i >= len(d.Rolls) {
		i = len(d.Rolls) - 1
	} else {
		d.next++
	}
	return d.Rolls[i][0], d.Rolls[i][1]
}
