/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package grid holds the shared drawing canvas: a fixed square of
// colour indices into a small palette, where 0 is the background.
package grid

const (
	DefaultSize = 20
	Colors      = 4
)

// Cell is a single painted coordinate, used for diffs.
type Cell struct {
	X     int   `json:"x"`
	Y     int   `json:"y"`
	Color uint8 `json:"color"`
}

type Grid struct {
	size  int
	cells []uint8
}

func New(size int) *Grid {
	if size < 1 {
		size = DefaultSize
	}

	return &Grid{
		size:  size,
		cells: make([]uint8, size*size),
	}
}

func (g *Grid) Size() int {
	return g.size
}

func (g *Grid) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.size && y < g.size
}

// Paint sets the colour of one cell. Coordinates or colours outside the
// grid are ignored, since they usually come from imprecise touch mapping.
// It reports whether the cell actually changed.
func (g *Grid) Paint(x, y int, color uint8) bool {
	if !g.inBounds(x, y) || color >= Colors {
		return false
	}

	i := y*g.size + x
	if g.cells[i] == color {
		return false
	}

	g.cells[i] = color

	return true
}

func (g *Grid) At(x, y int) uint8 {
	if !g.inBounds(x, y) {
		return 0
	}

	return g.cells[y*g.size+x]
}

func (g *Grid) Clear() {
	clear(g.cells)
}

func (g *Grid) Empty() bool {
	for _, c := range g.cells {
		if c != 0 {
			return false
		}
	}

	return true
}

// Snapshot returns a copy of the grid as rows, safe to hand to readers.
func (g *Grid) Snapshot() [][]uint8 {
	rows := make([][]uint8, g.size)
	for y := range rows {
		rows[y] = make([]uint8, g.size)
		copy(rows[y], g.cells[y*g.size:(y+1)*g.size])
	}

	return rows
}
