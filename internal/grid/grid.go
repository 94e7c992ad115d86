// Package grid implements the uniform spatial hash used to prune collision
// candidates. A grid instance is only valid for the world bounds it was last
// rebuilt with; mode transitions must call Rebuild before any query runs.
package grid

import (
	"math"

	"emberfall/server/internal/geom"
)

// DefaultCellSize keeps the common actor footprint within a 2x2 cell span.
const DefaultCellSize = 64.0

// Grid is a uniform spatial hash over AABBs. Not safe for concurrent use;
// the simulation loop owns it exclusively.
type Grid struct {
	cellSize    float64
	invCellSize float64
	cols        int
	rows        int
	revision    uint64

	cells   [][]string
	entries map[string][]int
}

// New constructs a grid sized for the provided bounds. Width and height are
// world units; cellSize falls back to DefaultCellSize when non-positive.
func New(width, height, cellSize float64, revision uint64) *Grid {
	g := &Grid{entries: make(map[string][]int)}
	g.Rebuild(width, height, cellSize, revision)
	return g
}

// Rebuild clears the grid and recomputes its dimensions from the provided
// bounds. Column and row counts are always derived from the current bounds,
// never inherited from a previous world, so actors positioned anywhere inside
// the new world hash to a live cell.
func (g *Grid) Rebuild(width, height, cellSize float64, revision uint64) {
	if g == nil {
		return
	}
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	if width < cellSize {
		width = cellSize
	}
	if height < cellSize {
		height = cellSize
	}
	g.cellSize = cellSize
	g.invCellSize = 1.0 / cellSize
	g.cols = int(math.Ceil(width * g.invCellSize))
	g.rows = int(math.Ceil(height * g.invCellSize))
	g.revision = revision
	g.cells = make([][]string, g.cols*g.rows)
	g.entries = make(map[string][]int, len(g.entries))
}

// Clear empties every cell but keeps the current dimensions and allocations.
func (g *Grid) Clear() {
	if g == nil {
		return
	}
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
	clear(g.entries)
}

// Insert indexes id under every cell its box overlaps. Re-inserting an id
// already present is a no-op returning false, signalling a registry bug
// upstream.
func (g *Grid) Insert(id string, box geom.AABB) bool {
	if g == nil || id == "" {
		return false
	}
	if _, exists := g.entries[id]; exists {
		return false
	}
	minCol, maxCol, minRow, maxRow := g.cellRange(box)
	indices := make([]int, 0, (maxCol-minCol+1)*(maxRow-minRow+1))
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			idx := row*g.cols + col
			g.cells[idx] = append(g.cells[idx], id)
			indices = append(indices, idx)
		}
	}
	g.entries[id] = indices
	return true
}

// Remove drops id from every cell it was indexed under.
func (g *Grid) Remove(id string) {
	if g == nil || id == "" {
		return
	}
	indices, ok := g.entries[id]
	if !ok {
		return
	}
	for _, idx := range indices {
		bucket := g.cells[idx]
		for i := range bucket {
			if bucket[i] != id {
				continue
			}
			bucket[i] = bucket[len(bucket)-1]
			g.cells[idx] = bucket[:len(bucket)-1]
			break
		}
	}
	delete(g.entries, id)
}

// Query returns the ids whose cells overlap the query box, deduplicated and
// in row-major cell scan order. The grid prunes candidates only; callers must
// still run an exact overlap test.
func (g *Grid) Query(box geom.AABB) []string {
	if g == nil {
		return nil
	}
	minCol, maxCol, minRow, maxRow := g.cellRange(box)
	var result []string
	var seen map[string]struct{}
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			for _, id := range g.cells[row*g.cols+col] {
				if seen == nil {
					seen = make(map[string]struct{}, 8)
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				result = append(result, id)
			}
		}
	}
	return result
}

// Contains reports whether id is currently indexed.
func (g *Grid) Contains(id string) bool {
	if g == nil {
		return false
	}
	_, ok := g.entries[id]
	return ok
}

// Len reports the number of distinct ids indexed.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.entries)
}

// Revision reports the world context revision the grid was last rebuilt for.
func (g *Grid) Revision() uint64 {
	if g == nil {
		return 0
	}
	return g.revision
}

// CellSize reports the active cell size in world units.
func (g *Grid) CellSize() float64 {
	if g == nil {
		return 0
	}
	return g.cellSize
}

// Dims reports the current column and row counts.
func (g *Grid) Dims() (int, int) {
	if g == nil {
		return 0, 0
	}
	return g.cols, g.rows
}

// cellRange maps a box to the inclusive cell span it covers, clamped to the
// grid. Clamping both ends keeps min <= max for any finite box, so a query
// beyond the bounds still scans the border cells instead of an empty range.
func (g *Grid) cellRange(box geom.AABB) (minCol, maxCol, minRow, maxRow int) {
	minCol = g.clampCol(int(math.Floor(box.X * g.invCellSize)))
	maxCol = g.clampCol(int(math.Floor(box.MaxX() * g.invCellSize)))
	minRow = g.clampRow(int(math.Floor(box.Y * g.invCellSize)))
	maxRow = g.clampRow(int(math.Floor(box.MaxY() * g.invCellSize)))
	return minCol, maxCol, minRow, maxRow
}

func (g *Grid) clampCol(col int) int {
	if col < 0 {
		return 0
	}
	if col >= g.cols {
		return g.cols - 1
	}
	return col
}

func (g *Grid) clampRow(row int) int {
	if row < 0 {
		return 0
	}
	if row >= g.rows {
		return g.rows - 1
	}
	return row
}
