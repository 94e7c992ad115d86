package grid

import (
	"testing"

	"emberfall/server/internal/geom"
)

func box(x, y, w, h float64) geom.AABB {
	return geom.AABB{X: x, Y: y, Width: w, Height: h}
}

func TestInsertAndQueryReturnsNeighbor(t *testing.T) {
	t.Parallel()

	g := New(640, 640, 64, 1)
	if !g.Insert("a", box(100, 100, 24, 24)) {
		t.Fatal("first insert should succeed")
	}
	if !g.Insert("b", box(130, 110, 24, 24)) {
		t.Fatal("second insert should succeed")
	}

	got := g.Query(box(96, 96, 64, 64))
	if len(got) != 2 {
		t.Fatalf("expected both ids, got %v", got)
	}
}

func TestInsertDuplicateIsRejected(t *testing.T) {
	t.Parallel()

	g := New(640, 640, 64, 1)
	if !g.Insert("a", box(10, 10, 8, 8)) {
		t.Fatal("insert failed")
	}
	if g.Insert("a", box(200, 200, 8, 8)) {
		t.Fatal("duplicate insert must be rejected")
	}
	if g.Len() != 1 {
		t.Fatalf("expected one entry, got %d", g.Len())
	}
}

func TestQueryDeduplicatesSpanningEntries(t *testing.T) {
	t.Parallel()

	g := New(640, 640, 64, 1)
	// Box spanning four cells must still appear once.
	g.Insert("wide", box(60, 60, 80, 80))

	got := g.Query(box(0, 0, 640, 640))
	if len(got) != 1 || got[0] != "wide" {
		t.Fatalf("expected single dedup'd id, got %v", got)
	}
}

func TestRemoveDropsAllCells(t *testing.T) {
	t.Parallel()

	g := New(640, 640, 64, 1)
	g.Insert("wide", box(60, 60, 80, 80))
	g.Remove("wide")

	if g.Contains("wide") {
		t.Fatal("id still indexed after remove")
	}
	if got := g.Query(box(0, 0, 640, 640)); len(got) != 0 {
		t.Fatalf("expected empty query, got %v", got)
	}
}

func TestClearKeepsDimensions(t *testing.T) {
	t.Parallel()

	g := New(1280, 640, 64, 1)
	g.Insert("a", box(10, 10, 8, 8))
	cols, rows := g.Dims()

	g.Clear()

	if g.Len() != 0 {
		t.Fatalf("expected empty grid, got %d entries", g.Len())
	}
	if c, r := g.Dims(); c != cols || r != rows {
		t.Fatalf("dimensions changed on clear: %dx%d vs %dx%d", c, r, cols, rows)
	}
}

// Rebuilding for a wider, flatter world must recompute the column count from
// the new bounds. A stale column count silently strands actors in the
// unreachable remainder of the world, making them invisible to queries.
func TestRebuildRecomputesDimensionsForNewBounds(t *testing.T) {
	t.Parallel()

	g := New(3600, 2700, 64, 1)
	oldCols, _ := g.Dims()

	g.Rebuild(27200, 1200, 64, 2)
	newCols, newRows := g.Dims()
	if newCols <= oldCols {
		t.Fatalf("columns not recomputed: %d -> %d", oldCols, newCols)
	}
	if newCols != 425 || newRows != 19 {
		t.Fatalf("unexpected dims %dx%d for 27200x1200 world", newCols, newRows)
	}

	// An actor deep in the wide world must be discoverable.
	if !g.Insert("runner", box(25000, 600, 24, 24)) {
		t.Fatal("insert failed after rebuild")
	}
	got := g.Query(box(24990, 590, 50, 50))
	if len(got) != 1 || got[0] != "runner" {
		t.Fatalf("actor at far x not found, got %v", got)
	}
	if g.Revision() != 2 {
		t.Fatalf("revision not stamped: %d", g.Revision())
	}
}

func TestQueryOutsideBoundsClampsToBorderCells(t *testing.T) {
	t.Parallel()

	g := New(640, 640, 64, 1)
	g.Insert("edge", box(630, 630, 20, 20))

	// Query entirely beyond the bounds still scans the border cells.
	got := g.Query(box(700, 700, 50, 50))
	if len(got) != 1 || got[0] != "edge" {
		t.Fatalf("expected clamped query to reach border cell, got %v", got)
	}
}

func TestQueryOrderIsRowMajorFirstSeen(t *testing.T) {
	t.Parallel()

	g := New(640, 640, 64, 1)
	g.Insert("bottom", box(10, 200, 8, 8))
	g.Insert("top", box(10, 10, 8, 8))
	g.Insert("middle", box(10, 100, 8, 8))

	got := g.Query(box(0, 0, 640, 640))
	want := []string{"top", "middle", "bottom"}
	if len(got) != len(want) {
		t.Fatalf("expected %d ids, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scan order mismatch at %d: got %v want %v", i, got, want)
		}
	}
}
