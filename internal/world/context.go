// Package world defines the immutable per-session world context (bounds,
// static geometry, physics parameters) and the controller that swaps between
// contexts at runtime.
package world

import (
	"fmt"
	"sync/atomic"

	"emberfall/server/internal/actor"
	"emberfall/server/internal/geom"
)

// Kind selects between the two structurally different physics contexts.
type Kind string

const (
	KindTopDown      Kind = "top-down"
	KindSideScroller Kind = "side-scroller"
)

const (
	DefaultWidth    = 3600.0
	DefaultHeight   = 2700.0
	DefaultCellSize = 64.0
	DefaultGravity  = 1400.0
	DefaultSeed     = "emberfall"
)

// Spawn describes one actor placement in a context's initial population.
// Jitter is the per-axis placement radius drawn from the world's seeded RNG;
// zero pins the actor to the exact position.
type Spawn struct {
	Kind      actor.Kind `json:"kind"`
	Position  geom.Vec2  `json:"position"`
	Protected bool       `json:"protected,omitempty"`
	Jitter    float64    `json:"jitter,omitempty"`
}

// Config captures the world descriptor consumed from the world loader.
type Config struct {
	Kind        Kind        `json:"kind"`
	Width       float64     `json:"width"`
	Height      float64     `json:"height"`
	CellSize    float64     `json:"cellSize"`
	Gravity     float64     `json:"gravity"`
	Static      []geom.AABB `json:"static,omitempty"`
	Spawns      []Spawn     `json:"spawns,omitempty"`
	PlayerSpawn geom.Vec2   `json:"playerSpawn"`
	Seed        string      `json:"seed,omitempty"`
}

func (cfg Config) normalized() Config {
	normalized := cfg
	if normalized.Kind != KindSideScroller {
		normalized.Kind = KindTopDown
	}
	if normalized.Width <= 0 {
		normalized.Width = DefaultWidth
	}
	if normalized.Height <= 0 {
		normalized.Height = DefaultHeight
	}
	if normalized.CellSize <= 0 {
		normalized.CellSize = DefaultCellSize
	}
	switch normalized.Kind {
	case KindTopDown:
		normalized.Gravity = 0
	case KindSideScroller:
		if normalized.Gravity <= 0 {
			normalized.Gravity = DefaultGravity
		}
	}
	if normalized.Seed == "" {
		normalized.Seed = DefaultSeed
	}
	return normalized
}

var nextRevision atomic.Uint64

// Context is an immutable bundle of static geometry, bounds, and physics
// parameters for one mode of play. Every constructed context carries a
// distinct revision, which the spatial grid records at rebuild time so stale
// queries are detectable.
type Context struct {
	cfg      Config
	revision uint64
}

// NewContext validates and normalizes a config into an immutable context.
func NewContext(cfg Config) (*Context, error) {
	normalized := cfg.normalized()
	for _, box := range normalized.Static {
		if box.Width < 0 || box.Height < 0 {
			return nil, fmt.Errorf("world: static geometry with negative extent %+v", box)
		}
	}
	return &Context{cfg: normalized, revision: nextRevision.Add(1)}, nil
}

func (c *Context) Kind() Kind {
	if c == nil {
		return KindTopDown
	}
	return c.cfg.Kind
}

func (c *Context) Width() float64 {
	if c == nil {
		return 0
	}
	return c.cfg.Width
}

func (c *Context) Height() float64 {
	if c == nil {
		return 0
	}
	return c.cfg.Height
}

func (c *Context) CellSize() float64 {
	if c == nil {
		return DefaultCellSize
	}
	return c.cfg.CellSize
}

func (c *Context) Gravity() float64 {
	if c == nil {
		return 0
	}
	return c.cfg.Gravity
}

func (c *Context) Seed() string {
	if c == nil {
		return DefaultSeed
	}
	return c.cfg.Seed
}

// Static returns the immutable static geometry list. Callers must not mutate
// the returned slice.
func (c *Context) Static() []geom.AABB {
	if c == nil {
		return nil
	}
	return c.cfg.Static
}

// Spawns returns the initial actor population for this context.
func (c *Context) Spawns() []Spawn {
	if c == nil {
		return nil
	}
	return c.cfg.Spawns
}

func (c *Context) PlayerSpawn() geom.Vec2 {
	if c == nil {
		return geom.Vec2{}
	}
	return c.cfg.PlayerSpawn
}

// Revision identifies this context instance for grid staleness checks.
func (c *Context) Revision() uint64 {
	if c == nil {
		return 0
	}
	return c.revision
}

// ClampIntoBounds forces a center position with the given half extent inside
// the context bounds, reporting whether clamping was applied.
func (c *Context) ClampIntoBounds(pos geom.Vec2, half geom.Vec2) (geom.Vec2, bool) {
	if c == nil {
		return pos, false
	}
	clamped := geom.Vec2{
		X: geom.Clamp(pos.X, half.X, c.cfg.Width-half.X),
		Y: geom.Clamp(pos.Y, half.Y, c.cfg.Height-half.Y),
	}
	return clamped, clamped != pos
}

// AnyStaticOverlap reports whether the box overlaps any static geometry.
func (c *Context) AnyStaticOverlap(box geom.AABB) bool {
	if c == nil {
		return false
	}
	for _, obstacle := range c.cfg.Static {
		if box.Overlaps(obstacle, 0) {
			return true
		}
	}
	return false
}
