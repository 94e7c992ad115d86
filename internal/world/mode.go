package world

import (
	"context"
	"fmt"
	"math/rand"

	"emberfall/server/internal/actor"
	"emberfall/server/internal/geom"
	"emberfall/server/internal/grid"
	"emberfall/server/logging"
	"emberfall/server/logging/lifecycle"
)

// Controller orchestrates a full world context swap. The sequence is atomic
// from the simulation loop's perspective: the loop invokes Transition between
// ticks and no collision query runs until it returns.
type Controller struct {
	publisher logging.Publisher
}

// NewController constructs a mode controller publishing transition events.
func NewController(publisher logging.Publisher) *Controller {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Controller{publisher: publisher}
}

// TransitionResult reports what a context swap changed.
type TransitionResult struct {
	RemovedActors      []string
	RemovedProjectiles []string
	Retained           int
	Spawned            int
}

// Transition swaps the simulation onto a new context:
//
//  1. persistent actors are retained, everything transient is discarded
//  2. all projectiles are dropped
//  3. the grid is rebuilt with dimensions derived from the new bounds
//  4. persistent actors are repositioned into valid locations
//  5. the new context's population is spawned
//  6. the grid is populated with every collidable actor
//
// The grid rebuild in step 3 must never reuse dimensions from the previous
// context; a grid sized for a smaller world silently fails to index actors
// positioned beyond the old bounds.
func (c *Controller) Transition(ctx context.Context, tick uint64, prev, next *Context, reg *actor.Registry, g *grid.Grid, persistent func(*actor.Actor) bool) (TransitionResult, error) {
	result := TransitionResult{}
	if next == nil || reg == nil || g == nil {
		return result, fmt.Errorf("world: transition requires context, registry, and grid")
	}
	if persistent == nil {
		persistent = func(a *actor.Actor) bool { return a != nil && a.Kind == actor.KindPlayer }
	}

	result.RemovedActors = reg.RetainActors(persistent)
	result.RemovedProjectiles = reg.ClearProjectiles()

	g.Rebuild(next.Width(), next.Height(), next.CellSize(), next.Revision())

	reg.ForEachActor(func(a *actor.Actor) {
		result.Retained++
		if a.Kind == actor.KindPlayer {
			a.Position = next.PlayerSpawn()
		}
		a.Position, _ = next.ClampIntoBounds(a.Position, a.HalfExtent)
		a.Velocity = geom.Vec2{}
		a.Grounded = false
	})

	rng := rand.New(rand.NewSource(SeedSource(next.Seed()) ^ int64(tick)))
	for _, spawn := range next.Spawns() {
		if placed, _ := SpawnActor(ctx, c.publisher, tick, next, reg, spawn, rng); placed != nil {
			result.Spawned++
		}
	}

	reg.ForEachActor(func(a *actor.Actor) {
		if a.Collidable() {
			g.Insert(a.ID, a.Bounds())
		}
	})
	reg.ForEachProjectile(func(p *actor.Projectile) {
		g.Insert(p.ID, p.Bounds())
	})

	if c.publisher != nil {
		fromKind := ""
		if prev != nil {
			fromKind = string(prev.Kind())
		}
		lifecycle.ModeTransition(ctx, c.publisher, tick, lifecycle.ModeTransitionPayload{
			FromKind: fromKind,
			ToKind:   string(next.Kind()),
			Width:    next.Width(),
			Height:   next.Height(),
			Retained: result.Retained,
		}, nil)
	}
	return result, nil
}
