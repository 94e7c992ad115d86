// Package collision turns spatial-grid candidate sets into an ordered list
// of collision events. The grid prunes; the resolver decides overlap.
package collision

import (
	"emberfall/server/internal/actor"
	"emberfall/server/internal/geom"
	"emberfall/server/internal/grid"
	"emberfall/server/internal/world"
)

// EventKind discriminates the collision event variants.
type EventKind string

const (
	// EventDamage is a projectile hit on a damageable actor.
	EventDamage EventKind = "damage"
	// EventGeometry is a projectile absorbed by static geometry.
	EventGeometry EventKind = "geometry"
	// EventDisplacement is a body overlap resolved by pushing the subject
	// out along the axis of least penetration.
	EventDisplacement EventKind = "displacement"
)

// Event is a single resolved collision. SubjectID is the projectile or the
// displaced body; ObjectID is the actor hit, empty for geometry events.
type Event struct {
	Kind      EventKind
	SubjectID string
	ObjectID  string
	Damage    int
	Push      geom.Vec2
}

// Resolver produces the deterministic per-tick collision event list.
type Resolver struct{}

// NewResolver constructs a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve walks projectiles in insertion order and emits at most one event
// per projectile, first-candidate-wins in the grid's neighborhood scan
// order. A projectile that hits anything is marked consumed the same tick.
// Player-vs-actor overlaps are emitted afterwards as displacement events;
// they never enter the damage path.
func (r *Resolver) Resolve(reg *actor.Registry, g *grid.Grid, wctx *world.Context) []Event {
	if r == nil || reg == nil || g == nil {
		return nil
	}

	var events []Event

	reg.ForEachProjectile(func(p *actor.Projectile) {
		if p.Consumed {
			return
		}
		box := p.Bounds()
		for _, id := range g.Query(box) {
			if id == p.OwnerID || id == p.ID {
				continue
			}
			target, ok := reg.Actor(id)
			if !ok || !target.Damageable() {
				continue
			}
			if !box.Overlaps(target.HitBounds(), 0) {
				continue
			}
			events = append(events, Event{
				Kind:      EventDamage,
				SubjectID: p.ID,
				ObjectID:  target.ID,
				Damage:    p.Damage,
			})
			p.Consumed = true
			return
		}
		if wctx != nil && wctx.AnyStaticOverlap(box) {
			events = append(events, Event{Kind: EventGeometry, SubjectID: p.ID})
			p.Consumed = true
		}
	})

	events = append(events, r.resolveDisplacements(reg, g)...)
	return events
}

// resolveDisplacements pushes the player out of overlapping actor bodies.
// Displacement uses the full footprint, not the inset hit-volume; the two
// boxes are deliberately independent.
func (r *Resolver) resolveDisplacements(reg *actor.Registry, g *grid.Grid) []Event {
	var events []Event
	reg.ForEachActor(func(player *actor.Actor) {
		if player.Kind != actor.KindPlayer || !player.Collidable() {
			return
		}
		box := player.Bounds()
		for _, id := range g.Query(box) {
			if id == player.ID {
				continue
			}
			other, ok := reg.Actor(id)
			if !ok || !other.Collidable() {
				continue
			}
			push := geom.Penetration(box, other.Bounds())
			if push == (geom.Vec2{}) {
				continue
			}
			events = append(events, Event{
				Kind:      EventDisplacement,
				SubjectID: player.ID,
				ObjectID:  other.ID,
				Push:      push,
			})
		}
	})
	return events
}
