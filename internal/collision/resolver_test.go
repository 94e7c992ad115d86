package collision

import (
	"fmt"
	"testing"

	"emberfall/server/internal/actor"
	"emberfall/server/internal/geom"
	"emberfall/server/internal/grid"
	"emberfall/server/internal/world"
)

func buildIndex(reg *actor.Registry, width, height float64) *grid.Grid {
	g := grid.New(width, height, grid.DefaultCellSize, 1)
	reg.ForEachActor(func(a *actor.Actor) {
		if a.Collidable() {
			g.Insert(a.ID, a.Bounds())
		}
	})
	reg.ForEachProjectile(func(p *actor.Projectile) {
		g.Insert(p.ID, p.Bounds())
	})
	return g
}

func TestProjectileHitsDamageableActor(t *testing.T) {
	t.Parallel()

	reg := actor.NewRegistry()
	target := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{X: 200, Y: 200})
	reg.AddActor(target)
	reg.AddProjectile(&actor.Projectile{
		ID:           "proj-1",
		OwnerID:      "player-1",
		Position:     geom.Vec2{X: 200, Y: 200},
		Damage:       1,
		TTLRemaining: 1,
	})
	g := buildIndex(reg, 640, 640)

	events := NewResolver().Resolve(reg, g, nil)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %v", events)
	}
	ev := events[0]
	if ev.Kind != EventDamage || ev.SubjectID != "proj-1" || ev.ObjectID != "hostile-1" || ev.Damage != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}

	p, _ := reg.Projectile("proj-1")
	if !p.Consumed {
		t.Fatal("projectile not consumed on hit")
	}
}

func TestProjectileNeverHitsItsOwner(t *testing.T) {
	t.Parallel()

	reg := actor.NewRegistry()
	owner := actor.NewActor("player-1", actor.KindPlayer, geom.Vec2{X: 100, Y: 100})
	reg.AddActor(owner)
	reg.AddProjectile(&actor.Projectile{
		ID:           "proj-1",
		OwnerID:      "player-1",
		Position:     geom.Vec2{X: 100, Y: 100},
		Damage:       1,
		TTLRemaining: 1,
	})
	g := buildIndex(reg, 640, 640)

	events := NewResolver().Resolve(reg, g, nil)
	for _, ev := range events {
		if ev.Kind == EventDamage {
			t.Fatalf("projectile damaged its owner: %+v", ev)
		}
	}
}

func TestProtectedActorAbsorbsNoDamage(t *testing.T) {
	t.Parallel()

	reg := actor.NewRegistry()
	protected := actor.NewActor("patrol-1", actor.KindNeutralPatrol, geom.Vec2{X: 300, Y: 300})
	protected.Protected = true
	reg.AddActor(protected)
	startHealth := protected.Health

	// Five overlapping projectiles, none may produce a damage event.
	for i := 0; i < 5; i++ {
		reg.AddProjectile(&actor.Projectile{
			ID:           fmt.Sprintf("proj-%d", i),
			OwnerID:      "player-1",
			Position:     geom.Vec2{X: 300, Y: 300},
			Damage:       1,
			TTLRemaining: 1,
		})
	}
	g := buildIndex(reg, 640, 640)

	events := NewResolver().Resolve(reg, g, nil)
	for _, ev := range events {
		if ev.Kind == EventDamage {
			t.Fatalf("protected actor received damage event %+v", ev)
		}
	}
	if protected.Health != startHealth {
		t.Fatalf("health changed: %d -> %d", startHealth, protected.Health)
	}
	if protected.State != actor.StateActive {
		t.Fatalf("state changed: %s", protected.State)
	}
}

func TestProjectileEmitsAtMostOneEvent(t *testing.T) {
	t.Parallel()

	reg := actor.NewRegistry()
	// Two damageable actors stacked on the same spot; the projectile must
	// resolve against exactly one of them.
	reg.AddActor(actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{X: 200, Y: 200}))
	reg.AddActor(actor.NewActor("hostile-2", actor.KindHostileStandard, geom.Vec2{X: 205, Y: 200}))
	reg.AddProjectile(&actor.Projectile{
		ID:           "proj-1",
		OwnerID:      "player-1",
		Position:     geom.Vec2{X: 202, Y: 200},
		Damage:       1,
		TTLRemaining: 1,
	})
	g := buildIndex(reg, 640, 640)

	events := NewResolver().Resolve(reg, g, nil)
	damage := 0
	for _, ev := range events {
		if ev.Kind == EventDamage {
			damage++
		}
	}
	if damage != 1 {
		t.Fatalf("expected exactly one damage event, got %d (%v)", damage, events)
	}
}

func TestProjectileAbsorbedByStaticGeometry(t *testing.T) {
	t.Parallel()

	wctx, _ := world.NewContext(world.Config{
		Width:  640,
		Height: 640,
		Static: []geom.AABB{{X: 190, Y: 190, Width: 40, Height: 40}},
	})
	reg := actor.NewRegistry()
	reg.AddProjectile(&actor.Projectile{
		ID:           "proj-1",
		OwnerID:      "player-1",
		Position:     geom.Vec2{X: 200, Y: 200},
		Damage:       1,
		TTLRemaining: 1,
	})
	g := buildIndex(reg, 640, 640)

	events := NewResolver().Resolve(reg, g, wctx)
	if len(events) != 1 || events[0].Kind != EventGeometry {
		t.Fatalf("expected geometry event, got %v", events)
	}
	p, _ := reg.Projectile("proj-1")
	if !p.Consumed {
		t.Fatal("projectile not consumed by geometry")
	}
}

func TestDisplacementUsesFullFootprint(t *testing.T) {
	t.Parallel()

	reg := actor.NewRegistry()
	player := actor.NewActor("player-1", actor.KindPlayer, geom.Vec2{X: 100, Y: 100})
	// Offset so the full footprints overlap but the inset hit volumes do not.
	other := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{X: 126, Y: 100})
	reg.AddActor(player)
	reg.AddActor(other)
	g := buildIndex(reg, 640, 640)

	if player.Bounds().Overlaps(other.HitBounds(), 0) {
		t.Fatal("test setup: hit volumes should be disjoint at this offset")
	}

	events := NewResolver().Resolve(reg, g, nil)
	found := false
	for _, ev := range events {
		if ev.Kind != EventDisplacement {
			continue
		}
		found = true
		if ev.SubjectID != "player-1" || ev.ObjectID != "hostile-1" {
			t.Fatalf("unexpected displacement pair %+v", ev)
		}
		if ev.Push.X >= 0 {
			t.Fatalf("expected push away from hostile (negative x), got %+v", ev.Push)
		}
	}
	if !found {
		t.Fatal("no displacement event for overlapping footprints")
	}
}

func TestLargeSceneBoundsEventCount(t *testing.T) {
	t.Parallel()

	wctx, _ := world.NewContext(world.Config{Width: 3600, Height: 2700})
	reg := actor.NewRegistry()

	// 500 actors spread on a coarse lattice, far from the projectile column.
	for i := 0; i < 500; i++ {
		x := float64(100 + (i%25)*140)
		y := float64(300 + (i/25)*120)
		reg.AddActor(actor.NewActor(fmt.Sprintf("hostile-%d", i), actor.KindHostileStandard, geom.Vec2{X: x, Y: y}))
	}
	// 10 projectiles, each sitting on one distinct actor.
	for i := 0; i < 10; i++ {
		x := float64(100 + (i%25)*140)
		reg.AddProjectile(&actor.Projectile{
			ID:           fmt.Sprintf("proj-%d", i),
			OwnerID:      "player-1",
			Position:     geom.Vec2{X: x, Y: 300},
			Damage:       1,
			TTLRemaining: 1,
		})
	}
	g := buildIndex(reg, wctx.Width(), wctx.Height())

	events := NewResolver().Resolve(reg, g, wctx)
	damage := 0
	for _, ev := range events {
		if ev.Kind == EventDamage {
			damage++
		}
	}
	if damage != 10 {
		t.Fatalf("expected 10 damage events (one per projectile), got %d", damage)
	}
	if len(events) > 10 {
		t.Fatalf("event list larger than touching pairs: %d", len(events))
	}
}
