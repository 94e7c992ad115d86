package sim

import (
	"context"

	"emberfall/server/internal/actor"
	"emberfall/server/internal/collision"
	"emberfall/server/internal/geom"
	"emberfall/server/internal/journal"
	"emberfall/server/internal/world"
	"emberfall/server/logging"
)

const jumpSpeed = 520.0

// Step advances the simulation one fixed timestep: apply any staged mode
// transition, reconcile remediation confirmations, advance timers, integrate
// motion, rebuild the spatial index, resolve collisions, run lifecycle
// transitions, and compact removed entities.
func (c *Core) Step() {
	if c == nil {
		return
	}
	c.tick++
	ctx := context.Background()

	c.applyPendingTransition(ctx)
	c.pipeline.DrainConfirmations(ctx, c.tick, c.reg)
	c.pipeline.TickTimers(c.reg, c.dt)
	c.integrate()
	c.reindex()

	events := c.resolver.Resolve(c.reg, c.grid, c.wctx)
	c.applyDisplacements(events)
	c.pipeline.Apply(ctx, c.tick, c.reg, c.wctx, events)

	c.compact()
	c.emitPatches()
	c.verifyParity()
}

func (c *Core) applyPendingTransition(ctx context.Context) {
	c.pendingMu.Lock()
	next := c.pendingCtx
	c.pendingCtx = nil
	c.pendingMu.Unlock()
	if next == nil {
		return
	}

	prev := c.wctx
	result, err := c.controller.Transition(ctx, c.tick, prev, next, c.reg, c.grid, nil)
	if err != nil {
		// Degrade to the last known good world rather than entering an
		// un-queryable state.
		c.publishSystem("world.transition_failed", logging.SeverityError, map[string]any{"error": err.Error()})
		return
	}
	c.wctx = next
	c.addMetric(metricModeTransitions, 1)
	for _, id := range result.RemovedActors {
		c.journal.Append(journal.Patch{Kind: journal.PatchActorRemoved, EntityID: id, Payload: journal.RemovedPayload{Reason: "mode_transition"}})
		delete(c.prevVitals, id)
	}
	for _, id := range result.RemovedProjectiles {
		c.journal.Append(journal.Patch{Kind: journal.PatchProjectileRemoved, EntityID: id})
	}
	c.captureVitals()
}

func (c *Core) applyMove(player *actor.Actor, move MoveCommand) {
	params := actor.ParamsFor(player.Kind)
	switch c.wctx.Kind() {
	case world.KindSideScroller:
		player.Velocity.X = geom.Clamp(move.DX, -1, 1) * params.MoveSpeed
		if move.DY < 0 && player.Grounded {
			player.Velocity.Y = -jumpSpeed
			player.Grounded = false
		}
	default:
		intent := geom.Vec2{X: move.DX, Y: move.DY}.Normalized()
		player.Velocity = intent.Scale(params.MoveSpeed)
	}
}

func (c *Core) applyFire(player *actor.Actor, fire FireCommand) {
	dir := geom.Vec2{X: fire.DirX, Y: fire.DirY}.Normalized()
	if dir == (geom.Vec2{}) {
		dir = geom.Vec2{X: 1}
	}
	projectile := &actor.Projectile{
		ID:           c.reg.NextProjectileID(),
		OwnerID:      player.ID,
		Position:     player.Position,
		Velocity:     dir.Scale(projectileSpeed),
		Damage:       projectileDamage,
		TTLRemaining: projectileTTL,
	}
	if err := c.reg.AddProjectile(projectile); err != nil {
		return
	}
	c.addMetric(metricProjectilesSpawned, 1)
	c.journal.Append(journal.Patch{
		Kind:     journal.PatchProjectileSpawned,
		EntityID: projectile.ID,
		Payload:  journal.PositionPayload{X: projectile.Position.X, Y: projectile.Position.Y},
	})
}

func (c *Core) integrate() {
	player, _ := c.reg.Actor(c.playerID)

	c.reg.ForEachActor(func(a *actor.Actor) {
		if a.ID != c.playerID {
			c.steer(a, player)
		}
		switch c.wctx.Kind() {
		case world.KindSideScroller:
			c.integrateSideScroller(a)
		default:
			c.integrateTopDown(a)
		}
	})

	c.reg.ForEachProjectile(func(p *actor.Projectile) {
		if p.Consumed {
			return
		}
		p.Position = p.Position.Add(p.Velocity.Scale(c.dt))
		p.TTLRemaining -= c.dt
		if p.Position.X < 0 || p.Position.X > c.wctx.Width() || p.Position.Y < 0 || p.Position.Y > c.wctx.Height() {
			p.Consumed = true
		}
	})
}

// steer applies the kind's behavior to a non-player actor.
func (c *Core) steer(a *actor.Actor, player *actor.Actor) {
	if a.State == actor.StateEliminating {
		a.Velocity = geom.Vec2{}
		return
	}
	params := actor.ParamsFor(a.Kind)
	switch params.BehaviorID {
	case "chase", "swoop", "boss":
		if player == nil || !player.Collidable() {
			a.Velocity = geom.Vec2{}
			return
		}
		toPlayer := geom.Vec2{X: player.Position.X - a.Position.X, Y: player.Position.Y - a.Position.Y}
		if c.wctx.Kind() == world.KindSideScroller && params.BehaviorID != "swoop" {
			toPlayer.Y = 0
		}
		a.Velocity = toPlayer.Normalized().Scale(params.MoveSpeed)
	case "patrol":
		if a.Velocity == (geom.Vec2{}) {
			a.Velocity = geom.Vec2{X: params.MoveSpeed}
		}
		half := a.HalfExtent
		if a.Position.X-half.X <= 0 && a.Velocity.X < 0 {
			a.Velocity.X = -a.Velocity.X
		}
		if a.Position.X+half.X >= c.wctx.Width() && a.Velocity.X > 0 {
			a.Velocity.X = -a.Velocity.X
		}
	}
}

func (c *Core) integrateTopDown(a *actor.Actor) {
	a.Position = a.Position.Add(a.Velocity.Scale(c.dt))
	a.Position, _ = c.wctx.ClampIntoBounds(a.Position, a.HalfExtent)
	c.resolveStaticOverlap(a)
}

func (c *Core) integrateSideScroller(a *actor.Actor) {
	a.Velocity.Y += c.wctx.Gravity() * c.dt
	a.Position = a.Position.Add(a.Velocity.Scale(c.dt))
	a.Grounded = false
	c.landOnPlatforms(a)
	a.Position, _ = c.wctx.ClampIntoBounds(a.Position, a.HalfExtent)
	if a.Position.Y+a.HalfExtent.Y >= c.wctx.Height() {
		a.Velocity.Y = 0
		a.Grounded = true
	}
}

// landOnPlatforms snaps a falling actor onto the first platform its feet
// cross, zeroing vertical velocity.
func (c *Core) landOnPlatforms(a *actor.Actor) {
	if a.Velocity.Y < 0 {
		return
	}
	box := a.Bounds()
	for _, platform := range c.wctx.Static() {
		if !box.Overlaps(platform, 0) {
			continue
		}
		feet := box.MaxY()
		if feet-platform.Y > a.HalfExtent.Y {
			continue
		}
		a.Position.Y = platform.Y - a.HalfExtent.Y
		a.Velocity.Y = 0
		a.Grounded = true
		return
	}
}

// resolveStaticOverlap pushes an actor out of overlapping tiles along the
// axis of least penetration.
func (c *Core) resolveStaticOverlap(a *actor.Actor) {
	box := a.Bounds()
	for _, obstacle := range c.wctx.Static() {
		push := geom.Penetration(box, obstacle)
		if push == (geom.Vec2{}) {
			continue
		}
		a.Position = a.Position.Add(push)
		box = a.Bounds()
	}
}

// reindex rebuilds the per-tick spatial index. A grid whose revision does
// not match the active context indicates a query raced a transition; the
// engine logs it loudly and forces a rebuild rather than continuing with a
// known-bad index.
func (c *Core) reindex() {
	if c.grid.Revision() != c.wctx.Revision() {
		c.addMetric(metricRevisionMismatch, 1)
		c.publishSystem("world.context_mismatch", logging.SeverityError, map[string]any{
			"gridRevision":  c.grid.Revision(),
			"worldRevision": c.wctx.Revision(),
		})
		c.grid.Rebuild(c.wctx.Width(), c.wctx.Height(), c.wctx.CellSize(), c.wctx.Revision())
	} else if c.forceRebuild {
		c.grid.Rebuild(c.wctx.Width(), c.wctx.Height(), c.wctx.CellSize(), c.wctx.Revision())
		c.forceRebuild = false
	} else {
		c.grid.Clear()
	}

	c.reg.ForEachActor(func(a *actor.Actor) {
		if !a.Collidable() {
			return
		}
		if !c.grid.Insert(a.ID, a.Bounds()) {
			c.addMetric(metricDuplicateInsert, 1)
			if c.deps.Logger != nil {
				c.deps.Logger.Printf("[sim] duplicate grid insert actor=%s", a.ID)
			}
		}
	})
	c.reg.ForEachProjectile(func(p *actor.Projectile) {
		if p.Consumed {
			return
		}
		if !c.grid.Insert(p.ID, p.Bounds()) {
			c.addMetric(metricDuplicateInsert, 1)
		}
	})
}

func (c *Core) applyDisplacements(events []collision.Event) {
	for _, event := range events {
		if event.Kind != collision.EventDisplacement {
			continue
		}
		subject, ok := c.reg.Actor(event.SubjectID)
		if !ok {
			continue
		}
		subject.Position = subject.Position.Add(event.Push)
		subject.Position, _ = c.wctx.ClampIntoBounds(subject.Position, subject.HalfExtent)
	}
}

func (c *Core) compact() {
	for _, id := range c.reg.CompactEliminated() {
		c.grid.Remove(id)
		c.journal.Append(journal.Patch{Kind: journal.PatchActorRemoved, EntityID: id, Payload: journal.RemovedPayload{Reason: "eliminated"}})
		c.publishRemoved(id, logging.EntityKindHostile, "eliminated")
		delete(c.prevVitals, id)
	}
	for _, id := range c.reg.CompactProjectiles() {
		c.grid.Remove(id)
		c.journal.Append(journal.Patch{Kind: journal.PatchProjectileRemoved, EntityID: id})
	}
}

func (c *Core) emitPatches() {
	c.reg.ForEachActor(func(a *actor.Actor) {
		c.journal.Append(journal.Patch{
			Kind:     journal.PatchActorPos,
			EntityID: a.ID,
			Payload:  journal.PositionPayload{X: a.Position.X, Y: a.Position.Y},
		})
		prev, known := c.prevVitals[a.ID]
		if !known || prev.health != a.Health {
			c.journal.Append(journal.Patch{
				Kind:     journal.PatchActorHealth,
				EntityID: a.ID,
				Payload:  journal.HealthPayload{Health: a.Health, MaxHealth: a.MaxHealth},
			})
		}
		if !known || prev.state != a.State {
			c.journal.Append(journal.Patch{
				Kind:     journal.PatchActorState,
				EntityID: a.ID,
				Payload:  journal.StatePayload{State: string(a.State)},
			})
		}
		c.prevVitals[a.ID] = vitals{health: a.Health, state: a.State}
	})
	c.reg.ForEachProjectile(func(p *actor.Projectile) {
		c.journal.Append(journal.Patch{
			Kind:     journal.PatchProjectilePos,
			EntityID: p.ID,
			Payload:  journal.PositionPayload{X: p.Position.X, Y: p.Position.Y},
		})
	})
}

// verifyParity cross-checks the registry against the grid at the tick
// boundary. Divergence is a defect: it is logged loudly and the grid is
// rebuilt from scratch next tick.
func (c *Core) verifyParity() {
	expected := c.reg.LiveCount() + c.reg.ProjectileCount()
	if expected == c.grid.Len() {
		return
	}
	c.addMetric(metricGridDivergence, 1)
	c.publishSystem("sim.grid_divergence", logging.SeverityError, map[string]any{
		"registry": expected,
		"grid":     c.grid.Len(),
	})
	c.forceRebuild = true
}

func (c *Core) captureVitals() {
	clear(c.prevVitals)
	c.reg.ForEachActor(func(a *actor.Actor) {
		c.prevVitals[a.ID] = vitals{health: a.Health, state: a.State}
	})
}
