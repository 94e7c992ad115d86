package world

import (
	"context"
	"math/rand"

	"emberfall/server/internal/actor"
	"emberfall/server/logging"
	"emberfall/server/logging/lifecycle"
)

// PopulateResult reports the outcome of seeding a registry from a context's
// spawn list.
type PopulateResult struct {
	PlayerID string
	Spawned  int
	Clamped  int
}

// Populate seeds the registry with the player and the context's initial
// actor population. Spawn placement draws from the provided RNG; a nil RNG
// falls back to one derived from the context seed, so the same seed always
// produces the same layout. Positions outside the bounds are clamped to the
// nearest valid cell and logged; a bad position never rejects the world load.
func Populate(ctx context.Context, pub logging.Publisher, tick uint64, wctx *Context, reg *actor.Registry, rng *rand.Rand) PopulateResult {
	result := PopulateResult{}
	if wctx == nil || reg == nil {
		return result
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(SeedSource(wctx.Seed())))
	}

	player := actor.NewActor(reg.NextActorID("player"), actor.KindPlayer, wctx.PlayerSpawn())
	player.Position, _ = wctx.ClampIntoBounds(player.Position, player.HalfExtent)
	if err := reg.AddActor(player); err == nil {
		result.PlayerID = player.ID
		result.Spawned++
	}

	for _, spawn := range wctx.Spawns() {
		placed, clamped := SpawnActor(ctx, pub, tick, wctx, reg, spawn, rng)
		if placed == nil {
			continue
		}
		result.Spawned++
		if clamped {
			result.Clamped++
		}
	}
	return result
}

// SpawnActor creates a single actor from a spawn descriptor, applying the
// descriptor's jitter from the RNG, clamping out-of-bounds positions, and
// publishing the spawn event. The second return reports whether the final
// position was clamped.
func SpawnActor(ctx context.Context, pub logging.Publisher, tick uint64, wctx *Context, reg *actor.Registry, spawn Spawn, rng *rand.Rand) (*actor.Actor, bool) {
	if wctx == nil || reg == nil {
		return nil, false
	}
	prefix := string(spawn.Kind)
	if prefix == "" {
		prefix = string(actor.KindHostileStandard)
	}
	desired := spawn.Position
	if spawn.Jitter > 0 && rng != nil {
		desired.X += (rng.Float64()*2 - 1) * spawn.Jitter
		desired.Y += (rng.Float64()*2 - 1) * spawn.Jitter
	}
	placed := actor.NewActor(reg.NextActorID(prefix), spawn.Kind, desired)
	placed.Protected = spawn.Protected

	clamped := false
	placed.Position, clamped = wctx.ClampIntoBounds(desired, placed.HalfExtent)
	if err := reg.AddActor(placed); err != nil {
		return nil, false
	}

	if pub != nil {
		ref := logging.EntityRef{ID: placed.ID, Kind: entityKind(placed.Kind)}
		payload := lifecycle.SpawnPayload{X: placed.Position.X, Y: placed.Position.Y, Clamped: clamped}
		lifecycle.ActorSpawned(ctx, pub, tick, ref, payload, nil)
		if clamped {
			pub.Publish(ctx, logging.Event{
				Type:     "world.spawn_clamped",
				Tick:     tick,
				Actor:    ref,
				Severity: logging.SeverityWarn,
				Category: logging.CategorySystem,
				Payload:  payload,
			})
		}
	}
	return placed, clamped
}

func entityKind(kind actor.Kind) logging.EntityKind {
	if kind == actor.KindPlayer {
		return logging.EntityKindPlayer
	}
	return logging.EntityKindHostile
}
