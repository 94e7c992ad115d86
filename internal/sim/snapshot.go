package sim

import (
	"emberfall/server/internal/actor"
)

// ActorView is the read-only per-actor state exposed to the renderer and
// persistence layers.
type ActorView struct {
	ID        string      `json:"id" msgpack:"id"`
	Kind      actor.Kind  `json:"kind" msgpack:"kind"`
	State     actor.State `json:"state" msgpack:"state"`
	X         float64     `json:"x" msgpack:"x"`
	Y         float64     `json:"y" msgpack:"y"`
	Health    int         `json:"health" msgpack:"health"`
	MaxHealth int         `json:"maxHealth" msgpack:"maxHealth"`
	Protected bool        `json:"protected,omitempty" msgpack:"protected"`
}

// ProjectileView mirrors a live projectile for the renderer.
type ProjectileView struct {
	ID      string  `json:"id" msgpack:"id"`
	OwnerID string  `json:"ownerId" msgpack:"ownerId"`
	X       float64 `json:"x" msgpack:"x"`
	Y       float64 `json:"y" msgpack:"y"`
}

// Snapshot captures the tick-stamped state exposed to non-simulation
// callers. It is a value copy; callers never see live registry pointers.
type Snapshot struct {
	Tick        uint64           `json:"tick" msgpack:"tick"`
	WorldKind   string           `json:"worldKind" msgpack:"worldKind"`
	Width       float64          `json:"width" msgpack:"width"`
	Height      float64          `json:"height" msgpack:"height"`
	Actors      []ActorView      `json:"actors,omitempty" msgpack:"actors"`
	Projectiles []ProjectileView `json:"projectiles,omitempty" msgpack:"projectiles"`
}
