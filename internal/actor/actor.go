// Package actor owns the mutable simulation state for every collidable
// entity: the player, hostile variants, neutral patrols, and transient
// projectiles.
package actor

import "emberfall/server/internal/geom"

// Kind enumerates the closed set of actor variants. Kind selects damage
// thresholds and behavior parameters; the collision and lifecycle contract is
// shared by all kinds.
type Kind string

const (
	KindPlayer          Kind = "player"
	KindHostileStandard Kind = "hostile-standard"
	KindHostileElevated Kind = "hostile-elevated"
	KindHostileBoss     Kind = "hostile-boss"
	KindNeutralPatrol   Kind = "neutral-patrol"
)

// State is the single tagged status variant for an actor. Modeling status as
// one enum keeps illegal flag combinations unrepresentable; every transition
// is a single assignment.
type State string

const (
	StateActive       State = "active"
	StateInvulnerable State = "invulnerable"
	StateEliminating  State = "eliminating"
	StateEliminated   State = "eliminated"
)

const (
	// InvulnerabilityWindow is the fixed post-hit grace period in seconds.
	InvulnerabilityWindow = 0.8

	// HitInsetX and HitInsetY shrink the damage hit-volume relative to the
	// displacement footprint. The two boxes are tuned independently; see the
	// displacement handling in the collision resolver.
	HitInsetX = 4.0
	HitInsetY = 4.0
)

// Params carries the kind-specific tuning shared by all actors of a kind.
type Params struct {
	MaxHealth  int
	HalfExtent geom.Vec2
	MoveSpeed  float64
	BehaviorID string
}

var kindParams = map[Kind]Params{
	KindPlayer:          {MaxHealth: 6, HalfExtent: geom.Vec2{X: 14, Y: 14}, MoveSpeed: 220, BehaviorID: "input"},
	KindHostileStandard: {MaxHealth: 3, HalfExtent: geom.Vec2{X: 14, Y: 14}, MoveSpeed: 120, BehaviorID: "chase"},
	KindHostileElevated: {MaxHealth: 3, HalfExtent: geom.Vec2{X: 14, Y: 20}, MoveSpeed: 140, BehaviorID: "swoop"},
	KindHostileBoss:     {MaxHealth: 12, HalfExtent: geom.Vec2{X: 28, Y: 28}, MoveSpeed: 80, BehaviorID: "boss"},
	KindNeutralPatrol:   {MaxHealth: 3, HalfExtent: geom.Vec2{X: 14, Y: 14}, MoveSpeed: 90, BehaviorID: "patrol"},
}

// ParamsFor returns the tuning for a kind, falling back to hostile-standard
// for unknown values.
func ParamsFor(kind Kind) Params {
	if params, ok := kindParams[kind]; ok {
		return params
	}
	return kindParams[KindHostileStandard]
}

// Actor is any simulated collidable entity that is not a projectile.
type Actor struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Position   geom.Vec2 `json:"position"`
	Velocity   geom.Vec2 `json:"velocity"`
	HalfExtent geom.Vec2 `json:"halfExtent"`
	Health     int       `json:"health"`
	MaxHealth  int       `json:"maxHealth"`
	State      State     `json:"state"`
	Protected  bool      `json:"protected,omitempty"`

	// InvulnerabilityRemaining is nonzero only while State is invulnerable.
	InvulnerabilityRemaining float64 `json:"invulnerabilityRemaining,omitempty"`

	// EliminationDeadline is the absolute tick by which an eliminating actor
	// must have resolved; zero outside the eliminating state.
	EliminationDeadline uint64 `json:"-"`

	// ExternalRef is the opaque handle snapshotted for the remediation
	// service when the actor enters the eliminating state.
	ExternalRef string `json:"externalRef,omitempty"`

	// Grounded tracks platform contact in the side-scrolling context.
	Grounded bool `json:"-"`
}

// NewActor builds an actor of the given kind at a position, applying the
// kind's tuning.
func NewActor(id string, kind Kind, position geom.Vec2) *Actor {
	params := ParamsFor(kind)
	return &Actor{
		ID:         id,
		Kind:       kind,
		Position:   position,
		HalfExtent: params.HalfExtent,
		Health:     params.MaxHealth,
		MaxHealth:  params.MaxHealth,
		State:      StateActive,
	}
}

// Bounds returns the displacement footprint centered on the actor.
func (a *Actor) Bounds() geom.AABB {
	if a == nil {
		return geom.AABB{}
	}
	return geom.FromCenter(a.Position, a.HalfExtent)
}

// HitBounds returns the damage hit-volume, inset from the footprint by the
// fixed hit constants.
func (a *Actor) HitBounds() geom.AABB {
	if a == nil {
		return geom.AABB{}
	}
	return a.Bounds().Inset(HitInsetX, HitInsetY)
}

// Collidable reports whether the actor participates in the spatial index.
func (a *Actor) Collidable() bool {
	if a == nil {
		return false
	}
	switch a.State {
	case StateActive, StateInvulnerable, StateEliminating:
		return true
	default:
		return false
	}
}

// Damageable reports whether the actor can currently receive damage events.
// Protected actors and actors outside the active state never take damage.
func (a *Actor) Damageable() bool {
	if a == nil {
		return false
	}
	return a.State == StateActive && !a.Protected
}

// Projectile is a transient entity owned by a firing actor, destroyed on its
// first resolved collision or when its TTL expires.
type Projectile struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Position     geom.Vec2 `json:"position"`
	Velocity     geom.Vec2 `json:"velocity"`
	Damage       int       `json:"damage"`
	TTLRemaining float64   `json:"ttlRemaining"`

	// Consumed marks the projectile for removal at the tick boundary.
	Consumed bool `json:"-"`
}

// ProjectileHalfExtent is the collision half extent shared by all projectiles.
var ProjectileHalfExtent = geom.Vec2{X: 4, Y: 4}

// Bounds returns the projectile's collision box.
func (p *Projectile) Bounds() geom.AABB {
	if p == nil {
		return geom.AABB{}
	}
	return geom.FromCenter(p.Position, ProjectileHalfExtent)
}
