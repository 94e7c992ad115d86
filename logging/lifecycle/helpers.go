package lifecycle

import (
	"context"

	"emberfall/server/logging"
)

const (
	// EventActorSpawned is emitted when an actor enters the world.
	EventActorSpawned logging.EventType = "lifecycle.actor_spawned"
	// EventActorRemoved is emitted when an actor leaves the registry.
	EventActorRemoved logging.EventType = "lifecycle.actor_removed"
	// EventPlayerRespawned is emitted when the player respawns after a
	// lethal hit.
	EventPlayerRespawned logging.EventType = "lifecycle.player_respawned"
	// EventModeTransition is emitted when the world context swaps.
	EventModeTransition logging.EventType = "lifecycle.mode_transition"
)

// SpawnPayload captures spawn coordinates for a new actor.
type SpawnPayload struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Clamped bool    `json:"clamped,omitempty"`
}

// RemovedPayload captures the reason an actor left the registry.
type RemovedPayload struct {
	Reason string `json:"reason"`
}

// ModeTransitionPayload captures the shape of a world context swap.
type ModeTransitionPayload struct {
	FromKind string  `json:"fromKind"`
	ToKind   string  `json:"toKind"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Retained int     `json:"retained"`
}

// ActorSpawned publishes a spawn event.
func ActorSpawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SpawnPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventActorSpawned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// ActorRemoved publishes a removal event.
func ActorRemoved(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RemovedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventActorRemoved,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// PlayerRespawned publishes a respawn event.
func PlayerRespawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SpawnPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPlayerRespawned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// ModeTransition publishes a world context swap event.
func ModeTransition(ctx context.Context, pub logging.Publisher, tick uint64, payload ModeTransitionPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventModeTransition,
		Tick:     tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
