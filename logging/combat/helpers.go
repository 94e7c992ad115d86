package combat

import (
	"context"

	"emberfall/server/logging"
)

const (
	// EventDamage is emitted when a projectile deals damage to an actor.
	EventDamage logging.EventType = "combat.damage"
	// EventEliminationStarted is emitted when lethal damage moves an actor
	// into the eliminating state.
	EventEliminationStarted logging.EventType = "combat.elimination_started"
	// EventEliminationConfirmed is emitted when the remediation service
	// acknowledges an elimination as final.
	EventEliminationConfirmed logging.EventType = "combat.elimination_confirmed"
	// EventEliminationRetry is emitted when an elimination rolls back and the
	// actor becomes damageable again.
	EventEliminationRetry logging.EventType = "combat.elimination_retry"
)

// DamagePayload captures the amount dealt to a single target.
type DamagePayload struct {
	Amount       int    `json:"amount"`
	TargetHealth int    `json:"targetHealth"`
	Projectile   string `json:"projectile,omitempty"`
}

// EliminationPayload describes the remediation intent tied to a lethal blow.
type EliminationPayload struct {
	IntentID    string `json:"intentId,omitempty"`
	ExternalRef string `json:"externalRef,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Damage publishes a combat damage event for a single target.
func Damage(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, target logging.EntityRef, payload DamagePayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventDamage,
		Tick:     tick,
		Actor:    actor,
		Targets:  []logging.EntityRef{target},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// EliminationStarted publishes the start of an elimination.
func EliminationStarted(ctx context.Context, pub logging.Publisher, tick uint64, target logging.EntityRef, payload EliminationPayload, extra map[string]any) {
	publishElimination(ctx, pub, EventEliminationStarted, tick, target, payload, extra)
}

// EliminationConfirmed publishes a confirmed, terminal elimination.
func EliminationConfirmed(ctx context.Context, pub logging.Publisher, tick uint64, target logging.EntityRef, payload EliminationPayload, extra map[string]any) {
	publishElimination(ctx, pub, EventEliminationConfirmed, tick, target, payload, extra)
}

// EliminationRetry publishes a rolled-back elimination.
func EliminationRetry(ctx context.Context, pub logging.Publisher, tick uint64, target logging.EntityRef, payload EliminationPayload, extra map[string]any) {
	publishElimination(ctx, pub, EventEliminationRetry, tick, target, payload, extra)
}

func publishElimination(ctx context.Context, pub logging.Publisher, eventType logging.EventType, tick uint64, target logging.EntityRef, payload EliminationPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    target,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryCombat,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
