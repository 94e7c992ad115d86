// Package elim drives the per-actor elimination state machine: damage events
// in, remediation intents out, asynchronous confirmations reconciled at tick
// start.
package elim

import (
	"context"

	"github.com/google/uuid"

	"emberfall/server/internal/actor"
	"emberfall/server/internal/collision"
	"emberfall/server/internal/geom"
	"emberfall/server/internal/telemetry"
	"emberfall/server/internal/world"
	"emberfall/server/logging"
	combatlog "emberfall/server/logging/combat"
	"emberfall/server/logging/lifecycle"
)

const (
	// DefaultTimeoutTicks bounds the eliminating window (3s at 60 Hz).
	DefaultTimeoutTicks = 180

	metricIntentsSent       = "elim_intents_sent_total"
	metricConfirmed         = "elim_confirmed_total"
	metricRolledBack        = "elim_rolled_back_total"
	metricStaleConfirmation = "elim_stale_confirmations_total"
	metricPendingGauge      = "elim_pending"
)

// Intent is the outbound remediation request for one eliminating actor.
type Intent struct {
	IntentID    string `json:"intentId"`
	ActorID     string `json:"actorId"`
	ExternalRef string `json:"externalRef"`
	Tick        uint64 `json:"tick"`
}

// Remediator performs the external remediation call. Implementations must
// not block the caller: the pipeline invokes them on their own goroutine and
// expects the outcome via the confirmation inbox.
type Remediator interface {
	RequestElimination(ctx context.Context, intent Intent)
}

// Config tunes the pipeline.
type Config struct {
	TimeoutTicks           uint64
	RespawnInvulnerability float64
}

func (cfg Config) normalized() Config {
	normalized := cfg
	if normalized.TimeoutTicks == 0 {
		normalized.TimeoutTicks = DefaultTimeoutTicks
	}
	if normalized.RespawnInvulnerability <= 0 {
		normalized.RespawnInvulnerability = actor.InvulnerabilityWindow
	}
	return normalized
}

// Deps bundles the pipeline's injected collaborators.
type Deps struct {
	Publisher  logging.Publisher
	Remediator Remediator
	Metrics    telemetry.Metrics
	NewIntent  func() string
}

// Pipeline consumes collision events and owns every actor state transition.
type Pipeline struct {
	cfg        Config
	publisher  logging.Publisher
	remediator Remediator
	metrics    telemetry.Metrics
	newIntent  func() string
	inbox      *Inbox

	pending map[string]string // intent id -> actor id
	byActor map[string]string // actor id -> intent id
}

// NewPipeline constructs a pipeline with normalized config.
func NewPipeline(cfg Config, deps Deps) *Pipeline {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	newIntent := deps.NewIntent
	if newIntent == nil {
		newIntent = uuid.NewString
	}
	return &Pipeline{
		cfg:        cfg.normalized(),
		publisher:  publisher,
		remediator: deps.Remediator,
		metrics:    deps.Metrics,
		newIntent:  newIntent,
		inbox:      NewInbox(),
		pending:    make(map[string]string),
		byActor:    make(map[string]string),
	}
}

// AttachRemediator wires the external client after construction. The client
// needs the pipeline as its confirmation target, so wiring happens in two
// steps.
func (p *Pipeline) AttachRemediator(r Remediator) {
	if p == nil {
		return
	}
	p.remediator = r
}

// Inbox exposes the confirmation mailbox for remediation tasks.
func (p *Pipeline) Inbox() *Inbox {
	if p == nil {
		return nil
	}
	return p.inbox
}

// Confirm delivers an external confirmation. Safe to call from any
// goroutine; processing happens at the next tick start.
func (p *Pipeline) Confirm(intentID string, success bool) {
	if p == nil || intentID == "" {
		return
	}
	p.inbox.Push(Confirmation{IntentID: intentID, Success: success})
}

// PendingCount reports the number of unresolved remediation intents.
func (p *Pipeline) PendingCount() int {
	if p == nil {
		return 0
	}
	return len(p.pending)
}

// DrainConfirmations applies queued confirmations and then sweeps elimination
// deadlines. Runs at the start of every tick, before new damage events, so a
// given actor's transitions apply in the order they were generated.
func (p *Pipeline) DrainConfirmations(ctx context.Context, tick uint64, reg *actor.Registry) {
	if p == nil || reg == nil {
		return
	}
	for _, conf := range p.inbox.Drain() {
		actorID, ok := p.pending[conf.IntentID]
		if !ok {
			// Late confirmation for an intent that already rolled back or
			// resolved; dropping it prevents resurrection and double
			// elimination.
			p.addMetric(metricStaleConfirmation, 1)
			continue
		}
		target, found := reg.Actor(actorID)
		p.clearIntent(conf.IntentID, actorID)
		if !found || target.State != actor.StateEliminating {
			p.addMetric(metricStaleConfirmation, 1)
			continue
		}
		if conf.Success {
			target.State = actor.StateEliminated
			target.EliminationDeadline = 0
			p.addMetric(metricConfirmed, 1)
			combatlog.EliminationConfirmed(ctx, p.publisher, tick, p.entityRef(target), combatlog.EliminationPayload{
				IntentID:    conf.IntentID,
				ExternalRef: target.ExternalRef,
			}, nil)
		} else {
			p.rollback(ctx, tick, target, conf.IntentID, "remediation_failed")
		}
	}
	p.sweepDeadlines(ctx, tick, reg)
	p.storeMetric(metricPendingGauge, uint64(len(p.pending)))
}

// sweepDeadlines rolls back any actor stuck in the eliminating state past
// its deadline. A pending intent is forgotten so a late success cannot
// resurrect the rollback.
func (p *Pipeline) sweepDeadlines(ctx context.Context, tick uint64, reg *actor.Registry) {
	reg.ForEachActor(func(a *actor.Actor) {
		if a.State != actor.StateEliminating {
			return
		}
		if a.EliminationDeadline == 0 || tick < a.EliminationDeadline {
			return
		}
		intentID := p.byActor[a.ID]
		p.clearIntent(intentID, a.ID)
		p.rollback(ctx, tick, a, intentID, "confirmation_timeout")
	})
}

// Apply processes this tick's collision events in resolver order.
func (p *Pipeline) Apply(ctx context.Context, tick uint64, reg *actor.Registry, wctx *world.Context, events []collision.Event) {
	if p == nil || reg == nil {
		return
	}
	for _, event := range events {
		if event.Kind != collision.EventDamage {
			continue
		}
		target, ok := reg.Actor(event.ObjectID)
		if !ok || !target.Damageable() {
			continue
		}
		p.applyDamage(ctx, tick, target, wctx, event)
	}
}

func (p *Pipeline) applyDamage(ctx context.Context, tick uint64, target *actor.Actor, wctx *world.Context, event collision.Event) {
	health := target.Health - event.Damage
	if health < 0 {
		health = 0
	}
	target.Health = health

	combatlog.Damage(ctx, p.publisher, tick, logging.EntityRef{ID: event.SubjectID, Kind: logging.EntityKindProjectile}, p.entityRef(target), combatlog.DamagePayload{
		Amount:       event.Damage,
		TargetHealth: health,
		Projectile:   event.SubjectID,
	}, nil)

	if health > 0 {
		target.State = actor.StateInvulnerable
		target.InvulnerabilityRemaining = actor.InvulnerabilityWindow
		return
	}

	if target.Kind == actor.KindPlayer {
		p.respawnPlayer(ctx, tick, target, wctx)
		return
	}
	p.beginElimination(ctx, tick, target)
}

// respawnPlayer is the damage-consequence respawn: the player never enters
// the remediation path.
func (p *Pipeline) respawnPlayer(ctx context.Context, tick uint64, player *actor.Actor, wctx *world.Context) {
	player.Health = player.MaxHealth
	player.State = actor.StateInvulnerable
	player.InvulnerabilityRemaining = p.cfg.RespawnInvulnerability
	player.Velocity = geom.Vec2{}
	if wctx != nil {
		player.Position = wctx.PlayerSpawn()
		player.Position, _ = wctx.ClampIntoBounds(player.Position, player.HalfExtent)
	}
	lifecycle.PlayerRespawned(ctx, p.publisher, tick, p.entityRef(player), lifecycle.SpawnPayload{
		X: player.Position.X,
		Y: player.Position.Y,
	}, nil)
}

func (p *Pipeline) beginElimination(ctx context.Context, tick uint64, target *actor.Actor) {
	if target.State == actor.StateEliminating || target.State == actor.StateEliminated {
		return
	}
	if target.ExternalRef == "" {
		target.ExternalRef = target.ID
	}
	target.State = actor.StateEliminating
	target.InvulnerabilityRemaining = 0
	target.EliminationDeadline = tick + p.cfg.TimeoutTicks

	intent := Intent{
		IntentID:    p.newIntent(),
		ActorID:     target.ID,
		ExternalRef: target.ExternalRef,
		Tick:        tick,
	}
	p.pending[intent.IntentID] = target.ID
	p.byActor[target.ID] = intent.IntentID
	p.addMetric(metricIntentsSent, 1)

	combatlog.EliminationStarted(ctx, p.publisher, tick, p.entityRef(target), combatlog.EliminationPayload{
		IntentID:    intent.IntentID,
		ExternalRef: intent.ExternalRef,
	}, nil)

	if p.remediator != nil {
		go p.remediator.RequestElimination(context.Background(), intent)
	}
}

// rollback returns an eliminating actor to the active state with one health
// point so it stays damageable, and signals that a retry is available.
func (p *Pipeline) rollback(ctx context.Context, tick uint64, target *actor.Actor, intentID, reason string) {
	target.State = actor.StateActive
	target.Health = 1
	target.EliminationDeadline = 0
	target.InvulnerabilityRemaining = 0
	p.addMetric(metricRolledBack, 1)
	combatlog.EliminationRetry(ctx, p.publisher, tick, p.entityRef(target), combatlog.EliminationPayload{
		IntentID:    intentID,
		ExternalRef: target.ExternalRef,
		Reason:      reason,
	}, nil)
}

// Heal raises an actor's health by amount, clamped to its maximum. Health
// only ever changes through damage events or this heal path.
func (p *Pipeline) Heal(target *actor.Actor, amount int) {
	if p == nil || target == nil || amount <= 0 {
		return
	}
	if target.State == actor.StateEliminating || target.State == actor.StateEliminated {
		return
	}
	health := target.Health + amount
	if health > target.MaxHealth {
		health = target.MaxHealth
	}
	target.Health = health
}

// TickTimers advances invulnerability timers by dt seconds.
func (p *Pipeline) TickTimers(reg *actor.Registry, dt float64) {
	if p == nil || reg == nil {
		return
	}
	reg.ForEachActor(func(a *actor.Actor) {
		if a.State != actor.StateInvulnerable {
			return
		}
		a.InvulnerabilityRemaining -= dt
		if a.InvulnerabilityRemaining <= 0 {
			a.InvulnerabilityRemaining = 0
			a.State = actor.StateActive
		}
	})
}

// Revalidate re-checks every bounded state after an interruption of the
// loop. A paused simulation must never leave an actor frozen in the
// invulnerable or eliminating state beyond its bound.
func (p *Pipeline) Revalidate(ctx context.Context, tick uint64, reg *actor.Registry) {
	if p == nil || reg == nil {
		return
	}
	reg.ForEachActor(func(a *actor.Actor) {
		if a.State == actor.StateInvulnerable && a.InvulnerabilityRemaining > actor.InvulnerabilityWindow {
			a.InvulnerabilityRemaining = actor.InvulnerabilityWindow
		}
	})
	p.sweepDeadlines(ctx, tick, reg)
}

func (p *Pipeline) clearIntent(intentID, actorID string) {
	if intentID != "" {
		delete(p.pending, intentID)
	}
	if actorID != "" {
		delete(p.byActor, actorID)
	}
}

func (p *Pipeline) entityRef(a *actor.Actor) logging.EntityRef {
	kind := logging.EntityKindHostile
	if a != nil && a.Kind == actor.KindPlayer {
		kind = logging.EntityKindPlayer
	}
	id := ""
	if a != nil {
		id = a.ID
	}
	return logging.EntityRef{ID: id, Kind: kind}
}

func (p *Pipeline) addMetric(key string, delta uint64) {
	if p.metrics != nil {
		p.metrics.Add(key, delta)
	}
}

func (p *Pipeline) storeMetric(key string, value uint64) {
	if p.metrics != nil {
		p.metrics.Store(key, value)
	}
}
