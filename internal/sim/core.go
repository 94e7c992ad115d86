package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"emberfall/server/internal/actor"
	"emberfall/server/internal/collision"
	"emberfall/server/internal/elim"
	"emberfall/server/internal/geom"
	"emberfall/server/internal/grid"
	"emberfall/server/internal/journal"
	"emberfall/server/internal/telemetry"
	"emberfall/server/internal/world"
	"emberfall/server/logging"
	"emberfall/server/logging/lifecycle"
)

const (
	// DefaultTickRate is the fixed simulation frequency in Hz.
	DefaultTickRate = 60

	projectileSpeed  = 420.0
	projectileDamage = 1
	projectileTTL    = 1.5

	defaultJournalKeyframeCapacity = 8
	defaultJournalKeyframeMaxAge   = 5 * time.Second

	metricDuplicateInsert    = "sim_grid_duplicate_insert_total"
	metricGridDivergence     = "sim_grid_registry_divergence_total"
	metricRevisionMismatch   = "sim_world_revision_mismatch_total"
	metricModeTransitions    = "sim_mode_transitions_total"
	metricProjectilesSpawned = "sim_projectiles_spawned_total"
)

// CoreConfig tunes the simulation engine.
type CoreConfig struct {
	TickRate        int
	Elimination     elim.Config
	JournalCapacity int
	JournalMaxAge   time.Duration
}

func (cfg CoreConfig) normalized() CoreConfig {
	normalized := cfg
	if normalized.TickRate <= 0 {
		normalized.TickRate = DefaultTickRate
	}
	if normalized.JournalCapacity <= 0 {
		normalized.JournalCapacity = defaultJournalKeyframeCapacity
	}
	if normalized.JournalMaxAge <= 0 {
		normalized.JournalMaxAge = defaultJournalKeyframeMaxAge
	}
	return normalized
}

type vitals struct {
	health int
	state  actor.State
}

// Core owns the registry, grid, resolver, and elimination pipeline for the
// active world context and advances them one fixed timestep at a time. All
// mutation happens synchronously inside Step; the only concurrent surfaces
// are the command buffer, the confirmation inbox, and the pending mode
// transition slot.
type Core struct {
	cfg  CoreConfig
	deps Deps
	dt   float64

	wctx       *world.Context
	reg        *actor.Registry
	grid       *grid.Grid
	resolver   *collision.Resolver
	pipeline   *elim.Pipeline
	controller *world.Controller
	journal    *journal.Journal

	tick     uint64
	playerID string

	pendingMu  sync.Mutex
	pendingCtx *world.Context

	forceRebuild bool
	prevVitals   map[string]vitals
}

// NewCore constructs an engine for the provided world context and seeds its
// initial population.
func NewCore(cfg CoreConfig, deps Deps, wctx *world.Context) (*Core, error) {
	if wctx == nil {
		return nil, fmt.Errorf("sim: world context is required")
	}
	normalized := cfg.normalized()
	normalizedDeps := deps.normalized()

	core := &Core{
		cfg:        normalized,
		deps:       normalizedDeps,
		dt:         1.0 / float64(normalized.TickRate),
		wctx:       wctx,
		reg:        actor.NewRegistry(),
		grid:       grid.New(wctx.Width(), wctx.Height(), wctx.CellSize(), wctx.Revision()),
		resolver:   collision.NewResolver(),
		controller: world.NewController(normalizedDeps.Publisher),
		journal:    journal.New(normalized.JournalCapacity, normalized.JournalMaxAge),
		prevVitals: make(map[string]vitals),
	}
	core.pipeline = elim.NewPipeline(normalized.Elimination, elim.Deps{
		Publisher: normalizedDeps.Publisher,
		Metrics:   normalizedDeps.Metrics,
	})
	if normalizedDeps.Metrics != nil {
		core.journal.AttachTelemetry(journalMetrics{metrics: normalizedDeps.Metrics})
	}

	result := world.Populate(context.Background(), normalizedDeps.Publisher, 0, wctx, core.reg, normalizedDeps.RNG)
	core.playerID = result.PlayerID
	core.reindex()
	core.captureVitals()
	return core, nil
}

// Deps returns the injected dependencies.
func (c *Core) Deps() Deps {
	if c == nil {
		return Deps{}
	}
	return c.deps
}

// Pipeline exposes the elimination pipeline for remediation wiring.
func (c *Core) Pipeline() *elim.Pipeline {
	if c == nil {
		return nil
	}
	return c.pipeline
}

// PlayerID reports the id of the player actor.
func (c *Core) PlayerID() string {
	if c == nil {
		return ""
	}
	return c.playerID
}

// Tick reports the last completed tick number.
func (c *Core) Tick() uint64 {
	if c == nil {
		return 0
	}
	return c.tick
}

// WorldContext returns the active context.
func (c *Core) WorldContext() *world.Context {
	if c == nil {
		return nil
	}
	return c.wctx
}

// Registry exposes the actor registry for persistence restores. The caller
// must not retain references across ticks.
func (c *Core) Registry() *actor.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

// ScheduleModeTransition stages a world context swap. The swap applies
// atomically at the start of the next tick; no collision query ever runs
// against a half-built context.
func (c *Core) ScheduleModeTransition(cfg world.Config) error {
	if c == nil {
		return fmt.Errorf("sim: nil core")
	}
	next, err := world.NewContext(cfg)
	if err != nil {
		return err
	}
	c.pendingMu.Lock()
	c.pendingCtx = next
	c.pendingMu.Unlock()
	return nil
}

// Apply stages input intents against the player actor.
func (c *Core) Apply(cmds []Command) error {
	if c == nil {
		return nil
	}
	for _, cmd := range cmds {
		player, ok := c.reg.Actor(c.playerID)
		if !ok || !player.Collidable() {
			continue
		}
		switch cmd.Type {
		case CommandMove:
			if cmd.Move == nil {
				continue
			}
			c.applyMove(player, *cmd.Move)
		case CommandFire:
			if cmd.Fire == nil {
				continue
			}
			c.applyFire(player, *cmd.Fire)
		}
	}
	return nil
}

// Snapshot builds the read-only tick-stamped view for renderer and
// persistence callers.
func (c *Core) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	snapshot := Snapshot{
		Tick:      c.tick,
		WorldKind: string(c.wctx.Kind()),
		Width:     c.wctx.Width(),
		Height:    c.wctx.Height(),
	}
	c.reg.ForEachActor(func(a *actor.Actor) {
		snapshot.Actors = append(snapshot.Actors, ActorView{
			ID:        a.ID,
			Kind:      a.Kind,
			State:     a.State,
			X:         a.Position.X,
			Y:         a.Position.Y,
			Health:    a.Health,
			MaxHealth: a.MaxHealth,
			Protected: a.Protected,
		})
	})
	c.reg.ForEachProjectile(func(p *actor.Projectile) {
		if p.Consumed {
			return
		}
		snapshot.Projectiles = append(snapshot.Projectiles, ProjectileView{
			ID:      p.ID,
			OwnerID: p.OwnerID,
			X:       p.Position.X,
			Y:       p.Position.Y,
		})
	})
	return snapshot
}

// DrainPatches returns the journal diffs accumulated since the last drain.
func (c *Core) DrainPatches() []journal.Patch {
	if c == nil {
		return nil
	}
	return c.journal.DrainPatches()
}

// RecordKeyframe encodes the current snapshot and stores it in the journal
// ring.
func (c *Core) RecordKeyframe() journal.RecordResult {
	if c == nil {
		return journal.RecordResult{}
	}
	data, err := msgpack.Marshal(c.Snapshot())
	if err != nil {
		if c.deps.Logger != nil {
			c.deps.Logger.Printf("[sim] keyframe encode failed: %v", err)
		}
		return journal.RecordResult{}
	}
	return c.journal.RecordKeyframe(journal.Keyframe{
		Tick:       c.tick,
		RecordedAt: c.deps.Clock.Now(),
		Data:       data,
	})
}

// KeyframeBySequence looks up a retained keyframe.
func (c *Core) KeyframeBySequence(sequence uint64) (journal.Keyframe, bool) {
	if c == nil {
		return journal.Keyframe{}, false
	}
	return c.journal.KeyframeBySequence(sequence)
}

// KeyframeWindow reports the retained keyframe count and sequence bounds.
func (c *Core) KeyframeWindow() (int, uint64, uint64) {
	if c == nil {
		return 0, 0, 0
	}
	return c.journal.Window()
}

// Revalidate re-checks every bounded actor state. The loop calls this after
// an interruption so no actor stays frozen in a timed state.
func (c *Core) Revalidate() {
	if c == nil {
		return
	}
	c.pipeline.Revalidate(context.Background(), c.tick, c.reg)
	c.pipeline.TickTimers(c.reg, 0)
}

// RestoreSnapshot rebuilds the registry from persisted actor views. The
// grid is rebuilt from scratch, never loaded. Eliminating actors get a
// fresh deadline so the sweep resolves intents lost across the restart;
// invulnerable actors restart their window.
func (c *Core) RestoreSnapshot(views []ActorView) {
	if c == nil {
		return
	}
	c.reg = actor.NewRegistry()
	c.playerID = ""
	for _, view := range views {
		restored := actor.NewActor(view.ID, view.Kind, geom.Vec2{X: view.X, Y: view.Y})
		restored.Protected = view.Protected
		restored.Health = view.Health
		if view.MaxHealth > 0 {
			restored.MaxHealth = view.MaxHealth
		}
		restored.State = view.State
		switch view.State {
		case actor.StateInvulnerable:
			restored.InvulnerabilityRemaining = actor.InvulnerabilityWindow
		case actor.StateEliminating:
			timeout := c.cfg.Elimination.TimeoutTicks
			if timeout == 0 {
				timeout = elim.DefaultTimeoutTicks
			}
			restored.EliminationDeadline = c.tick + timeout
		case actor.StateEliminated:
			continue
		}
		restored.Position, _ = c.wctx.ClampIntoBounds(restored.Position, restored.HalfExtent)
		if err := c.reg.AddActor(restored); err != nil {
			continue
		}
		if view.Kind == actor.KindPlayer && c.playerID == "" {
			c.playerID = restored.ID
		}
	}
	c.grid.Rebuild(c.wctx.Width(), c.wctx.Height(), c.wctx.CellSize(), c.wctx.Revision())
	c.reindex()
	c.captureVitals()
}

var _ EngineCore = (*Core)(nil)

// journalMetrics forwards keyframe eviction accounting into the telemetry
// registry.
type journalMetrics struct {
	metrics telemetry.Metrics
}

func (j journalMetrics) RecordJournalDrop(metric string) {
	j.metrics.Add(metric, 1)
}

func (c *Core) addMetric(key string, delta uint64) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.Add(key, delta)
	}
}

func (c *Core) publishSystem(eventType logging.EventType, severity logging.Severity, payload any) {
	c.deps.Publisher.Publish(context.Background(), logging.Event{
		Type:     eventType,
		Tick:     c.tick,
		Actor:    logging.EntityRef{Kind: logging.EntityKindWorld},
		Severity: severity,
		Category: logging.CategorySystem,
		Payload:  payload,
	})
}

func (c *Core) publishRemoved(id string, kind logging.EntityKind, reason string) {
	lifecycle.ActorRemoved(context.Background(), c.deps.Publisher, c.tick, logging.EntityRef{ID: id, Kind: kind}, lifecycle.RemovedPayload{Reason: reason}, nil)
}
