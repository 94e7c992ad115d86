package elim

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"emberfall/server/internal/actor"
	"emberfall/server/internal/collision"
	"emberfall/server/internal/geom"
	"emberfall/server/internal/world"
)

type recordingRemediator struct {
	mu      sync.Mutex
	intents []Intent
}

func (r *recordingRemediator) RequestElimination(_ context.Context, intent Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
}

func (r *recordingRemediator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.intents)
}

func damageEvent(targetID string, amount int) collision.Event {
	return collision.Event{
		Kind:      collision.EventDamage,
		SubjectID: "proj-test",
		ObjectID:  targetID,
		Damage:    amount,
	}
}

// newTestPipeline returns a pipeline with deterministic intent ids.
func newTestPipeline(cfg Config) *Pipeline {
	seq := 0
	return NewPipeline(cfg, Deps{
		NewIntent: func() string {
			seq++
			return fmt.Sprintf("intent-%d", seq)
		},
	})
}

func TestDamageGrantsInvulnerabilityWhileAlive(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{})
	reg := actor.NewRegistry()
	target := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{})
	reg.AddActor(target)

	p.Apply(context.Background(), 1, reg, nil, []collision.Event{damageEvent("hostile-1", 1)})

	if target.Health != 2 {
		t.Fatalf("expected health 2, got %d", target.Health)
	}
	if target.State != actor.StateInvulnerable {
		t.Fatalf("expected invulnerable, got %s", target.State)
	}
	if target.InvulnerabilityRemaining != actor.InvulnerabilityWindow {
		t.Fatalf("window not armed: %v", target.InvulnerabilityRemaining)
	}

	// A second hit in the same window must not land.
	p.Apply(context.Background(), 2, reg, nil, []collision.Event{damageEvent("hostile-1", 1)})
	if target.Health != 2 {
		t.Fatalf("invulnerable actor took damage: %d", target.Health)
	}
}

func TestInvulnerabilityExpiresThroughTimers(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{})
	reg := actor.NewRegistry()
	target := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{})
	reg.AddActor(target)

	p.Apply(context.Background(), 1, reg, nil, []collision.Event{damageEvent("hostile-1", 1)})

	dt := 1.0 / 60.0
	for i := 0; i < 60; i++ {
		p.TickTimers(reg, dt)
	}
	if target.State != actor.StateActive {
		t.Fatalf("window did not expire, state %s", target.State)
	}
	if target.InvulnerabilityRemaining != 0 {
		t.Fatalf("timer not cleared: %v", target.InvulnerabilityRemaining)
	}
}

func TestLethalDamageStartsEliminationAndConfirmCompletes(t *testing.T) {
	t.Parallel()

	remediator := &recordingRemediator{}
	p := newTestPipeline(Config{})
	p.AttachRemediator(remediator)

	reg := actor.NewRegistry()
	target := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{})
	target.Health = 1
	reg.AddActor(target)

	p.Apply(context.Background(), 10, reg, nil, []collision.Event{damageEvent("hostile-1", 1)})

	if target.State != actor.StateEliminating {
		t.Fatalf("expected eliminating, got %s", target.State)
	}
	if target.EliminationDeadline != 10+DefaultTimeoutTicks {
		t.Fatalf("bad deadline %d", target.EliminationDeadline)
	}
	if p.PendingCount() != 1 {
		t.Fatalf("expected one pending intent, got %d", p.PendingCount())
	}

	// The actor must absorb no further damage while eliminating.
	p.Apply(context.Background(), 11, reg, nil, []collision.Event{damageEvent("hostile-1", 1)})
	if target.Health != 0 || target.State != actor.StateEliminating {
		t.Fatalf("eliminating actor changed: health=%d state=%s", target.Health, target.State)
	}

	// Confirmation arrives a few ticks later and resolves at the next drain.
	p.Confirm("intent-1", true)
	p.DrainConfirmations(context.Background(), 15, reg)

	if target.State != actor.StateEliminated {
		t.Fatalf("expected eliminated, got %s", target.State)
	}
	if p.PendingCount() != 0 {
		t.Fatalf("intent not cleared: %d pending", p.PendingCount())
	}

	removed := reg.CompactEliminated()
	if len(removed) != 1 || removed[0] != "hostile-1" {
		t.Fatalf("compaction mismatch: %v", removed)
	}
}

func TestFailedConfirmationRollsBackWithOneHealth(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{})
	reg := actor.NewRegistry()
	target := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{})
	target.Health = 1
	reg.AddActor(target)

	p.Apply(context.Background(), 10, reg, nil, []collision.Event{damageEvent("hostile-1", 1)})
	p.Confirm("intent-1", false)
	p.DrainConfirmations(context.Background(), 12, reg)

	if target.State != actor.StateActive {
		t.Fatalf("expected rollback to active, got %s", target.State)
	}
	if target.Health != 1 {
		t.Fatalf("rollback must leave one health, got %d", target.Health)
	}
	if target.EliminationDeadline != 0 {
		t.Fatalf("deadline not cleared: %d", target.EliminationDeadline)
	}
	// The actor is damageable again, so a retry can happen.
	if !target.Damageable() {
		t.Fatal("rolled-back actor must be damageable")
	}
}

func TestDeadlineSweepRollsBackSilentRemediation(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{TimeoutTicks: 180})
	reg := actor.NewRegistry()
	target := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{})
	target.Health = 1
	reg.AddActor(target)

	p.Apply(context.Background(), 100, reg, nil, []collision.Event{damageEvent("hostile-1", 1)})

	// One tick before the deadline nothing happens.
	p.DrainConfirmations(context.Background(), 279, reg)
	if target.State != actor.StateEliminating {
		t.Fatalf("swept early at tick 279: %s", target.State)
	}

	// At the deadline the sweep rolls back.
	p.DrainConfirmations(context.Background(), 280, reg)
	if target.State != actor.StateActive {
		t.Fatalf("expected rollback at deadline, got %s", target.State)
	}
	if target.Health != 1 {
		t.Fatalf("expected one health after rollback, got %d", target.Health)
	}

	// A success arriving after the rollback is stale and must not resurrect
	// the elimination.
	p.Confirm("intent-1", true)
	p.DrainConfirmations(context.Background(), 281, reg)
	if target.State != actor.StateActive {
		t.Fatalf("stale confirmation resurrected elimination: %s", target.State)
	}
}

func TestEliminationIntentIsSentExactlyOnce(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{})
	reg := actor.NewRegistry()
	target := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{})
	target.Health = 1
	reg.AddActor(target)

	// Two lethal events for the same actor in one tick: only the first may
	// open an intent.
	p.Apply(context.Background(), 5, reg, nil, []collision.Event{
		damageEvent("hostile-1", 1),
		damageEvent("hostile-1", 1),
	})
	if p.PendingCount() != 1 {
		t.Fatalf("expected exactly one pending intent, got %d", p.PendingCount())
	}
}

func TestPlayerLethalDamageRespawnsInsteadOfEliminating(t *testing.T) {
	t.Parallel()

	wctx, _ := world.NewContext(world.Config{
		Width:       1000,
		Height:      800,
		PlayerSpawn: geom.Vec2{X: 500, Y: 400},
	})
	remediator := &recordingRemediator{}
	p := newTestPipeline(Config{})
	p.AttachRemediator(remediator)

	reg := actor.NewRegistry()
	player := actor.NewActor("player-1", actor.KindPlayer, geom.Vec2{X: 100, Y: 100})
	player.Health = 1
	reg.AddActor(player)

	p.Apply(context.Background(), 7, reg, wctx, []collision.Event{damageEvent("player-1", 1)})

	if player.State != actor.StateInvulnerable {
		t.Fatalf("expected respawn invulnerability, got %s", player.State)
	}
	if player.Health != player.MaxHealth {
		t.Fatalf("health not restored: %d", player.Health)
	}
	if player.Position != wctx.PlayerSpawn() {
		t.Fatalf("player not moved to spawn: %+v", player.Position)
	}
	if p.PendingCount() != 0 || remediator.count() != 0 {
		t.Fatal("player death must never open a remediation intent")
	}
}

func TestHealClampsToMaxAndSkipsEliminating(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{})
	target := actor.NewActor("hostile-1", actor.KindHostileStandard, geom.Vec2{})
	target.Health = 2

	p.Heal(target, 5)
	if target.Health != target.MaxHealth {
		t.Fatalf("heal overshot: %d", target.Health)
	}

	target.State = actor.StateEliminating
	target.Health = 0
	p.Heal(target, 3)
	if target.Health != 0 {
		t.Fatalf("eliminating actor healed: %d", target.Health)
	}
}

func TestRevalidateClampsTimersAndSweeps(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(Config{TimeoutTicks: 180})
	reg := actor.NewRegistry()

	frozen := actor.NewActor("frozen", actor.KindHostileStandard, geom.Vec2{})
	frozen.State = actor.StateInvulnerable
	frozen.InvulnerabilityRemaining = 99
	reg.AddActor(frozen)

	stuck := actor.NewActor("stuck", actor.KindHostileStandard, geom.Vec2{})
	stuck.Health = 1
	reg.AddActor(stuck)
	p.Apply(context.Background(), 10, reg, nil, []collision.Event{damageEvent("stuck", 1)})

	// Resume far past the deadline.
	p.Revalidate(context.Background(), 10_000, reg)

	if frozen.InvulnerabilityRemaining > actor.InvulnerabilityWindow {
		t.Fatalf("timer not clamped: %v", frozen.InvulnerabilityRemaining)
	}
	if stuck.State != actor.StateActive || stuck.Health != 1 {
		t.Fatalf("stuck elimination not swept: state=%s health=%d", stuck.State, stuck.Health)
	}
}

func TestInboxDrainIsOrderedAndEmptying(t *testing.T) {
	t.Parallel()

	inbox := NewInbox()
	inbox.Push(Confirmation{IntentID: "a", Success: true})
	inbox.Push(Confirmation{IntentID: "b", Success: false})

	got := inbox.Drain()
	if len(got) != 2 || got[0].IntentID != "a" || got[1].IntentID != "b" {
		t.Fatalf("drain order wrong: %v", got)
	}
	if inbox.Len() != 0 {
		t.Fatalf("inbox not emptied: %d", inbox.Len())
	}
}
