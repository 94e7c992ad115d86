package sim

import (
	"testing"
	"time"
)

func newTestLoop(t *testing.T, cfg LoopConfig) *Loop {
	t.Helper()
	core, _ := newTestCore(t, testWorldConfig())
	return NewLoop(core, cfg, LoopHooks{})
}

func moveCommand(actorID string, dx float64) Command {
	return Command{
		Type:    CommandMove,
		ActorID: actorID,
		Move:    &MoveCommand{DX: dx},
	}
}

func TestEnqueueStagesCommandsUntilAdvance(t *testing.T) {
	t.Parallel()

	loop := newTestLoop(t, LoopConfig{CommandCapacity: 16})
	if ok, reason := loop.Enqueue(moveCommand("player-1", 1)); !ok {
		t.Fatalf("enqueue rejected: %s", reason)
	}
	if loop.Pending() != 1 {
		t.Fatalf("expected one staged command, got %d", loop.Pending())
	}

	result := loop.Advance(LoopTickContext{Tick: 1, Now: time.Now(), Delta: 1.0 / 60.0})
	if len(result.Commands) != 1 {
		t.Fatalf("expected one drained command, got %d", len(result.Commands))
	}
	if loop.Pending() != 0 {
		t.Fatalf("buffer not drained: %d", loop.Pending())
	}
	if result.Snapshot.Tick == 0 {
		t.Fatal("advance did not step the engine")
	}
}

func TestEnqueueThrottlesPerActor(t *testing.T) {
	t.Parallel()

	var drops []string
	core, _ := newTestCore(t, testWorldConfig())
	loop := NewLoop(core, LoopConfig{CommandCapacity: 64, PerActorLimit: 3}, LoopHooks{
		OnCommandDrop: func(reason string, cmd Command) {
			drops = append(drops, reason)
		},
	})

	for i := 0; i < 5; i++ {
		loop.Enqueue(moveCommand("player-1", 1))
	}
	if loop.Pending() != 3 {
		t.Fatalf("expected 3 staged commands, got %d", loop.Pending())
	}
	if len(drops) != 2 {
		t.Fatalf("expected 2 drops, got %v", drops)
	}
	for _, reason := range drops {
		if reason != CommandRejectQueueLimit {
			t.Fatalf("unexpected drop reason %s", reason)
		}
	}

	// Another actor is unaffected by the first actor's throttle.
	if ok, _ := loop.Enqueue(moveCommand("other-1", 1)); !ok {
		t.Fatal("unrelated actor throttled")
	}

	// The per-actor budget resets once commands drain.
	loop.Advance(LoopTickContext{Tick: 1, Now: time.Now(), Delta: 1.0 / 60.0})
	if ok, _ := loop.Enqueue(moveCommand("player-1", 1)); !ok {
		t.Fatal("throttle did not reset after drain")
	}
}

func TestEnqueueRejectsWhenBufferFull(t *testing.T) {
	t.Parallel()

	loop := newTestLoop(t, LoopConfig{CommandCapacity: 2})
	loop.Enqueue(moveCommand("a", 1))
	loop.Enqueue(moveCommand("b", 1))

	ok, reason := loop.Enqueue(moveCommand("c", 1))
	if ok {
		t.Fatal("full buffer accepted a command")
	}
	if reason != CommandRejectQueueFull {
		t.Fatalf("unexpected reason %s", reason)
	}
}

func TestMoveCommandDisplacesPlayer(t *testing.T) {
	t.Parallel()

	core, _ := newTestCore(t, testWorldConfig())
	loop := NewLoop(core, LoopConfig{CommandCapacity: 16}, LoopHooks{})

	before := playerView(t, core)
	loop.Enqueue(moveCommand(core.PlayerID(), 1))
	loop.Advance(LoopTickContext{Tick: 1, Now: time.Now(), Delta: 1.0 / 60.0})

	after := playerView(t, core)
	if after.X <= before.X {
		t.Fatalf("player did not move right: %v -> %v", before.X, after.X)
	}
}

func TestAdvanceRunsOneStepPerElapsedBudget(t *testing.T) {
	t.Parallel()

	core, _ := newTestCore(t, testWorldConfig())
	loop := NewLoop(core, LoopConfig{CommandCapacity: 16, TickRate: 60, CatchupMaxTicks: 4}, LoopHooks{})
	budget := 1.0 / 60.0

	before := core.Tick()
	result := loop.Advance(LoopTickContext{Tick: 1, Now: time.Now(), Delta: 3 * budget})
	if result.Steps != 3 {
		t.Fatalf("expected 3 catch-up steps, got %d", result.Steps)
	}
	if got := core.Tick(); got != before+3 {
		t.Fatalf("simulation time lost: tick %d -> %d", before, got)
	}

	// A gap beyond the clamp runs at most CatchupMaxTicks steps.
	before = core.Tick()
	result = loop.Advance(LoopTickContext{Tick: 2, Now: time.Now(), Delta: 10 * budget})
	if result.Steps != 4 {
		t.Fatalf("expected clamped 4 steps, got %d", result.Steps)
	}
	if got := core.Tick(); got != before+4 {
		t.Fatalf("clamped advance stepped %d ticks", got-before)
	}

	// A normal tick budget is a single step.
	result = loop.Advance(LoopTickContext{Tick: 3, Now: time.Now(), Delta: budget})
	if result.Steps != 1 {
		t.Fatalf("expected a single step, got %d", result.Steps)
	}
}

func playerView(t *testing.T, core *Core) ActorView {
	t.Helper()
	for _, view := range core.Snapshot().Actors {
		if view.ID == core.PlayerID() {
			return view
		}
	}
	t.Fatal("player missing from snapshot")
	return ActorView{}
}

func TestCommandBufferDrainsInFIFOOrder(t *testing.T) {
	t.Parallel()

	buffer := NewCommandBuffer(4, nil)
	for _, id := range []string{"a", "b", "c"} {
		if !buffer.Push(Command{ActorID: id}) {
			t.Fatalf("push %s failed", id)
		}
	}

	drained := buffer.Drain()
	if len(drained) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(drained))
	}
	for i, id := range []string{"a", "b", "c"} {
		if drained[i].ActorID != id {
			t.Fatalf("order broken at %d: %v", i, drained)
		}
	}
	if buffer.Len() != 0 {
		t.Fatalf("buffer not cleared: %d", buffer.Len())
	}
}

func TestCommandBufferWrapsAround(t *testing.T) {
	t.Parallel()

	buffer := NewCommandBuffer(2, nil)
	buffer.Push(Command{ActorID: "a"})
	buffer.Drain()
	buffer.Push(Command{ActorID: "b"})
	buffer.Push(Command{ActorID: "c"})
	if buffer.Push(Command{ActorID: "d"}) {
		t.Fatal("push beyond capacity succeeded")
	}

	drained := buffer.Drain()
	if len(drained) != 2 || drained[0].ActorID != "b" || drained[1].ActorID != "c" {
		t.Fatalf("wraparound order broken: %v", drained)
	}
}
