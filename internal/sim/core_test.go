package sim

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"emberfall/server/internal/actor"
	"emberfall/server/internal/geom"
	"emberfall/server/internal/telemetry"
	"emberfall/server/internal/world"
	"emberfall/server/logging"
)

func testWorldConfig() world.Config {
	return world.Config{
		Kind:        world.KindTopDown,
		Width:       640,
		Height:      640,
		PlayerSpawn: geom.Vec2{X: 320, Y: 320},
		Spawns: []world.Spawn{
			{Kind: actor.KindHostileStandard, Position: geom.Vec2{X: 480, Y: 320}},
		},
	}
}

func newTestCore(t *testing.T, cfg world.Config) (*Core, *logging.Metrics) {
	t.Helper()
	wctx, err := world.NewContext(cfg)
	if err != nil {
		t.Fatalf("world context: %v", err)
	}
	metrics := logging.NewMetrics()
	core, err := NewCore(CoreConfig{}, Deps{Metrics: telemetry.WrapMetrics(metrics)}, wctx)
	if err != nil {
		t.Fatalf("core: %v", err)
	}
	return core, metrics
}

func TestStepAdvancesTickMonotonically(t *testing.T) {
	t.Parallel()

	core, _ := newTestCore(t, testWorldConfig())
	last := core.Tick()
	for i := 0; i < 10; i++ {
		core.Step()
		if core.Tick() != last+1 {
			t.Fatalf("tick jumped from %d to %d", last, core.Tick())
		}
		last = core.Tick()
	}
}

func TestStepKeepsGridAndRegistryInParity(t *testing.T) {
	t.Parallel()

	core, metrics := newTestCore(t, testWorldConfig())

	core.Apply([]Command{{Type: CommandFire, ActorID: core.PlayerID(), Fire: &FireCommand{DirX: 1}}})
	for i := 0; i < 120; i++ {
		core.Step()
	}

	if got := metrics.CounterValue("sim_grid_registry_divergence_total"); got != 0 {
		t.Fatalf("grid and registry diverged %d times", got)
	}
	if got := metrics.CounterValue("sim_grid_duplicate_insert_total"); got != 0 {
		t.Fatalf("%d duplicate grid inserts", got)
	}
}

func TestFireCommandDamagesHostile(t *testing.T) {
	t.Parallel()

	core, _ := newTestCore(t, testWorldConfig())

	core.Apply([]Command{{Type: CommandFire, ActorID: core.PlayerID(), Fire: &FireCommand{DirX: 1}}})

	var hostileHealth int
	for i := 0; i < 30; i++ {
		core.Step()
	}
	for _, view := range core.Snapshot().Actors {
		if view.Kind == actor.KindHostileStandard {
			hostileHealth = view.Health
		}
	}

	params := actor.ParamsFor(actor.KindHostileStandard)
	if hostileHealth != params.MaxHealth-1 {
		t.Fatalf("expected hostile at %d health after one hit, got %d", params.MaxHealth-1, hostileHealth)
	}
	if len(core.Snapshot().Projectiles) != 0 {
		t.Fatal("projectile not consumed after hit")
	}
}

func TestScheduledTransitionAppliesAtNextStep(t *testing.T) {
	t.Parallel()

	core, metrics := newTestCore(t, testWorldConfig())
	for i := 0; i < 5; i++ {
		core.Step()
	}
	tickBefore := core.Tick()

	err := core.ScheduleModeTransition(world.Config{
		Kind:        world.KindSideScroller,
		Width:       27200,
		Height:      1200,
		PlayerSpawn: geom.Vec2{X: 96, Y: 1000},
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	// The swap is staged; nothing changes until the next step runs.
	if got := core.Snapshot().WorldKind; got != string(world.KindTopDown) {
		t.Fatalf("transition applied before step: %s", got)
	}

	core.Step()

	snapshot := core.Snapshot()
	if snapshot.WorldKind != string(world.KindSideScroller) {
		t.Fatalf("world kind not swapped: %s", snapshot.WorldKind)
	}
	if snapshot.Width != 27200 {
		t.Fatalf("bounds not swapped: %v", snapshot.Width)
	}
	if core.Tick() != tickBefore+1 {
		t.Fatalf("tick sequence broken across transition: %d -> %d", tickBefore, core.Tick())
	}
	for _, view := range snapshot.Actors {
		if view.Kind != actor.KindPlayer {
			t.Fatalf("transient actor survived transition: %+v", view)
		}
	}
	if got := metrics.CounterValue("sim_mode_transitions_total"); got != 1 {
		t.Fatalf("transition metric %d", got)
	}

	// The sim keeps running cleanly in the new world.
	for i := 0; i < 30; i++ {
		core.Step()
	}
	if got := metrics.CounterValue("sim_grid_registry_divergence_total"); got != 0 {
		t.Fatalf("divergence after transition: %d", got)
	}
	if got := metrics.CounterValue("sim_world_revision_mismatch_total"); got != 0 {
		t.Fatalf("revision mismatch after transition: %d", got)
	}
}

func TestRevalidateClampsFrozenTimers(t *testing.T) {
	t.Parallel()

	core, _ := newTestCore(t, testWorldConfig())
	player, ok := core.Registry().Actor(core.PlayerID())
	if !ok {
		t.Fatal("player missing")
	}
	player.State = actor.StateInvulnerable
	player.InvulnerabilityRemaining = 600

	core.Revalidate()

	if player.InvulnerabilityRemaining > actor.InvulnerabilityWindow {
		t.Fatalf("timer not clamped after resume: %v", player.InvulnerabilityRemaining)
	}
}

func TestKeyframeRoundTripsThroughJournal(t *testing.T) {
	t.Parallel()

	core, _ := newTestCore(t, testWorldConfig())
	for i := 0; i < 3; i++ {
		core.Step()
	}

	record := core.RecordKeyframe()
	if record.Size == 0 {
		t.Fatal("keyframe not recorded")
	}

	frame, ok := core.KeyframeBySequence(record.NewestSequence)
	if !ok {
		t.Fatalf("sequence %d not retained", record.NewestSequence)
	}
	var decoded Snapshot
	if err := msgpack.Unmarshal(frame.Data, &decoded); err != nil {
		t.Fatalf("decode keyframe: %v", err)
	}
	if decoded.Tick != core.Tick() {
		t.Fatalf("keyframe tick mismatch: %d vs %d", decoded.Tick, core.Tick())
	}
	if len(decoded.Actors) == 0 {
		t.Fatal("keyframe lost actors")
	}
}

func TestKeyframeEvictionIncrementsTelemetryCounter(t *testing.T) {
	t.Parallel()

	wctx, err := world.NewContext(testWorldConfig())
	if err != nil {
		t.Fatalf("world context: %v", err)
	}
	metrics := logging.NewMetrics()
	core, err := NewCore(CoreConfig{JournalCapacity: 1}, Deps{Metrics: telemetry.WrapMetrics(metrics)}, wctx)
	if err != nil {
		t.Fatalf("core: %v", err)
	}

	core.RecordKeyframe()
	record := core.RecordKeyframe()
	if len(record.Evicted) != 1 {
		t.Fatalf("expected one eviction, got %+v", record.Evicted)
	}
	if got := metrics.CounterValue("journal_keyframe_evicted_capacity"); got != 1 {
		t.Fatalf("eviction counter not incremented: %d", got)
	}
}

func TestRestoreSnapshotRebuildsRegistry(t *testing.T) {
	t.Parallel()

	source, _ := newTestCore(t, testWorldConfig())
	for i := 0; i < 10; i++ {
		source.Step()
	}
	snapshot := source.Snapshot()

	restored, metrics := newTestCore(t, testWorldConfig())
	restored.RestoreSnapshot(snapshot.Actors)

	if restored.PlayerID() == "" {
		t.Fatal("player id lost in restore")
	}
	if restored.Registry().LiveCount() != len(snapshot.Actors) {
		t.Fatalf("actor count mismatch: %d vs %d", restored.Registry().LiveCount(), len(snapshot.Actors))
	}

	// The restored world steps cleanly with a freshly rebuilt grid.
	for i := 0; i < 30; i++ {
		restored.Step()
	}
	if got := metrics.CounterValue("sim_grid_registry_divergence_total"); got != 0 {
		t.Fatalf("divergence after restore: %d", got)
	}
}

func TestApplyIgnoresCommandsWithoutPlayer(t *testing.T) {
	t.Parallel()

	core, _ := newTestCore(t, testWorldConfig())
	core.Registry().RemoveActor(core.PlayerID())

	if err := core.Apply([]Command{{Type: CommandMove, ActorID: core.PlayerID(), Move: &MoveCommand{DX: 1}}}); err != nil {
		t.Fatalf("apply errored: %v", err)
	}
}
