package sim

import (
	"time"

	"emberfall/server/internal/journal"
)

// EngineCore defines the surface the loop drives each tick.
type EngineCore interface {
	Deps() Deps
	Apply([]Command) error
	Step()
	Snapshot() Snapshot
	DrainPatches() []journal.Patch
	RecordKeyframe() journal.RecordResult
	KeyframeBySequence(uint64) (journal.Keyframe, bool)
	KeyframeWindow() (int, uint64, uint64)
	Revalidate()
}

// Engine defines the minimal surface area exposed to non-simulation callers.
type Engine interface {
	Apply([]Command) error
	Step()
	Snapshot() Snapshot
	DrainPatches() []journal.Patch
	KeyframeBySequence(uint64) (journal.Keyframe, bool)
	KeyframeWindow() (int, uint64, uint64)
}

// LoopTickContext carries per-tick timing into the engine.
type LoopTickContext struct {
	Tick  uint64
	Now   time.Time
	Delta float64
}

// LoopStepResult summarizes one advanced tick for observers.
type LoopStepResult struct {
	Tick         uint64
	Now          time.Time
	Delta        float64
	Steps        int
	Snapshot     Snapshot
	Patches      []journal.Patch
	Commands     []Command
	Duration     time.Duration
	Budget       time.Duration
	ClampedDelta bool
	MaxDelta     float64
	Resumed      bool
}

// LoopHooks let the embedding application observe loop progress.
type LoopHooks struct {
	Prepare        func(LoopTickContext)
	AfterStep      func(LoopStepResult)
	NextTick       func() uint64
	OnCommandDrop  func(reason string, cmd Command)
	OnQueueWarning func(length int)
}
