// Package journal records per-tick state diffs and a bounded ring of
// keyframes so renderer clients can resync from a keyframe and replay
// patches forward.
package journal

import "time"

// Telemetry captures the metrics adapter used by the journal to report
// evictions and drops.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

// PatchKind identifies the type of diff entry.
type PatchKind string

const (
	// PatchActorPos updates an actor's position.
	PatchActorPos PatchKind = "actor_pos"
	// PatchActorHealth updates an actor's health pool.
	PatchActorHealth PatchKind = "actor_health"
	// PatchActorState updates an actor's lifecycle state.
	PatchActorState PatchKind = "actor_state"
	// PatchActorRemoved signals that an actor left the registry.
	PatchActorRemoved PatchKind = "actor_removed"
	// PatchProjectileSpawned signals a new projectile.
	PatchProjectileSpawned PatchKind = "projectile_spawned"
	// PatchProjectilePos updates a projectile's position.
	PatchProjectilePos PatchKind = "projectile_pos"
	// PatchProjectileRemoved signals a consumed or expired projectile.
	PatchProjectileRemoved PatchKind = "projectile_removed"
)

// Patch represents a diff entry that can be applied to a client's view.
type Patch struct {
	Kind     PatchKind `json:"kind"`
	EntityID string    `json:"entityId"`
	Payload  any       `json:"payload,omitempty"`
}

// PositionPayload carries coordinates for a position patch.
type PositionPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HealthPayload carries health for a health patch.
type HealthPayload struct {
	Health    int `json:"health"`
	MaxHealth int `json:"maxHealth"`
}

// StatePayload carries the lifecycle state for a state patch.
type StatePayload struct {
	State string `json:"state"`
}

// RemovedPayload carries the reason an entity was removed.
type RemovedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// Keyframe is an immutable full-state snapshot stored in the ring. Data is
// the wire-encoded snapshot; the journal treats it as opaque.
type Keyframe struct {
	Tick       uint64    `json:"tick"`
	Sequence   uint64    `json:"sequence"`
	RecordedAt time.Time `json:"recordedAt"`
	Data       []byte    `json:"-"`
}

// Eviction describes a keyframe removed from the ring and why.
type Eviction struct {
	Sequence uint64 `json:"sequence"`
	Tick     uint64 `json:"tick"`
	Reason   string `json:"reason,omitempty"`
}

// RecordResult reports ring state after storing a keyframe.
type RecordResult struct {
	Size           int        `json:"size"`
	OldestSequence uint64     `json:"oldestSequence"`
	NewestSequence uint64     `json:"newestSequence"`
	Evicted        []Eviction `json:"evicted,omitempty"`
}

// Journal accumulates patches for the current tick and retains keyframes
// under a capacity and max-age policy. Owned by the simulation loop; not
// safe for concurrent use.
type Journal struct {
	patches   []Patch
	keyframes []Keyframe
	capacity  int
	maxAge    time.Duration
	nextSeq   uint64
	telemetry Telemetry
}

// New constructs a journal retaining up to capacity keyframes no older than
// maxAge.
func New(capacity int, maxAge time.Duration) *Journal {
	if capacity < 1 {
		capacity = 1
	}
	return &Journal{capacity: capacity, maxAge: maxAge}
}

// AttachTelemetry wires the metrics adapter after construction.
func (j *Journal) AttachTelemetry(t Telemetry) {
	if j == nil {
		return
	}
	j.telemetry = t
}

// Append stages a patch for the current tick.
func (j *Journal) Append(patch Patch) {
	if j == nil {
		return
	}
	j.patches = append(j.patches, patch)
}

// DrainPatches returns the staged patches in append order and clears the
// buffer.
func (j *Journal) DrainPatches() []Patch {
	if j == nil || len(j.patches) == 0 {
		return nil
	}
	drained := j.patches
	j.patches = nil
	return drained
}

// PendingPatches reports the number of staged patches.
func (j *Journal) PendingPatches() int {
	if j == nil {
		return 0
	}
	return len(j.patches)
}

// RecordKeyframe stores a keyframe, assigning its sequence and evicting by
// capacity and age.
func (j *Journal) RecordKeyframe(frame Keyframe) RecordResult {
	if j == nil {
		return RecordResult{}
	}
	j.nextSeq++
	frame.Sequence = j.nextSeq
	if frame.RecordedAt.IsZero() {
		frame.RecordedAt = time.Now()
	}
	j.keyframes = append(j.keyframes, frame)

	var evicted []Eviction
	for len(j.keyframes) > j.capacity {
		oldest := j.keyframes[0]
		j.keyframes = j.keyframes[1:]
		evicted = append(evicted, Eviction{Sequence: oldest.Sequence, Tick: oldest.Tick, Reason: "capacity"})
		j.recordDrop("journal_keyframe_evicted_capacity")
	}
	if j.maxAge > 0 {
		cutoff := frame.RecordedAt.Add(-j.maxAge)
		for len(j.keyframes) > 1 && j.keyframes[0].RecordedAt.Before(cutoff) {
			oldest := j.keyframes[0]
			j.keyframes = j.keyframes[1:]
			evicted = append(evicted, Eviction{Sequence: oldest.Sequence, Tick: oldest.Tick, Reason: "age"})
			j.recordDrop("journal_keyframe_evicted_age")
		}
	}

	result := RecordResult{Size: len(j.keyframes), NewestSequence: frame.Sequence, Evicted: evicted}
	if len(j.keyframes) > 0 {
		result.OldestSequence = j.keyframes[0].Sequence
	}
	return result
}

// KeyframeBySequence looks up a retained keyframe.
func (j *Journal) KeyframeBySequence(sequence uint64) (Keyframe, bool) {
	if j == nil {
		return Keyframe{}, false
	}
	for _, frame := range j.keyframes {
		if frame.Sequence == sequence {
			return frame, true
		}
	}
	return Keyframe{}, false
}

// Latest returns the newest retained keyframe.
func (j *Journal) Latest() (Keyframe, bool) {
	if j == nil || len(j.keyframes) == 0 {
		return Keyframe{}, false
	}
	return j.keyframes[len(j.keyframes)-1], true
}

// Window reports the retained keyframe count and sequence bounds.
func (j *Journal) Window() (int, uint64, uint64) {
	if j == nil || len(j.keyframes) == 0 {
		return 0, 0, 0
	}
	return len(j.keyframes), j.keyframes[0].Sequence, j.keyframes[len(j.keyframes)-1].Sequence
}

func (j *Journal) recordDrop(metric string) {
	if j.telemetry != nil {
		j.telemetry.RecordJournalDrop(metric)
	}
}
