package actor

import "fmt"

// Registry owns all actors and projectiles for the active world context.
// Iteration follows insertion order so downstream event processing stays
// deterministic. Owned exclusively by the simulation loop; not safe for
// concurrent use.
type Registry struct {
	actors  []*Actor
	byID    map[string]*Actor
	nextSeq uint64

	projectiles   []*Projectile
	projectileIDs map[string]*Projectile
	nextProjSeq   uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:          make(map[string]*Actor),
		projectileIDs: make(map[string]*Projectile),
	}
}

// NextActorID mints a stable id with the given prefix.
func (r *Registry) NextActorID(prefix string) string {
	if r == nil {
		return ""
	}
	r.nextSeq++
	return fmt.Sprintf("%s-%d", prefix, r.nextSeq)
}

// AddActor registers an actor, rejecting duplicate ids.
func (r *Registry) AddActor(a *Actor) error {
	if r == nil || a == nil || a.ID == "" {
		return fmt.Errorf("registry: invalid actor")
	}
	if _, exists := r.byID[a.ID]; exists {
		return fmt.Errorf("registry: duplicate actor id %q", a.ID)
	}
	r.actors = append(r.actors, a)
	r.byID[a.ID] = a
	return nil
}

// Actor looks up an actor by id, including eliminated actors that have not
// yet been compacted out.
func (r *Registry) Actor(id string) (*Actor, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.byID[id]
	return a, ok
}

// RemoveActor drops an actor from the registry.
func (r *Registry) RemoveActor(id string) {
	if r == nil {
		return
	}
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	for i, a := range r.actors {
		if a.ID == id {
			r.actors = append(r.actors[:i], r.actors[i+1:]...)
			break
		}
	}
}

// ForEachActor visits live actors in insertion order. Eliminated actors
// awaiting compaction are skipped; they are no longer part of the iterable
// set.
func (r *Registry) ForEachActor(fn func(*Actor)) {
	if r == nil || fn == nil {
		return
	}
	for _, a := range r.actors {
		if a.State == StateEliminated {
			continue
		}
		fn(a)
	}
}

// LiveCount reports the number of actors in the iterable set.
func (r *Registry) LiveCount() int {
	if r == nil {
		return 0
	}
	count := 0
	for _, a := range r.actors {
		if a.State != StateEliminated {
			count++
		}
	}
	return count
}

// CompactEliminated removes every eliminated actor, returning the removed
// ids. Called once per tick at the boundary.
func (r *Registry) CompactEliminated() []string {
	if r == nil {
		return nil
	}
	var removed []string
	kept := r.actors[:0]
	for _, a := range r.actors {
		if a.State == StateEliminated {
			delete(r.byID, a.ID)
			removed = append(removed, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	r.actors = kept
	return removed
}

// RetainActors keeps only the actors whose ids pass the filter, returning the
// removed ids. Used by mode transitions to discard transient actors.
func (r *Registry) RetainActors(keep func(*Actor) bool) []string {
	if r == nil || keep == nil {
		return nil
	}
	var removed []string
	kept := r.actors[:0]
	for _, a := range r.actors {
		if keep(a) {
			kept = append(kept, a)
			continue
		}
		delete(r.byID, a.ID)
		removed = append(removed, a.ID)
	}
	r.actors = kept
	return removed
}

// NextProjectileID mints a stable projectile id.
func (r *Registry) NextProjectileID() string {
	if r == nil {
		return ""
	}
	r.nextProjSeq++
	return fmt.Sprintf("proj-%d", r.nextProjSeq)
}

// AddProjectile registers a projectile, rejecting duplicate ids.
func (r *Registry) AddProjectile(p *Projectile) error {
	if r == nil || p == nil || p.ID == "" {
		return fmt.Errorf("registry: invalid projectile")
	}
	if _, exists := r.projectileIDs[p.ID]; exists {
		return fmt.Errorf("registry: duplicate projectile id %q", p.ID)
	}
	r.projectiles = append(r.projectiles, p)
	r.projectileIDs[p.ID] = p
	return nil
}

// Projectile looks up a projectile by id.
func (r *Registry) Projectile(id string) (*Projectile, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.projectileIDs[id]
	return p, ok
}

// ForEachProjectile visits projectiles in insertion order, including ones
// already marked consumed this tick.
func (r *Registry) ForEachProjectile(fn func(*Projectile)) {
	if r == nil || fn == nil {
		return
	}
	for _, p := range r.projectiles {
		fn(p)
	}
}

// ProjectileCount reports the number of registered projectiles.
func (r *Registry) ProjectileCount() int {
	if r == nil {
		return 0
	}
	return len(r.projectiles)
}

// CompactProjectiles removes consumed and expired projectiles, returning the
// removed ids.
func (r *Registry) CompactProjectiles() []string {
	if r == nil {
		return nil
	}
	var removed []string
	kept := r.projectiles[:0]
	for _, p := range r.projectiles {
		if p.Consumed || p.TTLRemaining <= 0 {
			delete(r.projectileIDs, p.ID)
			removed = append(removed, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	r.projectiles = kept
	return removed
}

// ClearProjectiles drops every projectile, returning the removed ids.
func (r *Registry) ClearProjectiles() []string {
	if r == nil {
		return nil
	}
	removed := make([]string, 0, len(r.projectiles))
	for _, p := range r.projectiles {
		removed = append(removed, p.ID)
	}
	r.projectiles = r.projectiles[:0]
	clear(r.projectileIDs)
	return removed
}
