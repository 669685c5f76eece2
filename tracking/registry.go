package tracking

import (
	"sockettrace/tracklog"
)

// pidFD identifies a tracker slot independent of generation, used only
// to track the highest generation observed for a given (pid, fd) so the
// registry can tell a brand new connection on a reused fd from a
// late-arriving event for one it already has.
type pidFD struct {
	pid uint32
	fd  uint32
}

// connKey is the full identity a tracker is stored under: every
// generation of a (pid, fd) slot gets its own entry, so an older
// generation's tracker is never overwritten or lost when the fd is
// reused — it stays in the registry, still ticking and still reachable
// by its own trailing events, until its countdown expires.
type connKey struct {
	pid        uint32
	fd         uint32
	generation uint32
}

// Registry owns every live ConnectionTracker exclusively; trackers never
// hold a back-reference to the registry. It dispatches incoming events
// by (pid, fd, generation) and prunes destruction-ready trackers on each
// tick.
type Registry struct {
	cfg      Config
	trackers map[connKey]*ConnectionTracker
	// latestGeneration is the highest generation ever observed for a
	// given (pid, fd) slot, kept even after that generation's tracker is
	// swept, so a later reused fd is still compared against it correctly.
	latestGeneration map[pidFD]uint32
}

// NewRegistry returns an empty registry configured with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:              cfg,
		trackers:         make(map[connKey]*ConnectionTracker),
		latestGeneration: make(map[pidFD]uint32),
	}
}

// Len returns the number of trackers currently tracked, live or zombie,
// across every generation.
func (r *Registry) Len() int { return len(r.trackers) }

// getOrCreate returns the tracker for connID's exact (pid, fd,
// generation), creating one if absent. When this is the first event
// seen for a generation newer than any seen before for this (pid, fd),
// the previous generation's tracker (if it still exists) is marked for
// death but left in the registry under its own key.
func (r *Registry) getOrCreate(connID ConnectionID) *ConnectionTracker {
	pf := pidFD{pid: connID.PID, fd: connID.FD}
	key := connKey{pid: connID.PID, fd: connID.FD, generation: connID.Generation}

	if tr, exists := r.trackers[key]; exists {
		return tr
	}

	if latest, seen := r.latestGeneration[pf]; seen {
		if connID.Generation > latest {
			if old, ok := r.trackers[connKey{pid: pf.pid, fd: pf.fd, generation: latest}]; ok {
				tracklog.Warnf("Registry: pid=%d fd=%d generation advanced %d -> %d, retiring stale tracker",
					connID.PID, connID.FD, latest, connID.Generation)
				old.MarkForDeath(r.cfg.DeathCountdownIters)
			}
			r.latestGeneration[pf] = connID.Generation
		}
	} else {
		r.latestGeneration[pf] = connID.Generation
	}

	tr := NewConnectionTracker(r.cfg)
	r.trackers[key] = tr
	return tr
}

// Tracker returns the tracker registered for connID's exact (pid, fd,
// generation), if any, without creating one.
func (r *Registry) Tracker(connID ConnectionID) (*ConnectionTracker, bool) {
	tr, exists := r.trackers[connKey{pid: connID.PID, fd: connID.FD, generation: connID.Generation}]
	return tr, exists
}

// AcceptConnOpenEvent dispatches an open event to its tracker, creating
// one on first observation of this connection.
func (r *Registry) AcceptConnOpenEvent(info ConnOpenInfo) {
	r.getOrCreate(info.ConnID).AddConnOpenEvent(info)
}

// AcceptConnCloseEvent dispatches a close event to its tracker.
func (r *Registry) AcceptConnCloseEvent(info ConnCloseInfo) {
	r.getOrCreate(info.ConnID).AddConnCloseEvent(info)
}

// AcceptDataEvent dispatches a data event to its tracker.
func (r *Registry) AcceptDataEvent(event SocketDataEvent) {
	r.getOrCreate(event.ConnID).AddDataEvent(event)
}

// IterationTick advances every tracked tracker (every generation still
// on record) by one tick, then sweeps out any that became ready for
// destruction.
func (r *Registry) IterationTick() {
	for key, tr := range r.trackers {
		tr.IterationTick()
		if tr.ReadyForDestruction() {
			delete(r.trackers, key)
		}
	}
}

// ForEach calls fn for every currently tracked tracker, including
// retiring older generations still draining their countdown window. fn
// must not mutate the registry.
func (r *Registry) ForEach(fn func(connID ConnectionID, t *ConnectionTracker)) {
	for key, tr := range r.trackers {
		fn(ConnectionID{PID: key.pid, FD: key.fd, Generation: key.generation}, tr)
	}
}
