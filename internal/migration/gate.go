package migration

import "sync/atomic"

// Gate tells incremental hooks whether a bulk run is in flight in this
// process, so they can skip work the batch will do anyway.
type Gate struct {
	active atomic.Int32
}

// Enter marks a bulk run active.
func (g *Gate) Enter() {
	g.active.Add(1)
}

// Exit marks a bulk run finished.
func (g *Gate) Exit() {
	g.active.Add(-1)
}

// BatchActive reports whether any bulk run is active.
func (g *Gate) BatchActive() bool {
	return g.active.Load() > 0
}
