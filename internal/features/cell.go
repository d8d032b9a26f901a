package features

import "sync/atomic"

// Cell hands the latest Snapshot from the vision pipeline to the scoring
// loop. Writers replace the whole snapshot; readers never see a partial one.
// Older snapshots are simply overwritten.
type Cell struct {
	p atomic.Pointer[Snapshot]
}

// Store publishes s as the latest snapshot.
func (c *Cell) Store(s Snapshot) {
	c.p.Store(&s)
}

// Load returns the latest snapshot, or Empty if nothing has been stored.
func (c *Cell) Load() Snapshot {
	if s := c.p.Load(); s != nil {
		return *s
	}
	return Empty()
}

// Reset forgets the stored snapshot.
func (c *Cell) Reset() {
	c.p.Store(nil)
}
