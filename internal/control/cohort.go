package control

import (
	"time"

	"github.com/plugctl/plugd/internal/registry"
)

// Cohort is the set of pending plugin-startup handshakes a single control
// request waits for. It is created by the dispatcher, owned by its request,
// and only ever touched from the plane's event loop.
type Cohort struct {
	req       *Request
	expected  int                             // fixed at creation
	completed int                             // members that signalled success
	failed    bool                            // sticky, first failure wins
	pending   map[*registry.Record]struct{}   // members without a terminal signal yet
	timer     *time.Timer
}

// take consumes rec's pending slot. A second signal for the same member,
// or a signal for a record that never belonged to the cohort, returns
// false and must be discarded.
func (c *Cohort) take(rec *registry.Record) bool {
	if _, ok := c.pending[rec]; !ok {
		return false
	}
	delete(c.pending, rec)

	return true
}

// stopTimer cancels the unresolved-cohort bound once a terminal signal won.
func (c *Cohort) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
	}
}
