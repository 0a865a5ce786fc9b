package transfer

import "sync/atomic"

// Controls carries the cooperative pause/cancel flags shared by all workers
// of one job. Workers check the flags at chunk boundaries; neither flag
// interrupts an in-flight chunk.
type Controls struct {
	paused    atomic.Bool
	cancelled atomic.Bool
}

// Pause raises the pause flag.
func (c *Controls) Pause() { c.paused.Store(true) }

// Unpause clears the pause flag.
func (c *Controls) Unpause() { c.paused.Store(false) }

// Cancel raises the cancel flag. Cancel is terminal; it is never cleared.
func (c *Controls) Cancel() { c.cancelled.Store(true) }

// Paused reports whether the pause flag is set.
func (c *Controls) Paused() bool { return c.paused.Load() }

// Cancelled reports whether the cancel flag is set.
func (c *Controls) Cancelled() bool { return c.cancelled.Load() }
