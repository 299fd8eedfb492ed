package playback

import "sync"

// Stopper is the stop operation a controller registers with the Coordinator.
type Stopper interface {
	Stop()
}

// Coordinator is the process-wide single playback slot. At most one
// controller is allowed to sound at a time; starting playback on any segment
// silences whichever other segment was playing.
type Coordinator struct {
	mu     sync.Mutex
	active Stopper
}

// NewCoordinator returns an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Acquire registers s as the active controller. If a different controller
// currently holds the slot, its Stop runs to completion before Acquire
// returns, so the caller never sounds concurrently with the previous holder.
func (c *Coordinator) Acquire(s Stopper) {
	c.mu.Lock()
	prev := c.active
	c.active = s
	c.mu.Unlock()

	// Stop outside the lock: prev.Stop ends up calling Release, which takes it.
	if prev != nil && prev != s {
		prev.Stop()
	}
}

// Release clears the slot only if s still owns it, guarding against
// releasing a slot already taken over by a newer controller.
func (c *Coordinator) Release(s Stopper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

// Occupied reports whether any controller currently holds the slot.
func (c *Coordinator) Occupied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}
