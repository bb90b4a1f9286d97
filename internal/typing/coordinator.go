// ABOUTME: Debounced local typing broadcast and expiring remote typing display.
// ABOUTME: One idle timer re-armed per keystroke; remote indicator clears on expiry.

package typing

import (
	"sync"
	"time"
)

const (
	defaultIdle   = time.Second
	defaultExpiry = 4 * time.Second
)

// Coordinator manages typing state for one conversation screen.
type Coordinator struct {
	idle     time.Duration
	expiry   time.Duration
	announce func(started bool)
	onRemote func(active bool)

	mu          sync.Mutex
	stopped     bool
	announced   bool
	idleTimer   *time.Timer
	remoteOn    bool
	remoteTimer *time.Timer
}

// NewCoordinator wires the local announcement sink and the remote indicator
// callback. Zero durations use the defaults (1s idle, 4s expiry).
func NewCoordinator(idle, expiry time.Duration, announce func(bool), onRemote func(bool)) *Coordinator {
	if idle <= 0 {
		idle = defaultIdle
	}
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	if announce == nil {
		announce = func(bool) {}
	}
	if onRemote == nil {
		onRemote = func(bool) {}
	}
	return &Coordinator{
		idle:     idle,
		expiry:   expiry,
		announce: announce,
		onRemote: onRemote,
	}
}

// InputChanged reacts to the compose field changing. Non-empty input
// announces "typing started" once and re-arms the single idle timer;
// clearing the field stops immediately.
func (c *Coordinator) InputChanged(text string) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	if text == "" {
		wasAnnounced := c.announced
		c.announced = false
		c.cancelIdleLocked()
		c.mu.Unlock()
		if wasAnnounced {
			c.announce(false)
		}
		return
	}

	first := !c.announced
	c.announced = true

	// Re-arm rather than stack: one timer exists at a time.
	c.cancelIdleLocked()
	c.idleTimer = time.AfterFunc(c.idle, c.idleExpired)
	c.mu.Unlock()

	if first {
		c.announce(true)
	}
}

// idleExpired fires after a quiet period and announces "typing stopped".
func (c *Coordinator) idleExpired() {
	c.mu.Lock()
	if c.stopped || !c.announced {
		c.mu.Unlock()
		return
	}
	c.announced = false
	c.idleTimer = nil
	c.mu.Unlock()

	c.announce(false)
}

// RemoteTyping reflects a counter-party typing frame. A started indicator
// arms the expiry timer so it clears even if no stopped frame ever arrives.
func (c *Coordinator) RemoteTyping(active bool) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	changed := c.remoteOn != active
	c.remoteOn = active
	c.cancelRemoteLocked()
	if active {
		c.remoteTimer = time.AfterFunc(c.expiry, c.remoteExpired)
	}
	c.mu.Unlock()

	if changed {
		c.onRemote(active)
	}
}

// remoteExpired clears a stale indicator whose stop frame never arrived.
func (c *Coordinator) remoteExpired() {
	c.mu.Lock()
	if c.stopped || !c.remoteOn {
		c.mu.Unlock()
		return
	}
	c.remoteOn = false
	c.remoteTimer = nil
	c.mu.Unlock()

	c.onRemote(false)
}

// RemoteActive reports whether the counter-party indicator is showing.
func (c *Coordinator) RemoteActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteOn
}

// Stop cancels both timers for screen teardown. Subsequent calls are no-ops.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.announced = false
	c.remoteOn = false
	c.cancelIdleLocked()
	c.cancelRemoteLocked()
}

func (c *Coordinator) cancelIdleLocked() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

func (c *Coordinator) cancelRemoteLocked() {
	if c.remoteTimer != nil {
		c.remoteTimer.Stop()
		c.remoteTimer = nil
	}
}
