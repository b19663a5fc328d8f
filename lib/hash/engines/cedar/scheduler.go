package cedar

import (
	"time"

	"github.com/ValentinKolb/hKV/lib/hash"
)

// --------------------------------------------------------------------------
// Active Expiration Scheduler
//
// The scheduler is a two-state machine: idle (no goroutine armed) and
// armed (a tick is pending on the timer). Every tick takes the engine
// mutex, so ticks and field operations are mutually exclusive and no
// sub-operation interleaving can occur. Disabling is cooperative: it is
// observed at the next tick boundary, not immediately.
// --------------------------------------------------------------------------

// StartActiveExpire arms the background sweep. Arming an armed scheduler
// is a no-op.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) StartActiveExpire() {
	c.sweepEnabled.Store(true)
	c.armSweep()
}

// StopActiveExpire disables the sweep. The running loop notices at its
// next tick boundary and transitions to idle.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) StopActiveExpire() {
	c.sweepEnabled.Store(false)
}

// armSweep starts the sweep goroutine if none is running.
func (c *cedarImpl) armSweep() {
	if c.sweepArmed.CompareAndSwap(false, true) {
		go c.sweepLoop()
	}
}

// sweepLoop is the sweep goroutine.
// WARNING: never call this directly, use StartActiveExpire / StopActiveExpire.
func (c *cedarImpl) sweepLoop() {
	timer := time.NewTimer(c.cfg.ActivePeriod)
	defer timer.Stop()

	for {
		<-timer.C

		if !c.sweepEnabled.Load() {
			c.sweepArmed.Store(false)
			// re-arm if an enable raced with this shutdown
			if c.sweepEnabled.Load() {
				c.armSweep()
			}
			return
		}

		c.tick()
		timer.Reset(c.cfg.ActivePeriod)
	}
}

// tick performs one bounded sweep: up to NamespacesPerTick namespaces
// starting at the rotating cursor, each swept with the per-tick key
// budget. Empty namespaces are skipped without consuming budget. On a
// replica the tick is a full no-op: no reaping, and no timing stats
// that would dilute the primary's averages.
func (c *cedarImpl) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.role != hash.RolePrimary {
		return
	}

	start := time.Now()

	now := c.cfg.Now()
	visited := 0
	for i := 0; i < len(c.nss) && visited < c.cfg.NamespacesPerTick; i++ {
		ns := c.cursor
		c.cursor = (c.cursor + 1) % len(c.nss)

		if c.nss[ns].Keys.Size() == 0 {
			continue
		}
		c.activeExpireNamespace(ns, now, c.cfg.KeysPerTick)
		visited++
	}

	elapsed := time.Since(start)
	c.lastTick = elapsed
	if elapsed > c.maxTick {
		c.maxTick = elapsed
	}
	c.tickCount++
	c.tickSum += elapsed
	if c.tickCount%avgTickWindow == 0 {
		c.avgTick = c.tickSum / avgTickWindow
		c.tickSum = 0
	}
	c.metrics.tickDuration.UpdateDuration(start)
}

// SweepAt reaps due fields in every namespace as of the supplied
// timestamp (docs see hash/hash.go). Unlike the timer-driven sweep this
// runs regardless of role: the timestamp comes from the caller, so a
// replicated store can apply the same sweep on every node and have them
// reap identical fields.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) SweepAt(now uint64, keysPerNamespace int) int {
	if keysPerNamespace <= 0 {
		keysPerNamespace = c.cfg.KeysPerTick
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	reaped := 0
	for ns := range c.nss {
		if c.nss[ns].Keys.Size() == 0 {
			continue
		}
		reaped += c.activeExpireNamespace(ns, now, keysPerNamespace)
	}
	return reaped
}

// --------------------------------------------------------------------------
// Statistics and role handling
// --------------------------------------------------------------------------

// ActiveExpireStats returns the current sweep statistics (docs see
// hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) ActiveExpireStats() hash.ActiveExpireStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := hash.ActiveExpireStats{
		Enabled:           c.sweepEnabled.Load(),
		Period:            c.cfg.ActivePeriod,
		NamespacesPerTick: c.cfg.NamespacesPerTick,
		KeysPerTick:       c.cfg.KeysPerTick,
		LastTick:          c.lastTick,
		MaxTick:           c.maxTick,
		AvgTick:           c.avgTick,
		ActiveExpired:     make([]uint64, len(c.nss)),
		PassiveExpired:    make([]uint64, len(c.nss)),
	}
	for i, nsp := range c.nss {
		stats.ActiveExpired[i] = nsp.ActiveExpired
		stats.PassiveExpired[i] = nsp.PassiveExpired
	}
	return stats
}

// SetRole switches the engine role (docs see hash/hash.go).
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) SetRole(role hash.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}

// Role returns the current engine role.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (c *cedarImpl) Role() hash.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}
