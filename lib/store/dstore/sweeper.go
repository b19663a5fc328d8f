package dstore

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/hKV/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
)

// SweepDriver periodically proposes a Sweep command to the cluster. The
// command carries this node's wall clock and a per-namespace key budget,
// so all replicas reap the same expired fields from the same point in
// time. Multiple nodes may run a driver concurrently; sweeps are
// idempotent and raft serializes them.
//
// Thread-safety: Start and Stop may be called from any goroutine, but
// not concurrently with each other.
type SweepDriver struct {
	nh        *dragonboat.NodeHost
	shardID   uint64
	timeout   time.Duration
	interval  time.Duration
	keysPerNS int
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewSweepDriver creates a driver that proposes one Sweep command per
// interval. keysPerNamespace bounds the work a single sweep may do in
// each namespace; zero lets the engine pick its default budget.
func NewSweepDriver(nh *dragonboat.NodeHost, shardID uint64, timeout, interval time.Duration, keysPerNamespace int) *SweepDriver {
	return &SweepDriver{
		nh:        nh,
		shardID:   shardID,
		timeout:   timeout,
		interval:  interval,
		keysPerNS: keysPerNamespace,
		done:      make(chan struct{}),
	}
}

// Start launches the background proposal loop.
func (d *SweepDriver) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.done:
				return
			case <-ticker.C:
				d.propose()
			}
		}
	}()
}

// Stop terminates the proposal loop and waits for it to exit.
func (d *SweepDriver) Stop() {
	close(d.done)
	d.wg.Wait()
}

// propose submits a single Sweep command. A failed proposal is logged
// and dropped; the next tick retries with a fresh timestamp.
func (d *SweepDriver) propose() {
	cmd := internal.Command{
		Type:     internal.CommandTSweep,
		ExpireAt: uint64(time.Now().UnixMilli()),
		Aux:      uint64(d.keysPerNS),
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if _, err := d.nh.SyncPropose(ctx, d.nh.GetNoOPSession(d.shardID), cmd.Serialize()); err != nil {
		log.Warningf("sweep proposal failed: %v", err)
	}
}
