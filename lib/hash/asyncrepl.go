package hash

import (
	"github.com/ValentinKolb/hKV/lib/hash/util"
)

// ExpiredField is one expiry-caused deletion as handed to a Replicator.
type ExpiredField struct {
	NS        int
	Key       string
	Field     string
	FromTimer bool
}

// AsyncReplicator decouples the engine's expiry callback from its
// consumer. FieldExpired runs under the engine's mutation lock, so a
// consumer that logs, forwards or proposes downstream must not run
// inline there. The async replicator pushes every event into a
// lock-free queue and delivers it to the sink on a dedicated goroutine,
// from which calling back into the engine is safe.
//
// Events pushed before Close are still delivered; events arriving after
// Close are dropped.
type AsyncReplicator struct {
	queue *util.LockFreeMPSC[ExpiredField]
	done  chan struct{}
}

// NewAsyncReplicator creates the replicator and starts its delivery
// goroutine.
func NewAsyncReplicator(sink func(e ExpiredField)) *AsyncReplicator {
	r := &AsyncReplicator{
		queue: util.NewLockFreeMPSC[ExpiredField](),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		for e := range r.queue.Recv() {
			sink(*e)
		}
	}()

	return r
}

// FieldExpired implements Replicator. It never blocks and never calls
// the sink inline.
//
// Thread-safety: This method is safe for concurrent use.
func (r *AsyncReplicator) FieldExpired(ns int, key, field string, fromTimer bool) {
	r.queue.Push(&ExpiredField{
		NS:        ns,
		Key:       key,
		Field:     field,
		FromTimer: fromTimer,
	})
}

// Close stops the replicator after draining queued events and waits for
// the delivery goroutine to exit.
func (r *AsyncReplicator) Close() {
	r.queue.Close()
	<-r.done
}
