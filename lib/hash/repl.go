package hash

// --------------------------------------------------------------------------
// Replication Contract
// --------------------------------------------------------------------------

// Replicator receives field deletions whose cause is expiry on a primary
// engine. Expiry depends on the local clock, so replicas must never
// evaluate it themselves; instead the primary turns every expiry into an
// explicit deletion event that downstream stores replay verbatim.
//
// fromTimer distinguishes deletions found by the background sweep from
// deletions found passively on access; consumers that batch or log
// events can use it to separate the two paths.
//
// Thread-safety: called while the engine holds its mutation lock.
// Implementations must not call back into the engine; hand the event to
// another goroutine instead (see util.LockFreeMPSC).
type Replicator interface {
	FieldExpired(ns int, key, field string, fromTimer bool)
}

// NopReplicator drops all events. Used by standalone engines whose
// expiry deletions have no downstream consumers.
type NopReplicator struct{}

func (NopReplicator) FieldExpired(int, string, string, bool) {}
