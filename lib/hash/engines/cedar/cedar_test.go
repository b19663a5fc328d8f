package cedar

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/hKV/lib/hash"
	"github.com/ValentinKolb/hKV/lib/hash/index"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// fakeClock is a manually advanced millisecond clock for deterministic
// expiry tests.
type fakeClock struct {
	now uint64
}

func (f *fakeClock) Now() uint64 {
	return f.now
}

func (f *fakeClock) Advance(ms uint64) {
	f.now += ms
}

// recordingReplicator collects every expiry-caused deletion it is handed.
type recordingReplicator struct {
	events []expiryEvent
}

type expiryEvent struct {
	ns        int
	key       string
	field     string
	fromTimer bool
}

func (r *recordingReplicator) FieldExpired(ns int, key, field string, fromTimer bool) {
	r.events = append(r.events, expiryEvent{ns, key, field, fromTimer})
}

// newTestEngine creates an engine with a fake clock and a dormant sweep
// loop, so ticks only happen when the test calls tick() itself.
func newTestEngine(t *testing.T, mode index.Mode, clock *fakeClock, repl hash.Replicator) *cedarImpl {
	t.Helper()
	cfg := DefaultConfig()
	cfg.IndexMode = mode
	cfg.ActivePeriod = time.Hour
	cfg.Now = clock.Now
	cfg.Replicator = repl

	engine := NewCedarDB(cfg).(*cedarImpl)
	engine.StopActiveExpire()
	t.Cleanup(func() { engine.Close() })
	return engine
}

func set(t *testing.T, c *cedarImpl, ns int, key, field string, opts hash.SetOptions) {
	t.Helper()
	if _, err := c.Set(ns, key, field, []byte("v"), opts); err != nil {
		t.Fatalf("Set(%s/%s) failed: %v", key, field, err)
	}
}

// --------------------------------------------------------------------------
// Sweep behavior
// --------------------------------------------------------------------------

func TestTickRespectsKeyBudget(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)
	c.cfg.KeysPerTick = 1

	set(t, c, 0, "key-a", "f", hash.SetOptions{ExpireAt: 1500})
	set(t, c, 0, "key-b", "f", hash.SetOptions{ExpireAt: 1600})
	clock.Advance(1000)

	c.tick()

	stats := c.ActiveExpireStats()
	if stats.ActiveExpired[0] != 1 {
		t.Fatalf("One tick with budget 1 should reap exactly one key, got %d", stats.ActiveExpired[0])
	}

	c.tick()

	stats = c.ActiveExpireStats()
	if stats.ActiveExpired[0] != 2 {
		t.Fatalf("Second tick should reap the remaining key, got %d", stats.ActiveExpired[0])
	}
	if c.nss[0].Keys.Size() != 0 {
		t.Errorf("All key objects should be gone, %d remain", c.nss[0].Keys.Size())
	}
}

func TestTickReapsAllDueFieldsOfVisitedKey(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)
	c.cfg.KeysPerTick = 1

	for i := 0; i < 10; i++ {
		set(t, c, 0, "key", fmt.Sprintf("f-%d", i), hash.SetOptions{ExpireAt: uint64(1100 + i)})
	}
	set(t, c, 0, "key", "later", hash.SetOptions{ExpireAt: 900_000})
	clock.Advance(1000)

	c.tick()

	if n := c.Len(0, "key", false); n != 1 {
		t.Errorf("A visited key should lose all its due fields at once, %d fields remain", n)
	}
	if !c.Exists(0, "key", "later") {
		t.Error("Fields that are not due yet must survive the sweep")
	}
}

func TestTickRotatesAcrossNamespaces(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)
	c.cfg.NamespacesPerTick = 1

	// empty namespaces between the populated ones must not consume budget
	set(t, c, 2, "key", "f", hash.SetOptions{ExpireAt: 1100})
	set(t, c, 9, "key", "f", hash.SetOptions{ExpireAt: 1100})
	clock.Advance(1000)

	c.tick()
	c.tick()

	stats := c.ActiveExpireStats()
	if stats.ActiveExpired[2] != 1 || stats.ActiveExpired[9] != 1 {
		t.Errorf("Two ticks with budget 1 should have swept both populated namespaces, got %v", stats.ActiveExpired)
	}
}

func TestTickStatistics(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	for i := 0; i < avgTickWindow; i++ {
		c.tick()
	}

	stats := c.ActiveExpireStats()
	if stats.LastTick < 0 || stats.MaxTick < stats.LastTick {
		t.Errorf("Tick statistics are inconsistent: last=%v max=%v", stats.LastTick, stats.MaxTick)
	}
	if stats.AvgTick == 0 && stats.MaxTick > 0 {
		t.Error("Average should have been recomputed after a full window of ticks")
	}
	if c.tickSum != 0 {
		t.Error("The rolling sum should reset after the average is recomputed")
	}
}

func TestReplicaTickRecordsNoStatistics(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)
	c.SetRole(hash.RoleReplica)

	for i := 0; i < avgTickWindow; i++ {
		c.tick()
	}

	stats := c.ActiveExpireStats()
	if stats.LastTick != 0 || stats.MaxTick != 0 || stats.AvgTick != 0 {
		t.Errorf("Replica ticks must not record timings, got last=%v max=%v avg=%v",
			stats.LastTick, stats.MaxTick, stats.AvgTick)
	}
	if c.tickCount != 0 {
		t.Errorf("Replica ticks must not be counted, got %d", c.tickCount)
	}
}

func TestStoppedSweepLeavesFieldsToPassiveExpiry(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 1100})
	clock.Advance(1000)

	// no tick runs; the field is still in storage but reads filter it
	if c.Exists(0, "key", "f") {
		t.Error("Due field must not be visible")
	}

	stats := c.ActiveExpireStats()
	if stats.PassiveExpired[0] != 1 {
		t.Errorf("The read should have reaped the field passively, counter is %d", stats.PassiveExpired[0])
	}
	if stats.ActiveExpired[0] != 0 {
		t.Errorf("No sweep ran, active counter should be 0, got %d", stats.ActiveExpired[0])
	}
}

func TestPassiveExpireRespectsBudget(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)
	c.cfg.PassiveBudget = 2

	for i := 0; i < 5; i++ {
		set(t, c, 0, "key", fmt.Sprintf("f-%d", i), hash.SetOptions{ExpireAt: uint64(1100 + i)})
	}
	clock.Advance(1000)

	// one touch reaps at most the passive budget
	c.Exists(0, "key", "f-4")

	stats := c.ActiveExpireStats()
	if stats.PassiveExpired[0] != 2 {
		t.Errorf("One touch should reap exactly the passive budget, got %d", stats.PassiveExpired[0])
	}
}

func TestWriteReapsExpiredTargetField(t *testing.T) {
	clock := &fakeClock{now: 1000}
	repl := &recordingReplicator{}
	c := newTestEngine(t, index.ModeSorted, clock, repl)
	c.cfg.PassiveBudget = 1

	// more due fields than one passive pass can reap, so the budget is
	// spent on earlier fields and never reaches the write targets
	set(t, c, 0, "key", "early-a", hash.SetOptions{ExpireAt: 1100})
	set(t, c, 0, "key", "early-b", hash.SetOptions{ExpireAt: 1150})
	if _, err := c.Set(0, "key", "n", []byte("41"), hash.SetOptions{ExpireAt: 1200}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 1250})
	clock.Advance(1000)

	// the due target is logically absent, NX must create
	created, err := c.Set(0, "key", "f", []byte("new"), hash.SetOptions{Exist: hash.ExistNX})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !created {
		t.Fatal("NX write to a due field should create")
	}
	if _, ver, _ := c.GetWithVersion(0, "key", "f"); ver != 1 {
		t.Errorf("Recreated field should restart its version chain at 1, got %d", ver)
	}

	// increments on a due field start over from 0
	got, err := c.IncrBy(0, "key", "n", 1, hash.IncrOptions{})
	if err != nil {
		t.Fatalf("IncrBy failed: %v", err)
	}
	if got != 1 {
		t.Errorf("Increment on a due field should restart from 0, got %d", got)
	}

	// every reap, target or passive, was propagated as an expiry event
	if len(repl.events) != 4 {
		t.Errorf("Expected 4 expiry events, got %d", len(repl.events))
	}
	for _, e := range repl.events {
		if e.fromTimer {
			t.Errorf("No sweep ran, event %+v must not be timer-caused", e)
		}
	}

	checkNamespaceInvariant(t, c, 0, "key")
}

// --------------------------------------------------------------------------
// Replica behavior
// --------------------------------------------------------------------------

func TestReplicaKeepsExpiredFieldsInStorage(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)
	c.SetRole(hash.RoleReplica)

	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 1100})
	clock.Advance(1000)

	if c.Exists(0, "key", "f") {
		t.Error("Replica reads must filter due fields")
	}
	if _, ok := c.Get(0, "key", "f"); ok {
		t.Error("Replica reads must filter due fields")
	}

	c.tick()

	// the entry stays until the primary's explicit deletion arrives
	obj, ok := c.nss[0].Keys.Load("key")
	if !ok || obj.Fields["f"] == nil {
		t.Fatal("Replica must keep the due field in storage")
	}

	stats := c.ActiveExpireStats()
	if stats.ActiveExpired[0] != 0 || stats.PassiveExpired[0] != 0 {
		t.Errorf("Replica must not reap on its own, counters are %d/%d",
			stats.ActiveExpired[0], stats.PassiveExpired[0])
	}

	// the primary's replicated expiry delete targets raw storage
	if n := c.Delete(0, "key", "f"); n != 1 {
		t.Errorf("Replica delete of a due field must remove it, got %d", n)
	}
	if _, ok := c.nss[0].Keys.Load("key"); ok {
		t.Error("Key object should be gone after its last field was deleted")
	}
}

func TestReplicaWriteTreatsExpiredTargetAsAbsent(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 1100})
	if _, err := c.Set(0, "key", "n", []byte("41"), hash.SetOptions{ExpireAt: 1100}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	c.SetRole(hash.RoleReplica)
	clock.Advance(1000)

	// a skipped XX write leaves the stale entry in storage for the
	// primary's replicated delete
	created, err := c.Set(0, "key", "f", []byte("x"), hash.SetOptions{Exist: hash.ExistXX})
	if err != nil || created {
		t.Fatalf("XX write to a due field should be skipped: created=%v err=%v", created, err)
	}
	if obj, ok := c.nss[0].Keys.Load("key"); !ok || obj.Fields["f"] == nil {
		t.Fatal("Skipped write must leave the due field in storage")
	}

	// NX sees the due field as absent and overwrites it in place
	created, err = c.Set(0, "key", "f", []byte("new"), hash.SetOptions{Exist: hash.ExistNX})
	if err != nil || !created {
		t.Fatalf("NX write to a due field should create: created=%v err=%v", created, err)
	}
	val, ver, ok := c.GetWithVersion(0, "key", "f")
	if !ok || !bytes.Equal(val, []byte("new")) || ver != 1 {
		t.Errorf("Recreated field should read as new with version 1, got %s/%d ok=%v", val, ver, ok)
	}

	// an increment without an expiry request recreates the field without
	// a TTL, the stale timestamp is not kept
	got, err := c.IncrBy(0, "key", "n", 1, hash.IncrOptions{})
	if err != nil || got != 1 {
		t.Fatalf("Increment on a due field should restart from 0, got %d err=%v", got, err)
	}
	if ttl := c.TTL(0, "key", "n"); ttl != hash.TTLNone {
		t.Errorf("Recreated field should carry no TTL, got %d", ttl)
	}

	checkNamespaceInvariant(t, c, 0, "key")
}

func TestReplicatorReceivesExpiryEvents(t *testing.T) {
	clock := &fakeClock{now: 1000}
	repl := &recordingReplicator{}
	c := newTestEngine(t, index.ModeSorted, clock, repl)

	set(t, c, 0, "key", "passive", hash.SetOptions{ExpireAt: 1100})
	set(t, c, 1, "key", "active", hash.SetOptions{ExpireAt: 1100})
	clock.Advance(1000)

	c.Exists(0, "key", "passive") // passive reap
	c.tick()                      // active reap in ns 1

	if len(repl.events) != 2 {
		t.Fatalf("Expected 2 expiry events, got %d", len(repl.events))
	}
	if e := repl.events[0]; e.ns != 0 || e.field != "passive" || e.fromTimer {
		t.Errorf("Passive event is wrong: %+v", e)
	}
	if e := repl.events[1]; e.ns != 1 || e.field != "active" || !e.fromTimer {
		t.Errorf("Active event is wrong: %+v", e)
	}
}

// --------------------------------------------------------------------------
// Index invariants
// --------------------------------------------------------------------------

// checkNamespaceInvariant verifies that a key appears in its namespace
// index iff its local index is non-empty, keyed by the local minimum.
func checkNamespaceInvariant(t *testing.T, c *cedarImpl, ns int, key string) {
	t.Helper()

	nsp := c.nss[ns]
	obj, objOk := nsp.Keys.Load(key)

	if !objOk {
		if nsp.Expires.Contains(key) {
			t.Fatalf("Namespace index entry for %q outlived the key object", key)
		}
		return
	}

	min, hasMin := obj.Expires.Min()
	if hasMin != nsp.Expires.Contains(key) {
		t.Fatalf("Namespace index presence for %q is %v, local index non-empty is %v",
			key, nsp.Expires.Contains(key), hasMin)
	}
	if hasMin {
		if at, _, ok := nsp.Expires.Peek(); ok && nsp.Expires.Len() == 1 && at > min {
			t.Fatalf("Namespace index entry for %q is later than the local minimum %d", key, min)
		}
	}
}

func TestIndexLevelsStayReconciled(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	key := "inv-key"

	set(t, c, 0, key, "a", hash.SetOptions{ExpireAt: 5000})
	checkNamespaceInvariant(t, c, 0, key)

	// new earlier field moves the namespace entry down
	set(t, c, 0, key, "b", hash.SetOptions{ExpireAt: 3000})
	checkNamespaceInvariant(t, c, 0, key)

	// persisting the earliest field moves it back up
	if ok := c.Persist(0, key, "b"); !ok {
		t.Fatal("Persist failed")
	}
	checkNamespaceInvariant(t, c, 0, key)

	// dropping the last TTL removes the namespace entry
	if ok := c.Persist(0, key, "a"); !ok {
		t.Fatal("Persist failed")
	}
	checkNamespaceInvariant(t, c, 0, key)
	if c.nss[0].Expires.Len() != 0 {
		t.Error("Namespace index should be empty once no field carries a TTL")
	}

	// deleting the key removes everything
	set(t, c, 0, key, "c", hash.SetOptions{ExpireAt: 4000})
	c.DeleteKey(0, key)
	checkNamespaceInvariant(t, c, 0, key)
}

func TestRenameRelocatesIndexEntries(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	set(t, c, 0, "old", "f", hash.SetOptions{ExpireAt: 2000})
	if err := c.RenameKey(0, "old", "new"); err != nil {
		t.Fatalf("RenameKey failed: %v", err)
	}

	checkNamespaceInvariant(t, c, 0, "old")
	checkNamespaceInvariant(t, c, 0, "new")

	clock.Advance(1500)
	c.tick()

	if c.Exists(0, "new", "f") {
		t.Error("The sweep should reach the field under its new key name")
	}
}

// --------------------------------------------------------------------------
// Expiry timestamp handling
// --------------------------------------------------------------------------

func TestImmediateExpiry(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	set(t, c, 0, "key", "f", hash.SetOptions{})

	// a zero-delay expire request must not collide with the no-TTL sentinel
	ok, err := c.ExpireAt(0, "key", "f", 0, hash.VerOp{})
	if err != nil || !ok {
		t.Fatalf("ExpireAt failed: ok=%v err=%v", ok, err)
	}
	if c.Exists(0, "key", "f") {
		t.Error("Immediately expired field must not be visible")
	}

	set(t, c, 0, "key", "g", hash.SetOptions{})
	ok, err = c.Expire(0, "key", "g", -5*time.Second, hash.VerOp{})
	if err != nil || !ok {
		t.Fatalf("Expire failed: ok=%v err=%v", ok, err)
	}
	if c.Exists(0, "key", "g") {
		t.Error("Negative TTL must expire the field immediately")
	}
}

func TestBucketModeNeverReapsEarly(t *testing.T) {
	clock := &fakeClock{now: 0}
	c := newTestEngine(t, index.ModeBucket, clock, nil)

	// expiry lands mid-bucket, the index floor is earlier than the
	// actual timestamp
	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 1500})

	clock.Advance(1200) // past the bucket floor, before the real expiry
	c.tick()
	if !c.Exists(0, "key", "f") {
		t.Fatal("Sweep must not reap a field before its actual expiry")
	}

	clock.Advance(400) // now past the real expiry
	c.tick()
	if c.Exists(0, "key", "f") {
		t.Error("Field should be gone once its actual expiry passed")
	}
}

// --------------------------------------------------------------------------
// Scheduler state machine
// --------------------------------------------------------------------------

func TestSchedulerArmingIsIdempotent(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	c.StartActiveExpire()
	c.StartActiveExpire()
	c.StartActiveExpire()

	if !c.sweepArmed.Load() {
		t.Error("Scheduler should be armed after StartActiveExpire")
	}
	if !c.ActiveExpireStats().Enabled {
		t.Error("Stats should report the sweep as enabled")
	}

	c.StopActiveExpire()
	if c.ActiveExpireStats().Enabled {
		t.Error("Stats should report the sweep as disabled")
	}
}

func TestSweepAtReapsOnReplica(t *testing.T) {
	clock := &fakeClock{now: 1000}
	repl := &recordingReplicator{}
	c := newTestEngine(t, index.ModeSorted, clock, repl)
	c.SetRole(hash.RoleReplica)

	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 2000})

	// the caller's timestamp decides what is due, not the engine clock
	if n := c.SweepAt(1500, 0); n != 0 {
		t.Fatalf("Nothing is due at 1500, SweepAt reaped from %d keys", n)
	}
	if n := c.SweepAt(2000, 0); n != 1 {
		t.Fatalf("SweepAt(2000) should reap from one key, got %d", n)
	}
	if _, ok := c.nss[0].Keys.Load("key"); ok {
		t.Error("Key object should be gone after the sweep reaped its last field")
	}
	if len(repl.events) != 1 || !repl.events[0].fromTimer {
		t.Errorf("SweepAt deletions are timer events, got %+v", repl.events)
	}
}

// --------------------------------------------------------------------------
// Namespace coordination internals
// --------------------------------------------------------------------------

func TestSwapExchangesCountersWithData(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 1100})
	clock.Advance(1000)
	c.Exists(0, "key", "f") // passive reap, counter in ns 0

	c.SwapNamespaces(0, 1)

	stats := c.ActiveExpireStats()
	if stats.PassiveExpired[0] != 0 || stats.PassiveExpired[1] != 1 {
		t.Errorf("Swap must move the counters with the data, got %v", stats.PassiveExpired)
	}
}

func TestFlushPreservesCounters(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 1100})
	clock.Advance(1000)
	c.Exists(0, "key", "f")

	c.FlushNamespace(0)

	stats := c.ActiveExpireStats()
	if stats.PassiveExpired[0] != 1 {
		t.Errorf("Flush drops data but keeps the cumulative counters, got %d", stats.PassiveExpired[0])
	}
	if c.nss[0].Keys.Size() != 0 || c.nss[0].Expires.Len() != 0 {
		t.Error("Flushed namespace should have no keys and no index entries")
	}
}

func TestWriteMetricsExposesExpiryCounters(t *testing.T) {
	clock := &fakeClock{now: 1000}
	c := newTestEngine(t, index.ModeSorted, clock, nil)

	set(t, c, 0, "key", "f", hash.SetOptions{ExpireAt: 1100})
	clock.Advance(1000)
	c.Exists(0, "key", "f") // passive reap bumps the counter

	var buf bytes.Buffer
	var mw hash.MetricsWriter = c
	mw.WriteMetrics(&buf)

	out := buf.String()
	if !strings.Contains(out, `cedar_expired_fields_total{mode="passive",db="0"} 1`) {
		t.Errorf("Exposition should carry the passive expiry counter, got:\n%s", out)
	}
}
