package testing

import (
	"bytes"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/ValentinKolb/hKV/lib/hash"
)

// DBFactory is a function that creates a new instance of a HashDB
// implementation.
type DBFactory func() hash.HashDB

// RunHashDBTests runs a comprehensive test suite for a HashDB
// implementation.
func RunHashDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("SetFlags", func(t *testing.T) {
			testSetFlags(t, factory())
		})

		t.Run("Versioning", func(t *testing.T) {
			testVersioning(t, factory())
		})

		t.Run("IncrBy", func(t *testing.T) {
			testIncrBy(t, factory())
		})

		t.Run("IncrByFloat", func(t *testing.T) {
			testIncrByFloat(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("FieldExpiry", func(t *testing.T) {
			testFieldExpiry(t, factory())
		})

		t.Run("Persist&TTL", func(t *testing.T) {
			testPersistTTL(t, factory())
		})

		t.Run("Queries", func(t *testing.T) {
			testQueries(t, factory())
		})

		t.Run("BatchOps", func(t *testing.T) {
			testBatchOps(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("Keyspace", func(t *testing.T) {
			testKeyspace(t, factory())
		})

		t.Run("Digest", func(t *testing.T) {
			testDigest(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("Rewrite", func(t *testing.T) {
			testRewrite(t, factory())
		})

		t.Run("ManyExpiringFields", func(t *testing.T) {
			testManyExpiringFields(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the engine supports the specified feature.
// Skip the test if it is not supported.
func requireFeature(t testing.TB, db hash.HashDB, feature hash.Feature) {
	if !db.SupportsFeature(feature) {
		t.Skip()
	}
}

func mustSet(t testing.TB, db hash.HashDB, ns int, key, field, value string, opts hash.SetOptions) {
	t.Helper()
	if _, err := db.Set(ns, key, field, []byte(value), opts); err != nil {
		t.Fatalf("Set(%s/%s) failed: %v", key, field, err)
	}
}

func nowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureSet)

	testKey := "test-key"
	testField := "test-field"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	created, err := db.Set(0, testKey, testField, testValue1, hash.SetOptions{})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !created {
		t.Error("First write to a field should report created=true")
	}

	result, exists := db.Get(0, testKey, testField)
	if !exists {
		t.Errorf("Expected field %s to exist after Set", testField)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	created, err = db.Set(0, testKey, testField, testValue2, hash.SetOptions{})
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if created {
		t.Error("Updating a field should report created=false")
	}

	result, exists = db.Get(0, testKey, testField)
	if !exists {
		t.Errorf("Expected field %s to exist after update", testField)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = db.Get(0, testKey, "nonexistent-field"); exists {
		t.Errorf("Expected nonexistent field to return exists=false")
	}
	if _, exists = db.Get(0, "nonexistent-key", testField); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := db.Get(0, testKey, testField)
	retrievedValue[0] = 'X'

	originalValue, _ := db.Get(0, testKey, testField)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	// fields in different namespaces are independent
	mustSet(t, db, 1, testKey, testField, "other-ns", hash.SetOptions{})
	result, _ = db.Get(0, testKey, testField)
	if bytes.Equal(result, []byte("other-ns")) {
		t.Error("Namespaces must be isolated from each other")
	}
}

func testSetFlags(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureSet)

	key := "flags-key"

	// NX creates, second NX write is skipped without error
	created, err := db.Set(0, key, "f", []byte("v1"), hash.SetOptions{Exist: hash.ExistNX})
	if err != nil || !created {
		t.Fatalf("NX create failed: created=%v err=%v", created, err)
	}
	created, err = db.Set(0, key, "f", []byte("v2"), hash.SetOptions{Exist: hash.ExistNX})
	if err != nil {
		t.Fatalf("Blocked NX write must not error: %v", err)
	}
	if created {
		t.Error("Blocked NX write must report created=false")
	}
	if val, _ := db.Get(0, key, "f"); !bytes.Equal(val, []byte("v1")) {
		t.Errorf("Blocked NX write must not modify the value, got %s", val)
	}

	// XX on a missing field is skipped
	if _, err = db.Set(0, key, "missing", []byte("v"), hash.SetOptions{Exist: hash.ExistXX}); err != nil {
		t.Fatalf("Blocked XX write must not error: %v", err)
	}
	if db.Exists(0, key, "missing") {
		t.Error("Blocked XX write must not create the field")
	}

	// XX on an existing field updates
	if _, err = db.Set(0, key, "f", []byte("v3"), hash.SetOptions{Exist: hash.ExistXX}); err != nil {
		t.Fatalf("XX update failed: %v", err)
	}
	if val, _ := db.Get(0, key, "f"); !bytes.Equal(val, []byte("v3")) {
		t.Errorf("XX update should have written v3, got %s", val)
	}
}

func testVersioning(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureVersioning)

	key := "ver-key"

	mustSet(t, db, 0, key, "f", "v1", hash.SetOptions{})
	if ver, _ := db.Version(0, key, "f"); ver != 1 {
		t.Errorf("First write should yield version 1, got %d", ver)
	}

	mustSet(t, db, 0, key, "f", "v2", hash.SetOptions{})
	if ver, _ := db.Version(0, key, "f"); ver != 2 {
		t.Errorf("Second write should yield version 2, got %d", ver)
	}

	// exact match accepted
	mustSet(t, db, 0, key, "f", "v3", hash.SetOptions{Version: hash.VerOp{Mode: hash.VerEq, Value: 2}})
	if ver, _ := db.Version(0, key, "f"); ver != 3 {
		t.Errorf("Accepted exact-match write should yield version 3, got %d", ver)
	}

	// exact match with the 0 sentinel means no check
	mustSet(t, db, 0, key, "f", "v4", hash.SetOptions{Version: hash.VerOp{Mode: hash.VerEq, Value: 0}})
	if ver, _ := db.Version(0, key, "f"); ver != 4 {
		t.Errorf("Sentinel write should yield version 4, got %d", ver)
	}

	// stale exact match rejected with no partial effect
	expireAt := nowMS() + 60_000
	mustSet(t, db, 0, key, "f", "v5", hash.SetOptions{
		ExpireAt: expireAt,
		Version:  hash.VerOp{Mode: hash.VerEq, Value: 4},
	})

	_, err := db.Set(0, key, "f", []byte("stale"), hash.SetOptions{Version: hash.VerOp{Mode: hash.VerEq, Value: 4}})
	if !hash.IsConflict(err) {
		t.Fatalf("Stale write should be a version conflict, got %v", err)
	}
	if val, ver, _ := db.GetWithVersion(0, key, "f"); !bytes.Equal(val, []byte("v5")) || ver != 5 {
		t.Errorf("Rejected write must not change value/version, got %s/%d", val, ver)
	}
	if ttl := db.TTL(0, key, "f"); ttl <= 0 {
		t.Errorf("Rejected write must not change the TTL, got %d", ttl)
	}

	// strictly-greater: equal value rejected, greater forces the version
	_, err = db.Set(0, key, "f", []byte("gt"), hash.SetOptions{Version: hash.VerOp{Mode: hash.VerGt, Value: 5}})
	if !hash.IsConflict(err) {
		t.Fatalf("Equal version with Gt should be a conflict, got %v", err)
	}
	mustSet(t, db, 0, key, "f", "gt", hash.SetOptions{Version: hash.VerOp{Mode: hash.VerGt, Value: 42}})
	if ver, _ := db.Version(0, key, "f"); ver != 42 {
		t.Errorf("Gt write should force version 42, got %d", ver)
	}

	// absolute: no check, forced value
	mustSet(t, db, 0, key, "f", "abs", hash.SetOptions{Version: hash.VerOp{Mode: hash.VerAbs, Value: 7}})
	if ver, _ := db.Version(0, key, "f"); ver != 7 {
		t.Errorf("Abs write should force version 7, got %d", ver)
	}

	// a write that creates a field never fails its check, regardless of
	// the caller's version value
	mustSet(t, db, 0, key, "fresh", "v", hash.SetOptions{Version: hash.VerOp{Mode: hash.VerEq, Value: 5}})
	if ver, _ := db.Version(0, key, "fresh"); ver != 1 {
		t.Errorf("Creating write should start the version chain at 1, got %d", ver)
	}
	if _, err := db.IncrBy(0, key, "fresh-n", 3, hash.IncrOptions{Version: hash.VerOp{Mode: hash.VerEq, Value: 7}}); err != nil {
		t.Errorf("Creating increment must not be a version conflict: %v", err)
	}

	// SetVersion forces without writing the value
	if ok := db.SetVersion(0, key, "f", 99); !ok {
		t.Fatal("SetVersion on an existing field should succeed")
	}
	if val, ver, _ := db.GetWithVersion(0, key, "f"); ver != 99 || !bytes.Equal(val, []byte("abs")) {
		t.Errorf("SetVersion should only change the version, got %s/%d", val, ver)
	}
	if db.SetVersion(0, key, "nope", 1) {
		t.Error("SetVersion on a missing field should report false")
	}
}

func testIncrBy(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureIncr)

	key := "incr-key"

	// increments create missing fields at 0
	result, err := db.IncrBy(0, key, "n", 5, hash.IncrOptions{})
	if err != nil || result != 5 {
		t.Fatalf("IncrBy on missing field: got %d, %v", result, err)
	}
	result, err = db.IncrBy(0, key, "n", -2, hash.IncrOptions{})
	if err != nil || result != 3 {
		t.Fatalf("IncrBy: got %d, %v", result, err)
	}

	// increment scenario with versions: forced version, exact match, conflict
	mustSet(t, db, 0, key, "s", "1", hash.SetOptions{
		ExpireAt: nowMS() + 60_000,
		Version:  hash.VerOp{Mode: hash.VerAbs, Value: 5},
	})
	result, err = db.IncrBy(0, key, "s", 3, hash.IncrOptions{Version: hash.VerOp{Mode: hash.VerEq, Value: 5}})
	if err != nil || result != 4 {
		t.Fatalf("Versioned increment: got %d, %v", result, err)
	}
	if ver, _ := db.Version(0, key, "s"); ver != 6 {
		t.Errorf("Accepted increment should advance the version to 6, got %d", ver)
	}
	_, err = db.IncrBy(0, key, "s", 3, hash.IncrOptions{Version: hash.VerOp{Mode: hash.VerEq, Value: 5}})
	if !hash.IsConflict(err) {
		t.Fatalf("Stale increment should be a conflict, got %v", err)
	}
	if val, _ := db.Get(0, key, "s"); !bytes.Equal(val, []byte("4")) {
		t.Errorf("Rejected increment must not change the value, got %s", val)
	}

	// min/max bounds
	min, max := int64(0), int64(10)
	if _, err = db.IncrBy(0, key, "n", 100, hash.IncrOptions{Min: &min, Max: &max}); !hash.IsBounds(err) {
		t.Fatalf("Out-of-bounds increment should be a bounds error, got %v", err)
	}
	if val, _ := db.Get(0, key, "n"); !bytes.Equal(val, []byte("3")) {
		t.Errorf("Rejected increment must not change the value, got %s", val)
	}
	badMin, badMax := int64(10), int64(0)
	if _, err = db.IncrBy(0, key, "n", 1, hash.IncrOptions{Min: &badMin, Max: &badMax}); !hash.IsBounds(err) {
		t.Fatalf("min > max should be a bounds error, got %v", err)
	}

	// int64 overflow
	mustSet(t, db, 0, key, "big", "9223372036854775807", hash.SetOptions{})
	verBefore, _ := db.Version(0, key, "big")
	if _, err = db.IncrBy(0, key, "big", 1, hash.IncrOptions{}); !hash.IsBounds(err) {
		t.Fatalf("Overflowing increment should be a bounds error, got %v", err)
	}
	val, verAfter, _ := db.GetWithVersion(0, key, "big")
	if !bytes.Equal(val, []byte("9223372036854775807")) || verAfter != verBefore {
		t.Errorf("Rejected overflow must not change value/version, got %s/%d", val, verAfter)
	}

	// non-integer value
	mustSet(t, db, 0, key, "text", "hello", hash.SetOptions{})
	if _, err = db.IncrBy(0, key, "text", 1, hash.IncrOptions{}); !hash.IsTypeMismatch(err) {
		t.Fatalf("Increment on text should be a type mismatch, got %v", err)
	}
}

func testIncrByFloat(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureIncr)

	key := "incrf-key"

	result, err := db.IncrByFloat(0, key, "f", 1.5, hash.IncrFloatOptions{})
	if err != nil || result != 1.5 {
		t.Fatalf("IncrByFloat on missing field: got %v, %v", result, err)
	}
	result, err = db.IncrByFloat(0, key, "f", 0.25, hash.IncrFloatOptions{})
	if err != nil || result != 1.75 {
		t.Fatalf("IncrByFloat: got %v, %v", result, err)
	}

	min, max := 0.0, 2.0
	if _, err = db.IncrByFloat(0, key, "f", 10, hash.IncrFloatOptions{Min: &min, Max: &max}); !hash.IsBounds(err) {
		t.Fatalf("Out-of-bounds float increment should be a bounds error, got %v", err)
	}

	mustSet(t, db, 0, key, "text", "hello", hash.SetOptions{})
	if _, err = db.IncrByFloat(0, key, "text", 1, hash.IncrFloatOptions{}); !hash.IsTypeMismatch(err) {
		t.Fatalf("Float increment on text should be a type mismatch, got %v", err)
	}
}

func testDelete(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureSet)

	key := "del-key"
	mustSet(t, db, 0, key, "a", "1", hash.SetOptions{})
	mustSet(t, db, 0, key, "b", "2", hash.SetOptions{})
	mustSet(t, db, 0, key, "c", "3", hash.SetOptions{})

	if deleted := db.Delete(0, key, "a", "b", "missing"); deleted != 2 {
		t.Errorf("Expected 2 deleted fields, got %d", deleted)
	}
	if db.Exists(0, key, "a") || db.Exists(0, key, "b") {
		t.Error("Deleted fields should not exist")
	}
	if !db.Exists(0, key, "c") {
		t.Error("Field c should still exist")
	}

	// conditional delete
	mustSet(t, db, 0, key, "c", "3", hash.SetOptions{}) // version is now 2
	if _, err := db.DeleteWithVersion(0, key, "c", 1); !hash.IsConflict(err) {
		t.Fatalf("Conditional delete with stale version should be a conflict, got %v", err)
	}
	if !db.Exists(0, key, "c") {
		t.Error("Rejected conditional delete must not remove the field")
	}
	deleted, err := db.DeleteWithVersion(0, key, "c", 2)
	if err != nil || !deleted {
		t.Fatalf("Conditional delete failed: deleted=%v err=%v", deleted, err)
	}

	// the key object disappears with its last field
	if n := db.Len(0, key, false); n != 0 {
		t.Errorf("Key should be empty after deleting all fields, Len is %d", n)
	}
}

func testFieldExpiry(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureExpire)

	key := "exp-key"

	mustSet(t, db, 0, key, "short", "v", hash.SetOptions{TTL: 50 * time.Millisecond})
	mustSet(t, db, 0, key, "long", "v", hash.SetOptions{TTL: time.Minute})
	mustSet(t, db, 0, key, "eternal", "v", hash.SetOptions{})

	if !db.Exists(0, key, "short") {
		t.Error("Field should exist before its TTL elapses")
	}

	time.Sleep(60 * time.Millisecond)

	if db.Exists(0, key, "short") {
		t.Error("Field should be gone after its TTL elapsed")
	}
	if !db.Exists(0, key, "long") || !db.Exists(0, key, "eternal") {
		t.Error("Fields with later or no expiry must survive")
	}

	// an immediate expiry takes effect right away
	mustSet(t, db, 0, key, "now", "v", hash.SetOptions{ExpireAt: hash.ExpireImmediately})
	if db.Exists(0, key, "now") {
		t.Error("Field with immediate expiry should not be visible")
	}

	// updating without KeepTTL clears the TTL
	mustSet(t, db, 0, key, "long", "v2", hash.SetOptions{})
	if ttl := db.TTL(0, key, "long"); ttl != hash.TTLNone {
		t.Errorf("Update without KeepTTL should clear the TTL, got %d", ttl)
	}

	// updating with KeepTTL preserves it
	mustSet(t, db, 0, key, "keep", "v", hash.SetOptions{TTL: time.Minute})
	mustSet(t, db, 0, key, "keep", "v2", hash.SetOptions{KeepTTL: true})
	if ttl := db.TTL(0, key, "keep"); ttl <= 0 {
		t.Errorf("Update with KeepTTL should preserve the TTL, got %d", ttl)
	}

	// ExpireAt with a version guard
	ok, err := db.ExpireAt(0, key, "keep", nowMS()+120_000, hash.VerOp{Mode: hash.VerEq, Value: 1})
	if !hash.IsConflict(err) || ok {
		t.Fatalf("Guarded expire with stale version should be a conflict, got ok=%v err=%v", ok, err)
	}
	ok, err = db.ExpireAt(0, key, "keep", nowMS()+120_000, hash.VerOp{})
	if err != nil || !ok {
		t.Fatalf("Expire failed: ok=%v err=%v", ok, err)
	}
	if ttl := db.TTL(0, key, "keep"); ttl <= 60_000 {
		t.Errorf("Expire should have extended the TTL, got %d", ttl)
	}
}

func testPersistTTL(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureExpire)

	key := "ttl-key"

	if ttl := db.TTL(0, "missing-key", "f"); ttl != hash.TTLNoKey {
		t.Errorf("TTL of a missing key should be %d, got %d", hash.TTLNoKey, ttl)
	}

	mustSet(t, db, 0, key, "f", "v", hash.SetOptions{TTL: time.Minute})

	if ttl := db.TTL(0, key, "missing"); ttl != hash.TTLNoField {
		t.Errorf("TTL of a missing field should be %d, got %d", hash.TTLNoField, ttl)
	}
	if ttl := db.TTL(0, key, "f"); ttl <= 0 || ttl > 60_000 {
		t.Errorf("Expected a TTL in (0, 60000], got %d", ttl)
	}

	if ok := db.Persist(0, key, "f"); !ok {
		t.Fatal("Persist on a field with TTL should report true")
	}
	if ttl := db.TTL(0, key, "f"); ttl != hash.TTLNone {
		t.Errorf("TTL after Persist should be %d, got %d", hash.TTLNone, ttl)
	}
	if ok := db.Persist(0, key, "f"); ok {
		t.Error("Persist on a field without TTL should report false")
	}
}

func testQueries(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureSet)

	key := "query-key"
	mustSet(t, db, 0, key, "a", "alpha", hash.SetOptions{})
	mustSet(t, db, 0, key, "b", "beta", hash.SetOptions{})
	mustSet(t, db, 0, key, "gone", "x", hash.SetOptions{TTL: 30 * time.Millisecond})

	if n := db.StrLen(0, key, "a"); n != 5 {
		t.Errorf("StrLen should be 5, got %d", n)
	}
	if n := db.StrLen(0, key, "missing"); n != 0 {
		t.Errorf("StrLen of a missing field should be 0, got %d", n)
	}

	time.Sleep(40 * time.Millisecond)

	if n := db.Len(0, key, true); n != 2 {
		t.Errorf("Len(skipExpired) should be 2, got %d", n)
	}

	fields := db.Fields(0, key)
	sort.Strings(fields)
	if len(fields) != 2 || fields[0] != "a" || fields[1] != "b" {
		t.Errorf("Fields should be [a b], got %v", fields)
	}

	values := db.Values(0, key)
	if len(values) != 2 {
		t.Errorf("Values should hold 2 entries, got %d", len(values))
	}

	all := db.GetAll(0, key)
	if len(all) != 2 || string(all["a"]) != "alpha" || string(all["b"]) != "beta" {
		t.Errorf("GetAll returned %v", all)
	}

	if db.GetAll(0, "missing-key") != nil {
		t.Error("GetAll of a missing key should return nil")
	}
}

func testBatchOps(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureSet)

	key := "batch-key"

	err := db.SetMultiple(0, key, map[string][]byte{
		"a": []byte("alpha"),
		"b": []byte("beta"),
		"c": []byte("gamma"),
	}, hash.SetOptions{})
	if err != nil {
		t.Fatalf("SetMultiple failed: %v", err)
	}
	if n := db.Len(0, key, true); n != 3 {
		t.Errorf("SetMultiple should have written 3 fields, got %d", n)
	}

	// results follow request order, absent fields are nil
	values := db.GetMultiple(0, key, "b", "missing", "a")
	if len(values) != 3 {
		t.Fatalf("GetMultiple should return 3 entries, got %d", len(values))
	}
	if string(values[0]) != "beta" || values[1] != nil || string(values[2]) != "alpha" {
		t.Errorf("GetMultiple returned %q", values)
	}

	views := db.GetMultipleWithVersion(0, key, "a", "missing")
	if !views[0].Ok || views[0].Version != 1 || string(views[0].Value) != "alpha" {
		t.Errorf("Unexpected view for existing field: %+v", views[0])
	}
	if views[1].Ok || views[1].Value != nil || views[1].Version != 0 {
		t.Errorf("Missing field should yield a zero view, got %+v", views[1])
	}

	// expired fields read as absent
	if db.SupportsFeature(hash.FeatureExpire) {
		mustSet(t, db, 0, key, "fleeting", "x", hash.SetOptions{TTL: 30 * time.Millisecond})
		time.Sleep(40 * time.Millisecond)
		views = db.GetMultipleWithVersion(0, key, "fleeting")
		if views[0].Ok {
			t.Error("Expired field should read as absent in a batch")
		}
	}

	// the first failing field stops the batch
	if db.SupportsFeature(hash.FeatureVersioning) {
		err = db.SetMultiple(0, key, map[string][]byte{
			"a": []byte("again"),
		}, hash.SetOptions{Version: hash.VerOp{Mode: hash.VerEq, Value: 99}})
		if !hash.IsConflict(err) {
			t.Errorf("SetMultiple should surface a version conflict, got %v", err)
		}
	}
}

func testScan(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureSet)

	key := "scan-key"
	total := 25
	for i := 0; i < total; i++ {
		mustSet(t, db, 0, key, fmt.Sprintf("f-%02d", i), "v", hash.SetOptions{})
	}
	mustSet(t, db, 0, key, "other", "x", hash.SetOptions{})

	// a full iteration visits every field exactly once
	seen := map[string]bool{}
	var cursor uint64
	for {
		fields, values, next := db.Scan(0, key, cursor, "", 10, false)
		if len(values) != len(fields) {
			t.Fatalf("Scan returned %d values for %d fields", len(values), len(fields))
		}
		for _, f := range fields {
			if seen[f] {
				t.Errorf("Field %s returned twice", f)
			}
			seen[f] = true
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if len(seen) != total+1 {
		t.Errorf("Full scan should visit %d fields, got %d", total+1, len(seen))
	}

	// glob filter
	fields, _, next := db.Scan(0, key, 0, "f-*", total+10, false)
	if next != 0 {
		t.Errorf("Single-batch scan should finish with cursor 0, got %d", next)
	}
	if len(fields) != total {
		t.Errorf("Match f-* should yield %d fields, got %d", total, len(fields))
	}
	for _, f := range fields {
		if f == "other" {
			t.Error("Match f-* must not return field other")
		}
	}

	// names only
	fields, values, _ := db.Scan(0, key, 0, "", 5, true)
	if len(fields) != 5 || values != nil {
		t.Errorf("NoValues scan should return 5 names and nil values, got %d/%v", len(fields), values)
	}

	// expired fields are skipped
	if db.SupportsFeature(hash.FeatureExpire) {
		mustSet(t, db, 0, key, "fleeting", "x", hash.SetOptions{TTL: 30 * time.Millisecond})
		time.Sleep(40 * time.Millisecond)
		fields, _, _ = db.Scan(0, key, 0, "fleeting", 10, false)
		if len(fields) != 0 {
			t.Errorf("Expired field must not appear in a scan, got %v", fields)
		}
	}

	// missing key
	fields, values, next = db.Scan(0, "missing-key", 0, "", 10, false)
	if fields != nil || values != nil || next != 0 {
		t.Errorf("Scan of a missing key should be empty, got %v/%v/%d", fields, values, next)
	}
}

func testKeyspace(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureKeyspace)

	// rename keeps fields, versions and TTLs
	mustSet(t, db, 0, "old", "f", "v", hash.SetOptions{TTL: time.Minute})
	if err := db.RenameKey(0, "old", "new"); err != nil {
		t.Fatalf("RenameKey failed: %v", err)
	}
	if db.Exists(0, "old", "f") {
		t.Error("Renamed key should not be reachable under the old name")
	}
	if ttl := db.TTL(0, "new", "f"); ttl <= 0 {
		t.Errorf("Rename must keep the field TTL, got %d", ttl)
	}
	if err := db.RenameKey(0, "does-not-exist", "x"); err == nil {
		t.Error("Renaming a missing key should fail")
	}

	// expiry still fires after a rename
	mustSet(t, db, 0, "re", "f", "v", hash.SetOptions{TTL: 30 * time.Millisecond})
	if err := db.RenameKey(0, "re", "re2"); err != nil {
		t.Fatalf("RenameKey failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if db.Exists(0, "re2", "f") {
		t.Error("Field should expire under the new key name")
	}

	// move relocates between namespaces
	mustSet(t, db, 0, "mover", "f", "v", hash.SetOptions{TTL: time.Minute})
	if err := db.MoveKey(0, 1, "mover"); err != nil {
		t.Fatalf("MoveKey failed: %v", err)
	}
	if db.Exists(0, "mover", "f") {
		t.Error("Moved key should be gone from the source namespace")
	}
	if ttl := db.TTL(1, "mover", "f"); ttl <= 0 {
		t.Errorf("Moved key must keep its TTL in the destination, got %d", ttl)
	}

	// expiry still fires in the destination namespace
	mustSet(t, db, 0, "mover2", "f", "v", hash.SetOptions{TTL: 30 * time.Millisecond})
	if err := db.MoveKey(0, 1, "mover2"); err != nil {
		t.Fatalf("MoveKey failed: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if db.Exists(1, "mover2", "f") {
		t.Error("Field should expire in the destination namespace")
	}

	// swap exchanges namespace contents
	mustSet(t, db, 2, "swap-a", "f", "in-2", hash.SetOptions{})
	mustSet(t, db, 3, "swap-b", "f", "in-3", hash.SetOptions{})
	db.SwapNamespaces(2, 3)
	if !db.Exists(3, "swap-a", "f") || !db.Exists(2, "swap-b", "f") {
		t.Error("Swap should exchange the contents of both namespaces")
	}

	// flush empties one namespace only
	db.FlushNamespace(2)
	if db.Exists(2, "swap-b", "f") {
		t.Error("Flushed namespace should be empty")
	}
	if !db.Exists(3, "swap-a", "f") {
		t.Error("Flush must not touch other namespaces")
	}

	db.FlushAll()
	if db.Exists(3, "swap-a", "f") || db.Exists(1, "mover", "f") {
		t.Error("FlushAll should empty every namespace")
	}
}

func testDigest(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureDigest)

	mustSet(t, db, 0, "d1", "a", "1", hash.SetOptions{})
	mustSet(t, db, 0, "d1", "b", "2", hash.SetOptions{})

	// same contents, different versions and TTLs
	mustSet(t, db, 0, "d2", "b", "2", hash.SetOptions{TTL: time.Minute})
	mustSet(t, db, 0, "d2", "a", "1", hash.SetOptions{Version: hash.VerOp{Mode: hash.VerAbs, Value: 77}})

	if db.Digest(0, "d1") != db.Digest(0, "d2") {
		t.Error("Digest must ignore version and expiry metadata")
	}

	mustSet(t, db, 0, "d2", "a", "changed", hash.SetOptions{})
	if db.Digest(0, "d1") == db.Digest(0, "d2") {
		t.Error("Digest must change when a value changes")
	}

	if db.Digest(0, "missing") != 0 {
		t.Error("Digest of a missing key should be 0")
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	source := factory()
	defer source.Close()

	requireFeature(t, source, hash.FeatureSave)
	requireFeature(t, source, hash.FeatureLoad)

	expireAt := nowMS() + 60_000
	mustSet(t, source, 0, "k", "plain", "v1", hash.SetOptions{})
	mustSet(t, source, 0, "k", "timed", "v2", hash.SetOptions{
		ExpireAt: expireAt,
		Version:  hash.VerOp{Mode: hash.VerAbs, Value: 9},
	})
	mustSet(t, source, 1, "other", "f", "v3", hash.SetOptions{TTL: 80 * time.Millisecond})

	var buf bytes.Buffer
	if err := source.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored := factory()
	defer restored.Close()
	if err := restored.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	val, ver, ok := restored.GetWithVersion(0, "k", "timed")
	if !ok || !bytes.Equal(val, []byte("v2")) || ver != 9 {
		t.Errorf("Restored field mismatch: %s/%d (ok=%v)", val, ver, ok)
	}
	if ttl := restored.TTL(0, "k", "timed"); ttl <= 0 || ttl > 60_000 {
		t.Errorf("Restored TTL out of range: %d", ttl)
	}
	if ttl := restored.TTL(0, "k", "plain"); ttl != hash.TTLNone {
		t.Errorf("Restored field without TTL should report %d, got %d", hash.TTLNone, ttl)
	}

	// the reloaded index must keep expiring fields
	time.Sleep(100 * time.Millisecond)
	if restored.Exists(1, "other", "f") {
		t.Error("Field should expire after a reload, the index was not rebuilt")
	}
}

func testRewrite(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureRewrite)

	expireAt := nowMS() + 60_000
	mustSet(t, db, 0, "k", "live", "v", hash.SetOptions{ExpireAt: expireAt})
	mustSet(t, db, 0, "k", "dead", "v", hash.SetOptions{TTL: 20 * time.Millisecond})
	mustSet(t, db, 0, "k", "plain", "v", hash.SetOptions{})

	time.Sleep(30 * time.Millisecond)

	entries := map[string]hash.RewriteEntry{}
	db.ExportRewrite(0, func(e hash.RewriteEntry) {
		entries[e.Field] = e
	})

	if _, ok := entries["dead"]; ok {
		t.Error("Rewrite must skip fields that are already expired")
	}
	live, ok := entries["live"]
	if !ok || live.ExpireAt != expireAt {
		t.Errorf("Rewrite must emit the absolute expiry, got %+v", live)
	}
	if plain, ok := entries["plain"]; !ok || plain.ExpireAt != 0 || plain.Version == 0 {
		t.Errorf("Rewrite entry for a plain field is wrong: %+v", plain)
	}
}

func testManyExpiringFields(t *testing.T, db hash.HashDB) {
	defer db.Close()

	requireFeature(t, db, hash.FeatureExpire)

	const numFields = 500

	for i := 0; i < numFields; i++ {
		field := fmt.Sprintf("field-%d", i)
		ttl := time.Duration(20+i%50) * time.Millisecond
		mustSet(t, db, 0, "big-key", field, "v", hash.SetOptions{TTL: ttl})
	}
	mustSet(t, db, 0, "big-key", "survivor", "v", hash.SetOptions{})

	time.Sleep(150 * time.Millisecond)

	if n := db.Len(0, "big-key", true); n != 1 {
		t.Errorf("Expected only the survivor field, Len is %d", n)
	}
	if !db.Exists(0, "big-key", "survivor") {
		t.Error("Field without TTL must survive")
	}
}
