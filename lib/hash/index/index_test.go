package index

import (
	"math/rand"
	"sort"
	"testing"
)

// TestParseMode tests config string parsing
func TestParseMode(t *testing.T) {
	for _, s := range []string{"sorted", "bucket", "none"} {
		mode, err := ParseMode(s)
		if err != nil {
			t.Errorf("ParseMode(%q) returned error: %v", s, err)
		}
		if string(mode) != s {
			t.Errorf("ParseMode(%q) = %q", s, mode)
		}
	}

	if _, err := ParseMode("skiplist"); err == nil {
		t.Error("ParseMode should reject unknown modes")
	}
}

// TestSortedInsertAndMin tests precise ordering in the sorted strategy
func TestSortedInsertAndMin(t *testing.T) {
	idx := New(ModeSorted)

	if _, ok := idx.Min(); ok {
		t.Error("Min() on empty index should report empty")
	}

	idx.Insert(100, "a")
	idx.Insert(200, "b")
	idx.Insert(50, "c")

	if idx.Len() != 3 {
		t.Errorf("Index should have 3 members, has %d", idx.Len())
	}

	min, ok := idx.Min()
	if !ok || min != 50 {
		t.Errorf("Expected min 50, got %d (ok=%v)", min, ok)
	}

	at, member, ok := idx.Peek()
	if !ok || at != 50 || member != "c" {
		t.Errorf("Expected peek (50,c), got (%d,%s)", at, member)
	}

	if !idx.Contains("b") {
		t.Error("Index should contain member b")
	}
	if idx.Contains("z") {
		t.Error("Index should not contain member z")
	}
}

// TestSortedTieBreak tests that equal timestamps order by member name
func TestSortedTieBreak(t *testing.T) {
	idx := New(ModeSorted)

	idx.Insert(100, "zeta")
	idx.Insert(100, "alpha")
	idx.Insert(100, "mid")

	_, member, ok := idx.Peek()
	if !ok || member != "alpha" {
		t.Errorf("Expected peek member alpha for equal timestamps, got %s", member)
	}
}

// TestSortedUpdate tests moving members to new timestamps
func TestSortedUpdate(t *testing.T) {
	idx := New(ModeSorted)

	idx.Insert(100, "a")
	idx.Insert(200, "b")

	idx.Update(100, 300, "a")

	min, _ := idx.Min()
	if min != 200 {
		t.Errorf("After moving a to 300, min should be 200, got %d", min)
	}

	// inserting an existing member acts as an update
	idx.Insert(10, "b")
	min, _ = idx.Min()
	if min != 10 {
		t.Errorf("After reinserting b at 10, min should be 10, got %d", min)
	}

	if idx.Len() != 2 {
		t.Errorf("Updates must not duplicate members, len is %d", idx.Len())
	}
}

// TestSortedDelete tests member removal and min maintenance
func TestSortedDelete(t *testing.T) {
	idx := New(ModeSorted)

	idx.Insert(50, "a")
	idx.Insert(100, "b")
	idx.Insert(150, "c")

	idx.Delete(50, "a")

	if idx.Contains("a") {
		t.Error("Deleted member should not be contained")
	}
	min, _ := idx.Min()
	if min != 100 {
		t.Errorf("After deleting the minimum, min should be 100, got %d", min)
	}

	// deleting an unknown member is a no-op
	idx.Delete(0, "nope")
	if idx.Len() != 2 {
		t.Errorf("Expected 2 members, got %d", idx.Len())
	}

	idx.Delete(100, "b")
	idx.Delete(150, "c")
	if _, ok := idx.Min(); ok {
		t.Error("Min() should report empty after removing all members")
	}
}

// TestSortedRename tests in-place identity rewrite
func TestSortedRename(t *testing.T) {
	idx := New(ModeSorted)

	idx.Insert(100, "old")
	idx.Insert(200, "other")

	idx.Rename(100, "old", "new")

	if idx.Contains("old") {
		t.Error("Renamed member should not be reachable under the old name")
	}
	if !idx.Contains("new") {
		t.Error("Renamed member should be reachable under the new name")
	}

	at, member, _ := idx.Peek()
	if at != 100 || member != "new" {
		t.Errorf("Rename must not change the timestamp, peek is (%d,%s)", at, member)
	}
	if idx.Len() != 2 {
		t.Errorf("Rename must not change the member count, len is %d", idx.Len())
	}
}

// TestSortedRandomized cross-checks Min against a sorted reference
func TestSortedRandomized(t *testing.T) {
	idx := New(ModeSorted)
	rng := rand.New(rand.NewSource(42))

	reference := make(map[string]uint64)
	members := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	for i := 0; i < 1000; i++ {
		member := members[rng.Intn(len(members))]
		switch rng.Intn(3) {
		case 0:
			at := uint64(rng.Intn(10000) + 1)
			idx.Insert(at, member)
			reference[member] = at
		case 1:
			if old, ok := reference[member]; ok {
				at := uint64(rng.Intn(10000) + 1)
				idx.Update(old, at, member)
				reference[member] = at
			}
		case 2:
			if old, ok := reference[member]; ok {
				idx.Delete(old, member)
				delete(reference, member)
			}
		}

		if idx.Len() != len(reference) {
			t.Fatalf("step %d: len mismatch, index %d reference %d", i, idx.Len(), len(reference))
		}

		min, ok := idx.Min()
		if len(reference) == 0 {
			if ok {
				t.Fatalf("step %d: Min() should report empty", i)
			}
			continue
		}

		var want []uint64
		for _, at := range reference {
			want = append(want, at)
		}
		sort.Slice(want, func(a, b int) bool { return want[a] < want[b] })
		if !ok || min != want[0] {
			t.Fatalf("step %d: expected min %d, got %d (ok=%v)", i, want[0], min, ok)
		}
	}
}

// TestBucketQuantization tests that the bucket strategy reports floors
func TestBucketQuantization(t *testing.T) {
	idx := New(ModeBucket)

	idx.Insert(5000, "a")

	min, ok := idx.Min()
	if !ok {
		t.Fatal("Min() should report a value")
	}
	if min > 5000 {
		t.Errorf("Bucket min %d must never be later than the actual timestamp 5000", min)
	}

	at, member, ok := idx.Peek()
	if !ok || member != "a" || at != min {
		t.Errorf("Expected peek (%d,a), got (%d,%s)", min, at, member)
	}
}

// TestBucketLifecycle tests insert/update/delete/rename on the bucket strategy
func TestBucketLifecycle(t *testing.T) {
	idx := New(ModeBucket)

	idx.Insert(1000, "a")
	idx.Insert(900000, "b")
	idx.Insert(5000000, "c")

	if idx.Len() != 3 {
		t.Errorf("Expected 3 members, got %d", idx.Len())
	}

	min, _ := idx.Min()
	if min > 1000 {
		t.Errorf("Min %d should not exceed earliest timestamp 1000", min)
	}

	// moving the earliest member away must advance the minimum
	idx.Update(1000, 9000000, "a")
	min, _ = idx.Min()
	if min > 900000 {
		t.Errorf("After update, min %d should not exceed 900000", min)
	}
	if min <= 1000 {
		t.Errorf("After moving member a away, min %d should have advanced past 1000", min)
	}

	idx.Delete(900000, "b")
	if idx.Contains("b") {
		t.Error("Deleted member should not be contained")
	}

	idx.Rename(5000000, "c", "c2")
	if !idx.Contains("c2") || idx.Contains("c") {
		t.Error("Rename should move the membership to the new name")
	}

	idx.Delete(5000000, "c2")
	idx.Delete(9000000, "a")
	if _, ok := idx.Min(); ok {
		t.Error("Min() should report empty after removing all members")
	}
}

// TestBucketSameBucketMembers tests multiple members in one time bucket
func TestBucketSameBucketMembers(t *testing.T) {
	idx := New(ModeBucket)

	// 2048..3071 share a bucket at shift 10
	idx.Insert(2100, "a")
	idx.Insert(2200, "b")
	idx.Insert(2300, "c")

	if idx.Len() != 3 {
		t.Errorf("Expected 3 members, got %d", idx.Len())
	}

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		at, member, ok := idx.Peek()
		if !ok {
			t.Fatal("Peek() should return a member")
		}
		if at > 2100+uint64(i)*100 {
			t.Errorf("Peek timestamp %d later than all members", at)
		}
		seen[member] = true
		idx.Delete(0, member)
	}
	if len(seen) != 3 {
		t.Errorf("Draining should visit all 3 members, saw %d", len(seen))
	}
}

// TestNoopIndex tests the baseline strategy
func TestNoopIndex(t *testing.T) {
	idx := New(ModeNone)

	idx.Insert(100, "a")
	idx.Update(100, 200, "a")

	if idx.Len() != 0 {
		t.Errorf("Baseline index must stay empty, len is %d", idx.Len())
	}
	if _, ok := idx.Min(); ok {
		t.Error("Baseline Min() must report empty")
	}
	if _, _, ok := idx.Peek(); ok {
		t.Error("Baseline Peek() must report empty")
	}
	if idx.Contains("a") {
		t.Error("Baseline Contains() must report false")
	}
}
