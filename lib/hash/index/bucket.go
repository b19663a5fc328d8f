package index

// bucketShift quantizes timestamps into 1024ms wide buckets.
const bucketShift = 10

// bucketIndex is the approximate strategy: members are grouped into
// fixed-width time buckets keyed by the quantized timestamp. Maintenance
// is amortized O(1); the price is that ordering within a bucket is
// undefined and Min/Peek report the bucket floor, which can be up to one
// bucket width earlier than the member's actual expiry. Consumers must
// therefore re-check the real timestamp before expiring anything.
type bucketIndex struct {
	buckets map[uint64]map[string]struct{} // bucket id -> members
	members map[string]uint64              // member -> bucket id

	minBucket uint64 // cached smallest bucket id, valid if minValid
	minValid  bool
}

func newBucketIndex() *bucketIndex {
	return &bucketIndex{
		buckets: make(map[uint64]map[string]struct{}),
		members: make(map[string]uint64),
	}
}

func bucketOf(at uint64) uint64 {
	return at >> bucketShift
}

func (idx *bucketIndex) Insert(at uint64, member string) {
	id := bucketOf(at)

	if old, exists := idx.members[member]; exists {
		if old == id {
			return
		}
		idx.remove(old, member)
	}

	b, ok := idx.buckets[id]
	if !ok {
		b = make(map[string]struct{})
		idx.buckets[id] = b
	}
	b[member] = struct{}{}
	idx.members[member] = id

	if !idx.minValid || id < idx.minBucket {
		idx.minBucket = id
		idx.minValid = true
	}
}

func (idx *bucketIndex) Update(_, newAt uint64, member string) {
	idx.Insert(newAt, member)
}

func (idx *bucketIndex) Delete(_ uint64, member string) {
	id, exists := idx.members[member]
	if !exists {
		return
	}
	idx.remove(id, member)
}

func (idx *bucketIndex) Rename(_ uint64, oldMember, newMember string) {
	id, exists := idx.members[oldMember]
	if !exists {
		return
	}
	delete(idx.buckets[id], oldMember)
	delete(idx.members, oldMember)
	idx.buckets[id][newMember] = struct{}{}
	idx.members[newMember] = id
}

// remove deletes a member from a bucket and invalidates the cached
// minimum if the bucket became empty.
func (idx *bucketIndex) remove(id uint64, member string) {
	b := idx.buckets[id]
	delete(b, member)
	delete(idx.members, member)
	if len(b) == 0 {
		delete(idx.buckets, id)
		if idx.minValid && id == idx.minBucket {
			idx.minValid = false
		}
	}
}

// refreshMin rescans bucket ids for the smallest one. O(#buckets), which
// stays small because buckets cover 1024ms each.
func (idx *bucketIndex) refreshMin() {
	idx.minValid = false
	for id := range idx.buckets {
		if !idx.minValid || id < idx.minBucket {
			idx.minBucket = id
			idx.minValid = true
		}
	}
}

func (idx *bucketIndex) Min() (uint64, bool) {
	if len(idx.members) == 0 {
		return 0, false
	}
	if !idx.minValid {
		idx.refreshMin()
	}
	return idx.minBucket << bucketShift, true
}

func (idx *bucketIndex) Peek() (uint64, string, bool) {
	at, ok := idx.Min()
	if !ok {
		return 0, "", false
	}
	for member := range idx.buckets[idx.minBucket] {
		return at, member, true
	}
	return 0, "", false
}

func (idx *bucketIndex) Contains(member string) bool {
	_, exists := idx.members[member]
	return exists
}

func (idx *bucketIndex) Len() int {
	return len(idx.members)
}
