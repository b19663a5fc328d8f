package index

import (
	"container/heap"
	"strconv"
)

// item represents one indexed member with its expiry timestamp.
type item struct {
	member string // field or key name
	at     uint64 // absolute expiry in ms, used as heap priority
	pos    int    // position in the heap slice, maintained by heap package
}

func (i *item) String() string {
	return "{member: " + i.member + ", at: " + strconv.FormatUint(i.at, 10) + "}"
}

// sortedIndex combines a binary min-heap with a member map so that both
// priority operations and member-based access are efficient:
//
//   - O(log n) for Insert, Update, Delete
//   - O(1) for Min, Peek, Contains
//
// Entries are ordered by timestamp ascending with the member name as
// tie-break, so iteration order is deterministic for equal timestamps.
type sortedIndex struct {
	items    []*item          // the heap slice
	itemsMap map[string]*item // member -> item for O(1) access
}

func newSortedIndex() *sortedIndex {
	return &sortedIndex{
		items:    make([]*item, 0),
		itemsMap: make(map[string]*item),
	}
}

// --------------------------------------------------------------------------
// heap.Interface
// --------------------------------------------------------------------------

func (idx *sortedIndex) Len() int { return len(idx.items) }

func (idx *sortedIndex) Less(i, j int) bool {
	if idx.items[i].at != idx.items[j].at {
		return idx.items[i].at < idx.items[j].at
	}
	return idx.items[i].member < idx.items[j].member
}

func (idx *sortedIndex) Swap(i, j int) {
	idx.items[i], idx.items[j] = idx.items[j], idx.items[i]
	idx.items[i].pos = i
	idx.items[j].pos = j
}

func (idx *sortedIndex) Push(x interface{}) {
	n := len(idx.items)
	it := x.(*item)
	it.pos = n
	idx.items = append(idx.items, it)
	idx.itemsMap[it.member] = it
}

func (idx *sortedIndex) Pop() interface{} {
	old := idx.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.pos = -1    // for safety
	idx.items = old[:n-1]
	delete(idx.itemsMap, it.member)
	return it
}

// --------------------------------------------------------------------------
// Index interface
// --------------------------------------------------------------------------

func (idx *sortedIndex) Insert(at uint64, member string) {
	if it, exists := idx.itemsMap[member]; exists {
		it.at = at
		heap.Fix(idx, it.pos)
		return
	}
	heap.Push(idx, &item{member: member, at: at})
}

func (idx *sortedIndex) Update(_, newAt uint64, member string) {
	idx.Insert(newAt, member)
}

func (idx *sortedIndex) Delete(_ uint64, member string) {
	it, exists := idx.itemsMap[member]
	if !exists {
		return
	}
	heap.Remove(idx, it.pos)
}

func (idx *sortedIndex) Rename(_ uint64, oldMember, newMember string) {
	it, exists := idx.itemsMap[oldMember]
	if !exists {
		return
	}
	delete(idx.itemsMap, oldMember)
	it.member = newMember
	idx.itemsMap[newMember] = it
	// timestamp is unchanged, only the tie-break key moved
	heap.Fix(idx, it.pos)
}

func (idx *sortedIndex) Min() (uint64, bool) {
	if len(idx.items) == 0 {
		return 0, false
	}
	return idx.items[0].at, true
}

func (idx *sortedIndex) Peek() (uint64, string, bool) {
	if len(idx.items) == 0 {
		return 0, "", false
	}
	return idx.items[0].at, idx.items[0].member, true
}

func (idx *sortedIndex) Contains(member string) bool {
	_, exists := idx.itemsMap[member]
	return exists
}
