package index

import "fmt"

// Mode selects the index strategy.
type Mode string

const (
	ModeSorted Mode = "sorted" // precise ordered index
	ModeBucket Mode = "bucket" // approximate time-bucketed index
	ModeNone   Mode = "none"   // no index, sampling fallback
)

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSorted, ModeBucket, ModeNone:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown index mode %q (want sorted, bucket or none)", s)
	}
}

// Index orders members (field names or key names) by an absolute expiry
// timestamp in milliseconds. A member appears at most once.
type Index interface {
	// Insert adds a member at the given timestamp. If the member is
	// already present it is moved to the new timestamp.
	Insert(at uint64, member string)

	// Update moves a member from its old timestamp to a new one. The old
	// timestamp is the one the member was inserted with; strategies that
	// track members directly may ignore it.
	Update(oldAt, newAt uint64, member string)

	// Delete removes a member. The timestamp is the one the member was
	// inserted with; strategies that track members directly may ignore it.
	Delete(at uint64, member string)

	// Rename replaces a member's identity without changing its timestamp.
	Rename(at uint64, oldMember, newMember string)

	// Min returns the smallest timestamp currently indexed. The second
	// return value is false if the index is empty. Approximate strategies
	// may return a quantized (earlier) value.
	Min() (uint64, bool)

	// Peek returns the timestamp and member with the smallest timestamp
	// without removing it. Approximate strategies return an arbitrary
	// member of the earliest bucket.
	Peek() (uint64, string, bool)

	// Contains reports whether a member is indexed.
	Contains(member string) bool

	// Len returns the number of indexed members.
	Len() int
}

// New creates an empty index for the given mode.
func New(mode Mode) Index {
	switch mode {
	case ModeBucket:
		return newBucketIndex()
	case ModeNone:
		return noopIndex{}
	default:
		return newSortedIndex()
	}
}
