package hash

import "time"

// --------------------------------------------------------------------------
// Versioned Write Contract
// --------------------------------------------------------------------------

// VerMode selects how a write treats the stored version counter.
type VerMode uint8

const (
	// VerNone performs no check; the stored version advances by one.
	VerNone VerMode = iota
	// VerEq requires the caller's value to equal the stored version of
	// an existing field. Value 0 is the "no check" sentinel; a write
	// that creates the field is never checked. On success the version
	// advances by one.
	VerEq
	// VerGt requires the caller's value to be strictly greater than the
	// stored version. On success the version becomes the caller's value.
	VerGt
	// VerAbs performs no check; the version becomes the caller's value.
	VerAbs
)

func (m VerMode) String() string {
	switch m {
	case VerNone:
		return "None"
	case VerEq:
		return "Eq"
	case VerGt:
		return "Gt"
	case VerAbs:
		return "Abs"
	default:
		return "Unknown"
	}
}

// VerOp is a version constraint carried by a write.
type VerOp struct {
	Mode  VerMode
	Value uint64
}

// Check evaluates the constraint against the stored version of an
// existing field. Writes that create a field skip the check.
func (v VerOp) Check(stored uint64) bool {
	switch v.Mode {
	case VerEq:
		return v.Value == 0 || v.Value == stored
	case VerGt:
		return v.Value > stored
	default:
		return true
	}
}

// Next returns the version a field carries after an accepted write.
func (v VerOp) Next(stored uint64) uint64 {
	switch v.Mode {
	case VerGt, VerAbs:
		return v.Value
	default:
		return stored + 1
	}
}

// --------------------------------------------------------------------------
// Write Options
// --------------------------------------------------------------------------

// ExistMode restricts a write to creating or updating fields.
type ExistMode uint8

const (
	ExistAny ExistMode = iota // write regardless of prior existence
	ExistNX                   // only create, no-op if the field exists
	ExistXX                   // only update, no-op if the field is absent
)

// SetOptions controls a Set operation.
//
// Expiry resolution: ExpireAt wins if nonzero; otherwise a positive TTL
// is added to the current time; otherwise the field's TTL is cleared
// unless KeepTTL is set. Use ExpireImmediately as ExpireAt for a
// zero-delay expiry.
type SetOptions struct {
	Exist    ExistMode
	KeepTTL  bool
	TTL      time.Duration
	ExpireAt uint64
	Version  VerOp
}

// AbsoluteExpiry resolves the expiry request against a fixed now,
// returning the absolute timestamp to store (0 = no TTL) and whether the
// field's current TTL should be kept instead. Resolving against an
// explicit clock value keeps replicated and replayed forms of the same
// write deterministic.
func (o SetOptions) AbsoluteExpiry(now uint64) (at uint64, keep bool) {
	switch {
	case o.ExpireAt > 0:
		return clampExpiry(o.ExpireAt), false
	case o.TTL > 0:
		return clampExpiry(now + uint64(o.TTL.Milliseconds())), false
	case o.KeepTTL:
		return 0, true
	default:
		return 0, false
	}
}

// clampExpiry keeps the "no TTL" sentinel unambiguous: a computed or
// caller-supplied timestamp of 0 becomes an immediate expiry.
func clampExpiry(at uint64) uint64 {
	if at == 0 {
		return ExpireImmediately
	}
	return at
}

// IncrOptions controls an IncrBy operation. Min and Max bound the result
// when non-nil; nil means unbounded on that side. Unlike Set, an
// increment without an expiry request keeps the field's current TTL.
type IncrOptions struct {
	Min      *int64
	Max      *int64
	TTL      time.Duration
	ExpireAt uint64
	Version  VerOp
}

// AbsoluteExpiry resolves the expiry request against a fixed now. keep is
// true when no expiry was requested at all.
func (o IncrOptions) AbsoluteExpiry(now uint64) (at uint64, keep bool) {
	switch {
	case o.ExpireAt > 0:
		return clampExpiry(o.ExpireAt), false
	case o.TTL > 0:
		return clampExpiry(now + uint64(o.TTL.Milliseconds())), false
	default:
		return 0, true
	}
}

// IncrFloatOptions is the float counterpart of IncrOptions.
type IncrFloatOptions struct {
	Min      *float64
	Max      *float64
	TTL      time.Duration
	ExpireAt uint64
	Version  VerOp
}

// AbsoluteExpiry resolves the expiry request against a fixed now. keep is
// true when no expiry was requested at all.
func (o IncrFloatOptions) AbsoluteExpiry(now uint64) (at uint64, keep bool) {
	switch {
	case o.ExpireAt > 0:
		return clampExpiry(o.ExpireAt), false
	case o.TTL > 0:
		return clampExpiry(now + uint64(o.TTL.Milliseconds())), false
	default:
		return 0, true
	}
}
