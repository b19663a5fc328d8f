package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet         QueryType = iota // Retrieve value and version of a field.
	QueryTGetMultiple                  // Retrieve several fields with versions at once.
	QueryTExists                       // Check if a field exists and is not expired.
	QueryTTTL                          // Retrieve the remaining lifetime of a field.
	QueryTLen                          // Count the live fields of a key.
	QueryTFields                       // Retrieve the field names of a key.
	QueryTGetAll                       // Retrieve all live fields and values of a key.
	QueryTScan                         // Iterate the live fields of a key in cursor batches.
	QueryTDigest                       // Retrieve the consistency digest of a key.
	QueryTGetDBInfo                    // Retrieve metadata about the engine underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTGetMultiple:
		return "GetMultiple"
	case QueryTExists:
		return "Exists"
	case QueryTTTL:
		return "TTL"
	case QueryTLen:
		return "Len"
	case QueryTFields:
		return "Fields"
	case QueryTGetAll:
		return "GetAll"
	case QueryTScan:
		return "Scan"
	case QueryTDigest:
		return "Digest"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via
// SyncRead or ReadStale. Queries never cross the wire, so the struct can
// carry per-type extras without a serialization format.
type Query struct {
	Type  QueryType // The type of Query to perform.
	NS    int       // The namespace the Query targets.
	Key   string    // The key for the Query (empty for some queries).
	Field string    // The field for the Query (empty for key-level queries).

	// GetMultiple
	Fields []string // The fields to retrieve.

	// Scan
	Cursor   uint64 // Resume point of the iteration (0 = start).
	Match    string // Glob filter on field names ("" = all).
	Count    int    // Batch size bound (<= 0 = engine default).
	NoValues bool   // Return field names only.
}

// QueryResult is the result of a QueryTGet operation.
// All other query results are primitive types or predefined structs
// (bool, int64, []string, map[string][]byte, hash.DatabaseInfo).
type QueryResult struct {
	Ok      bool
	Version uint64
	Value   []byte
}

// ScanResult is the result of a QueryTScan operation. Next is 0 once the
// iteration is complete.
type ScanResult struct {
	Fields []string
	Values [][]byte
	Next   uint64
}
