// Package testing provides a reusable test suite for hash.HashDB
// implementations. Engines delegate to RunHashDBTests from their own
// test files, once per configuration they want covered (for cedar: once
// per index strategy).
//
// The suite only relies on the public HashDB interface, so it can be
// reused for future engines as well as for store-backed adapters.
package testing
