// Package util provides supporting data structures for the hash engine:
// seeded string hashing, a size histogram for cheap statistical reporting,
// and a lock-free multi-producer single-consumer queue used to hand
// expired-field events from the engine to the replication driver.
//
// Nothing in this package knows about hashes, fields or TTLs; it is
// generic plumbing shared by the engine and the store layer.
package util
