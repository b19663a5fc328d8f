// Package cmd implements the command-line interface for the hKV hash
// store. It provides a hierarchical command structure for inspecting and
// benchmarking the engine.
//
// The package is organized into several subpackages:
//
//   - bench: Timed workloads against an in-process engine with latency reports
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See hkv -help for a list of all commands.
package cmd
