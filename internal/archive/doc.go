// Package archive implements the durable, replayable log of raw
// responses produced during a fetch run.
//
// The log flattens a tree-shaped call graph into a sequence: nested
// sub-fetches are delimited by BEGIN/END marker entries with a stack
// discipline. Replay walks the sequence in original write order and
// reconstructs the nesting, so a run can be reproduced byte for byte
// without contacting the network.
//
// Storage is a single SQLite file per run, opened by exactly one
// writer. The store never normalises, merges or reorders entries.
package archive
