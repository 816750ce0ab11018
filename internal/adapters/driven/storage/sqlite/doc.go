// Package sqlite persists fetch checkpoints in a local SQLite
// database so interrupted or periodic runs can resume where the
// previous one stopped.
package sqlite
