// Package driven defines the interfaces the core calls OUT to
// infrastructure: source adapters (backends), archive storage,
// checkpoint persistence and configuration.
//
// Core services depend on these interfaces; adapters implement them.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: any backend, storage or client package
package driven
