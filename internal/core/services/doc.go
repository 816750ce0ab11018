// Package services implements the core orchestration: the fetch
// lifecycle state machine and the backend registry.
package services
