// Package github implements the GitHub source backend.
//
// It produces issue and pull_request items for one repository through
// the engine's rate-limited client, so archiving and replay work
// without the backend knowing about either. Comments are fetched in a
// nested archive scope per item.
package github
