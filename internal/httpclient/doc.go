// Package httpclient provides the rate-limited network client shared
// by every backend.
//
// The client classifies responses, retries transient failures with a
// fixed inter-attempt delay, tracks provider quota headers, rotates
// between credential contexts when one runs dry and, as a last resort,
// sleeps until the quota resets. When archiving is enabled every
// successful response is appended to the archive before it is returned,
// so a replayed run is indistinguishable from a live one from the
// orchestrator's point of view.
package httpclient
