package domain

// RawResponse is one raw payload obtained from a data source, either
// over the network or from an archive replay. It is immutable once
// created: the engine never normalises, merges or rewrites payloads.
type RawResponse struct {
	// Seq is a monotonically increasing sequence number within one
	// fetch run. Assigned by whoever produced the response.
	Seq uint64

	// StatusCode is the HTTP-equivalent status of the response.
	StatusCode int

	// Headers is a small header snapshot. It carries at least the
	// provider quota headers when the source exposes them.
	Headers map[string]string

	// Body is the opaque payload bytes.
	Body []byte

	// Scope is the innermost enclosing fetch scope the response was
	// obtained under, empty at the top level. Attributed identically
	// in live and replay mode.
	Scope string
}

// Header returns the named header or an empty string.
func (r *RawResponse) Header(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers[name]
}

// RawItem is one logical record discovered inside one or more raw
// responses. The Fields map is adapter-specific; the engine only reads
// it through the adapter's metadata callbacks.
type RawItem struct {
	// Fields is the decoded source record.
	Fields map[string]any

	// Cursor is the adapter-defined resume state that becomes valid
	// once this item has been applied. Opaque to the engine.
	Cursor string
}
