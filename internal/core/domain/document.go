package domain

import "time"

// Document is the final unit of output: one item wrapped with the
// metadata every downstream consumer relies on. Documents are immutable
// once emitted.
type Document struct {
	// BackendName identifies the adapter that produced the item.
	BackendName string `json:"backend_name"`

	// BackendVersion is the adapter version at fetch time.
	BackendVersion string `json:"backend_version"`

	// Origin identifies the remote source instance (a repository URL,
	// a tracker URL, ...).
	Origin string `json:"origin"`

	// UUID is the stable content-derived identity of the item. See
	// the UUID function.
	UUID string `json:"uuid"`

	// UpdatedOn is when the underlying fact last changed, as Unix
	// seconds.
	UpdatedOn int64 `json:"updated_on"`

	// Timestamp is the fetch wall-clock time, as Unix seconds.
	Timestamp int64 `json:"timestamp"`

	// Category is the classification tag ("issue", "commit", ...).
	Category string `json:"category"`

	// Tag is a free-form label for tracing. Defaults to Origin.
	Tag string `json:"tag"`

	// Data is the adapter-specific payload, untouched.
	Data map[string]any `json:"data"`
}

// Summary aggregates the outcome of one fetch run.
type Summary struct {
	// Fetched is the number of documents emitted.
	Fetched int

	// Skipped counts items dropped without emitting, split by reason.
	SkippedOutOfWindow int
	SkippedParse       int

	// LastUUID is the identity of the last emitted document.
	LastUUID string

	MinUpdatedOn time.Time
	MaxUpdatedOn time.Time
	LastUpdatedOn time.Time

	// LastCursor is the last applied checkpoint cursor.
	LastCursor string
}

// Total is the count of items seen, emitted or skipped.
func (s *Summary) Total() int {
	return s.Fetched + s.SkippedOutOfWindow + s.SkippedParse
}

// Update folds an emitted document into the summary.
func (s *Summary) Update(doc *Document) {
	s.Fetched++
	s.LastUUID = doc.UUID

	updatedOn := time.Unix(doc.UpdatedOn, 0).UTC()
	if s.MinUpdatedOn.IsZero() || updatedOn.Before(s.MinUpdatedOn) {
		s.MinUpdatedOn = updatedOn
	}
	if s.MaxUpdatedOn.IsZero() || updatedOn.After(s.MaxUpdatedOn) {
		s.MaxUpdatedOn = updatedOn
	}
	s.LastUpdatedOn = updatedOn
}
