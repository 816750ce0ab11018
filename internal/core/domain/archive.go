package domain

import "time"

// EntryKind tags an archive entry as payload or as a scope marker.
type EntryKind int

const (
	// EntryData is a raw response payload.
	EntryData EntryKind = iota

	// EntryBegin opens a nested fetch scope.
	EntryBegin

	// EntryEnd closes the innermost open scope.
	EntryEnd
)

// String returns the storage name of the kind.
func (k EntryKind) String() string {
	switch k {
	case EntryData:
		return "DATA"
	case EntryBegin:
		return "BEGIN"
	case EntryEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// ArchiveEntry is one record of the archive log: a raw response tagged
// with its kind. Marker entries carry a label and an empty response.
// Entries are stored in strict write order and never reordered.
type ArchiveEntry struct {
	// Kind distinguishes payloads from scope markers.
	Kind EntryKind

	// Label names the scope for BEGIN and END markers. Empty for DATA.
	Label string

	// Response is the archived payload. Zero for markers.
	Response RawResponse

	// StoredAt is the wall-clock time the entry was appended.
	StoredAt time.Time
}
