package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UUID derives the stable identity of an item from its origin, native
// identifier and last-update time. It is a pure function: the same
// inputs always produce the same identity, across process restarts and
// across implementations in other languages.
//
// The identity is the hex SHA1 of the values joined with ':', with
// updated_on rendered as Unix seconds in UTC. All values must be
// non-empty.
func UUID(origin, nativeID string, updatedOn time.Time) (string, error) {
	if origin == "" {
		return "", fmt.Errorf("%w: empty origin", ErrInvalidItem)
	}
	if nativeID == "" {
		return "", fmt.Errorf("%w: empty native id", ErrInvalidItem)
	}
	if updatedOn.IsZero() {
		return "", fmt.Errorf("%w: zero updated_on", ErrInvalidItem)
	}

	s := strings.Join([]string{
		origin,
		nativeID,
		strconv.FormatInt(updatedOn.Unix(), 10),
	}, ":")

	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:]), nil
}
