// Package pagination implements keyset cursors for ledger and audit listings.
//
// A cursor names the (created_at, id) pair of the last row the client saw.
// Stores page with a "rows strictly older than the cursor" predicate, so
// pages stay stable while new entries are appended at the head.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned by Decode when the cursor string is malformed.
// Handlers map it to a 400.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a decoded position in a listing.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode packs a row key into an opaque URL-safe string.
func Encode(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. Empty input means "from the top"
// and decodes to nil.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{
		CreatedAt: time.Unix(0, n).UTC(),
		ID:        id,
	}, nil
}

// ComputePage trims a limit+1 fetch down to the requested page. When the
// extra row is present there is another page, and the returned cursor points
// at the last row kept.
func ComputePage[T any](items []T, limit int, key func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	createdAt, id := key(items[len(items)-1])
	return items, Encode(createdAt, id), true
}
