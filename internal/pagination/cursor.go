// Package pagination implements the opaque keyset cursors behind the
// booking listing endpoints.
//
// A cursor names a (created_at, id) position in the newest-first sort
// order the stores use; a listing resumes strictly after that position.
// The wire form is base64 over "<unix-nanos>|<id>", handed to clients
// as an opaque token.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned for tokens that did not come from Encode.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

// Cursor is a decoded position in a booking listing.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode builds the opaque token for the row at (createdAt, id).
func Encode(createdAt time.Time, id string) string {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), id)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque token. An empty token means "first page" and
// decodes to nil without error.
func Decode(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanosPart, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{
		CreatedAt: time.Unix(0, nanos).UTC(),
		ID:        id,
	}, nil
}

// ComputePage trims a limit+1 fetch down to one page. When the extra
// row is present there is a further page, and the returned token names
// the last row kept; extractKey pulls that row's (created_at, id).
func ComputePage[T any](items []T, limit int, extractKey func(T) (time.Time, string)) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	createdAt, id := extractKey(items[len(items)-1])
	return items, Encode(createdAt, id), true
}
