// Package pagination encodes positions in newest-first ledger listings as
// opaque cursors.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned for a cursor that was not produced by Encode.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

const cursorTag = "tx"

// Cursor is the ledger row a page ended on.
type Cursor struct {
	Timestamp time.Time
	TxID      string
}

// Encode returns the opaque cursor for c.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%s|%d|%s", cursorTag, c.Timestamp.UnixNano(), c.TxID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Follows reports whether the row (ts, txID) comes after c in newest-first
// order: older timestamps first, ties broken by descending ID.
func (c Cursor) Follows(ts time.Time, txID string) bool {
	if !ts.Equal(c.Timestamp) {
		return ts.Before(c.Timestamp)
	}
	return txID < c.TxID
}

// Decode parses a cursor produced by Encode. The empty string is no cursor.
// The timestamp is returned in loc, the zone the ledger stamps rows in.
func Decode(s string, loc *time.Location) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 3)
	if len(parts) != 3 || parts[0] != cursorTag || parts[2] == "" {
		return nil, ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Cursor{
		Timestamp: time.Unix(0, nanos).In(loc),
		TxID:      parts[2],
	}, nil
}

// ComputePage trims items fetched with limit+1 back to limit. When a row
// was trimmed it returns the cursor of the last kept row and true.
func ComputePage[T any](items []T, limit int, key func(T) Cursor) ([]T, string, bool) {
	if len(items) <= limit {
		return items, "", false
	}
	items = items[:limit]
	return items, key(items[len(items)-1]).Encode(), true
}
