// Package cursor implements the opaque pagination cursor shared by every
// read-model query handler (spec.md §4.6/§6.5): an unpadded base64url
// encoding of "{updated_at_rfc3339}|{uuid}".
package cursor

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Cursor identifies the last row returned by a paginated query.
type Cursor struct {
	UpdatedAt time.Time
	ID        string
}

var encoding = base64.URLEncoding.WithPadding(base64.NoPadding)

// Encode produces the opaque cursor token for a row.
func Encode(c Cursor) string {
	raw := fmt.Sprintf("%s|%s", c.UpdatedAt.UTC().Format(time.RFC3339Nano), c.ID)
	return encoding.EncodeToString([]byte(raw))
}

// Decode parses a cursor token produced by Encode. An empty token decodes to
// the zero Cursor with no error, representing "start from the beginning".
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}

	raw, err := encoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("invalid cursor payload")
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		updatedAt, err = time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return Cursor{}, fmt.Errorf("invalid cursor timestamp: %w", err)
		}
	}

	if parts[1] == "" {
		return Cursor{}, fmt.Errorf("invalid cursor id")
	}

	return Cursor{UpdatedAt: updatedAt, ID: parts[1]}, nil
}

// Page describes one page of a cursor-paginated query result.
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}

// Paginate trims a fetched batch of limit+1 rows (ordered by updated_at DESC,
// id DESC, or the model's chosen consistent order) down to limit rows,
// deriving the next cursor from the last returned row when more remain.
// updatedAt/id extract the sort key from a row for cursor construction.
func Paginate[T any](rows []T, limit int, updatedAt func(T) time.Time, id func(T) string) Page[T] {
	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	page := Page[T]{Items: rows, HasMore: hasMore}
	if hasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextCursor = Encode(Cursor{UpdatedAt: updatedAt(last), ID: id(last)})
	}
	return page
}
