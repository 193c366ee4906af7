package campaignflow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const (
	// DefaultPageSize is used when a list request names no page size
	DefaultPageSize = 20
	// MaxPageSize is the largest page a list request may ask for
	MaxPageSize = 100
)

// Cursor is an opaque pagination token marking the last index position
// a page returned. Callers pass it back unchanged to continue listing.
type Cursor struct {
	token string
}

// NewCursor encodes an index position.
// Format: base64url(json(position)); json sorts map keys, so the
// encoding of a position is stable.
func NewCursor(position map[string]string) (Cursor, error) {
	if len(position) == 0 {
		return Cursor{}, nil
	}
	raw, err := json.Marshal(position)
	if err != nil {
		return Cursor{}, fmt.Errorf("failed to encode cursor: %w", err)
	}
	return Cursor{token: base64.RawURLEncoding.EncodeToString(raw)}, nil
}

// ParseCursor validates a token received from a caller.
// An empty token yields the zero Cursor.
func ParseCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	c := Cursor{token: token}
	if _, err := c.Position(); err != nil {
		return Cursor{}, err
	}
	return c, nil
}

// Position decodes the index position the cursor marks.
// The zero Cursor decodes to a nil position.
func (c Cursor) Position() (map[string]string, error) {
	if c.token == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(c.token)
	if err != nil {
		return nil, NewValidationError("invalid cursor", FieldError{Field: "cursor", Reason: "is not a valid token"})
	}

	var position map[string]string
	if err := json.Unmarshal(data, &position); err != nil || len(position) == 0 {
		return nil, NewValidationError("invalid cursor", FieldError{Field: "cursor", Reason: "is not a valid token"})
	}
	return position, nil
}

// IsZero reports whether the cursor marks no position
func (c Cursor) IsZero() bool {
	return c.token == ""
}

// String returns the opaque token
func (c Cursor) String() string {
	return c.token
}

// MarshalJSON encodes the token as a string, or null for the zero cursor
func (c Cursor) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(c.token)
}

// UnmarshalJSON decodes a token and validates it like ParseCursor
func (c *Cursor) UnmarshalJSON(data []byte) error {
	var token *string
	if err := json.Unmarshal(data, &token); err != nil {
		return err
	}
	if token == nil {
		*c = Cursor{}
		return nil
	}
	parsed, err := ParseCursor(*token)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
