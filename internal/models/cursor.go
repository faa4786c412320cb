package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Cursor is a watermark on (createdAt, id). Timestamps are kept at microsecond
// precision so they survive a round trip through Postgres timestamptz.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UnixMicro(), 10) + "|" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Before reports whether c sorts strictly older than other.
func (c Cursor) Before(other Cursor) bool {
	if c.CreatedAt.Equal(other.CreatedAt) {
		return c.ID < other.ID
	}
	return c.CreatedAt.Before(other.CreatedAt)
}

// DecodeCursor parses a token produced by Encode. An empty token yields a nil cursor.
// Every paged collection is keyed by UUID, so the id is normalized to its canonical form.
func DecodeCursor(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}

	micros, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}

	usec, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", ErrValidation)
	}

	return &Cursor{CreatedAt: time.UnixMicro(usec).UTC(), ID: parsed.String()}, nil
}
