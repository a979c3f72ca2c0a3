package models

import (
	"strings"
	"time"
)

// wire layouts the server is known to emit for timestamps. Messages written
// through the websocket path carry RFC 3339; rows stamped by SQLite's
// CURRENT_TIMESTAMP come back as "2006-01-02 15:04:05".
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Time is a timestamp that tolerates the server's mixed wire formats.
// A missing, null, or empty value decodes to the zero time, which sorts
// before every real timestamp.
type Time struct {
	time.Time
}

// NewTime wraps a time.Time.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// UnmarshalJSON accepts any known server layout, null, or "".
func (t *Time) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}

	var lastErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}

	return lastErr
}

// MarshalJSON emits RFC 3339, or null for the zero time.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}
