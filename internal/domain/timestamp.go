package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TimestampLayout is the wire format of pickup and delivery times (YYYY-MM-DD HH:mm:ss).
const TimestampLayout = "2006-01-02 15:04:05"

var inboundLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Timestamp is a wall-clock time serialized in TimestampLayout.
// The time is formatted in its own location; no conversion to UTC happens.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Second)}
}

func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range inboundLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q, expected YYYY-MM-DD HH:mm:ss", s)
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
