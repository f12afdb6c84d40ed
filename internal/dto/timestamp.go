package dto

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Timestamp is an ISO 8601 date-time that tolerates malformed input.
// Values without a zone offset are resolved in the location supplied to In.
type Timestamp struct {
	raw   string
	t     time.Time
	zoned bool
	valid bool
}

// NewTimestamp wraps a concrete time.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{raw: t.Format(time.RFC3339Nano), t: t, zoned: true, valid: true}
}

// ParseTimestamp parses raw without ever failing; check Valid for the outcome.
func ParseTimestamp(raw string) Timestamp {
	raw = strings.TrimSpace(raw)
	ts := Timestamp{raw: raw}
	if raw == "" {
		return ts
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			ts.t, ts.zoned, ts.valid = t, true, true
			return ts
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			ts.t, ts.valid = t, true
			return ts
		}
	}
	return ts
}

// Valid reports whether the timestamp parsed.
func (ts Timestamp) Valid() bool { return ts.valid }

// Raw returns the original text.
func (ts Timestamp) Raw() string { return ts.raw }

// In resolves the timestamp in loc. Zone-less values are read as wall clock in loc.
func (ts Timestamp) In(loc *time.Location) (time.Time, bool) {
	if !ts.valid {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if ts.zoned {
		return ts.t.In(loc), true
	}
	t := ts.t
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), true
}

// MarshalJSON emits the original text, or null when empty.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.raw == "" {
		return []byte("null"), nil
	}
	return json.Marshal(ts.raw)
}

// UnmarshalJSON accepts strings and null; anything else yields an invalid timestamp.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*ts = Timestamp{raw: string(data)}
		return nil
	}
	*ts = ParseTimestamp(raw)
	return nil
}
