package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the stored timestamp format: UTC, microsecond
// precision, no zone suffix.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Timestamp is a UTC instant serialized with TimestampLayout
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to microseconds and converts it to UTC
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Microsecond)}
}

func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts the stored layout (with or without fractional
// seconds) as well as RFC 3339.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp parses a stored timestamp string
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return NewTimestamp(parsed), nil
	}
	// fractional seconds are accepted after the seconds field even though the
	// layout omits them
	parsed, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return NewTimestamp(parsed), nil
}

// Event is the canonical analytics record
type Event struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	UserID       string                 `json:"user_id"`
	SessionID    string                 `json:"session_id"`
	Timestamp    Timestamp              `json:"timestamp"`
	Properties   map[string]interface{} `json:"properties"`
	LastEnriched *Timestamp             `json:"last_enriched,omitempty"`
}

// StoreRequest carries the caller-supplied fields of a new event
type StoreRequest struct {
	EventType  string
	UserID     string
	SessionID  string
	Properties map[string]interface{}
}

// DefaultSessionID is the session used when a request omits one
func DefaultSessionID(userID string) string {
	return "sess_" + userID
}

// normalize trims and validates the request, filling defaults
func (r StoreRequest) normalize() (StoreRequest, error) {
	r.EventType = strings.TrimSpace(r.EventType)
	r.UserID = strings.TrimSpace(r.UserID)
	r.SessionID = strings.TrimSpace(r.SessionID)

	if r.EventType == "" {
		return r, &ValidationError{Field: "event_type", Message: "event_type is required"}
	}
	if r.UserID == "" {
		return r, &ValidationError{Field: "user_id", Message: "user_id is required"}
	}
	if r.SessionID == "" {
		r.SessionID = DefaultSessionID(r.UserID)
	}
	if r.Properties == nil {
		r.Properties = map[string]interface{}{}
	}
	return r, nil
}

// Retention holds the TTL applied to each class of key
type Retention struct {
	Events         time.Duration
	Sessions       time.Duration
	DailyCounts    time.Duration
	AnalyticsCache time.Duration
}

// DefaultRetention returns 30d events, 7d sessions, 90d daily counts and a
// 1h analytics cache.
func DefaultRetention() Retention {
	return Retention{
		Events:         30 * 24 * time.Hour,
		Sessions:       7 * 24 * time.Hour,
		DailyCounts:    90 * 24 * time.Hour,
		AnalyticsCache: time.Hour,
	}
}
