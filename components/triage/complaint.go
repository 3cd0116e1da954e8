package triage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Complaint is a classified feedback record owned by the document store.
type Complaint struct {
	ID              string  `json:"id" yaml:"id"`
	Description     string  `json:"description,omitempty" yaml:"description,omitempty"`
	ComplaintText   string  `json:"complaint_text,omitempty" yaml:"complaint_text,omitempty"`
	Summary         string  `json:"summary,omitempty" yaml:"summary,omitempty"`
	Category        string  `json:"category,omitempty" yaml:"category,omitempty"`
	Urgency         string  `json:"urgency,omitempty" yaml:"urgency,omitempty"`
	Sentiment       string  `json:"sentiment,omitempty" yaml:"sentiment,omitempty"`
	SuggestedAction string  `json:"suggested_action,omitempty" yaml:"suggested_action,omitempty"`
	Status          string  `json:"status,omitempty" yaml:"status,omitempty"`
	CreatedAt       Instant `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	Timestamp       Instant `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	UserID          string  `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	UserEmail       string  `json:"user_email,omitempty" yaml:"user_email,omitempty"`
	UserName        string  `json:"user_name,omitempty" yaml:"user_name,omitempty"`
}

// Text returns the raw submitted text.
func (c Complaint) Text() string {
	if c.ComplaintText != "" {
		return c.ComplaintText
	}
	return c.Description
}

// CategoryLabel returns the category, or DefaultCategory when absent.
func (c Complaint) CategoryLabel() string {
	if c.Category == "" {
		return DefaultCategory
	}
	return c.Category
}

// UrgencyLabel returns the urgency, or DefaultUrgency when absent.
func (c Complaint) UrgencyLabel() string {
	if c.Urgency == "" {
		return DefaultUrgency
	}
	return c.Urgency
}

// Instant returns created_at, falling back to timestamp. Zero means missing.
func (c Complaint) Instant() Instant {
	if c.CreatedAt != 0 {
		return c.CreatedAt
	}
	return c.Timestamp
}

// Instant is a Unix timestamp in milliseconds.
type Instant int64

// InstantFromTime converts t into an Instant.
func InstantFromTime(t time.Time) Instant {
	if t.IsZero() {
		return 0
	}
	return Instant(t.UnixMilli())
}

// Time converts the instant back into a UTC time. Zero maps to the zero time.
func (i Instant) Time() time.Time {
	if i == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(i)).UTC()
}

// UnmarshalJSON accepts numbers, numeric strings, and RFC 3339 strings.
func (i *Instant) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("triage: decode instant: %w", err)
		}
		parsed, err := ParseInstant(raw)
		if err != nil {
			return err
		}
		*i = parsed
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("triage: decode instant: %w", err)
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("triage: decode instant %q: %w", n, err)
	}
	*i = Instant(int64(f))
	return nil
}

// UnmarshalYAML applies the same rules as UnmarshalJSON for fixture files.
func (i *Instant) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*i = 0
	case int:
		*i = Instant(v)
	case int64:
		*i = Instant(v)
	case uint64:
		*i = Instant(v)
	case float64:
		*i = Instant(int64(v))
	case time.Time:
		*i = InstantFromTime(v)
	case string:
		parsed, err := ParseInstant(v)
		if err != nil {
			return err
		}
		*i = parsed
	default:
		return fmt.Errorf("triage: unsupported instant value %v", raw)
	}
	return nil
}

// ParseInstant parses a numeric millisecond string or an RFC 3339 timestamp.
func ParseInstant(raw string) (Instant, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Instant(n), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, fmt.Errorf("triage: parse instant %q: %w", raw, err)
	}
	return InstantFromTime(t), nil
}
