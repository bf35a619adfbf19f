package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Millis is a timestamp serialized as milliseconds since the Unix epoch.
type Millis struct {
	time.Time
}

// MillisOf wraps t.
func MillisOf(t time.Time) Millis {
	return Millis{Time: t}
}

// MillisFromNumber converts a millisecond count to a Millis.
func MillisFromNumber(ms float64) Millis {
	if ms == 0 {
		return Millis{}
	}
	return Millis{Time: time.UnixMilli(int64(ms)).UTC()}
}

func (m Millis) MarshalJSON() ([]byte, error) {
	if m.IsZero() {
		return []byte("0"), nil
	}
	return json.Marshal(m.UnixMilli())
}

func (m *Millis) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Millis{}
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err != nil {
		return err
	}
	*m = MillisFromNumber(ms)
	return nil
}

const dayLayout = "2006-01-02"

// Day is a calendar date serialized as YYYY-MM-DD.
type Day struct {
	time.Time
}

// ParseDay parses a YYYY-MM-DD string. Longer timestamps are truncated to the date.
func ParseDay(s string) (Day, error) {
	if s == "" {
		return Day{}, nil
	}
	if len(s) > len(dayLayout) {
		s = s[:len(dayLayout)]
	}
	t, err := time.Parse(dayLayout, strings.TrimSpace(s))
	if err != nil {
		return Day{}, err
	}
	return Day{Time: t}, nil
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dayLayout)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDay(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
