// Package jsontime provides time types with compact wire forms: instants
// as Unix milliseconds and durations as Go duration strings.
package jsontime

import (
	"encoding/json"
	"time"
)

// Milli is a time.Time encoded as Unix milliseconds.
type Milli time.Time

// Now returns the current time as Milli.
func Now() Milli {
	return Milli(time.Now())
}

// Time returns the underlying time.Time value.
func (ep Milli) Time() time.Time {
	return time.Time(ep)
}

// IsZero reports whether ep is the zero instant.
func (ep Milli) IsZero() bool {
	return time.Time(ep).IsZero()
}

func (ep Milli) String() string {
	return time.Time(ep).Format(time.RFC3339Nano)
}

// MarshalJSON implements json.Marshaler.
func (ep Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(ep).UnixMilli())
}

// UnmarshalJSON implements json.Unmarshaler.
func (ep *Milli) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	*ep = Milli(time.UnixMilli(ms))
	return nil
}

// MarshalYAML encodes ep as an RFC 3339 timestamp.
func (ep Milli) MarshalYAML() (any, error) {
	return ep.String(), nil
}
