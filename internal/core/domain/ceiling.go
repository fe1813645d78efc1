package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// UnboundedToken is how an unbounded ceiling is written in config files and JSON.
const UnboundedToken = "max"

// Ceiling is an inclusive upper bound on participants or bitrate.
// The zero value is Bounded(0).
type Ceiling struct {
	limit     int
	unbounded bool
}

func Bounded(limit int) Ceiling {
	return Ceiling{limit: limit}
}

func Unbounded() Ceiling {
	return Ceiling{unbounded: true}
}

func (c Ceiling) IsUnbounded() bool {
	return c.unbounded
}

// Limit returns the bound and false when the ceiling is unbounded.
func (c Ceiling) Limit() (int, bool) {
	if c.unbounded {
		return 0, false
	}
	return c.limit, true
}

// Allows reports whether value is at or below the ceiling.
func (c Ceiling) Allows(value int) bool {
	return c.unbounded || value <= c.limit
}

// Compare orders ceilings with Unbounded above every bounded value.
func (c Ceiling) Compare(other Ceiling) int {
	switch {
	case c.unbounded && other.unbounded:
		return 0
	case c.unbounded:
		return 1
	case other.unbounded:
		return -1
	case c.limit < other.limit:
		return -1
	case c.limit > other.limit:
		return 1
	default:
		return 0
	}
}

func (c Ceiling) String() string {
	if c.unbounded {
		return UnboundedToken
	}
	return strconv.Itoa(c.limit)
}

// ParseCeiling accepts a non-negative decimal integer or "max".
func ParseCeiling(s string) (Ceiling, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, UnboundedToken) {
		return Unbounded(), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return Ceiling{}, fmt.Errorf("invalid ceiling %q: want an integer or %q", s, UnboundedToken)
	}
	return Bounded(n), nil
}

func (c Ceiling) MarshalJSON() ([]byte, error) {
	if c.unbounded {
		return json.Marshal(UnboundedToken)
	}
	return json.Marshal(c.limit)
}

func (c *Ceiling) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = Bounded(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid ceiling %s: want an integer or %q", string(data), UnboundedToken)
	}
	parsed, err := ParseCeiling(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler (gopkg.in/yaml.v2).
func (c Ceiling) MarshalYAML() (interface{}, error) {
	if c.unbounded {
		return UnboundedToken, nil
	}
	return c.limit, nil
}

// UnmarshalYAML implements yaml.Unmarshaler (gopkg.in/yaml.v2).
func (c *Ceiling) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int
	if err := unmarshal(&n); err == nil {
		*c = Bounded(n)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("invalid ceiling: want an integer or %q", UnboundedToken)
	}
	parsed, err := ParseCeiling(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
