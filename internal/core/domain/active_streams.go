package domain

import "fmt"

// ActiveStreamSet is the combination of simulcast tiers a rule turns on.
// Only the combinations the uplink encoder supports are representable;
// anything else derives to ActiveStreamsNone.
type ActiveStreamSet int

const (
	ActiveStreamsNone ActiveStreamSet = iota
	ActiveStreamsHigh
	ActiveStreamsHighAndLow
	ActiveStreamsMidAndLow
	ActiveStreamsLow
)

var activeStreamNames = map[ActiveStreamSet]string{
	ActiveStreamsNone:       "none",
	ActiveStreamsHigh:       "high",
	ActiveStreamsHighAndLow: "high+low",
	ActiveStreamsMidAndLow:  "medium+low",
	ActiveStreamsLow:        "low",
}

// DeriveActiveStreams checks the tiers in a fixed priority order and returns
// the first satisfied combination.
func DeriveActiveStreams(tiers TierBitrates) ActiveStreamSet {
	switch {
	case tiers.LowKbps != 0 && tiers.HighKbps != 0:
		return ActiveStreamsHighAndLow
	case tiers.LowKbps != 0 && tiers.MediumKbps != 0:
		return ActiveStreamsMidAndLow
	case tiers.LowKbps != 0:
		return ActiveStreamsLow
	case tiers.HighKbps != 0:
		return ActiveStreamsHigh
	default:
		return ActiveStreamsNone
	}
}

func (s ActiveStreamSet) Valid() bool {
	_, ok := activeStreamNames[s]
	return ok && s != ActiveStreamsNone
}

func (s ActiveStreamSet) String() string {
	if name, ok := activeStreamNames[s]; ok {
		return name
	}
	return fmt.Sprintf("ActiveStreamSet(%d)", int(s))
}

func (s ActiveStreamSet) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ActiveStreamSet) UnmarshalText(text []byte) error {
	for set, name := range activeStreamNames {
		if name == string(text) {
			*s = set
			return nil
		}
	}
	return fmt.Errorf("unknown active stream set %q", string(text))
}
