package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestRule_Match(t *testing.T) {
	rule := NewRule(Bounded(4), Bounded(350), 150, 600, 0)

	tests := []struct {
		name         string
		participants int
		bitrate      int
		want         bool
	}{
		{"both below", 3, 300, true},
		{"both at ceiling", 4, 350, true},
		{"participants above", 5, 300, false},
		{"bitrate above", 4, 351, false},
		{"zero inputs", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rule.Match(tt.participants, tt.bitrate))
		})
	}
}

func TestRule_MatchUnbounded(t *testing.T) {
	rule := NewRule(Unbounded(), Unbounded(), 200, 600, 0)
	assert.True(t, rule.Match(1<<30, 1<<40))
	assert.True(t, rule.Match(0, 0))

	partly := NewRule(Unbounded(), Bounded(240), 300, 0, 0)
	assert.True(t, partly.Match(1000, 240))
	assert.False(t, partly.Match(1000, 241))
}

func TestRule_ActiveStreams(t *testing.T) {
	tests := []struct {
		name              string
		low, medium, high int
		want              ActiveStreamSet
	}{
		{"medium and low", 150, 600, 0, ActiveStreamsMidAndLow},
		{"high only", 0, 0, 1200, ActiveStreamsHigh},
		{"high and low", 300, 0, 1200, ActiveStreamsHighAndLow},
		{"low only", 300, 0, 0, ActiveStreamsLow},
		{"all three prefer high and low", 100, 300, 1200, ActiveStreamsHighAndLow},
		{"all disabled", 0, 0, 0, ActiveStreamsNone},
		{"medium only", 0, 600, 0, ActiveStreamsNone},
		{"medium and high", 0, 600, 1200, ActiveStreamsHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := NewRule(Unbounded(), Unbounded(), tt.low, tt.medium, tt.high)
			assert.Equal(t, tt.want, rule.ActiveStreams())
		})
	}
}

func TestRule_Describe(t *testing.T) {
	rule := NewRule(Bounded(4), Bounded(350), 150, 600, 0)
	assert.Equal(t, "Rule 2: 4 / 350 = medium+low (150,600,0)", rule.Describe(2))

	unbounded := NewRule(Unbounded(), Unbounded(), 200, 600, 0)
	assert.Equal(t, "Rule 10: max / max = medium+low (200,600,0)", unbounded.Describe(10))

	fallback := NewRule(Bounded(99), Bounded(99), 100, 0, 0)
	assert.Equal(t, "Rule fallback: 99 / 99 = low (100,0,0)", fallback.Describe(FallbackIndex))
}

func TestRule_DescriptorRoundTrip(t *testing.T) {
	d := RuleDescriptor{
		MaxParticipants: Bounded(6),
		MaxBitrateKbps:  Unbounded(),
		LowKbps:         200,
		MediumKbps:      600,
	}
	assert.Equal(t, d, RuleFromDescriptor(d).Descriptor())
}

func TestCeiling_Codecs(t *testing.T) {
	var descriptors []RuleDescriptor
	doc := `
- max_participants: 2
  max_bitrate_kbps: max
  high_kbps: 1200
- max_participants: MAX
  max_bitrate_kbps: 240
  low_kbps: 300
`
	require.NoError(t, yaml.Unmarshal([]byte(doc), &descriptors))
	require.Len(t, descriptors, 2)
	assert.Equal(t, Bounded(2), descriptors[0].MaxParticipants)
	assert.True(t, descriptors[0].MaxBitrateKbps.IsUnbounded())
	assert.True(t, descriptors[1].MaxParticipants.IsUnbounded())
	assert.Equal(t, 300, descriptors[1].LowKbps)

	data, err := json.Marshal(descriptors[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_participants":2,"max_bitrate_kbps":"max","low_kbps":0,"medium_kbps":0,"high_kbps":1200}`, string(data))

	var back RuleDescriptor
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, descriptors[0], back)

	var bad Ceiling
	assert.Error(t, json.Unmarshal([]byte(`"lots"`), &bad))
	assert.Error(t, yaml.Unmarshal([]byte(`lots`), &bad))
}

func TestCeiling_Compare(t *testing.T) {
	assert.Equal(t, -1, Bounded(2).Compare(Bounded(4)))
	assert.Equal(t, 0, Bounded(4).Compare(Bounded(4)))
	assert.Equal(t, 1, Unbounded().Compare(Bounded(1<<40)))
	assert.Equal(t, -1, Bounded(1<<40).Compare(Unbounded()))
	assert.Equal(t, 0, Unbounded().Compare(Unbounded()))
}

func TestActiveStreamSet_Text(t *testing.T) {
	text, err := ActiveStreamsMidAndLow.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "medium+low", string(text))

	var s ActiveStreamSet
	require.NoError(t, s.UnmarshalText([]byte("high+low")))
	assert.Equal(t, ActiveStreamsHighAndLow, s)
	assert.Error(t, s.UnmarshalText([]byte("medium+high")))

	assert.False(t, ActiveStreamsNone.Valid())
	assert.True(t, ActiveStreamsLow.Valid())
}
