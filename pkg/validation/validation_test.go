package validation

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifiers(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"simple", "default", false},
		{"with separators", "room-1_east.v2", false},
		{"empty", "", true},
		{"space", "two words", true},
		{"slash", "a/b", true},
		{"too long", strings.Repeat("a", 101), true},
	}

	validators := map[string]func(string) error{
		"policy":  ValidatePolicyName,
		"session": ValidateSessionID,
		"sender":  ValidateSenderID,
	}

	for kind, validate := range validators {
		for _, tt := range tests {
			t.Run(kind+"/"+tt.name, func(t *testing.T) {
				err := validate(tt.value)
				assert.Equal(t, tt.wantErr, err != nil, "error: %v", err)
			})
		}
	}
}

func TestValidateParticipantsAndBitrate(t *testing.T) {
	assert.NoError(t, ValidateParticipants(0))
	assert.NoError(t, ValidateParticipants(12))
	assert.Error(t, ValidateParticipants(-1))
	assert.NoError(t, ValidateParticipants(1_000_000))

	assert.NoError(t, ValidateBitrate(0))
	assert.NoError(t, ValidateBitrate(350))
	assert.Error(t, ValidateBitrate(-5))
	assert.NoError(t, ValidateBitrate(2_500_000))
	assert.NoError(t, ValidateBitrate(math.MaxInt))
}
