package validation

import (
	"fmt"
	"regexp"
)

const maxIdentifierLength = 100

// IdentifierRegex matches policy names, session IDs and sender IDs.
var IdentifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func validateIdentifier(value, what string) error {
	if value == "" {
		return fmt.Errorf("%s is required", what)
	}
	if len(value) > maxIdentifierLength {
		return fmt.Errorf("%s is too long (max %d characters)", what, maxIdentifierLength)
	}
	if !IdentifierRegex.MatchString(value) {
		return fmt.Errorf("invalid %s format (only letters, numbers, _, -, . allowed)", what)
	}
	return nil
}

func ValidatePolicyName(name string) error {
	return validateIdentifier(name, "policy name")
}

func ValidateSessionID(id string) error {
	return validateIdentifier(id, "session ID")
}

func ValidateSenderID(id string) error {
	return validateIdentifier(id, "sender ID")
}

// ValidateParticipants accepts zero, which asks for the session size.
func ValidateParticipants(n int) error {
	if n < 0 {
		return fmt.Errorf("participants must be >= 0")
	}
	return nil
}

// ValidateBitrate accepts any non-negative estimate; unbounded rules match them all.
func ValidateBitrate(kbps int) error {
	if kbps < 0 {
		return fmt.Errorf("bitrate must be >= 0 kbps")
	}
	return nil
}
