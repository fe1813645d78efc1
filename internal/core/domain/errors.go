package domain

import "errors"

var (
	ErrPolicyNotFound        = errors.New("policy not found")
	ErrInvalidPolicy         = errors.New("invalid policy")
	ErrDefaultPolicyRequired = errors.New("default policy cannot be deleted")
	ErrSenderNotFound        = errors.New("sender not found")
	ErrSessionNotFound       = errors.New("session not found")
	ErrNoUplinkEstimate      = errors.New("no uplink estimate in packet")
)
