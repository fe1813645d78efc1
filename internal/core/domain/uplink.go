package domain

import "time"

type SessionID string
type SenderID string

// UplinkReport is one estimate from the uplink bandwidth estimator.
// Participants of zero means "use the number of senders joined to the session".
type UplinkReport struct {
	Session      SessionID
	Sender       SenderID
	UplinkKbps   int
	Participants int
}

// Decision is what the stream controller applies to the simulcast encoders.
type Decision struct {
	Session       SessionID       `json:"session_id"`
	Sender        SenderID        `json:"sender_id"`
	Policy        string          `json:"policy"`
	Participants  int             `json:"participants"`
	UplinkKbps    int             `json:"uplink_kbps"`
	Tiers         TierBitrates    `json:"tiers"`
	ActiveStreams ActiveStreamSet `json:"active_streams"`
	RuleIndex     int             `json:"rule_index"`
	Fallback      bool            `json:"fallback"`
	DecidedAt     time.Time       `json:"decided_at"`
}

// SameTiers reports whether applying other would leave the encoders unchanged.
func (d Decision) SameTiers(other Decision) bool {
	return d.Tiers == other.Tiers
}
