package domain

import "time"

// DefaultPolicyName is the policy every service instance starts with.
const DefaultPolicyName = "default"

// StoredPolicy is the persisted form of a named rule table.
type StoredPolicy struct {
	Name      string           `json:"name"`
	Version   uint64           `json:"version"`
	Rules     []RuleDescriptor `json:"rules"`
	UpdatedAt time.Time        `json:"updated_at"`
}
