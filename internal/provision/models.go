package provision

import (
	"time"
)

// Scope is a capability a provisioning key may grant.
type Scope string

const (
	ScopeAgentsCreate    Scope = "agents:create"
	ScopeAgentsDelete    Scope = "agents:delete"
	ScopeAgentsConfigure Scope = "agents:configure"
	ScopeAgentsOnboard   Scope = "agents:onboard"
)

// AllScopes lists every scope a key can be issued with.
var AllScopes = []Scope{
	ScopeAgentsCreate,
	ScopeAgentsDelete,
	ScopeAgentsConfigure,
	ScopeAgentsOnboard,
}

// ValidScope reports whether s is a known capability scope.
func ValidScope(s Scope) bool {
	for _, known := range AllScopes {
		if s == known {
			return true
		}
	}
	return false
}

// ProvisionKey is a long-lived bearer credential authorizing agent
// lifecycle operations. The secret is only returned in full at creation
// time; lookups happen by secret, audit happens by ID.
type ProvisionKey struct {
	ID                   string     `json:"id"`
	Secret               string     `json:"secret"`
	Label                string     `json:"label,omitempty"`
	Scopes               []Scope    `json:"scopes"`
	CreatedAt            time.Time  `json:"createdAt"`
	ExpiresAt            *time.Time `json:"expiresAt,omitempty"`
	MaxUses              *int       `json:"maxUses,omitempty"`
	UsesCount            int        `json:"usesCount"`
	LastUsedAt           *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt            *time.Time `json:"revokedAt,omitempty"`
	ProviderCredentialID string     `json:"providerCredentialId,omitempty"`
}

// HasScope reports whether the key grants the given capability.
func (k *ProvisionKey) HasScope(s Scope) bool {
	for _, scope := range k.Scopes {
		if scope == s {
			return true
		}
	}
	return false
}

// Redacted returns a copy of the key safe for listing: the secret value
// is blanked so it never leaves the store after creation.
func (k ProvisionKey) Redacted() ProvisionKey {
	k.Secret = ""
	return k
}

// KeyUpdate carries the mutable fields of a key. Nil fields are left
// unchanged. Scopes are immutable after creation; rotation means issuing
// a new key and revoking the old one.
type KeyUpdate struct {
	Label     *string
	ExpiresAt *time.Time
	MaxUses   *int
	RevokedAt *time.Time
}

// keyDocument is the on-disk representation of the full key collection.
type keyDocument struct {
	Version   int            `json:"version"`
	Keys      []ProvisionKey `json:"keys"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

const keyDocumentVersion = 1
