package dto

import (
	"time"
)

type CreateKeyRequest struct {
	Label          string   `json:"label"`
	Scopes         []string `json:"scopes" binding:"required,min=1"`
	ExpiresInHours *int     `json:"expires_in_hours"`
	MaxUses        *int     `json:"max_uses"`
}

// CreateKeyResponse is the only place the plaintext secret ever appears.
type CreateKeyResponse struct {
	ID        string     `json:"id"`
	Secret    string     `json:"secret"`
	Label     string     `json:"label,omitempty"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	MaxUses   *int       `json:"max_uses,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type KeyInfo struct {
	ID         string     `json:"id"`
	Label      string     `json:"label,omitempty"`
	Scopes     []string   `json:"scopes"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	MaxUses    *int       `json:"max_uses,omitempty"`
	UsesCount  int        `json:"uses_count"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

type ListKeysResponse struct {
	Keys  []KeyInfo `json:"keys"`
	Count int       `json:"count"`
}

type UpdateKeyRequest struct {
	Label          *string `json:"label"`
	ExpiresInHours *int    `json:"expires_in_hours"`
	MaxUses        *int    `json:"max_uses"`
}
