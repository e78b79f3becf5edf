package provision

import (
	"crypto/subtle"
	"time"
)

// DenyReason identifies why an authorization attempt was refused.
type DenyReason string

const (
	ReasonInvalidSecret  DenyReason = "invalid-secret"
	ReasonRevoked        DenyReason = "revoked"
	ReasonExpired        DenyReason = "expired"
	ReasonUsageExhausted DenyReason = "usage-exhausted"
	ReasonMissingScope   DenyReason = "missing-scope"
	ReasonRateLimited    DenyReason = "rate-limited"
)

// Decision is the outcome of validating one key against one request.
// Expected denials are values, not errors.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Validate is the pure decision function for a single stored key, the
// secret presented by the caller and the capability the operation needs.
// Checks run in order and short-circuit: secret, revocation, expiration,
// usage ceiling, scope membership.
//
// The secret comparison must not leak where a mismatch occurs, so it uses
// subtle.ConstantTimeCompare (length-checked, then constant time). The
// remaining checks are not timing-sensitive.
func Validate(key *ProvisionKey, secret string, required Scope, now time.Time) Decision {
	if subtle.ConstantTimeCompare([]byte(key.Secret), []byte(secret)) != 1 {
		return deny(ReasonInvalidSecret)
	}
	if key.RevokedAt != nil {
		return deny(ReasonRevoked)
	}
	if key.ExpiresAt != nil && now.After(*key.ExpiresAt) {
		return deny(ReasonExpired)
	}
	if key.MaxUses != nil && key.UsesCount >= *key.MaxUses {
		return deny(ReasonUsageExhausted)
	}
	if !key.HasScope(required) {
		return deny(ReasonMissingScope)
	}
	return allow()
}
