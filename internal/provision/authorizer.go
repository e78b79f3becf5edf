package provision

import (
	"errors"
	"log/slog"
	"time"

	"github.com/EternisAI/silo-gate/internal/audit"
	"github.com/EternisAI/silo-gate/internal/ratelimit"
)

var ErrUnknownOperation = errors.New("unknown management operation")

// operationScopes maps a management operation name to the capability a
// key must carry to perform it.
var operationScopes = map[string]Scope{
	"agents.create":    ScopeAgentsCreate,
	"agents.delete":    ScopeAgentsDelete,
	"agents.configure": ScopeAgentsConfigure,
	"agents.onboard":   ScopeAgentsOnboard,
}

// ScopeForOperation resolves an operation name to its required scope.
func ScopeForOperation(operation string) (Scope, bool) {
	scope, ok := operationScopes[operation]
	return scope, ok
}

const (
	resultSuccess     = "success"
	resultDenied      = "denied"
	resultRateLimited = "rate-limited"
)

// AuthorizeRequest describes one inbound management request at the trust
// boundary: the bearer secret it carried, the operation it wants to
// perform, and context used for auditing only.
type AuthorizeRequest struct {
	Secret    string
	Operation string
	Origin    string
	AgentID   string
}

// AuthorizeResult is the terminal outcome of an authorization check.
type AuthorizeResult struct {
	Allowed bool
	Reason  DenyReason
	KeyID   string
}

// Authorizer answers whether a management request may proceed. It
// orchestrates the key store, rate limiter, validator and audit log:
// resolve secret to key, rate gate, validate, then increment usage on
// success. Every terminal branch produces exactly one audit entry.
type Authorizer struct {
	store   *KeyStore
	limiter *ratelimit.Limiter
	auditor *audit.Logger
	now     func() time.Time
}

// NewAuthorizer wires an authorizer from its collaborators.
func NewAuthorizer(store *KeyStore, limiter *ratelimit.Limiter, auditor *audit.Logger) *Authorizer {
	return &Authorizer{
		store:   store,
		limiter: limiter,
		auditor: auditor,
		now:     time.Now,
	}
}

// Authorize runs the decision state machine for one request. Expected
// denials come back as a result, not an error; the error return is
// reserved for storage failures, without which no decision can be made.
func (a *Authorizer) Authorize(req AuthorizeRequest) (AuthorizeResult, error) {
	required, ok := ScopeForOperation(req.Operation)
	if !ok {
		return AuthorizeResult{}, ErrUnknownOperation
	}

	// Lookup by secret, never by a caller-supplied id, so there is no
	// id-guessing oracle.
	key, found := a.store.FindBySecret(req.Secret)
	if !found {
		slog.Warn("Authorization attempt with unknown secret",
			"operation", req.Operation,
			"origin", req.Origin)
		a.recordDenial(req, "", ReasonInvalidSecret)
		return AuthorizeResult{Reason: ReasonInvalidSecret}, nil
	}

	// Throttle before validating: the rate gate is cheaper than the
	// validator and caps how often an attacker can exercise it.
	if !a.limiter.Check(key.ID) {
		slog.Warn("Authorization attempt rate-limited",
			"key_id", key.ID,
			"operation", req.Operation,
			"origin", req.Origin)
		a.auditor.Record(audit.Entry{
			KeyID:     key.ID,
			Operation: req.Operation,
			Result:    resultRateLimited,
			Origin:    req.Origin,
			AgentID:   req.AgentID,
		})
		return AuthorizeResult{Reason: ReasonRateLimited, KeyID: key.ID}, nil
	}

	decision := Validate(&key, req.Secret, required, a.now())
	if !decision.Allowed {
		slog.Warn("Authorization denied",
			"key_id", key.ID,
			"operation", req.Operation,
			"reason", decision.Reason,
			"origin", req.Origin)
		a.recordDenial(req, key.ID, decision.Reason)
		return AuthorizeResult{Reason: decision.Reason, KeyID: key.ID}, nil
	}

	// The increment re-checks the usage ceiling under the store mutex;
	// the validator saw only a snapshot, so a concurrent request may have
	// consumed the last use since.
	if err := a.store.IncrementUsage(key.ID); err != nil {
		if errors.Is(err, ErrUsageExhausted) {
			slog.Warn("Authorization denied",
				"key_id", key.ID,
				"operation", req.Operation,
				"reason", ReasonUsageExhausted,
				"origin", req.Origin)
			a.recordDenial(req, key.ID, ReasonUsageExhausted)
			return AuthorizeResult{Reason: ReasonUsageExhausted, KeyID: key.ID}, nil
		}
		return AuthorizeResult{}, err
	}

	a.auditor.Record(audit.Entry{
		KeyID:     key.ID,
		Operation: req.Operation,
		Result:    resultSuccess,
		Origin:    req.Origin,
		AgentID:   req.AgentID,
	})

	slog.Info("Authorization granted",
		"key_id", key.ID,
		"operation", req.Operation,
		"origin", req.Origin)

	return AuthorizeResult{Allowed: true, KeyID: key.ID}, nil
}

func (a *Authorizer) recordDenial(req AuthorizeRequest, keyID string, reason DenyReason) {
	a.auditor.Record(audit.Entry{
		KeyID:     keyID,
		Operation: req.Operation,
		Result:    resultDenied,
		Error:     string(reason),
		Origin:    req.Origin,
		AgentID:   req.AgentID,
	})
}
