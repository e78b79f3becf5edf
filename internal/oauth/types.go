// Package oauth implements the delegated-access flow: one-time state
// issuance, pending-flow tracking with expiry, authorization-code
// exchange, session-scoped credential persistence and asynchronous
// outcome notification.
package oauth

import (
	"time"
)

// PendingFlow is an in-flight third-party authorization attempt bound to
// a one-time state token. At most one live flow exists per state token;
// the flow is consumed on its first callback, successful or not.
type PendingFlow struct {
	State     string
	SessionID string
	Service   string
	Scopes    []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Outcome is the terminal result delivered to the originating session.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeTimeout Outcome = "timeout"
)

// Notification is the asynchronous message sent back to the surrounding
// gateway when a flow reaches a terminal state.
type Notification struct {
	SessionID    string
	Service      string
	Outcome      Outcome
	AccountLabel string
}

// Notifier delivers flow outcomes to the channel layer. Implementations
// must not block the caller; the orchestrator already dispatches
// notifications on their own goroutine.
type Notifier interface {
	Notify(n Notification)
}

// Credential is the durable record of an exchanged token, one per
// (session, service).
type Credential struct {
	Account      string    `json:"account"`
	Service      string    `json:"service"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}
