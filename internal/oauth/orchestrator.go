package oauth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/oauth2"

	"github.com/EternisAI/silo-gate/internal/audit"
)

// CallbackStatus classifies the terminal outcome of one callback.
type CallbackStatus int

const (
	CallbackOK CallbackStatus = iota
	CallbackInvalidState
	CallbackDenied
	CallbackExchangeFailed
)

// CallbackResult is what the HTTP layer renders after a callback is
// processed.
type CallbackResult struct {
	Status       CallbackStatus
	AccountLabel string
}

const (
	opCallback = "oauth.callback"
	opTimeout  = "oauth.timeout"
)

// Orchestrator drives the delegated-access flow end to end: it issues
// authorization URLs bound to one-time state, resolves callbacks,
// exchanges codes for tokens, persists credentials per session and
// dispatches asynchronous outcome notifications.
type Orchestrator struct {
	conf     *oauth2.Config
	flows    *FlowStore
	creds    *CredentialStore
	auditor  *audit.Logger
	notifier Notifier
}

// NewOrchestrator wires an orchestrator from its collaborators.
func NewOrchestrator(conf *oauth2.Config, flows *FlowStore, creds *CredentialStore, auditor *audit.Logger, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		conf:     conf,
		flows:    flows,
		creds:    creds,
		auditor:  auditor,
		notifier: notifier,
	}
}

// Initiate records a pending flow for the originating session and returns
// the provider authorization URL embedding the fresh one-time state. It
// returns immediately; the caller's conversation is never blocked waiting
// for user interaction.
func (o *Orchestrator) Initiate(sessionID, service string, scopes []string) (string, error) {
	flow, err := o.flows.Create(sessionID, service, scopes)
	if err != nil {
		return "", err
	}

	conf := o.conf
	if len(scopes) > 0 {
		scoped := *o.conf
		scoped.Scopes = scopes
		conf = &scoped
	}

	url := conf.AuthCodeURL(flow.State, oauth2.AccessTypeOffline)

	slog.Info("OAuth flow initiated",
		"session_id", sessionID,
		"service", service,
		"expires_at", flow.ExpiresAt)

	return url, nil
}

// HandleCallback resolves an inbound provider callback. The flow is
// consumed before anything else happens, so a replayed state can never
// validate twice; a state with no live flow is the CSRF/replay defense
// and is rejected outright. Denial and exchange failure both surface to
// the user as a denied notification.
func (o *Orchestrator) HandleCallback(ctx context.Context, state, code, errParam string) CallbackResult {
	flow, ok := o.flows.Consume(state)
	if !ok {
		slog.Warn("OAuth callback with invalid or expired state")
		o.auditor.Record(audit.Entry{
			Operation: opCallback,
			Result:    "denied",
			Error:     "invalid-state",
		})
		return CallbackResult{Status: CallbackInvalidState}
	}

	if errParam != "" {
		slog.Warn("OAuth authorization denied by provider",
			"session_id", flow.SessionID,
			"service", flow.Service,
			"provider_error", errParam)
		o.auditor.Record(audit.Entry{
			Operation: opCallback,
			Result:    "denied",
			Error:     "provider-denied",
		})
		o.dispatch(Notification{
			SessionID: flow.SessionID,
			Service:   flow.Service,
			Outcome:   OutcomeDenied,
		})
		return CallbackResult{Status: CallbackDenied}
	}

	token, err := o.conf.Exchange(ctx, code)
	if err != nil {
		slog.Error("OAuth code exchange failed",
			"session_id", flow.SessionID,
			"service", flow.Service,
			"error", err)
		o.auditor.Record(audit.Entry{
			Operation: opCallback,
			Result:    "denied",
			Error:     "exchange-failed",
		})
		o.dispatch(Notification{
			SessionID: flow.SessionID,
			Service:   flow.Service,
			Outcome:   OutcomeDenied,
		})
		return CallbackResult{Status: CallbackExchangeFailed}
	}

	cred := Credential{
		Account:      accountLabel(token, flow.Service),
		Service:      flow.Service,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		Expiry:       token.Expiry,
	}
	if err := o.creds.Save(flow.SessionID, cred); err != nil {
		slog.Error("Failed to persist exchanged credential",
			"session_id", flow.SessionID,
			"service", flow.Service,
			"error", err)
		o.auditor.Record(audit.Entry{
			Operation: opCallback,
			Result:    "error",
			Error:     "storage-unavailable",
		})
		o.dispatch(Notification{
			SessionID: flow.SessionID,
			Service:   flow.Service,
			Outcome:   OutcomeDenied,
		})
		return CallbackResult{Status: CallbackExchangeFailed}
	}

	o.auditor.Record(audit.Entry{
		Operation: opCallback,
		Result:    "success",
	})
	o.dispatch(Notification{
		SessionID:    flow.SessionID,
		Service:      flow.Service,
		Outcome:      OutcomeSuccess,
		AccountLabel: cred.Account,
	})

	slog.Info("OAuth flow completed",
		"session_id", flow.SessionID,
		"service", flow.Service,
		"account", cred.Account)

	return CallbackResult{Status: CallbackOK, AccountLabel: cred.Account}
}

// Sweep removes pending flows past their deadline and notifies each
// originating session of the timeout. This is the only path producing a
// notification without an inbound callback, and the only cancellation
// path a flow has.
func (o *Orchestrator) Sweep() {
	for _, flow := range o.flows.Expire() {
		slog.Info("OAuth flow timed out",
			"session_id", flow.SessionID,
			"service", flow.Service)
		o.auditor.Record(audit.Entry{
			Operation: opTimeout,
			Result:    "denied",
			Error:     "timeout",
		})
		o.dispatch(Notification{
			SessionID: flow.SessionID,
			Service:   flow.Service,
			Outcome:   OutcomeTimeout,
		})
	}
}

// StartSweep runs Sweep on the given interval until ctx is cancelled.
func (o *Orchestrator) StartSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Sweep()
		}
	}
}

func (o *Orchestrator) dispatch(n Notification) {
	if o.notifier == nil {
		return
	}
	go o.notifier.Notify(n)
}

// accountLabel picks a human-readable identifier for the authorized
// account. Providers that return an email claim get that; otherwise the
// service name stands in.
func accountLabel(token *oauth2.Token, service string) string {
	if email, ok := token.Extra("email").(string); ok && email != "" {
		return email
	}
	return service
}
