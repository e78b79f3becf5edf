package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

const DefaultFlowTimeout = 5 * time.Minute

// FlowStore tracks pending OAuth flows keyed by their one-time state
// token. Consume removes a flow on first lookup, which is what prevents
// two concurrent callbacks for the same state from both succeeding.
type FlowStore struct {
	mu      sync.Mutex
	flows   map[string]*PendingFlow
	timeout time.Duration
	now     func() time.Time
}

// NewFlowStore creates a flow store with the given timeout window.
// Non-positive timeouts fall back to the default.
func NewFlowStore(timeout time.Duration) *FlowStore {
	if timeout <= 0 {
		timeout = DefaultFlowTimeout
	}
	return &FlowStore{
		flows:   make(map[string]*PendingFlow),
		timeout: timeout,
		now:     time.Now,
	}
}

// Create issues a fresh cryptographically unguessable state token and
// records a pending flow for it.
func (fs *FlowStore) Create(sessionID, service string, scopes []string) (*PendingFlow, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	now := fs.now()
	flow := &PendingFlow{
		State:     base64.RawURLEncoding.EncodeToString(nonce),
		SessionID: sessionID,
		Service:   service,
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(fs.timeout),
	}

	fs.mu.Lock()
	fs.flows[flow.State] = flow
	fs.mu.Unlock()

	return flow, nil
}

// Consume looks up a flow by state and removes it in the same critical
// section, so only one caller can ever observe it present. Expired flows
// are treated as absent but stay in the map: the sweep owns them, and
// removing one here would eat the session's timeout notification.
func (fs *FlowStore) Consume(state string) (*PendingFlow, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	flow, exists := fs.flows[state]
	if !exists {
		return nil, false
	}
	if fs.now().After(flow.ExpiresAt) {
		return nil, false
	}
	delete(fs.flows, state)
	return flow, true
}

// Expire removes every flow past its deadline and returns them so the
// caller can notify each originating session exactly once.
func (fs *FlowStore) Expire() []*PendingFlow {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.now()
	var expired []*PendingFlow
	for state, flow := range fs.flows {
		if now.After(flow.ExpiresAt) {
			delete(fs.flows, state)
			expired = append(expired, flow)
		}
	}
	return expired
}

// Len reports the number of live pending flows.
func (fs *FlowStore) Len() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.flows)
}
