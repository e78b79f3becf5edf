package agents

import (
	"time"
)

const (
	StatusPending   = "pending"
	StatusOnboarded = "onboarded"
)

// Agent is the gateway's view of a managed agent. The runtime that
// actually executes agents is an external collaborator; this registry
// records what the trust boundary has authorized into existence.
type Agent struct {
	ID                   string
	Label                string
	Status               string
	ProvisionedWithKeyID string
	CreatedAt            time.Time
	OnboardedAt          *time.Time
	ConfiguredAt         *time.Time
	Config               map[string]interface{}
}
