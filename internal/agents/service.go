package agents

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrAgentNotFound = errors.New("agent not found")

// Service is an in-memory agent registry backing the management
// operations once they clear the trust boundary.
type Service struct {
	mu     sync.RWMutex
	agents map[string]*Agent
}

// NewService creates an empty registry.
func NewService() *Service {
	return &Service{
		agents: make(map[string]*Agent),
	}
}

// Create registers a new agent provisioned with the given key.
func (s *Service) Create(label, keyID string) *Agent {
	agent := &Agent{
		ID:                   uuid.NewString(),
		Label:                label,
		Status:               StatusPending,
		ProvisionedWithKeyID: keyID,
		CreatedAt:            time.Now(),
	}

	s.mu.Lock()
	s.agents[agent.ID] = agent
	s.mu.Unlock()

	slog.Info("Agent created", "agent_id", agent.ID, "label", label, "key_id", keyID)
	return agent
}

// Get returns the agent with the given id.
func (s *Service) Get(agentID string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agent, exists := s.agents[agentID]
	if !exists {
		return nil, ErrAgentNotFound
	}
	copied := *agent
	return &copied, nil
}

// List returns all registered agents.
func (s *Service) List() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		result = append(result, *agent)
	}
	return result
}

// Delete removes the agent. The boolean reports whether it existed.
func (s *Service) Delete(agentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[agentID]; !exists {
		return false
	}
	delete(s.agents, agentID)
	slog.Info("Agent deleted", "agent_id", agentID)
	return true
}

// Configure replaces the agent's configuration.
func (s *Service) Configure(agentID string, config map[string]interface{}) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, exists := s.agents[agentID]
	if !exists {
		return nil, ErrAgentNotFound
	}
	now := time.Now()
	agent.Config = config
	agent.ConfiguredAt = &now

	copied := *agent
	return &copied, nil
}

// Onboard marks the agent as onboarded. Onboarding an agent twice is a
// no-op beyond refreshing the timestamp.
func (s *Service) Onboard(agentID string) (*Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, exists := s.agents[agentID]
	if !exists {
		return nil, ErrAgentNotFound
	}
	now := time.Now()
	agent.Status = StatusOnboarded
	agent.OnboardedAt = &now

	copied := *agent
	slog.Info("Agent onboarded", "agent_id", agentID)
	return &copied, nil
}
