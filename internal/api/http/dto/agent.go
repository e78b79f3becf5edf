package dto

import (
	"time"
)

type CreateAgentRequest struct {
	Label string `json:"label" binding:"required"`
}

type ConfigureAgentRequest struct {
	Config map[string]interface{} `json:"config" binding:"required"`
}

type AgentResponse struct {
	ID                   string                 `json:"id"`
	Label                string                 `json:"label"`
	Status               string                 `json:"status"`
	ProvisionedWithKeyID string                 `json:"provisioned_with_key_id,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	OnboardedAt          *time.Time             `json:"onboarded_at,omitempty"`
	ConfiguredAt         *time.Time             `json:"configured_at,omitempty"`
	Config               map[string]interface{} `json:"config,omitempty"`
}

type ListAgentsResponse struct {
	Agents []AgentResponse `json:"agents"`
	Count  int             `json:"count"`
}
