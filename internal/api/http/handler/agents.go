package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/EternisAI/silo-gate/internal/agents"
	"github.com/EternisAI/silo-gate/internal/api/http/dto"
	"github.com/EternisAI/silo-gate/internal/provision"
	"github.com/gin-gonic/gin"
)

// AgentsHandler serves the agent-management operations that cross the
// trust boundary. Every request carries a provisioning-key secret as a
// bearer token and is decided by the authorizer before it touches the
// registry.
type AgentsHandler struct {
	authorizer   *provision.Authorizer
	agentService *agents.Service
}

func NewAgentsHandler(authorizer *provision.Authorizer, agentService *agents.Service) *AgentsHandler {
	return &AgentsHandler{
		authorizer:   authorizer,
		agentService: agentService,
	}
}

func bearerSecret(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	return strings.TrimPrefix(header, "Bearer "), true
}

// authorize runs the trust-boundary check and writes the refusal response
// itself. The reason string is suitable for logs; callers only see a
// generic message plus the status class.
func (h *AgentsHandler) authorize(c *gin.Context, operation, agentID string) (provision.AuthorizeResult, bool) {
	secret, ok := bearerSecret(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
		return provision.AuthorizeResult{}, false
	}

	result, err := h.authorizer.Authorize(provision.AuthorizeRequest{
		Secret:    secret,
		Operation: operation,
		Origin:    c.ClientIP(),
		AgentID:   agentID,
	})
	if err != nil {
		slog.Error("Authorization check failed", "operation", operation, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "authorization unavailable"})
		return provision.AuthorizeResult{}, false
	}
	if !result.Allowed {
		switch result.Reason {
		case provision.ReasonInvalidSecret:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid provisioning key"})
		case provision.ReasonRateLimited:
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "provisioning key not authorized for this operation"})
		}
		return result, false
	}

	return result, true
}

func agentResponse(a *agents.Agent) dto.AgentResponse {
	return dto.AgentResponse{
		ID:                   a.ID,
		Label:                a.Label,
		Status:               a.Status,
		ProvisionedWithKeyID: a.ProvisionedWithKeyID,
		CreatedAt:            a.CreatedAt,
		OnboardedAt:          a.OnboardedAt,
		ConfiguredAt:         a.ConfiguredAt,
		Config:               a.Config,
	}
}

// CreateAgent provisions a new agent.
// POST /agents
func (h *AgentsHandler) CreateAgent(c *gin.Context) {
	// Authorize before touching the body: unauthenticated callers never
	// reach the parser, and a malformed request still gets audited.
	result, ok := h.authorize(c, "agents.create", "")
	if !ok {
		return
	}

	var req dto.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent := h.agentService.Create(req.Label, result.KeyID)
	c.JSON(http.StatusCreated, agentResponse(agent))
}

// DeleteAgent removes an agent.
// DELETE /agents/:id
func (h *AgentsHandler) DeleteAgent(c *gin.Context) {
	agentID := c.Param("id")

	if _, ok := h.authorize(c, "agents.delete", agentID); !ok {
		return
	}

	if !h.agentService.Delete(agentID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "agent deleted"})
}

// ConfigureAgent replaces an agent's configuration.
// PATCH /agents/:id
func (h *AgentsHandler) ConfigureAgent(c *gin.Context) {
	agentID := c.Param("id")

	if _, ok := h.authorize(c, "agents.configure", agentID); !ok {
		return
	}

	var req dto.ConfigureAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := h.agentService.Configure(agentID, req.Config)
	if err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		slog.Error("Failed to configure agent", "agent_id", agentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to configure agent"})
		return
	}
	c.JSON(http.StatusOK, agentResponse(agent))
}

// OnboardAgent marks an agent as onboarded.
// POST /agents/:id/onboard
func (h *AgentsHandler) OnboardAgent(c *gin.Context) {
	agentID := c.Param("id")

	if _, ok := h.authorize(c, "agents.onboard", agentID); !ok {
		return
	}

	agent, err := h.agentService.Onboard(agentID)
	if err != nil {
		if errors.Is(err, agents.ErrAgentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "agent not found"})
			return
		}
		slog.Error("Failed to onboard agent", "agent_id", agentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to onboard agent"})
		return
	}
	c.JSON(http.StatusOK, agentResponse(agent))
}

// ListAgents returns all registered agents (administrative view).
// GET /admin/agents
func (h *AgentsHandler) ListAgents(c *gin.Context) {
	agentList := h.agentService.List()

	responses := make([]dto.AgentResponse, len(agentList))
	for i := range agentList {
		responses[i] = agentResponse(&agentList[i])
	}
	c.JSON(http.StatusOK, dto.ListAgentsResponse{Agents: responses, Count: len(responses)})
}
