package oauth

import (
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes the OAuth HTTP surface: the provider callback and the
// flow-initiation endpoint. The callback must only ever be served on a
// loopback bind; the one-time state token is the sole CSRF defense and a
// network-reachable listener would weaken it.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler creates the OAuth HTTP handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// InitiateRequest starts a delegated-access flow for a session.
type InitiateRequest struct {
	SessionID string   `json:"session_id" binding:"required"`
	Service   string   `json:"service" binding:"required"`
	Scopes    []string `json:"scopes"`
}

// Initiate handles POST /oauth/flows. It returns the authorization URL
// immediately; the outcome arrives later on the notification channel.
func (h *Handler) Initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	url, err := h.orchestrator.Initiate(req.SessionID, req.Service, req.Scopes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to initiate authorization flow"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"auth_url": url})
}

// Callback handles GET /oauth/callback with query parameters state and
// either code or error. Failure paths return a 400-class status with no
// sensitive detail.
func (h *Handler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	errParam := c.Query("error")

	if state == "" || (code == "" && errParam == "") {
		c.String(http.StatusBadRequest, "Invalid callback: missing required parameters.")
		return
	}

	result := h.orchestrator.HandleCallback(c.Request.Context(), state, code, errParam)

	switch result.Status {
	case CallbackOK:
		renderSuccessPage(c, result.AccountLabel)
	case CallbackInvalidState:
		c.String(http.StatusBadRequest, "Authorization session is invalid or has expired.")
	case CallbackDenied:
		c.String(http.StatusBadRequest, "Authorization was denied.")
	case CallbackExchangeFailed:
		c.String(http.StatusBadGateway, "Authorization could not be completed.")
	}
}

func renderSuccessPage(c *gin.Context, accountLabel string) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
	c.Header("Content-Type", "text/html; charset=utf-8")

	safeLabel := html.EscapeString(accountLabel)
	c.String(http.StatusOK, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Authorization Complete</title></head>
<body>
<h1>Authorization complete</h1>
<p>Access for <strong>`+safeLabel+`</strong> has been granted. You can close this window.</p>
</body>
</html>`)
}
