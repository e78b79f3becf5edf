package http

import (
	"github.com/EternisAI/silo-gate/internal/agents"
	"github.com/EternisAI/silo-gate/internal/api/http/handler"
	"github.com/EternisAI/silo-gate/internal/api/http/middleware"
	"github.com/EternisAI/silo-gate/internal/auth"
	"github.com/EternisAI/silo-gate/internal/oauth"
	"github.com/EternisAI/silo-gate/internal/provision"
	"github.com/gin-gonic/gin"
)

// Services bundles everything the router wires into handlers.
type Services struct {
	KeyStore     *provision.KeyStore
	Authorizer   *provision.Authorizer
	AgentService *agents.Service
	AuthService  *auth.Service
	OAuthHandler *oauth.Handler
	JWTSecret    string
}

// SetupRoute registers the gateway's management surface on engine. The
// OAuth callback is deliberately NOT registered here: it lives on its own
// loopback-only listener (see SetupCallbackRoute).
func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	if srvs.AuthService != nil {
		authHandler := handler.NewAuthHandler(srvs.AuthService)
		engine.POST("/auth/login", authHandler.Login)
	}

	agentsHandler := handler.NewAgentsHandler(srvs.Authorizer, srvs.AgentService)
	engine.POST("/agents", agentsHandler.CreateAgent)
	engine.DELETE("/agents/:id", agentsHandler.DeleteAgent)
	engine.PATCH("/agents/:id", agentsHandler.ConfigureAgent)
	engine.POST("/agents/:id/onboard", agentsHandler.OnboardAgent)

	admin := engine.Group("/admin")
	admin.Use(middleware.JWTAuth(srvs.JWTSecret), middleware.RequireRole(auth.RoleAdmin))
	{
		keysHandler := handler.NewKeysHandler(srvs.KeyStore)
		admin.POST("/keys", keysHandler.CreateKey)
		admin.GET("/keys", keysHandler.ListKeys)
		admin.GET("/keys/:id", keysHandler.GetKey)
		admin.PATCH("/keys/:id", keysHandler.UpdateKey)
		admin.DELETE("/keys/:id", keysHandler.RevokeKey)

		admin.GET("/agents", agentsHandler.ListAgents)
	}

	if srvs.OAuthHandler != nil {
		engine.POST("/oauth/flows", srvs.OAuthHandler.Initiate)
	}
}

// SetupCallbackRoute registers the OAuth callback on its own engine,
// served from the loopback listener only.
func SetupCallbackRoute(engine *gin.Engine, oauthHandler *oauth.Handler) {
	engine.Use(middleware.RequestLogger())
	engine.GET("/oauth/callback", oauthHandler.Callback)
}
