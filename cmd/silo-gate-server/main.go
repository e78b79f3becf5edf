package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/EternisAI/silo-gate/internal/agents"
	internalhttp "github.com/EternisAI/silo-gate/internal/api/http"
	"github.com/EternisAI/silo-gate/internal/audit"
	"github.com/EternisAI/silo-gate/internal/auth"
	"github.com/EternisAI/silo-gate/internal/oauth"
	"github.com/EternisAI/silo-gate/internal/provision"
	"github.com/EternisAI/silo-gate/internal/ratelimit"
)

var AppVersion string

const sweepInterval = 5 * time.Minute

func main() {
	InitConfig()

	slog.Info("Silo Gate Server", "version", AppVersion)

	keyStore, err := provision.NewKeyStore(config.Storage.KeyDocumentPath())
	if err != nil {
		slog.Error("Failed to open key store", "error", err)
		os.Exit(1)
	}

	auditor := audit.NewLogger(config.Storage.AuditLogPath())
	limiter := ratelimit.NewLimiter(config.RateLimit.Ceiling, config.RateLimit.Window())
	authorizer := provision.NewAuthorizer(keyStore, limiter, auditor)
	agentService := agents.NewService()

	authService := auth.NewService(auth.Config{
		JWTSecret:   config.Auth.JWTSecret,
		TokenExpiry: time.Duration(config.Auth.TokenExpiryHours) * time.Hour,
	}, config.Auth.AdminUsername, config.Auth.AdminPasswordHash)

	// The callback listener is opened first so the redirect URL embeds
	// whichever port was actually bound.
	callbackListener, callbackPort, err := internalhttp.ListenCallback(config.Http.Callback)
	if err != nil {
		slog.Error("Failed to open OAuth callback listener", "error", err)
		os.Exit(1)
	}

	oauthConf := &oauth2.Config{
		ClientID:     config.OAuth.ClientID,
		ClientSecret: config.OAuth.ClientSecret,
		Scopes:       config.OAuth.Scopes,
		RedirectURL:  fmt.Sprintf("http://%s:%d/oauth/callback", config.Http.Callback.Bind, callbackPort),
		Endpoint: oauth2.Endpoint{
			AuthURL:  config.OAuth.AuthURL,
			TokenURL: config.OAuth.TokenURL,
		},
	}

	notifier := oauth.NewChannelNotifier(64)
	flows := oauth.NewFlowStore(config.OAuth.FlowTimeout())
	creds := oauth.NewCredentialStore(config.Storage.CredentialsDir(), oauthConf)
	orchestrator := oauth.NewOrchestrator(oauthConf, flows, creds, auditor, notifier)
	oauthHandler := oauth.NewHandler(orchestrator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go limiter.StartSweep(ctx, sweepInterval)
	go orchestrator.StartSweep(ctx, 30*time.Second)

	// The channel layer that routes outcomes back into conversations is
	// an external collaborator; until it attaches, outcomes are logged.
	go func() {
		for n := range notifier.Notifications() {
			slog.Info("Flow outcome",
				"session_id", n.SessionID,
				"service", n.Service,
				"outcome", n.Outcome,
				"account", n.AccountLabel)
		}
	}()

	services := &internalhttp.Services{
		KeyStore:     keyStore,
		Authorizer:   authorizer,
		AgentService: agentService,
		AuthService:  authService,
		OAuthHandler: oauthHandler,
		JWTSecret:    config.Auth.JWTSecret,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	callbackEngine := gin.New()
	callbackEngine.Use(gin.Recovery())
	internalhttp.SetupCallbackRoute(callbackEngine, oauthHandler)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Http.Bind, config.Http.Port),
		Handler: engine,
	}
	callbackServer := &http.Server{
		Handler: callbackEngine,
	}

	errChan := make(chan error, 2)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		slog.Info("Starting OAuth callback listener", "address", callbackListener.Addr().String())
		if err := callbackServer.Serve(callbackListener); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("callback server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down servers...")
	cancel()

	var wg sync.WaitGroup
	shutdownTimeout := 10 * time.Second

	for _, srv := range []*http.Server{httpServer, callbackServer} {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server shutdown error", "error", err)
			}
		}(srv)
	}

	wg.Wait()
	slog.Info("Shutdown complete")
}
