package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EternisAI/silo-gate/internal/agents"
	"github.com/EternisAI/silo-gate/internal/audit"
	"github.com/EternisAI/silo-gate/internal/auth"
	"github.com/EternisAI/silo-gate/internal/provision"
	"github.com/EternisAI/silo-gate/internal/ratelimit"
)

type gatewayFixture struct {
	router   *gin.Engine
	keyStore *provision.KeyStore
	auditor  *audit.Logger
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	keyStore, err := provision.NewKeyStore(filepath.Join(dir, "keys.json"))
	require.NoError(t, err)

	auditor := audit.NewLogger(filepath.Join(dir, "audit.log"))
	limiter := ratelimit.NewLimiter(10, time.Minute)
	authorizer := provision.NewAuthorizer(keyStore, limiter, auditor)

	adminHash, err := auth.HashPassword("admin-password")
	require.NoError(t, err)
	authConfig := auth.Config{JWTSecret: "test-secret", TokenExpiry: time.Hour}
	authService := auth.NewService(authConfig, "admin", adminHash)

	router := gin.New()
	SetupRoute(router, &Services{
		KeyStore:     keyStore,
		Authorizer:   authorizer,
		AgentService: agents.NewService(),
		AuthService:  authService,
		JWTSecret:    "test-secret",
	})

	return &gatewayFixture{router: router, keyStore: keyStore, auditor: auditor}
}

func (f *gatewayFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *gatewayFixture) adminToken(t *testing.T) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "admin",
		"password": "admin-password",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	return resp["token"]
}

// issueKey creates a key through the admin API and returns its id and
// plaintext secret.
func (f *gatewayFixture) issueKey(t *testing.T, scopes []string, extra map[string]interface{}) (string, string) {
	t.Helper()

	body := map[string]interface{}{"label": "test key", "scopes": scopes}
	for k, v := range extra {
		body[k] = v
	}

	w := f.do(t, http.MethodPost, "/admin/keys", f.adminToken(t), body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["id"].(string), resp["secret"].(string)
}

func TestHealth(t *testing.T) {
	f := newGatewayFixture(t)

	w := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	f := newGatewayFixture(t)

	w := f.do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	f := newGatewayFixture(t)

	w := f.do(t, http.MethodGet, "/admin/keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodGet, "/admin/keys", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateKeyRejectsUnknownScope(t *testing.T) {
	f := newGatewayFixture(t)

	w := f.do(t, http.MethodPost, "/admin/keys", f.adminToken(t), map[string]interface{}{
		"scopes": []string{"agents:launch-missiles"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListKeysRedactsSecrets(t *testing.T) {
	f := newGatewayFixture(t)
	_, secret := f.issueKey(t, []string{"agents:create"}, nil)

	w := f.do(t, http.MethodGet, "/admin/keys", f.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), secret)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["count"])
}

func TestAgentLifecycle(t *testing.T) {
	f := newGatewayFixture(t)
	keyID, secret := f.issueKey(t, []string{
		"agents:create", "agents:configure", "agents:onboard", "agents:delete",
	}, nil)

	// Create.
	w := f.do(t, http.MethodPost, "/agents", secret, map[string]string{"label": "worker-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	agentID := created["id"].(string)
	assert.Equal(t, "pending", created["status"])
	assert.Equal(t, keyID, created["provisioned_with_key_id"])

	// Configure.
	w = f.do(t, http.MethodPatch, "/agents/"+agentID, secret, map[string]interface{}{
		"config": map[string]interface{}{"model": "large"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// Onboard.
	w = f.do(t, http.MethodPost, "/agents/"+agentID+"/onboard", secret, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var onboarded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &onboarded))
	assert.Equal(t, "onboarded", onboarded["status"])

	// Admin view sees the agent.
	w = f.do(t, http.MethodGet, "/admin/agents", f.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), agentID)

	// Delete.
	w = f.do(t, http.MethodDelete, "/agents/"+agentID, secret, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/agents/"+agentID, secret, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMalformedBodyRejectedAfterAuthorization(t *testing.T) {
	f := newGatewayFixture(t)
	_, secret := f.issueKey(t, []string{"agents:create"}, nil)

	send := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/agents", bytes.NewReader([]byte(`{"label":`)))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		return w
	}

	// Without a valid key the parser is never reached: the refusal is
	// 401, not a body-shape 400.
	w := send("pk_forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// With a valid key the malformed body is a 400, and the request was
	// still audited at the boundary.
	w = send(secret)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	entries, err := f.auditor.Tail(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "agents.create", entries[0].Operation)
	assert.Equal(t, "success", entries[0].Result)
}

func TestAgentOpsRequireBearerSecret(t *testing.T) {
	f := newGatewayFixture(t)

	w := f.do(t, http.MethodPost, "/agents", "", map[string]string{"label": "worker-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnknownSecretRejected(t *testing.T) {
	f := newGatewayFixture(t)
	f.issueKey(t, []string{"agents:create"}, nil)

	w := f.do(t, http.MethodPost, "/agents", "pk_forged", map[string]string{"label": "worker-1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMissingScopeForbidden(t *testing.T) {
	f := newGatewayFixture(t)
	_, secret := f.issueKey(t, []string{"agents:create"}, nil)

	w := f.do(t, http.MethodPost, "/agents", secret, map[string]string{"label": "worker-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	agentID := created["id"].(string)

	w = f.do(t, http.MethodDelete, "/agents/"+agentID, secret, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRevokedKeyForbidden(t *testing.T) {
	f := newGatewayFixture(t)
	keyID, secret := f.issueKey(t, []string{"agents:create"}, nil)

	w := f.do(t, http.MethodDelete, "/admin/keys/"+keyID, f.adminToken(t), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/agents", secret, map[string]string{"label": "worker-1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUsageExhaustionForbidden(t *testing.T) {
	f := newGatewayFixture(t)
	_, secret := f.issueKey(t, []string{"agents:create"}, map[string]interface{}{"max_uses": 1})

	w := f.do(t, http.MethodPost, "/agents", secret, map[string]string{"label": "worker-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, "/agents", secret, map[string]string{"label": "worker-2"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimitReturns429(t *testing.T) {
	f := newGatewayFixture(t)
	_, secret := f.issueKey(t, []string{"agents:create"}, nil)

	for i := 0; i < 10; i++ {
		w := f.do(t, http.MethodPost, "/agents", secret, map[string]string{"label": "worker"})
		require.Equal(t, http.StatusCreated, w.Code, "request %d", i+1)
	}

	w := f.do(t, http.MethodPost, "/agents", secret, map[string]string{"label": "worker"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestDeniedRequestsAreAudited(t *testing.T) {
	f := newGatewayFixture(t)
	f.issueKey(t, []string{"agents:create"}, nil)

	w := f.do(t, http.MethodPost, "/agents", "pk_forged", map[string]string{"label": "worker-1"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	entries, err := f.auditor.Tail(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "denied", entries[0].Result)
	assert.Equal(t, "invalid-secret", entries[0].Error)
}

func TestUpdateAndGetKey(t *testing.T) {
	f := newGatewayFixture(t)
	keyID, _ := f.issueKey(t, []string{"agents:create"}, nil)
	token := f.adminToken(t)

	maxUses := 5
	w := f.do(t, http.MethodPatch, "/admin/keys/"+keyID, token, map[string]interface{}{
		"max_uses": maxUses,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/admin/keys/"+keyID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, float64(5), info["max_uses"])

	w = f.do(t, http.MethodGet, "/admin/keys/no-such-key", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
