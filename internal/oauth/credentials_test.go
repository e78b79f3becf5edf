package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testCredential() Credential {
	return Credential{
		Account:      "user@example.com",
		Service:      "gmail",
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
}

func TestSaveAndGet(t *testing.T) {
	cs := NewCredentialStore(t.TempDir(), nil)

	cred := testCredential()
	require.NoError(t, cs.Save("session-1", cred))

	got, err := cs.Get(context.Background(), "session-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, cred.Account, got.Account)
	assert.Equal(t, cred.AccessToken, got.AccessToken)
}

func TestGetMissing(t *testing.T) {
	cs := NewCredentialStore(t.TempDir(), nil)

	_, err := cs.Get(context.Background(), "session-1", "gmail")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestCredentialFilePermissions(t *testing.T) {
	dir := t.TempDir()
	cs := NewCredentialStore(dir, nil)
	require.NoError(t, cs.Save("session-1", testCredential()))

	info, err := os.Stat(filepath.Join(dir, "session-1", "gmail.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSessionsIsolated(t *testing.T) {
	dir := t.TempDir()
	cs := NewCredentialStore(dir, nil)

	credA := testCredential()
	credB := testCredential()
	credB.Account = "other@example.com"

	require.NoError(t, cs.Save("session-a", credA))
	require.NoError(t, cs.Save("session-b", credB))

	// Distinct storage locations per session.
	_, err := os.Stat(filepath.Join(dir, "session-a", "gmail.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "session-b", "gmail.json"))
	require.NoError(t, err)

	got, err := cs.Get(context.Background(), "session-a", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", got.Account)
}

func TestInvalidSessionIdentifier(t *testing.T) {
	cs := NewCredentialStore(t.TempDir(), nil)

	err := cs.Save("../escape", testCredential())
	assert.ErrorIs(t, err, ErrInvalidSessionID)

	_, err = cs.Get(context.Background(), "a/b", "gmail")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestDelete(t *testing.T) {
	cs := NewCredentialStore(t.TempDir(), nil)
	require.NoError(t, cs.Save("session-1", testCredential()))

	found, err := cs.Delete("session-1", "gmail")
	require.NoError(t, err)
	assert.True(t, found)

	_, err = cs.Get(context.Background(), "session-1", "gmail")
	assert.ErrorIs(t, err, ErrCredentialNotFound)

	found, err = cs.Delete("session-1", "gmail")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetRefreshesExpiredToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","refresh_token":"rt-2","expires_in":3600}`))
	}))
	defer tokenServer.Close()

	conf := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: tokenServer.URL},
	}
	cs := NewCredentialStore(t.TempDir(), conf)

	cred := testCredential()
	cred.Expiry = time.Now().Add(-time.Minute)
	require.NoError(t, cs.Save("session-1", cred))

	got, err := cs.Get(context.Background(), "session-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "at-2", got.AccessToken)
	assert.Equal(t, "rt-2", got.RefreshToken)
	// Refresh replaces the token in place; the account never changes.
	assert.Equal(t, "user@example.com", got.Account)

	// The refreshed record was persisted.
	again, err := cs.Get(context.Background(), "session-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "at-2", again.AccessToken)
}

func TestGetFreshTokenNotRefreshed(t *testing.T) {
	// A reachable conf with an unroutable token URL: if Get tried to
	// refresh, it would fail.
	conf := &oauth2.Config{
		ClientID: "client",
		Endpoint: oauth2.Endpoint{TokenURL: "http://127.0.0.1:1/token"},
	}
	cs := NewCredentialStore(t.TempDir(), conf)
	require.NoError(t, cs.Save("session-1", testCredential()))

	got, err := cs.Get(context.Background(), "session-1", "gmail")
	require.NoError(t, err)
	assert.Equal(t, "at-1", got.AccessToken)
}
