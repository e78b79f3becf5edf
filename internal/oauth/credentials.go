package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrCredentialNotFound = errors.New("no stored credential for this session and service")
	ErrInvalidSessionID   = errors.New("invalid session identifier")
)

// refreshMargin is how close to expiry an access token may get before a
// read triggers a silent refresh. Accounts for clock skew between this
// host and the provider.
const refreshMargin = 30 * time.Second

var safeIdentifier = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// CredentialStore persists exchanged tokens under a per-session
// directory, one file per (session, service). Files are owner read/write
// only; credentials for different sessions never share a location.
type CredentialStore struct {
	mu   sync.Mutex
	dir  string
	conf *oauth2.Config
}

// NewCredentialStore creates a store rooted at dir. conf is used to
// refresh access tokens on read and may be nil in stores that only
// persist.
func NewCredentialStore(dir string, conf *oauth2.Config) *CredentialStore {
	return &CredentialStore{dir: dir, conf: conf}
}

func (cs *CredentialStore) path(sessionID, service string) (string, error) {
	if !safeIdentifier.MatchString(sessionID) || !safeIdentifier.MatchString(service) {
		return "", ErrInvalidSessionID
	}
	return filepath.Join(cs.dir, sessionID, service+".json"), nil
}

// Save writes the credential for (sessionID, cred.Service), replacing any
// previous record. The write is published atomically with owner-only
// permissions.
func (cs *CredentialStore) Save(sessionID string, cred Credential) error {
	path, err := cs.path(sessionID, cred.Service)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cred-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set credential permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close credential file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish credential: %w", err)
	}
	return nil
}

// Get reads the credential for (sessionID, service). If the access token
// is expired and a refresh token is present, it is refreshed silently and
// the stored record is replaced in place; the account identifier never
// changes on refresh.
func (cs *CredentialStore) Get(ctx context.Context, sessionID, service string) (Credential, error) {
	path, err := cs.path(sessionID, service)
	if err != nil {
		return Credential{}, err
	}

	cs.mu.Lock()
	data, err := os.ReadFile(path)
	cs.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return Credential{}, ErrCredentialNotFound
		}
		return Credential{}, fmt.Errorf("failed to read credential: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to parse credential %s: %w", path, err)
	}

	if cs.conf == nil || cred.RefreshToken == "" || cred.Expiry.IsZero() {
		return cred, nil
	}
	if time.Now().Add(refreshMargin).Before(cred.Expiry) {
		return cred, nil
	}

	refreshed, err := cs.refresh(ctx, cred)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to refresh credential: %w", err)
	}
	if err := cs.Save(sessionID, refreshed); err != nil {
		return Credential{}, err
	}
	return refreshed, nil
}

func (cs *CredentialStore) refresh(ctx context.Context, cred Credential) (Credential, error) {
	src := cs.conf.TokenSource(ctx, &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    cred.TokenType,
		Expiry:       cred.Expiry,
	})
	token, err := src.Token()
	if err != nil {
		return Credential{}, err
	}

	// Refresh replaces token material in place; account and service are
	// carried over unchanged.
	cred.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		cred.RefreshToken = token.RefreshToken
	}
	cred.TokenType = token.TokenType
	cred.Expiry = token.Expiry
	return cred, nil
}

// Delete removes the credential for (sessionID, service). The boolean
// reports whether a record existed.
func (cs *CredentialStore) Delete(sessionID, service string) (bool, error) {
	path, err := cs.path(sessionID, service)
	if err != nil {
		return false, err
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete credential: %w", err)
	}
	return true, nil
}
