package provision

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	secretPrefix = "pk_"
	secretLength = 32 // 32 bytes = 256 bits

	keyFileMode = os.FileMode(0600)
	keyDirMode  = os.FileMode(0700)
)

var (
	ErrDuplicateKey   = errors.New("provisioning key with this id or secret already exists")
	ErrKeyNotFound    = errors.New("provisioning key not found")
	ErrUsageExhausted = errors.New("provisioning key usage budget exhausted")
)

// GenerateSecret creates a new high-entropy key secret with crypto/rand.
func GenerateSecret() (string, error) {
	bytes := make([]byte, secretLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return secretPrefix + base64.RawURLEncoding.EncodeToString(bytes), nil
}

// KeyStore persists the full provisioning-key collection as a single
// versioned JSON document on local disk. Writes are published atomically
// (temp file then rename) and restricted to the owning user.
//
// All mutations of one store serialize behind a single mutex; concurrent
// writers from other processes are not supported.
type KeyStore struct {
	mu   sync.Mutex
	path string
	keys []ProvisionKey
}

// NewKeyStore opens (or initializes) the key document at path. A missing
// document is treated as an empty collection; a document that exists but
// cannot be parsed, or that carries an unknown version, is a hard error
// so a corrupt store never silently disables authorization.
func NewKeyStore(path string) (*KeyStore, error) {
	ks := &KeyStore{path: path}
	if err := ks.load(); err != nil {
		return nil, err
	}
	return ks, nil
}

func (ks *KeyStore) load() error {
	data, err := os.ReadFile(ks.path)
	if err != nil {
		if os.IsNotExist(err) {
			ks.keys = nil
			return nil
		}
		return fmt.Errorf("failed to read key document: %w", err)
	}

	var doc keyDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse key document %s: %w", ks.path, err)
	}
	if doc.Version != keyDocumentVersion {
		return fmt.Errorf("unsupported key document version %d in %s", doc.Version, ks.path)
	}

	ks.keys = doc.Keys
	return nil
}

// save renders the document to a temporary file in the same directory and
// publishes it with an atomic rename, so readers never observe a partial
// document.
func (ks *KeyStore) save() error {
	doc := keyDocument{
		Version:   keyDocumentVersion,
		Keys:      ks.keys,
		UpdatedAt: time.Now().UTC(),
	}
	if doc.Keys == nil {
		doc.Keys = []ProvisionKey{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key document: %w", err)
	}

	dir := filepath.Dir(ks.path)
	if err := os.MkdirAll(dir, keyDirMode); err != nil {
		return fmt.Errorf("failed to create key store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".keys-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp key document: %w", err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(keyFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set key document permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write key document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close key document: %w", err)
	}

	if err := os.Rename(tmpPath, ks.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to publish key document: %w", err)
	}
	return nil
}

// List returns a snapshot of all keys with secrets redacted.
func (ks *KeyStore) List() []ProvisionKey {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	result := make([]ProvisionKey, len(ks.keys))
	for i, k := range ks.keys {
		result[i] = k.Redacted()
	}
	return result
}

// Get returns the key with the given id, secret redacted.
func (ks *KeyStore) Get(id string) (ProvisionKey, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for _, k := range ks.keys {
		if k.ID == id {
			return k.Redacted(), true
		}
	}
	return ProvisionKey{}, false
}

// Add persists a new key. It fails with ErrDuplicateKey if a key with
// the same id or secret value already exists.
func (ks *KeyStore) Add(key ProvisionKey) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for _, existing := range ks.keys {
		if existing.ID == key.ID || existing.Secret == key.Secret {
			return ErrDuplicateKey
		}
	}

	ks.keys = append(ks.keys, key)
	if err := ks.save(); err != nil {
		ks.keys = ks.keys[:len(ks.keys)-1]
		return err
	}

	slog.Info("Provisioning key added", "key_id", key.ID, "scopes", key.Scopes)
	return nil
}

// Update applies the non-nil fields of upd to the key with the given id.
// The boolean reports whether a matching key existed; absence is not an
// error.
func (ks *KeyStore) Update(id string, upd KeyUpdate) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for i := range ks.keys {
		if ks.keys[i].ID != id {
			continue
		}
		prev := ks.keys[i]
		updated := prev
		if upd.Label != nil {
			updated.Label = *upd.Label
		}
		if upd.ExpiresAt != nil {
			updated.ExpiresAt = upd.ExpiresAt
		}
		if upd.MaxUses != nil {
			updated.MaxUses = upd.MaxUses
		}
		if upd.RevokedAt != nil && updated.RevokedAt == nil {
			updated.RevokedAt = upd.RevokedAt
		}
		ks.keys[i] = updated
		if err := ks.save(); err != nil {
			ks.keys[i] = prev
			return true, err
		}
		return true, nil
	}
	return false, nil
}

// Revoke soft-deletes the key by stamping RevokedAt. Revoking an already
// revoked key leaves it unchanged and still reports true.
func (ks *KeyStore) Revoke(id string) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for i := range ks.keys {
		if ks.keys[i].ID != id {
			continue
		}
		if ks.keys[i].RevokedAt == nil {
			now := time.Now().UTC()
			ks.keys[i].RevokedAt = &now
			if err := ks.save(); err != nil {
				ks.keys[i].RevokedAt = nil
				return true, err
			}
			slog.Info("Provisioning key revoked", "key_id", id)
		}
		return true, nil
	}
	return false, nil
}

// Remove physically deletes the key. Soft-delete via Revoke is preferred
// so audit history stays coherent; Remove exists for explicit
// administrative cleanup.
func (ks *KeyStore) Remove(id string) (bool, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for i := range ks.keys {
		if ks.keys[i].ID != id {
			continue
		}
		removed := ks.keys[i]
		ks.keys = append(ks.keys[:i], ks.keys[i+1:]...)
		if err := ks.save(); err != nil {
			ks.keys = append(ks.keys[:i], append([]ProvisionKey{removed}, ks.keys[i:]...)...)
			return true, err
		}
		slog.Info("Provisioning key removed", "key_id", id)
		return true, nil
	}
	return false, nil
}

// IncrementUsage bumps the key's use count and stamps LastUsedAt. The
// usage ceiling is enforced here, under the store mutex: this is the
// authoritative check-and-increment, so two concurrent requests against a
// key with one use left can never both succeed. A key at its ceiling gets
// ErrUsageExhausted and no mutation.
func (ks *KeyStore) IncrementUsage(id string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	for i := range ks.keys {
		if ks.keys[i].ID != id {
			continue
		}
		if ks.keys[i].MaxUses != nil && ks.keys[i].UsesCount >= *ks.keys[i].MaxUses {
			return ErrUsageExhausted
		}
		now := time.Now().UTC()
		prevUsed := ks.keys[i].LastUsedAt
		ks.keys[i].UsesCount++
		ks.keys[i].LastUsedAt = &now
		if err := ks.save(); err != nil {
			ks.keys[i].UsesCount--
			ks.keys[i].LastUsedAt = prevUsed
			return err
		}
		return nil
	}
	return ErrKeyNotFound
}

// FindBySecret resolves a presented secret to its stored key. Every
// stored secret is compared in constant time so the scan leaks nothing
// about partial matches. The returned copy includes the secret so the
// validator can re-check it.
func (ks *KeyStore) FindBySecret(secret string) (ProvisionKey, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	presented := []byte(secret)
	for _, k := range ks.keys {
		if subtle.ConstantTimeCompare([]byte(k.Secret), presented) == 1 {
			return k, true
		}
	}
	return ProvisionKey{}, false
}
