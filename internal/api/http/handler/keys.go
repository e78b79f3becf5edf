package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/EternisAI/silo-gate/internal/api/http/dto"
	"github.com/EternisAI/silo-gate/internal/provision"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeysHandler serves the administrative key-lifecycle endpoints.
type KeysHandler struct {
	keyStore *provision.KeyStore
}

func NewKeysHandler(keyStore *provision.KeyStore) *KeysHandler {
	return &KeysHandler{keyStore: keyStore}
}

func parseScopes(raw []string) ([]provision.Scope, error) {
	scopes := make([]provision.Scope, len(raw))
	for i, s := range raw {
		scope := provision.Scope(s)
		if !provision.ValidScope(scope) {
			return nil, fmt.Errorf("unknown scope %q", s)
		}
		scopes[i] = scope
	}
	return scopes, nil
}

func scopeStrings(scopes []provision.Scope) []string {
	result := make([]string, len(scopes))
	for i, s := range scopes {
		result[i] = string(s)
	}
	return result
}

func keyInfo(k provision.ProvisionKey) dto.KeyInfo {
	return dto.KeyInfo{
		ID:         k.ID,
		Label:      k.Label,
		Scopes:     scopeStrings(k.Scopes),
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		MaxUses:    k.MaxUses,
		UsesCount:  k.UsesCount,
		LastUsedAt: k.LastUsedAt,
		RevokedAt:  k.RevokedAt,
	}
}

// CreateKey issues a new provisioning key. The plaintext secret is only
// ever returned here.
// POST /admin/keys
func (h *KeysHandler) CreateKey(c *gin.Context) {
	var req dto.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scopes, err := parseScopes(req.Scopes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	secret, err := provision.GenerateSecret()
	if err != nil {
		slog.Error("Failed to generate key secret", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create key"})
		return
	}

	key := provision.ProvisionKey{
		ID:        uuid.NewString(),
		Secret:    secret,
		Label:     req.Label,
		Scopes:    scopes,
		CreatedAt: time.Now().UTC(),
		MaxUses:   req.MaxUses,
	}
	if req.ExpiresInHours != nil {
		expiresAt := key.CreatedAt.Add(time.Duration(*req.ExpiresInHours) * time.Hour)
		key.ExpiresAt = &expiresAt
	}

	if err := h.keyStore.Add(key); err != nil {
		if errors.Is(err, provision.ErrDuplicateKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "key already exists"})
			return
		}
		slog.Error("Failed to store provisioning key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create key"})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateKeyResponse{
		ID:        key.ID,
		Secret:    key.Secret,
		Label:     key.Label,
		Scopes:    req.Scopes,
		ExpiresAt: key.ExpiresAt,
		MaxUses:   key.MaxUses,
		CreatedAt: key.CreatedAt,
	})
}

// ListKeys returns all keys with secrets redacted.
// GET /admin/keys
func (h *KeysHandler) ListKeys(c *gin.Context) {
	keys := h.keyStore.List()

	infos := make([]dto.KeyInfo, len(keys))
	for i, k := range keys {
		infos[i] = keyInfo(k)
	}

	c.JSON(http.StatusOK, dto.ListKeysResponse{Keys: infos, Count: len(infos)})
}

// GetKey returns a single key with its secret redacted.
// GET /admin/keys/:id
func (h *KeysHandler) GetKey(c *gin.Context) {
	key, found := h.keyStore.Get(c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	c.JSON(http.StatusOK, keyInfo(key))
}

// UpdateKey adjusts the mutable fields of a key. Scopes are immutable;
// rotation means issuing a new key and revoking this one.
// PATCH /admin/keys/:id
func (h *KeysHandler) UpdateKey(c *gin.Context) {
	var req dto.UpdateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	upd := provision.KeyUpdate{
		Label:   req.Label,
		MaxUses: req.MaxUses,
	}
	if req.ExpiresInHours != nil {
		expiresAt := time.Now().UTC().Add(time.Duration(*req.ExpiresInHours) * time.Hour)
		upd.ExpiresAt = &expiresAt
	}

	found, err := h.keyStore.Update(c.Param("id"), upd)
	if err != nil {
		slog.Error("Failed to update provisioning key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update key"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	key, _ := h.keyStore.Get(c.Param("id"))
	c.JSON(http.StatusOK, keyInfo(key))
}

// RevokeKey soft-deletes a key; audit history stays coherent because the
// record survives with its revocation timestamp.
// DELETE /admin/keys/:id
func (h *KeysHandler) RevokeKey(c *gin.Context) {
	found, err := h.keyStore.Revoke(c.Param("id"))
	if err != nil {
		slog.Error("Failed to revoke provisioning key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke key"})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "key revoked"})
}
