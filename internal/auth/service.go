package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const RoleAdmin = "admin"

// Service authenticates the single configured administrator and issues
// admin tokens. The account lives in configuration (username plus bcrypt
// password hash); key management endpoints require its role.
type Service struct {
	config        Config
	adminUsername string
	adminHash     string
}

// NewService creates the auth service for the configured admin account.
func NewService(config Config, adminUsername, adminPasswordHash string) *Service {
	return &Service{
		config:        config,
		adminUsername: adminUsername,
		adminHash:     adminPasswordHash,
	}
}

// Login verifies the admin credentials and returns a signed token.
func (s *Service) Login(username, password string) (string, error) {
	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUsername)) == 1
	passwordOK := CheckPassword(password, s.adminHash)
	if !usernameOK || !passwordOK {
		return "", ErrInvalidCredentials
	}

	return GenerateToken(s.config, s.adminUsername, RoleAdmin)
}
