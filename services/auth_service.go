package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin  = "admin"
	RolePlayer = "player"

	AdminSubject = "admin"
)

// AuthService checks operator credentials. Player tokens are issued by the
// platform's identity service and only verified here.
type AuthService interface {
	AdminLogin(ctx context.Context, password string) error
}

type authService struct {
	adminPasswordHash []byte
}

func NewAuthService(adminPasswordHash string) AuthService {
	return &authService{adminPasswordHash: []byte(adminPasswordHash)}
}

func (s *authService) AdminLogin(ctx context.Context, password string) error {
	if len(s.adminPasswordHash) == 0 {
		return ErrAuthNotConfigured
	}
	if password == "" {
		return ErrAuthInvalidCredentials
	}

	err := bcrypt.CompareHashAndPassword(s.adminPasswordHash, []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrAuthInvalidCredentials
		}
		return fmt.Errorf("failed to compare password hash: %w", err)
	}
	return nil
}
