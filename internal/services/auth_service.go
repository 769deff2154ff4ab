// Package services – AuthService
//
// This file implements AuthService, which exchanges a username and password
// for a signed session token. Deactivated users and wrong passwords are
// rejected with the same error so that account existence is not disclosed.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/go-club-backend/internal/domain"
	"github.com/tbourn/go-club-backend/internal/repo"
)

// TokenIssuer signs session tokens for a user.
type TokenIssuer interface {
	Issue(u *domain.User) (token string, expiresAt time.Time, err error)
}

// AuthService handles sign-in.
type AuthService struct {
	DB     *gorm.DB
	Tokens TokenIssuer
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, tokens TokenIssuer) *AuthService {
	return &AuthService{DB: db, Tokens: tokens}
}

// LoginResult is a successful sign-in.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// Login verifies the credentials and issues a token.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := repo.FindUserByUsername(ctx, s.DB, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil || !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	tok, exp, err := s.Tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: tok, ExpiresAt: exp, User: u}, nil
}

// HashPassword returns a bcrypt hash suitable for domain.User.PasswordHash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SeedAdmin ensures an "admin" role holding system:admin and an active user
// with the given credentials exist. Existing users are left unchanged.
func SeedAdmin(ctx context.Context, db *gorm.DB, username, password, email string) (*domain.User, error) {
	role, err := repo.FindRoleByName(ctx, db, "admin")
	if errors.Is(err, gorm.ErrRecordNotFound) {
		role, err = repo.CreateRole(ctx, db, "admin", []string{"system:admin"})
	}
	if err != nil {
		return nil, err
	}
	if u, err := repo.FindUserByUsername(ctx, db, username); err == nil {
		return u, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		Username:     username,
		Email:        email,
		DisplayName:  username,
		PasswordHash: hash,
		RoleID:       role.ID,
		IsActive:     true,
	}
	if err := repo.CreateUser(ctx, db, u); err != nil {
		return nil, err
	}
	u.Role = *role
	return u, nil
}
