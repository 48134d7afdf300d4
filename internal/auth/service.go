package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-hq/meridian-access/internal/shared"
)

// Service wraps service-token authentication rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// IssueToken creates a token for the user and returns the plaintext
// credential. The secret is never recoverable afterwards.
func (s *Service) IssueToken(ctx context.Context, name string, userID int64) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate secret: %w", err)
	}
	secret := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash secret: %w", err)
	}
	token := ServiceToken{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		SecretHash: string(hash),
		UserID:     userID,
	}
	if err := s.repo.CreateToken(ctx, token); err != nil {
		return "", fmt.Errorf("auth: store token: %w", err)
	}
	return token.ID + "." + secret, nil
}

// RevokeToken invalidates a token by id.
func (s *Service) RevokeToken(ctx context.Context, id string) error {
	return s.repo.RevokeToken(ctx, id)
}

// Authenticate validates a bearer credential and resolves the principal.
// Every failure collapses to ErrInvalidToken so callers cannot distinguish
// unknown ids from bad secrets.
func (s *Service) Authenticate(ctx context.Context, credential string) (*shared.Principal, error) {
	id, secret, ok := strings.Cut(credential, ".")
	if !ok || id == "" || secret == "" {
		return nil, shared.ErrInvalidToken
	}
	token, err := s.repo.FindToken(ctx, id)
	if err != nil {
		return nil, shared.ErrInvalidToken
	}
	if token.RevokedAt != nil {
		return nil, shared.ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidToken
	}
	roles, err := s.repo.UserRoleCodes(ctx, token.UserID)
	if err != nil {
		return nil, fmt.Errorf("auth: load roles: %w", err)
	}
	return &shared.Principal{
		UserID:    token.UserID,
		TokenID:   token.ID,
		TokenName: token.Name,
		Roles:     roles,
	}, nil
}
