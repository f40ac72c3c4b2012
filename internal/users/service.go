// Package users manages participant accounts: registration, credential login,
// and identity resolution for ledger operations. Roles are fixed at
// registration; there is no self-service role change.
package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/h2trust/hydroledger/internal/ledger/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service implements business logic for participant accounts.
type Service struct {
	repo   Repo
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(repo Repo, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Register creates a new participant account. The email is stored lowercased
// so lookups are case-insensitive.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	role := model.Role(strings.ToLower(req.Role))
	if !role.Valid() {
		return nil, model.ErrInvalidInput("unknown role %q", req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, model.ErrInvalidInput("hash password: %v", err)
	}

	u := &User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(req.Name),
		Company:      strings.TrimSpace(req.Company),
		Region:       strings.TrimSpace(req.Region),
		Role:         role,
		IsActive:     true,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("user_id", u.ID.String()),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Login verifies email/password credentials and returns the user on success.
// The error never distinguishes a wrong password from an unknown email.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		return nil, model.ErrForbidden("invalid credentials")
	}
	if !u.IsActive {
		return nil, model.ErrForbidden("account is deactivated")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrForbidden("invalid credentials")
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Deactivate disables an account. Deactivated users cannot log in and are
// rejected as transfer recipients.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("user deactivated", zap.String("user_id", id.String()))
	return nil
}

// ResolveByID returns the identity view for a user ID. Satisfies the ledger
// service's recipient-resolution interface.
func (s *Service) ResolveByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Identity(), nil
}

// ResolveByEmail returns the identity view for an email address.
func (s *Service) ResolveByEmail(ctx context.Context, emailAddr string) (*Identity, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr)))
	if err != nil {
		return nil, err
	}
	return u.Identity(), nil
}
