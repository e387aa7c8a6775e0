package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/trade-erp-api/internal/constants"
	"github.com/yukikurage/trade-erp-api/internal/models"
	"github.com/yukikurage/trade-erp-api/internal/repository"
	"github.com/yukikurage/trade-erp-api/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameRequired   = errors.New("operator name is required")
	ErrUsernameTaken      = errors.New("operator name is already registered")
	ErrInvalidCredentials = errors.New("invalid operator name or password")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrUserNotFound       = errors.New("operator not found")
	ErrRegistration       = errors.New("failed to register operator")
)

// AuthService registers ERP operators and checks their credentials. Every
// operator starts with a personal desk, a team only they belong to, so the
// board works before anyone joins a shared team.
type AuthService struct {
	userRepo repository.UserRepository
}

func NewAuthService(userRepo repository.UserRepository) *AuthService {
	return &AuthService{userRepo: userRepo}
}

type SignupInput struct {
	Username string
	Password string
}

// Signup registers an operator together with the owner membership of their
// personal desk.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*models.User, error) {
	name := strings.TrimSpace(input.Username)
	if name == "" {
		return nil, ErrUsernameRequired
	}
	if len(input.Password) < constants.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	_, err := s.userRepo.FindByUsername(ctx, name)
	switch {
	case err == nil:
		return nil, ErrUsernameTaken
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("failed to check operator name: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", ErrRegistration, err)
	}
	code, err := utils.GenerateInviteCode()
	if err != nil {
		return nil, fmt.Errorf("%w: invite code: %v", ErrRegistration, err)
	}

	operator := &models.User{Username: name, PasswordHash: string(hash)}
	desk := &models.Team{Name: name + "'s desk", InviteCode: code}
	if err := s.userRepo.Register(ctx, operator, desk, time.Now()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistration, err)
	}
	return operator, nil
}

type LoginInput struct {
	Username string
	Password string
}

// Login returns the operator whose password matches. Unknown names and wrong
// passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	operator, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(input.Username))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load operator: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(input.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return operator, nil
}

// GetUser loads the operator behind a session.
func (s *AuthService) GetUser(ctx context.Context, id uint64) (*models.User, error) {
	operator, err := s.userRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load operator: %w", err)
	}
	return operator, nil
}
