package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ledgermate-backend/internal/auth"
	"ledgermate-backend/internal/config"
	"ledgermate-backend/internal/models"
	"ledgermate-backend/internal/store"
	"ledgermate-backend/pkg/logger"
)

// Auth service errors mapped to HTTP statuses by the handlers.
var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrValidation         = errors.New("input validation failed")
)

// AuthService handles signup and login.
type AuthService struct {
	store store.Store
	cfg   *config.Config
	log   *logger.Logger
}

// NewAuthService creates the auth service.
func NewAuthService(s store.Store, cfg *config.Config) *AuthService {
	return &AuthService{
		store: s,
		cfg:   cfg,
		log:   logger.Get().WithComponent("auth"),
	}
}

// Signup creates a new organization with its first user. The first user is
// always an admin; members and viewers are invited later.
func (s *AuthService) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: email and password cannot be empty", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email address is not valid", ErrValidation)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}

	_, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	orgName := strings.TrimSpace(req.OrganizationName)
	if orgName == "" {
		orgName = fmt.Sprintf("%s's Workspace", email)
	}
	org := &models.Organization{
		ID:   uuid.New(),
		Name: orgName,
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	user := &models.User{
		ID:             uuid.New(),
		OrganizationID: org.ID,
		Email:          email,
		HashedPassword: hashedPassword,
		Role:           models.UserRoleAdmin,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race against a concurrent signup for the same email.
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("user signed up", "user_id", user.ID.String(), "org_id", org.ID.String())
	return user, nil
}

// Login verifies credentials and mints an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (string, *models.User, error) {
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Same answer as a wrong password, existence stays hidden.
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	if !auth.CheckPasswordHash(req.Password, user.HashedPassword) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.NewAccessToken(auth.CustomClaims{
		UserID: user.ID,
		OrgID:  user.OrganizationID,
		Role:   user.Role,
	}, s.cfg.JWTSecret, s.cfg.TokenExpiration)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create access token: %w", err)
	}

	s.log.Info("user logged in", "user_id", user.ID.String())
	return token, user, nil
}
