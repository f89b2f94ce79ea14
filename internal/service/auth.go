package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/logger"
	"bookworm-backend/internal/repository"
	"bookworm-backend/internal/security"
)

const verificationTokenTTL = 15 * time.Minute

type authService struct {
	users    repository.UserRepository
	emailSvc EmailService
	tokens   security.TokenManager
	now      func() time.Time
}

func NewAuthService(users repository.UserRepository, emailSvc EmailService, tokens security.TokenManager) AuthService {
	return &authService{
		users:    users,
		emailSvc: emailSvc,
		tokens:   tokens,
		now:      time.Now,
	}
}

func (s *authService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || len(password) < 8 || len(password) > 16 {
		return nil, domain.ErrValidation
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}
	if existing != nil && existing.Verified {
		return nil, domain.ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	expires := s.now().Add(verificationTokenTTL)
	user := &domain.User{
		Name:              name,
		Email:             email,
		PasswordHash:      string(hash),
		Role:              domain.UserRoleUser,
		VerificationToken: uuid.NewString(),
		TokenExpiresAt:    &expires,
	}

	if existing != nil {
		// Unverified registration retried: refresh the pending record.
		user.ID = existing.ID
		err = s.users.Update(ctx, user)
	} else {
		err = s.users.Create(ctx, user)
	}
	if err != nil {
		return nil, err
	}

	if err := s.emailSvc.SendVerificationEmail(ctx, user.Email, user.Name, user.VerificationToken); err != nil {
		logger.Warn("Failed to send verification email", "email", user.Email, "error", err)
	}
	return user, nil
}

func (s *authService) Verify(ctx context.Context, email, token string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || token == "" {
		return domain.ErrValidation
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.Verified {
		return nil
	}
	if user.VerificationToken != token {
		return domain.ErrValidation
	}
	if user.TokenExpiresAt == nil || s.now().After(*user.TokenExpiresAt) {
		return domain.ErrVerificationExpired
	}

	user.Verified = true
	user.VerificationToken = ""
	user.TokenExpiresAt = nil
	return s.users.Update(ctx, user)
}

func (s *authService) Login(ctx context.Context, email, password string) (*domain.User, string, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, "", "", domain.ErrInvalidCredentials
		}
		return nil, "", "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, "", "", domain.ErrInvalidCredentials
	}
	if !user.Verified {
		return nil, "", "", domain.ErrAccountNotVerified
	}

	access, err := s.tokens.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, "", "", err
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, "", "", err
	}
	return user, access, refresh, nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ValidateToken(refreshToken)
	if err != nil {
		return "", domain.ErrUnauthorized
	}
	if claims.Type != security.TokenTypeRefresh {
		return "", domain.ErrUnauthorized
	}

	// Role may have changed since the refresh token was minted.
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return "", domain.ErrUnauthorized
	}
	return s.tokens.GenerateAccessToken(user.ID, user.Email, user.Role)
}

func (s *authService) UpdatePassword(ctx context.Context, userID int32, currentPassword, newPassword string) error {
	if len(newPassword) < 8 || len(newPassword) > 16 {
		return domain.ErrValidation
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
		return domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	user.PasswordHash = string(hash)
	return s.users.Update(ctx, user)
}
