package services

import (
	"context"
	"errors"
	"time"

	"modelhub-backend/internal/models"
	"modelhub-backend/internal/utils"
	"modelhub-backend/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveUser       = errors.New("user account is disabled")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

// AuthService turns credentials (password, bearer token or API key) into users.
type AuthService struct {
	users    *UserService
	apiKeys  *APIKeyService
	denylist *TokenDenylist
	logger   *zap.Logger
}

func NewAuthService(users *UserService, apiKeys *APIKeyService, denylist *TokenDenylist, log *zap.Logger) *AuthService {
	return &AuthService{users: users, apiKeys: apiKeys, denylist: denylist, logger: logger.OrGlobal(log).Named("auth")}
}

func (s *AuthService) Register(ctx context.Context, username, email, fullName, password string) (*models.User, error) {
	return s.users.CreateUser(ctx, CreateUserParams{
		Username: username,
		Email:    email,
		FullName: fullName,
		Password: password,
		Role:     models.RoleUser,
		IsActive: true,
	})
}

func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.logger.Warn("failed login", zap.String("username", username))
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, ErrInactiveUser
	}

	token, err := utils.GenerateToken(user.ID, string(user.Role))
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Logout denylists the token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, tokenString string) error {
	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		return err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return s.denylist.Add(ctx, tokenString, 24*time.Hour)
	}
	return s.denylist.Add(ctx, tokenString, time.Until(exp.Time))
}

// AuthenticateToken validates a bearer token and loads its active user.
func (s *AuthService) AuthenticateToken(ctx context.Context, tokenString string) (models.User, error) {
	revoked, err := s.denylist.Contains(ctx, tokenString)
	if err != nil {
		return models.User{}, err
	}
	if revoked {
		return models.User{}, ErrTokenRevoked
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		return models.User{}, err
	}
	return s.activeUser(ctx, claims.UserID)
}

// AuthenticateAPIKey verifies a raw API key and loads its owner.
func (s *AuthService) AuthenticateAPIKey(ctx context.Context, rawKey string) (models.User, error) {
	key, err := s.apiKeys.Verify(ctx, rawKey)
	if err != nil {
		return models.User{}, err
	}
	return s.activeUser(ctx, key.UserID)
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (models.User, error) {
	user, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, ErrInactiveUser
	}
	return user, nil
}
