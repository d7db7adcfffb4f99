package utils

import (
	"errors"
	"strings"
	"time"

	"modelhub-backend/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingAuthHeader = errors.New("authorization header is required")
	ErrNotBearer         = errors.New("bearer token not found")
	ErrNoJWTSecret       = errors.New("JWT_SECRET is not configured")
)

// Claims is the payload of access tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func jwtSettings() (secret []byte, ttl time.Duration, err error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, 0, err
	}
	if cfg.JWTSecret == "" {
		return nil, 0, ErrNoJWTSecret
	}
	return []byte(cfg.JWTSecret), time.Duration(cfg.JWTExpireHours) * time.Hour, nil
}

// GenerateToken signs an HS256 access token for the user.
func GenerateToken(userID string, role string) (string, error) {
	secret, ttl, err := jwtSettings()
	if err != nil {
		return "", err
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateToken verifies signature and expiry and returns the claims.
func ValidateToken(tokenString string) (*Claims, error) {
	secret, _, err := jwtSettings()
	if err != nil {
		return nil, err
	}
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// ExtractToken reads the bearer token from the Authorization header.
func ExtractToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrNotBearer
	}
	return strings.TrimSpace(token), nil
}
