package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/adminkit/adminkit/pkg/config"
	"github.com/adminkit/adminkit/pkg/errors"
)

// AuthService issues and validates access tokens
type AuthService struct {
	config     *config.AuthConfig
	repository *Repository
}

// NewAuthService creates a new authentication service
func NewAuthService(cfg *config.AuthConfig, repository *Repository) *AuthService {
	return &AuthService{
		config:     cfg,
		repository: repository,
	}
}

// LoginCredentials represents user login credentials
type LoginCredentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents a successful authentication
type AuthResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	TokenType   string `json:"token_type"`
}

// TokenClaims represents JWT access token claims
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticate verifies the credentials and issues an access token.
// Unknown users and wrong passwords are indistinguishable to the
// caller.
func (as *AuthService) Authenticate(ctx context.Context, credentials LoginCredentials) (*AuthResponse, error) {
	user, err := as.repository.GetUserByName(ctx, credentials.Username)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	if user == nil || !as.VerifyPassword(credentials.Password, user.PasswordHash) {
		return nil, errors.NewUnauthorizedError("invalid username or password")
	}

	token, expiresAt, err := as.GenerateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &AuthResponse{
		User:        user.Sanitized(),
		AccessToken: token,
		ExpiresAt:   expiresAt,
		TokenType:   "Bearer",
	}, nil
}

// ValidateToken parses a JWT access token and returns the active user
// it belongs to
func (as *AuthService) ValidateToken(ctx context.Context, tokenString string) (*User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(as.config.JWTSecret), nil
	})
	if err != nil {
		return nil, errors.NewInvalidTokenError()
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, errors.NewInvalidTokenError()
	}

	user, err := as.repository.GetUser(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, errors.NewUnauthorizedError("user not found or inactive")
	}

	return user, nil
}

// GenerateAccessToken issues a signed JWT for the user and returns the
// token together with its unix expiry
func (as *AuthService) GenerateAccessToken(user *User) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(as.config.TokenTTL)

	claims := &TokenClaims{
		UserID:   user.UserID,
		Username: user.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   user.UserID,
			Issuer:    "adminkit",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(as.config.JWTSecret))
	if err != nil {
		return "", 0, err
	}
	return signed, expiresAt.Unix(), nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.NewValidationError("password must be at least 8 characters long")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against its hash
func (as *AuthService) VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
