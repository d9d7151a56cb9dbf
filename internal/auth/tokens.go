package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cliptube/backend/internal/models"
)

// ErrInvalidToken indicates a token whose signature, shape, or expiry
// failed verification.
var ErrInvalidToken = errors.New("invalid token")

// TokenService issues and verifies the signed bearer tokens used for
// authentication. Access and refresh tokens are signed with separate
// secrets so one class can never stand in for the other. Verification
// is stateless; refresh rotation is enforced by the caller comparing
// the presented token against the value stored on the user record.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	nowFunc func() time.Time
}

// NewTokenService constructs a TokenService with the provided secrets and TTLs.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessSecret == "" || refreshSecret == "" {
		panic("auth: token secrets must not be empty")
	}
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// IssueAccessToken signs a short-lived access token for the user.
func (s *TokenService) IssueAccessToken(userID string) (string, time.Time, error) {
	return s.sign(userID, s.accessSecret, s.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for the user.
func (s *TokenService) IssueRefreshToken(userID string) (string, time.Time, error) {
	return s.sign(userID, s.refreshSecret, s.refreshTTL)
}

// IssuePair issues a matched access and refresh token pair.
func (s *TokenService) IssuePair(userID string) (models.TokenPair, error) {
	if userID == "" {
		return models.TokenPair{}, errors.New("user id must be provided")
	}

	access, accessExp, err := s.IssueAccessToken(userID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, refreshExp, err := s.IssueRefreshToken(userID)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return models.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccessToken validates an access token and returns the subject user id.
func (s *TokenService) VerifyAccessToken(token string) (string, error) {
	return s.verify(token, s.accessSecret)
}

// VerifyRefreshToken validates a refresh token and returns the subject user id.
func (s *TokenService) VerifyRefreshToken(token string) (string, error) {
	return s.verify(token, s.refreshSecret)
}

func (s *TokenService) sign(userID string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	// The jti makes every issued token distinct, so a rotated-out
	// refresh token can never collide with its replacement.
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return signed, expiresAt, nil
}

func (s *TokenService) verify(token string, secret []byte) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

func (s *TokenService) now() time.Time {
	if s.nowFunc != nil {
		return s.nowFunc()
	}
	return time.Now().UTC()
}
