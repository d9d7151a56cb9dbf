package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenServiceIssueAndVerify(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour)

	pair, err := svc.IssuePair("user-1")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected non-empty tokens: %+v", pair)
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}

	userID, err := svc.VerifyAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1 got %q", userID)
	}

	userID, err = svc.VerifyRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1 got %q", userID)
	}
}

func TestTokenServiceIssuesDistinctTokens(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour)

	first, err := svc.IssuePair("user-1")
	if err != nil {
		t.Fatalf("issue first pair: %v", err)
	}
	second, err := svc.IssuePair("user-1")
	if err != nil {
		t.Fatalf("issue second pair: %v", err)
	}

	if first.RefreshToken == second.RefreshToken {
		t.Fatal("consecutive refresh tokens for the same user must differ")
	}
}

func TestTokenServiceIssuePairValidation(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour)
	if _, err := svc.IssuePair(""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestTokenServiceRejectsCrossClassTokens(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour)

	pair, err := svc.IssuePair("user-1")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if _, err := svc.VerifyRefreshToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token on refresh path, got %v", err)
	}
	if _, err := svc.VerifyAccessToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh token on access path, got %v", err)
	}
}

func TestTokenServiceRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour)
	verifier := NewTokenService("other-access", "other-refresh", time.Minute, time.Hour)

	pair, err := issuer.IssuePair("user-1")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if _, err := verifier.VerifyAccessToken(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken got %v", err)
	}
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour)

	past := time.Now().UTC().Add(-2 * time.Hour)
	svc.nowFunc = func() time.Time { return past }

	pair, err := svc.IssuePair("user-1")
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	svc.nowFunc = nil

	if _, err := svc.VerifyRefreshToken(pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token got %v", err)
	}
}

func TestTokenServiceRejectsGarbage(t *testing.T) {
	svc := NewTokenService("access-secret", "refresh-secret", time.Minute, time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.VerifyAccessToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken got %v", token, err)
		}
	}
}
