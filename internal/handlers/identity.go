package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/cliptube/backend/internal/logging"
	"github.com/cliptube/backend/internal/models"
)

type identityKey struct{}

// CurrentUser returns the authenticated user previously attached to the
// request context by RequireAuth.
func CurrentUser(ctx context.Context) (models.Profile, bool) {
	profile, ok := ctx.Value(identityKey{}).(models.Profile)
	return profile, ok
}

func withCurrentUser(ctx context.Context, profile models.Profile) context.Context {
	return context.WithValue(ctx, identityKey{}, profile)
}

// RequireAuth verifies the access token from the request cookie or
// Authorization header, resolves the account it names, and attaches the
// sanitized user to the request context. Requests without a valid
// identity are rejected with 401.
func RequireAuth(users UserStore, tokens TokenService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		profile, ok := resolveIdentity(r, users, tokens)
		if !ok {
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized request")
			return
		}

		next(w, r.WithContext(withCurrentUser(ctx, profile)))
	}
}

// OptionalAuth attaches an identity when a valid access token is
// present but lets anonymous requests through untouched.
func OptionalAuth(users UserStore, tokens TokenService, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if profile, ok := resolveIdentity(r, users, tokens); ok {
			r = r.WithContext(withCurrentUser(r.Context(), profile))
		}
		next(w, r)
	}
}

func resolveIdentity(r *http.Request, users UserStore, tokens TokenService) (models.Profile, bool) {
	if users == nil || tokens == nil {
		return models.Profile{}, false
	}

	token := accessTokenFromRequest(r)
	if token == "" {
		return models.Profile{}, false
	}

	userID, err := tokens.VerifyAccessToken(token)
	if err != nil {
		return models.Profile{}, false
	}

	user, err := users.FindByID(r.Context(), userID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("token names unknown user", "userId", userID, "error", err)
		return models.Profile{}, false
	}

	return user.Sanitize(), true
}

func accessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(accessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
