package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cliptube/backend/internal/logging"
	"github.com/cliptube/backend/internal/models"
	"github.com/cliptube/backend/internal/repositories"
)

// maxUploadBytes bounds the multipart form size accepted on media endpoints.
const maxUploadBytes = 32 << 20

// UserHandler implements account, session, and profile endpoints.
type UserHandler struct {
	Users   UserStore
	Tokens  TokenService
	Media   AssetStorage
	Limiter RateLimiter
	NowFunc func() time.Time
}

// Register handles POST /api/v1/users/register. The account is created
// but not logged in; the client must follow up with a login call.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Media == nil {
		logger.Error("registration dependencies unavailable", "hasUsers", h.Users != nil, "hasMedia", h.Media != nil)
		respondError(ctx, w, http.StatusInternalServerError, "registration services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "register") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many registration attempts")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.Warn("invalid registration form", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	fullName := strings.TrimSpace(r.FormValue("fullname"))
	email := strings.TrimSpace(strings.ToLower(r.FormValue("email")))
	username := strings.TrimSpace(strings.ToLower(r.FormValue("username")))
	password := r.FormValue("password")

	if fullName == "" || email == "" || username == "" || password == "" {
		logger.Warn("registration missing fields", "username", username, "email", email)
		respondError(ctx, w, http.StatusBadRequest, "fullname, email, username, and password are required")
		return
	}

	if _, err := mail.ParseAddress(email); err != nil {
		logger.Warn("registration invalid email", "email", email, "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid email address")
		return
	}

	if len(password) < 8 {
		logger.Warn("registration password too short", "username", username)
		respondError(ctx, w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	avatarURL, found, err := h.storeUpload(r, "avatar", "avatars")
	if err != nil {
		logger.Error("avatar upload failed", "error", err, "username", username)
		respondError(ctx, w, http.StatusBadRequest, "failed to upload avatar")
		return
	}
	if !found {
		respondError(ctx, w, http.StatusBadRequest, "avatar file is required")
		return
	}

	coverImageURL, coverFound, err := h.storeUpload(r, "coverImage", "covers")
	if err != nil {
		logger.Error("cover image upload failed", "error", err, "username", username)
		h.discardUpload(r, avatarURL)
		respondError(ctx, w, http.StatusBadRequest, "failed to upload cover image")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("registration failed to hash password", "error", err)
		h.discardUpload(r, avatarURL)
		h.discardUpload(r, coverImageURL)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		FullName:  fullName,
		Password:  string(hashed),
		AvatarURL: avatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if coverFound {
		user.CoverImageURL = &coverImageURL
	}

	if err := h.Users.Create(ctx, user); err != nil {
		h.discardUpload(r, avatarURL)
		h.discardUpload(r, coverImageURL)
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("registration conflict", "username", username, "email", email)
			respondError(ctx, w, http.StatusConflict, "username or email already exists")
			return
		}
		logger.Error("registration failed to create user", "error", err, "username", username)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create account")
		return
	}

	respondData(ctx, w, http.StatusCreated, user.Sanitize(), "account created")
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         models.Profile `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

// Login handles POST /api/v1/users/login.
func (h UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Tokens == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasTokens", h.Tokens != nil)
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	if !allowRequest(h.Limiter, r, "login") {
		respondError(ctx, w, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	login := strings.TrimSpace(strings.ToLower(req.Username))
	if login == "" {
		login = strings.TrimSpace(strings.ToLower(req.Email))
	}
	if login == "" {
		logger.Warn("login missing identifier")
		respondError(ctx, w, http.StatusBadRequest, "username or email is required")
		return
	}

	user, err := h.Users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("login unknown account", "login", login)
			respondError(ctx, w, http.StatusNotFound, "account does not exist")
			return
		}
		logger.Error("login user lookup failed", "login", login, "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	pair, err := h.Tokens.IssuePair(user.ID)
	if err != nil {
		logger.Error("failed to issue token pair", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	if err := h.Users.UpdateRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		logger.Error("failed to persist refresh token", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to create session")
		return
	}

	setAuthCookies(w, pair)
	respondData(ctx, w, http.StatusOK, loginResponse{
		User:         user.Sanitize(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, "logged in")
}

// Logout handles POST /api/v1/users/logout. Requires an authenticated identity.
func (h UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	profile, ok := CurrentUser(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if err := h.Users.UpdateRefreshToken(ctx, profile.ID, nil); err != nil {
		logger.Error("failed to clear refresh token", "error", err, "userId", profile.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to log out")
		return
	}

	clearAuthCookies(w)
	respondData(ctx, w, http.StatusOK, struct{}{}, "logged out")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /api/v1/users/refresh. The refresh token is
// rotated: the presented token must equal the one stored on the user
// record, and a new pair replaces it. Reusing a rotated-out token is
// rejected even though its signature still verifies.
func (h UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Tokens == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasTokens", h.Tokens != nil)
		respondError(ctx, w, http.StatusInternalServerError, "authentication services unavailable")
		return
	}

	token := h.refreshTokenFromRequest(r)
	if token == "" {
		logger.Warn("refresh missing token")
		respondError(ctx, w, http.StatusUnauthorized, "refresh token is required")
		return
	}

	userID, err := h.Tokens.VerifyRefreshToken(token)
	if err != nil {
		logger.Warn("refresh token verification failed", "error", err)
		respondError(ctx, w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		logger.Warn("refresh token names unknown user", "userId", userID, "error", err)
		respondError(ctx, w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	if user.RefreshToken == nil || *user.RefreshToken != token {
		logger.Warn("refresh token reuse detected", "userId", user.ID)
		respondError(ctx, w, http.StatusUnauthorized, "refresh token has been rotated")
		return
	}

	pair, err := h.Tokens.IssuePair(user.ID)
	if err != nil {
		logger.Error("failed to issue token pair", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to refresh session")
		return
	}

	if err := h.Users.UpdateRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		logger.Error("failed to persist refresh token", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to refresh session")
		return
	}

	setAuthCookies(w, pair)
	respondData(ctx, w, http.StatusOK, pair, "session refreshed")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword handles POST /api/v1/users/password. Existing tokens
// are left untouched.
func (h UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	profile, ok := CurrentUser(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid password change payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OldPassword == "" || req.NewPassword == "" {
		respondError(ctx, w, http.StatusBadRequest, "old and new passwords are required")
		return
	}

	if len(req.NewPassword) < 8 {
		respondError(ctx, w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := h.Users.FindByID(ctx, profile.ID)
	if err != nil {
		logger.Error("password change user lookup failed", "error", err, "userId", profile.ID)
		respondError(ctx, w, http.StatusInternalServerError, "unable to verify credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.OldPassword)); err != nil {
		logger.Warn("password change old password mismatch", "userId", user.ID)
		respondError(ctx, w, http.StatusBadRequest, "invalid old password")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("password change failed to hash password", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to secure password")
		return
	}

	if err := h.Users.UpdatePassword(ctx, user.ID, string(hashed)); err != nil {
		logger.Error("password change failed to persist", "error", err, "userId", user.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to change password")
		return
	}

	respondData(ctx, w, http.StatusOK, struct{}{}, "password changed")
}

// Me handles GET /api/v1/users/me. The identity was already resolved by
// the auth middleware; no database read happens here.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	profile, ok := CurrentUser(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	respondData(ctx, w, http.StatusOK, profile, "current user")
}

type updateAccountRequest struct {
	FullName string `json:"fullname"`
	Email    string `json:"email"`
}

// UpdateAccount handles PATCH /api/v1/users/account.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	profile, ok := CurrentUser(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid account update payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if fullName == "" || email == "" {
		respondError(ctx, w, http.StatusBadRequest, "fullname and email are required")
		return
	}

	if _, err := mail.ParseAddress(email); err != nil {
		logger.Warn("account update invalid email", "email", email, "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid email address")
		return
	}

	user, err := h.Users.UpdateDetails(ctx, profile.ID, fullName, email)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			logger.Warn("account update email conflict", "userId", profile.ID, "email", email)
			respondError(ctx, w, http.StatusConflict, "email already in use")
			return
		}
		logger.Error("account update failed", "error", err, "userId", profile.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update account")
		return
	}

	respondData(ctx, w, http.StatusOK, user.Sanitize(), "account updated")
}

// UpdateAvatar handles PATCH /api/v1/users/avatar.
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateMedia(w, r, "avatar", "avatars", func(p models.Profile) string {
		return p.AvatarURL
	}, h.Users.UpdateAvatar)
}

// UpdateCoverImage handles PATCH /api/v1/users/cover.
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateMedia(w, r, "coverImage", "covers", func(p models.Profile) string {
		return p.CoverImageURL
	}, h.Users.UpdateCoverImage)
}

// updateMedia implements the shared upload-then-persist flow for avatar
// and cover image replacement. The new object is deleted when the
// persist step fails; the replaced object is deleted after a successful
// swap so no orphans accumulate.
func (h UserHandler) updateMedia(
	w http.ResponseWriter,
	r *http.Request,
	field, folder string,
	previous func(models.Profile) string,
	persist func(ctx context.Context, userID, url string) (models.User, error),
) {
	if r.Method != http.MethodPatch && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	profile, ok := CurrentUser(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	if h.Media == nil {
		logger.Error("media storage unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "media services unavailable")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		logger.Warn("invalid media form", "field", field, "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	url, found, err := h.storeUpload(r, field, folder)
	if err != nil {
		logger.Error("media upload failed", "field", field, "error", err, "userId", profile.ID)
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("failed to upload %s", field))
		return
	}
	if !found {
		respondError(ctx, w, http.StatusBadRequest, fmt.Sprintf("%s file is required", field))
		return
	}

	user, err := persist(ctx, profile.ID, url)
	if err != nil {
		h.discardUpload(r, url)
		logger.Error("media update failed to persist", "field", field, "error", err, "userId", profile.ID)
		respondError(ctx, w, http.StatusInternalServerError, fmt.Sprintf("failed to update %s", field))
		return
	}

	if old := previous(profile); old != "" && old != url {
		h.discardUpload(r, old)
	}

	respondData(ctx, w, http.StatusOK, user.Sanitize(), fmt.Sprintf("%s updated", field))
}

// storeUpload saves the named multipart file to the object store. The
// second return value reports whether the field was present at all.
func (h UserHandler) storeUpload(r *http.Request, field, folder string) (string, bool, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s form file: %w", field, err)
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	key := fmt.Sprintf("%s/%s%s", folder, uuid.NewString(), filepath.Ext(header.Filename))
	url, err := h.Media.Save(r.Context(), key, file)
	if err != nil {
		return "", true, err
	}
	if url == "" {
		return "", true, fmt.Errorf("object store returned empty location for %s", key)
	}

	return url, true, nil
}

// discardUpload best-effort deletes an object that is no longer referenced.
func (h UserHandler) discardUpload(r *http.Request, location string) {
	if location == "" || h.Media == nil {
		return
	}
	if err := h.Media.Delete(r.Context(), location); err != nil {
		logging.FromContext(r.Context()).Warn("failed to delete unreferenced upload", "location", location, "error", err)
	}
}

func (h UserHandler) refreshTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		return strings.TrimSpace(req.RefreshToken)
	}
	return ""
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
