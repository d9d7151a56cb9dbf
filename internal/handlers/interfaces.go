package handlers

import (
	"context"
	"io"

	"github.com/cliptube/backend/internal/models"
)

// UserStore captures the persistence operations required by the user handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByLogin(ctx context.Context, login string) (models.User, error)
	UpdateRefreshToken(ctx context.Context, userID string, token *string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateDetails(ctx context.Context, userID, fullName, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, userID, avatarURL string) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID, coverImageURL string) (models.User, error)
}

// ChannelStore serves the aggregation read models and the watch-history
// write path they depend on.
type ChannelStore interface {
	Profile(ctx context.Context, username string, viewerID *string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error)
	AddToWatchHistory(ctx context.Context, userID, videoID string) error
}

// TokenService issues and verifies the bearer credentials attached to sessions.
type TokenService interface {
	IssuePair(userID string) (models.TokenPair, error)
	VerifyAccessToken(token string) (string, error)
	VerifyRefreshToken(token string) (string, error)
}

// AssetStorage persists uploaded media and returns a public location for it.
type AssetStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
	Delete(ctx context.Context, location string) error
}
