package repositories

import (
	"context"

	"github.com/cliptube/backend/internal/models"
)

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	// FindByLogin resolves a user by username or email address.
	FindByLogin(ctx context.Context, login string) (models.User, error)
	// UpdateRefreshToken overwrites the stored refresh token. A nil token
	// clears it, revoking the user's session.
	UpdateRefreshToken(ctx context.Context, userID string, token *string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateDetails(ctx context.Context, userID, fullName, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, userID, avatarURL string) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID, coverImageURL string) (models.User, error)
}

// ChannelRepository serves the read-model aggregations over users,
// subscriptions, and videos.
type ChannelRepository interface {
	// Profile resolves a channel page by username. viewerID, when
	// non-nil, determines the IsSubscribed flag; anonymous viewers are
	// never subscribed.
	Profile(ctx context.Context, username string, viewerID *string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error)
	AddToWatchHistory(ctx context.Context, userID, videoID string) error
}
