package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	crdbpgxv5 "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cliptube/backend/internal/db"
	"github.com/cliptube/backend/internal/logging"
	"github.com/cliptube/backend/internal/models"
)

const userColumns = `id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record. The duplicate check and insert run
// in one transaction so two concurrent registrations with the same
// username or email cannot both pass the check.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	err = crdbpgxv5.ExecuteTx(ctx, conn, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var taken bool
		row := tx.QueryRow(ctx, `
            SELECT EXISTS (
                SELECT 1 FROM users WHERE username = $1 OR email = $2
            )
        `, user.Username, user.Email)
		if err := row.Scan(&taken); err != nil {
			return fmt.Errorf("check existing user: %w", err)
		}
		if taken {
			return ErrConflict
		}

		_, err := tx.Exec(ctx, `
            INSERT INTO users (id, username, email, full_name, password_hash, avatar_url, cover_image_url, refresh_token, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        `, user.ID, user.Username, user.Email, user.FullName, user.Password, user.AvatarURL, user.CoverImageURL, user.RefreshToken, user.CreatedAt, user.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return ErrConflict
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// FindByID fetches a user by their identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// FindByLogin fetches a user by their username or email address.
// Usernames are stored lowercased, so the login is matched case-insensitively
// on the username side and exactly on the email side.
func (r *PostgresUserRepository) FindByLogin(ctx context.Context, login string) (models.User, error) {
	return r.findOne(ctx, `
        SELECT `+userColumns+`
        FROM users
        WHERE username = lower($1) OR email = $1
    `, login)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, args ...any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var user models.User
	row := conn.QueryRow(ctx, query, args...)
	if err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &user.Password,
		&user.AvatarURL, &user.CoverImageURL, &user.RefreshToken,
		&user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// UpdateRefreshToken overwrites the stored refresh token for the user.
func (r *PostgresUserRepository) UpdateRefreshToken(ctx context.Context, userID string, token *string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET refresh_token = $2, updated_at = $3
        WHERE id = $1
    `, userID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdatePassword replaces the stored password hash for the user.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET password_hash = $2, updated_at = $3
        WHERE id = $1
    `, userID, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateDetails modifies the mutable profile fields and returns the
// updated record.
func (r *PostgresUserRepository) UpdateDetails(ctx context.Context, userID, fullName, email string) (models.User, error) {
	return r.updateReturning(ctx, `
        UPDATE users
        SET full_name = $2, email = $3, updated_at = $4
        WHERE id = $1
        RETURNING `+userColumns, userID, fullName, email, time.Now().UTC())
}

// UpdateAvatar persists a new avatar location and returns the updated record.
func (r *PostgresUserRepository) UpdateAvatar(ctx context.Context, userID, avatarURL string) (models.User, error) {
	return r.updateReturning(ctx, `
        UPDATE users
        SET avatar_url = $2, updated_at = $3
        WHERE id = $1
        RETURNING `+userColumns, userID, avatarURL, time.Now().UTC())
}

// UpdateCoverImage persists a new cover image location and returns the
// updated record.
func (r *PostgresUserRepository) UpdateCoverImage(ctx context.Context, userID, coverImageURL string) (models.User, error) {
	return r.updateReturning(ctx, `
        UPDATE users
        SET cover_image_url = $2, updated_at = $3
        WHERE id = $1
        RETURNING `+userColumns, userID, coverImageURL, time.Now().UTC())
}

func (r *PostgresUserRepository) updateReturning(ctx context.Context, query string, args ...any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var user models.User
	row := conn.QueryRow(ctx, query, args...)
	if err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &user.Password,
		&user.AvatarURL, &user.CoverImageURL, &user.RefreshToken,
		&user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// PostgresChannelRepository computes the channel-page and watch-history
// read models with SQL joins over users, subscriptions, and videos.
type PostgresChannelRepository struct {
	pool db.Pool
}

// NewPostgresChannelRepository constructs a channel repository backed by PostgreSQL.
func NewPostgresChannelRepository(pool db.Pool) *PostgresChannelRepository {
	return &PostgresChannelRepository{pool: pool}
}

// Profile resolves the channel page for a username. Subscriber counts
// are correlated aggregates over the subscriptions table; IsSubscribed
// is a membership test for the viewer among the channel's subscriber
// edges and is always false for anonymous viewers.
func (r *PostgresChannelRepository) Profile(ctx context.Context, username string, viewerID *string) (models.ChannelProfile, error) {
	ctx, span := logging.StartSpan(ctx, "channel_profile_query")
	defer span.End()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.ChannelProfile{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT
            u.full_name,
            u.username,
            u.email,
            u.avatar_url,
            u.cover_image_url,
            (SELECT COUNT(*) FROM subscriptions s WHERE s.channel_id = u.id) AS subscribers_count,
            (SELECT COUNT(*) FROM subscriptions s WHERE s.subscriber_id = u.id) AS subscribed_to_count,
            EXISTS (
                SELECT 1 FROM subscriptions s
                WHERE s.channel_id = u.id AND s.subscriber_id = $2
            ) AS is_subscribed
        FROM users u
        WHERE u.username = lower($1)
    `, username, viewerID)

	var (
		profile    models.ChannelProfile
		coverImage *string
	)
	if err := row.Scan(
		&profile.FullName, &profile.Username, &profile.Email,
		&profile.AvatarURL, &coverImage,
		&profile.SubscribersCount, &profile.SubscribedToCount, &profile.IsSubscribed,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ChannelProfile{}, ErrNotFound
		}
		return models.ChannelProfile{}, fmt.Errorf("select channel profile: %w", err)
	}

	if coverImage != nil {
		profile.CoverImageURL = *coverImage
	}

	return profile, nil
}

// WatchHistory returns the user's watched videos in watch order, each
// with its owner collapsed to a single projected object. An empty
// history yields an empty slice, not an error.
func (r *PostgresChannelRepository) WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error) {
	ctx, span := logging.StartSpan(ctx, "watch_history_query")
	defer span.End()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT
            v.id, v.title, v.description, v.video_url, v.thumbnail_url,
            v.duration, v.views, v.created_at,
            o.full_name, o.username, o.avatar_url
        FROM watch_history wh
        JOIN videos v ON v.id = wh.video_id
        JOIN users o ON o.id = v.owner_id
        WHERE wh.user_id = $1
        ORDER BY wh.position
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("query watch history: %w", err)
	}
	defer rows.Close()

	history := []models.WatchedVideo{}
	for rows.Next() {
		var video models.WatchedVideo
		if err := rows.Scan(
			&video.ID, &video.Title, &video.Description, &video.VideoURL, &video.ThumbnailURL,
			&video.Duration, &video.Views, &video.CreatedAt,
			&video.Owner.FullName, &video.Owner.Username, &video.Owner.AvatarURL,
		); err != nil {
			return nil, fmt.Errorf("scan watch history entry: %w", err)
		}
		history = append(history, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watch history: %w", err)
	}

	return history, nil
}

// AddToWatchHistory appends a video to the user's watch history.
// Rewatching an already-listed video moves it to the end.
func (r *PostgresChannelRepository) AddToWatchHistory(ctx context.Context, userID, videoID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO watch_history (user_id, video_id, position, watched_at)
        VALUES (
            $1, $2,
            (SELECT COALESCE(MAX(position), 0) + 1 FROM watch_history WHERE user_id = $1),
            $3
        )
        ON CONFLICT (user_id, video_id)
        DO UPDATE SET position = EXCLUDED.position, watched_at = EXCLUDED.watched_at
    `, userID, videoID, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert watch history entry: %w", err)
	}

	return nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ ChannelRepository = (*PostgresChannelRepository)(nil)
