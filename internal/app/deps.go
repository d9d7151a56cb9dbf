package app

import (
	"context"
	"fmt"

	"github.com/cliptube/backend/internal/auth"
	"github.com/cliptube/backend/internal/config"
	"github.com/cliptube/backend/internal/db"
	"github.com/cliptube/backend/internal/handlers"
	"github.com/cliptube/backend/internal/middleware"
	"github.com/cliptube/backend/internal/repositories"
	"github.com/cliptube/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	media, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, fmt.Errorf("configure object storage: %w", err)
	}

	tokens := auth.NewTokenService(
		cfg.AccessTokenSecret, cfg.RefreshTokenSecret,
		cfg.AccessTokenTTL, cfg.RefreshTokenTTL,
	)

	limiter := middleware.NewIPRateLimiter(
		cfg.AuthRateLimit.Requests, cfg.AuthRateLimit.Window,
		cfg.AuthRateLimit.Burst, cfg.AuthRateLimit.TTL,
	)

	return handlers.Dependencies{
		Users:       repositories.NewPostgresUserRepository(pool),
		Channels:    repositories.NewPostgresChannelRepository(pool),
		Tokens:      tokens,
		Media:       media,
		AuthLimiter: limiter,
	}, nil
}
