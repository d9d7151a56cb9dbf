package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cliptube/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndRotate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)

	user := newTestUser("alice", "alice@example.com")
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := newTestUser("alice", "other@example.com")
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}

	dup = newTestUser("someoneelse", "alice@example.com")
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	fetched, err := repo.FindByLogin(ctx, "alice")
	if err != nil {
		t.Fatalf("find by username: %v", err)
	}
	if fetched.ID != user.ID || fetched.Email != user.Email {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}
	if fetched.RefreshToken != nil {
		t.Fatalf("expected no refresh token on a fresh account, got %v", *fetched.RefreshToken)
	}

	if _, err := repo.FindByLogin(ctx, "alice@example.com"); err != nil {
		t.Fatalf("find by email: %v", err)
	}

	if _, err := repo.FindByLogin(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown login, got %v", err)
	}

	token := "signed-refresh-token"
	if err := repo.UpdateRefreshToken(ctx, user.ID, &token); err != nil {
		t.Fatalf("store refresh token: %v", err)
	}

	fetched, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.RefreshToken == nil || *fetched.RefreshToken != token {
		t.Fatalf("expected stored refresh token, got %+v", fetched.RefreshToken)
	}

	if err := repo.UpdateRefreshToken(ctx, user.ID, nil); err != nil {
		t.Fatalf("clear refresh token: %v", err)
	}

	fetched, err = repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id after clear: %v", err)
	}
	if fetched.RefreshToken != nil {
		t.Fatalf("expected cleared refresh token, got %v", *fetched.RefreshToken)
	}

	if err := repo.UpdateRefreshToken(ctx, uuid.NewString(), &token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}
}

func TestPostgresUserRepository_Updates(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "carol", "carol@example.com")

	updated, err := repo.UpdateDetails(ctx, user.ID, "Carol Renamed", "carol.renamed@example.com")
	if err != nil {
		t.Fatalf("update details: %v", err)
	}
	if updated.FullName != "Carol Renamed" || updated.Email != "carol.renamed@example.com" {
		t.Fatalf("expected updated fields, got %+v", updated)
	}

	other := createTestUser(t, repo, "dave", "dave@example.com")
	if _, err := repo.UpdateDetails(ctx, other.ID, "Dave", "carol.renamed@example.com"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken email, got %v", err)
	}

	updated, err = repo.UpdateAvatar(ctx, user.ID, "https://cdn.test/avatars/new.png")
	if err != nil {
		t.Fatalf("update avatar: %v", err)
	}
	if updated.AvatarURL != "https://cdn.test/avatars/new.png" {
		t.Fatalf("expected new avatar url, got %q", updated.AvatarURL)
	}

	updated, err = repo.UpdateCoverImage(ctx, user.ID, "https://cdn.test/covers/new.png")
	if err != nil {
		t.Fatalf("update cover image: %v", err)
	}
	if updated.CoverImageURL == nil || *updated.CoverImageURL != "https://cdn.test/covers/new.png" {
		t.Fatalf("expected new cover image url, got %+v", updated.CoverImageURL)
	}

	if err := repo.UpdatePassword(ctx, user.ID, "new-hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	fetched, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.Password != "new-hash" {
		t.Fatalf("expected rotated password hash, got %q", fetched.Password)
	}

	if _, err := repo.UpdateDetails(ctx, uuid.NewString(), "Ghost", "ghost@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestPostgresChannelRepository_Profile(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	channel := createTestUser(t, users, "channelowner", "owner@example.com")
	fan := createTestUser(t, users, "fan", "fan@example.com")
	lurker := createTestUser(t, users, "lurker", "lurker@example.com")

	subscribe(t, fan.ID, channel.ID)
	subscribe(t, channel.ID, fan.ID)

	repo := NewPostgresChannelRepository(testPool)

	profile, err := repo.Profile(ctx, "channelowner", &fan.ID)
	if err != nil {
		t.Fatalf("channel profile for subscriber: %v", err)
	}
	if profile.SubscribersCount != 1 {
		t.Fatalf("expected 1 subscriber, got %d", profile.SubscribersCount)
	}
	if profile.SubscribedToCount != 1 {
		t.Fatalf("expected channel subscribed to 1, got %d", profile.SubscribedToCount)
	}
	if !profile.IsSubscribed {
		t.Fatal("expected IsSubscribed true for subscriber viewer")
	}
	if profile.Username != "channelowner" || profile.Email != channel.Email {
		t.Fatalf("unexpected projection: %+v", profile)
	}

	profile, err = repo.Profile(ctx, "channelowner", &lurker.ID)
	if err != nil {
		t.Fatalf("channel profile for non-subscriber: %v", err)
	}
	if profile.IsSubscribed {
		t.Fatal("expected IsSubscribed false for non-subscriber viewer")
	}

	profile, err = repo.Profile(ctx, "ChannelOwner", nil)
	if err != nil {
		t.Fatalf("channel profile for anonymous viewer: %v", err)
	}
	if profile.IsSubscribed {
		t.Fatal("expected IsSubscribed false for anonymous viewer")
	}

	if _, err := repo.Profile(ctx, "nonexistentuser", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown channel, got %v", err)
	}
}

func TestPostgresChannelRepository_WatchHistory(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	viewer := createTestUser(t, users, "viewer", "viewer@example.com")
	owner := createTestUser(t, users, "creator", "creator@example.com")

	repo := NewPostgresChannelRepository(testPool)

	history, err := repo.WatchHistory(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("watch history for fresh user: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty slice, got %v", history)
	}

	first := createTestVideo(t, owner.ID, "First video")
	second := createTestVideo(t, owner.ID, "Second video")

	if err := repo.AddToWatchHistory(ctx, viewer.ID, first); err != nil {
		t.Fatalf("record first watch: %v", err)
	}
	if err := repo.AddToWatchHistory(ctx, viewer.ID, second); err != nil {
		t.Fatalf("record second watch: %v", err)
	}

	history, err = repo.WatchHistory(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("watch history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Title != "First video" || history[1].Title != "Second video" {
		t.Fatalf("expected watch order preserved, got %q then %q", history[0].Title, history[1].Title)
	}
	if history[0].Owner.Username != "creator" {
		t.Fatalf("expected collapsed owner projection, got %+v", history[0].Owner)
	}

	// Rewatching the first video moves it to the end.
	if err := repo.AddToWatchHistory(ctx, viewer.ID, first); err != nil {
		t.Fatalf("rewatch first video: %v", err)
	}
	history, err = repo.WatchHistory(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("watch history after rewatch: %v", err)
	}
	if len(history) != 2 || history[1].Title != "First video" {
		t.Fatalf("expected rewatched video at the end, got %+v", history)
	}

	if err := repo.AddToWatchHistory(ctx, viewer.ID, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown video, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE watch_history, videos, subscriptions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func newTestUser(username, email string) models.User {
	now := time.Now().UTC()
	return models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     email,
		FullName:  "Test User",
		Password:  "password-hash",
		AvatarURL: "https://cdn.test/avatars/default.png",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, username, email string) models.User {
	t.Helper()
	user := newTestUser(username, email)
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func subscribe(t *testing.T, subscriberID, channelID string) {
	t.Helper()
	_, err := testPool.Exec(context.Background(), `
        INSERT INTO subscriptions (id, subscriber_id, channel_id)
        VALUES ($1, $2, $3)
    `, uuid.NewString(), subscriberID, channelID)
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}
}

func createTestVideo(t *testing.T, ownerID, title string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := testPool.Exec(context.Background(), `
        INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration, views)
        VALUES ($1, $2, $3, '', $4, '', 0, 0)
    `, id, ownerID, title, "https://cdn.test/videos/"+id+".mp4")
	if err != nil {
		t.Fatalf("create test video: %v", err)
	}
	return id
}
