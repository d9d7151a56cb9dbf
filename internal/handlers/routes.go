package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	users := UserHandler{
		Users:   deps.Users,
		Tokens:  deps.Tokens,
		Media:   deps.Media,
		Limiter: deps.AuthLimiter,
	}
	channels := ChannelHandler{Channels: deps.Channels}

	requireAuth := func(next http.HandlerFunc) http.HandlerFunc {
		return RequireAuth(deps.Users, deps.Tokens, next)
	}

	mux.HandleFunc("/healthz", health.Handle)

	mux.HandleFunc("/api/v1/users/register", users.Register)
	mux.HandleFunc("/api/v1/users/login", users.Login)
	mux.HandleFunc("/api/v1/users/refresh", users.Refresh)
	mux.HandleFunc("/api/v1/users/logout", requireAuth(users.Logout))
	mux.HandleFunc("/api/v1/users/password", requireAuth(users.ChangePassword))
	mux.HandleFunc("/api/v1/users/me", requireAuth(users.Me))
	mux.HandleFunc("/api/v1/users/account", requireAuth(users.UpdateAccount))
	mux.HandleFunc("/api/v1/users/avatar", requireAuth(users.UpdateAvatar))
	mux.HandleFunc("/api/v1/users/cover", requireAuth(users.UpdateCoverImage))
	mux.HandleFunc("/api/v1/users/history", requireAuth(channels.History))

	mux.HandleFunc("/api/v1/channels/{username}", OptionalAuth(deps.Users, deps.Tokens, channels.Profile))
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Users       UserStore
	Channels    ChannelStore
	Tokens      TokenService
	Media       AssetStorage
	AuthLimiter RateLimiter
}
