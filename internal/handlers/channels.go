package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/cliptube/backend/internal/logging"
	"github.com/cliptube/backend/internal/repositories"
)

// ChannelHandler serves the channel-profile and watch-history read models.
type ChannelHandler struct {
	Channels ChannelStore
}

// Profile handles GET /api/v1/channels/{username}. Anonymous requests
// are allowed; an authenticated viewer only changes the IsSubscribed flag.
func (h ChannelHandler) Profile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Channels == nil {
		logger.Error("channel store unavailable")
		respondError(ctx, w, http.StatusInternalServerError, "channel services unavailable")
		return
	}

	username := strings.TrimSpace(r.PathValue("username"))
	if username == "" {
		respondError(ctx, w, http.StatusBadRequest, "username is required")
		return
	}

	var viewerID *string
	if viewer, ok := CurrentUser(ctx); ok {
		viewerID = &viewer.ID
	}

	profile, err := h.Channels.Profile(ctx, username, viewerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("channel not found", "username", username)
			respondError(ctx, w, http.StatusNotFound, "channel does not exist")
			return
		}
		logger.Error("channel profile query failed", "error", err, "username", username)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load channel")
		return
	}

	respondData(ctx, w, http.StatusOK, profile, "channel profile")
}

type watchRequest struct {
	VideoID string `json:"videoId"`
}

// History handles GET and POST /api/v1/users/history: reading the
// resolved watch history and recording a newly watched video.
func (h ChannelHandler) History(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listHistory(w, r)
	case http.MethodPost:
		h.recordWatch(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h ChannelHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	profile, ok := CurrentUser(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	history, err := h.Channels.WatchHistory(ctx, profile.ID)
	if err != nil {
		logger.Error("watch history query failed", "error", err, "userId", profile.ID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load watch history")
		return
	}

	respondData(ctx, w, http.StatusOK, history, "watch history")
}

func (h ChannelHandler) recordWatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	profile, ok := CurrentUser(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized request")
		return
	}

	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid watch payload", "error", err)
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	videoID := strings.TrimSpace(req.VideoID)
	if videoID == "" {
		respondError(ctx, w, http.StatusBadRequest, "videoId is required")
		return
	}

	if err := h.Channels.AddToWatchHistory(ctx, profile.ID, videoID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			logger.Warn("watched video not found", "videoId", videoID)
			respondError(ctx, w, http.StatusNotFound, "video does not exist")
			return
		}
		logger.Error("failed to record watch", "error", err, "userId", profile.ID, "videoId", videoID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to record watch")
		return
	}

	respondData(ctx, w, http.StatusOK, struct{}{}, "watch recorded")
}
