package models

import "time"

// User represents an account within the ClipTube platform. Password and
// RefreshToken are persistence-only fields and never leave the service;
// API responses use the Profile projection instead.
type User struct {
	ID            string
	Username      string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL *string
	RefreshToken  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is the sanitized projection of a user that is safe to return
// to clients.
type Profile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	AvatarURL     string `json:"avatarUrl"`
	CoverImageURL string `json:"coverImageUrl,omitempty"`
}

// Sanitize strips credential material from a user record.
func (u User) Sanitize() Profile {
	p := Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
	}
	if u.CoverImageURL != nil {
		p.CoverImageURL = *u.CoverImageURL
	}
	return p
}

// TokenPair groups the bearer credentials issued to authenticated users.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Subscription is an edge between a subscriber and the channel they follow.
type Subscription struct {
	ID           string
	SubscriberID string
	ChannelID    string
	CreatedAt    time.Time
}

// ChannelProfile is the read model served for a channel page: the channel
// owner's public fields plus subscriber aggregates relative to the
// requesting viewer.
type ChannelProfile struct {
	FullName          string `json:"fullName"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	AvatarURL         string `json:"avatarUrl"`
	CoverImageURL     string `json:"coverImageUrl,omitempty"`
	SubscribersCount  int64  `json:"subscribersCount"`
	SubscribedToCount int64  `json:"channelSubscribedToCount"`
	IsSubscribed      bool   `json:"isSubscribed"`
}

// VideoOwner is the single-object owner projection embedded in watch
// history entries.
type VideoOwner struct {
	FullName  string `json:"fullName"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// WatchedVideo is one resolved entry of a user's watch history.
type WatchedVideo struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	VideoURL     string     `json:"videoUrl"`
	ThumbnailURL string     `json:"thumbnailUrl"`
	Duration     int64      `json:"duration"`
	Views        int64      `json:"views"`
	CreatedAt    time.Time  `json:"createdAt"`
	Owner        VideoOwner `json:"owner"`
}
