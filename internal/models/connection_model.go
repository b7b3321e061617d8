package models

import (
	"time"

	"github.com/google/uuid"
)

// PlatformConnection is a user's authorization to post through one provider.
// AccessToken and RefreshToken hold the encrypted values as stored.
type PlatformConnection struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	Provider       string     `db:"provider" json:"provider"`
	AccessToken    string     `db:"access_token" json:"-"`
	RefreshToken   string     `db:"refresh_token" json:"-"`
	AccountID      string     `db:"account_id" json:"account_id"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	TokenExpiresAt *time.Time `db:"token_expires_at" json:"token_expires_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	ProviderMeta   = "meta"
	ProviderTiktok = "tiktok"
)

const (
	ChannelInstagram = "instagram"
	ChannelFacebook  = "facebook"
	ChannelTiktok    = "tiktok"
)
