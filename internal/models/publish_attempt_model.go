package models

import (
	"time"

	"github.com/google/uuid"
)

// PublishAttempt records one driver call for a post and how it ended.
type PublishAttempt struct {
	ID             int64     `db:"id" json:"id"`
	PostID         uuid.UUID `db:"post_id" json:"post_id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	Channel        string    `db:"channel" json:"channel"`
	PlatformPostID string    `db:"platform_post_id" json:"platform_post_id"`
	ErrorMessage   string    `db:"error_message" json:"error_message"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
