package models

import (
	"time"

	"github.com/google/uuid"
)

type ScheduledPost struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"user_id"`
	BodyText    *string    `db:"body_text" json:"body_text"`
	ImageURL    *string    `db:"image_url" json:"image_url"`
	Channel     string     `db:"channel" json:"channel"` // channels.name
	Status      string     `db:"status" json:"status"`   // scheduled, published, failed
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	PublishedAt *time.Time `db:"published_at" json:"published_at"`
}

// Caption returns the body text, or an empty caption when the post has none.
func (p *ScheduledPost) Caption() string {
	if p.BodyText == nil {
		return ""
	}
	return *p.BodyText
}

// HasImage reports whether the post carries a non-empty image URL.
func (p *ScheduledPost) HasImage() bool {
	return p.ImageURL != nil && *p.ImageURL != ""
}

const (
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
)
