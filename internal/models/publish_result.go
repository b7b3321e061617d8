package models

// PublishResult is what a platform driver hands back for a post it published.
type PublishResult struct {
	PlatformPostID string
}
