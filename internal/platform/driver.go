package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
)

// Driver publishes one post to one destination platform. Drivers never touch the
// content store; conn carries the decrypted access token.
type Driver interface {
	Channel() string
	Provider() string
	Publish(ctx context.Context, post *models.ScheduledPost, conn *models.PlatformConnection) (*models.PublishResult, error)
}

// Unsupported stands in for channels without a driver. The orchestrator skips it.
type Unsupported struct {
	Name string
}

func (u Unsupported) Channel() string  { return u.Name }
func (u Unsupported) Provider() string { return "" }

func (u Unsupported) Publish(context.Context, *models.ScheduledPost, *models.PlatformConnection) (*models.PublishResult, error) {
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, u.Name)
}

// IsSupported reports whether d is a real driver rather than the Unsupported placeholder.
func IsSupported(d Driver) bool {
	_, unsupported := d.(Unsupported)
	return !unsupported
}

type Registry struct {
	drivers map[string]Driver
}

func NewRegistry(drivers ...Driver) *Registry {
	r := &Registry{drivers: make(map[string]Driver, len(drivers))}
	for _, d := range drivers {
		r.drivers[normalizeChannel(d.Channel())] = d
	}
	return r
}

// For returns the driver registered for channel, matched case-insensitively,
// or Unsupported when none is.
func (r *Registry) For(channel string) Driver {
	if d, ok := r.drivers[normalizeChannel(channel)]; ok {
		return d
	}
	return Unsupported{Name: channel}
}

func normalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}
