package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	containerStatusFinished = "FINISHED"
	containerStatusError    = "ERROR"
	containerStatusExpired  = "EXPIRED"
)

// InstagramDriver publishes through the Graph API container flow:
// create container, poll until FINISHED, then media_publish.
type InstagramDriver struct {
	graphURL string
	http     requester
	poll     PollPolicy
}

func NewInstagramDriver(graphURL string, client *http.Client, poll PollPolicy) *InstagramDriver {
	return &InstagramDriver{
		graphURL: strings.TrimRight(graphURL, "/"),
		http:     newRequester(models.ChannelInstagram, client),
		poll:     poll,
	}
}

func (d *InstagramDriver) Channel() string  { return models.ChannelInstagram }
func (d *InstagramDriver) Provider() string { return models.ProviderMeta }

func (d *InstagramDriver) Publish(ctx context.Context, post *models.ScheduledPost, conn *models.PlatformConnection) (*models.PublishResult, error) {
	if !post.HasImage() {
		return nil, fmt.Errorf("instagram posts require an image, post %s has none: %w", post.ID, ErrMissingImage)
	}

	containerID, err := d.createContainer(ctx, conn, *post.ImageURL, post.Caption())
	if err != nil {
		return nil, err
	}

	if err := d.waitForContainer(ctx, conn, containerID); err != nil {
		return nil, fmt.Errorf("instagram container %s: %w", containerID, err)
	}

	mediaID, err := d.publishContainer(ctx, conn, containerID)
	if err != nil {
		return nil, err
	}

	return &models.PublishResult{PlatformPostID: mediaID}, nil
}

func (d *InstagramDriver) createContainer(ctx context.Context, conn *models.PlatformConnection, imageURL, caption string) (string, error) {
	form := url.Values{}
	form.Set("image_url", imageURL)
	form.Set("caption", caption)
	form.Set("access_token", conn.AccessToken)

	var result transfer.GraphIDResponse
	endpoint := fmt.Sprintf("%s/%s/media", d.graphURL, url.PathEscape(conn.AccountID))
	if err := d.http.postForm(ctx, "create container", endpoint, form, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", fmt.Errorf("no container id returned from instagram")
	}
	return result.ID, nil
}

func (d *InstagramDriver) waitForContainer(ctx context.Context, conn *models.PlatformConnection, containerID string) error {
	endpoint := fmt.Sprintf("%s/%s", d.graphURL, url.PathEscape(containerID))
	query := url.Values{}
	query.Set("fields", "status_code")
	query.Set("access_token", conn.AccessToken)

	return pollUntilDone(ctx, models.ChannelInstagram, d.poll, func(ctx context.Context) (bool, error) {
		var status transfer.GraphContainerStatus
		if err := d.http.get(ctx, "container status", endpoint, query, &status); err != nil {
			return false, err
		}

		switch status.StatusCode {
		case containerStatusFinished:
			return true, nil
		case containerStatusError, containerStatusExpired:
			return false, fmt.Errorf("%w: status %s %s", ErrContainerFailed, status.StatusCode, status.Status)
		default:
			return false, nil
		}
	})
}

func (d *InstagramDriver) publishContainer(ctx context.Context, conn *models.PlatformConnection, containerID string) (string, error) {
	form := url.Values{}
	form.Set("creation_id", containerID)
	form.Set("access_token", conn.AccessToken)

	var result transfer.GraphIDResponse
	endpoint := fmt.Sprintf("%s/%s/media_publish", d.graphURL, url.PathEscape(conn.AccountID))
	if err := d.http.postForm(ctx, "publish container", endpoint, form, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}
