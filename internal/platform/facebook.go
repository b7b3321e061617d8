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

// FacebookDriver posts a photo to a page in a single synchronous call.
type FacebookDriver struct {
	graphURL string
	http     requester
}

func NewFacebookDriver(graphURL string, client *http.Client) *FacebookDriver {
	return &FacebookDriver{
		graphURL: strings.TrimRight(graphURL, "/"),
		http:     newRequester(models.ChannelFacebook, client),
	}
}

func (d *FacebookDriver) Channel() string  { return models.ChannelFacebook }
func (d *FacebookDriver) Provider() string { return models.ProviderMeta }

func (d *FacebookDriver) Publish(ctx context.Context, post *models.ScheduledPost, conn *models.PlatformConnection) (*models.PublishResult, error) {
	if !post.HasImage() {
		return nil, fmt.Errorf("facebook photo posts require an image, post %s has none: %w", post.ID, ErrMissingImage)
	}

	form := url.Values{}
	form.Set("url", *post.ImageURL)
	form.Set("caption", post.Caption())
	form.Set("access_token", conn.AccessToken)

	var result transfer.GraphIDResponse
	endpoint := fmt.Sprintf("%s/%s/photos", d.graphURL, url.PathEscape(conn.AccountID))
	if err := d.http.postForm(ctx, "photo post", endpoint, form, &result); err != nil {
		return nil, err
	}

	id := result.PostID
	if id == "" {
		id = result.ID
	}
	return &models.PublishResult{PlatformPostID: id}, nil
}
