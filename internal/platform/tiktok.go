package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	tiktokStatusComplete = "PUBLISH_COMPLETE"
	tiktokStatusFailed   = "FAILED"
	tiktokErrorOK        = "ok"
)

// TiktokDriver direct-posts a single photo pulled from the post's image url and
// polls the publish status until TikTok reports completion.
type TiktokDriver struct {
	apiURL string
	http   requester
	poll   PollPolicy
}

func NewTiktokDriver(apiURL string, client *http.Client, poll PollPolicy) *TiktokDriver {
	return &TiktokDriver{
		apiURL: strings.TrimRight(apiURL, "/"),
		http:   newRequester(models.ChannelTiktok, client),
		poll:   poll,
	}
}

func (d *TiktokDriver) Channel() string  { return models.ChannelTiktok }
func (d *TiktokDriver) Provider() string { return models.ProviderTiktok }

func (d *TiktokDriver) Publish(ctx context.Context, post *models.ScheduledPost, conn *models.PlatformConnection) (*models.PublishResult, error) {
	if !post.HasImage() {
		return nil, fmt.Errorf("tiktok photo posts require an image, post %s has none: %w", post.ID, ErrMissingImage)
	}

	request := transfer.PhotoUploadRequest{
		PostInfo: transfer.PhotoPostInfo{
			Description:  post.Caption(),
			PrivacyLevel: "PUBLIC_TO_EVERYONE",
			AutoAddMusic: true,
		},
		SourceInfo: transfer.PhotoSourceInfo{
			Source:          "PULL_FROM_URL",
			PhotoCoverIndex: 0,
			PhotoImages:     []string{*post.ImageURL},
		},
		PostMode:  "DIRECT_POST",
		MediaType: "PHOTO",
	}

	var initResp transfer.TiktokPublishResponse
	if err := d.http.postJSON(ctx, "publish init", d.apiURL+"/v2/post/publish/content/init/", conn.AccessToken, request, &initResp); err != nil {
		return nil, err
	}
	if initResp.Error.Code != "" && initResp.Error.Code != tiktokErrorOK {
		return nil, fmt.Errorf("tiktok publish init rejected: %s: %s", initResp.Error.Code, initResp.Error.Message)
	}
	publishID := initResp.Data.PublishID
	if publishID == "" {
		return nil, fmt.Errorf("no publish id returned from tiktok")
	}

	var postIDs []int64
	err := pollUntilDone(ctx, models.ChannelTiktok, d.poll, func(ctx context.Context) (bool, error) {
		var status transfer.TiktokStatusResponse
		body := transfer.TiktokStatusRequest{PublishID: publishID}
		if err := d.http.postJSON(ctx, "publish status", d.apiURL+"/v2/post/publish/status/fetch/", conn.AccessToken, body, &status); err != nil {
			return false, err
		}

		switch status.Data.Status {
		case tiktokStatusComplete:
			postIDs = status.Data.PubliclyAvailablePostIDs
			return true, nil
		case tiktokStatusFailed:
			return false, fmt.Errorf("%w: %s", ErrContainerFailed, status.Data.FailReason)
		default:
			return false, nil
		}
	})
	if errors.Is(err, ErrContainerTimeout) {
		return nil, &PendingPublishError{Platform: models.ChannelTiktok, PublishID: publishID, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("tiktok publish %s: %w", publishID, err)
	}

	result := &models.PublishResult{PlatformPostID: publishID}
	if len(postIDs) > 0 {
		result.PlatformPostID = strconv.FormatInt(postIDs[0], 10)
	}
	return result, nil
}
