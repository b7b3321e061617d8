package platform

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

// RefreshedToken holds plaintext tokens; the caller encrypts before storing.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type TokenRefresher interface {
	Provider() string
	Refresh(ctx context.Context, conn *models.PlatformConnection) (*RefreshedToken, error)
}

// MetaTokenRefresher exchanges a long-lived Graph token for a fresh one.
type MetaTokenRefresher struct {
	graphURL     string
	clientID     string
	clientSecret string
	http         requester
}

func NewMetaTokenRefresher(graphURL, clientID, clientSecret string, client *http.Client) *MetaTokenRefresher {
	return &MetaTokenRefresher{
		graphURL:     strings.TrimRight(graphURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         newRequester(models.ProviderMeta, client),
	}
}

func (r *MetaTokenRefresher) Provider() string { return models.ProviderMeta }

func (r *MetaTokenRefresher) Refresh(ctx context.Context, conn *models.PlatformConnection) (*RefreshedToken, error) {
	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", r.clientID)
	query.Set("client_secret", r.clientSecret)
	query.Set("fb_exchange_token", conn.AccessToken)

	var result transfer.GraphTokenResponse
	if err := r.http.get(ctx, "token exchange", r.graphURL+"/oauth/access_token", query, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, errors.New("meta token exchange returned no access token")
	}

	return &RefreshedToken{
		AccessToken: result.AccessToken,
		ExpiresAt:   expiresAt(int64(result.ExpiresIn)),
	}, nil
}

// TiktokTokenRefresher uses the OAuth refresh_token grant.
type TiktokTokenRefresher struct {
	apiURL       string
	clientKey    string
	clientSecret string
	http         requester
}

func NewTiktokTokenRefresher(apiURL, clientKey, clientSecret string, client *http.Client) *TiktokTokenRefresher {
	return &TiktokTokenRefresher{
		apiURL:       strings.TrimRight(apiURL, "/"),
		clientKey:    clientKey,
		clientSecret: clientSecret,
		http:         newRequester(models.ProviderTiktok, client),
	}
}

func (r *TiktokTokenRefresher) Provider() string { return models.ProviderTiktok }

func (r *TiktokTokenRefresher) Refresh(ctx context.Context, conn *models.PlatformConnection) (*RefreshedToken, error) {
	if conn.RefreshToken == "" {
		return nil, errors.New("tiktok connection has no refresh token")
	}

	form := url.Values{}
	form.Set("client_key", r.clientKey)
	form.Set("client_secret", r.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", conn.RefreshToken)

	var result transfer.TiktokTokenResponse
	if err := r.http.postForm(ctx, "token refresh", r.apiURL+"/v2/oauth/token/", form, &result); err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, errors.New("tiktok token refresh returned no access token")
	}

	return &RefreshedToken{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    expiresAt(int64(result.ExpiresIn)),
	}, nil
}

func expiresAt(expiresIn int64) time.Time {
	return time.Now().Add(time.Duration(expiresIn) * time.Second)
}
