package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/transfer"
)

var fastPoll = PollPolicy{Interval: time.Millisecond, MaxAttempts: 10}

type recorder struct {
	mu    sync.Mutex
	calls []string
	forms []map[string]string
}

func (r *recorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req.Method+" "+req.URL.Path)
	form := map[string]string{}
	if req.Method == http.MethodPost {
		if err := req.ParseForm(); err == nil {
			for k := range req.PostForm {
				form[k] = req.PostForm.Get(k)
			}
		}
	}
	r.forms = append(r.forms, form)
}

func (r *recorder) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

func imagePost() *models.ScheduledPost {
	img := "https://cdn.example.com/cat.jpg"
	body := "caption & more"
	return &models.ScheduledPost{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		BodyText: &body,
		ImageURL: &img,
		Status:   models.PostStatusScheduled,
	}
}

func metaConn() *models.PlatformConnection {
	return &models.PlatformConnection{Provider: models.ProviderMeta, AccessToken: "tok", AccountID: "1789"}
}

func TestInstagramDriver_Publish(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		switch r.URL.Path {
		case "/1789/media":
			fmt.Fprint(w, `{"id":"c-1"}`)
		case "/c-1":
			assert.Equal(t, "status_code", r.URL.Query().Get("fields"))
			assert.Equal(t, "tok", r.URL.Query().Get("access_token"))
			fmt.Fprint(w, `{"status_code":"FINISHED","id":"c-1"}`)
		case "/1789/media_publish":
			fmt.Fprint(w, `{"id":"m-1"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := NewInstagramDriver(srv.URL, srv.Client(), fastPoll)
	res, err := d.Publish(context.Background(), imagePost(), metaConn())
	require.NoError(t, err)
	assert.Equal(t, "m-1", res.PlatformPostID)

	assert.Equal(t, []string{"POST /1789/media", "GET /c-1", "POST /1789/media_publish"}, rec.calls)
	assert.Equal(t, "https://cdn.example.com/cat.jpg", rec.forms[0]["image_url"])
	assert.Equal(t, "caption & more", rec.forms[0]["caption"])
	assert.Equal(t, "tok", rec.forms[0]["access_token"])
	assert.Equal(t, "c-1", rec.forms[2]["creation_id"])
}

func TestInstagramDriver_PollTimeout(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		switch r.URL.Path {
		case "/1789/media":
			fmt.Fprint(w, `{"id":"c-1"}`)
		case "/c-1":
			fmt.Fprint(w, `{"status_code":"IN_PROGRESS"}`)
		default:
			fmt.Fprint(w, `{"id":"m-1"}`)
		}
	}))
	defer srv.Close()

	d := NewInstagramDriver(srv.URL, srv.Client(), fastPoll)
	res, err := d.Publish(context.Background(), imagePost(), metaConn())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrContainerTimeout)
	assert.NotErrorIs(t, err, ErrContainerFailed)

	assert.Equal(t, 10, rec.count("GET /c-1"))
	assert.Zero(t, rec.count("POST /1789/media_publish"))
}

func TestInstagramDriver_ContainerError(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		switch r.URL.Path {
		case "/1789/media":
			fmt.Fprint(w, `{"id":"c-1"}`)
		case "/c-1":
			fmt.Fprint(w, `{"status_code":"ERROR","status":"Error: unsupported aspect ratio"}`)
		}
	}))
	defer srv.Close()

	d := NewInstagramDriver(srv.URL, srv.Client(), fastPoll)
	_, err := d.Publish(context.Background(), imagePost(), metaConn())
	assert.ErrorIs(t, err, ErrContainerFailed)
	assert.NotErrorIs(t, err, ErrContainerTimeout)
	assert.Equal(t, 1, rec.count("GET /c-1"))
	assert.Zero(t, rec.count("POST /1789/media_publish"))
}

func TestInstagramDriver_CreateRejected(t *testing.T) {
	const body = `{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	d := NewInstagramDriver(srv.URL, srv.Client(), fastPoll)
	_, err := d.Publish(context.Background(), imagePost(), metaConn())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, body, apiErr.Body)
	assert.Contains(t, err.Error(), "Invalid OAuth access token.")
}

func TestDrivers_MissingImageMakesNoCalls(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
	}))
	defer srv.Close()

	drivers := []Driver{
		NewInstagramDriver(srv.URL, srv.Client(), fastPoll),
		NewFacebookDriver(srv.URL, srv.Client()),
		NewTiktokDriver(srv.URL, srv.Client(), fastPoll),
	}

	empty := ""
	for _, d := range drivers {
		for _, img := range []*string{nil, &empty} {
			post := imagePost()
			post.ImageURL = img

			res, err := d.Publish(context.Background(), post, metaConn())
			assert.Nil(t, res, d.Channel())
			assert.ErrorIs(t, err, ErrMissingImage, d.Channel())
		}
	}
	assert.Empty(t, rec.calls)
}

func TestFacebookDriver_Publish(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		fmt.Fprint(w, `{"id":"photo-9","post_id":"page_9"}`)
	}))
	defer srv.Close()

	res, err := NewFacebookDriver(srv.URL, srv.Client()).Publish(context.Background(), imagePost(), metaConn())
	require.NoError(t, err)
	assert.Equal(t, "page_9", res.PlatformPostID)
	assert.Equal(t, []string{"POST /1789/photos"}, rec.calls)
	assert.Equal(t, "https://cdn.example.com/cat.jpg", rec.forms[0]["url"])
	assert.Equal(t, "caption & more", rec.forms[0]["caption"])
}

func TestFacebookDriver_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"message":"(#200) permission denied"}}`)
	}))
	defer srv.Close()

	_, err := NewFacebookDriver(srv.URL, srv.Client()).Publish(context.Background(), imagePost(), metaConn())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "facebook", apiErr.Platform)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}

func TestTiktokDriver_Publish(t *testing.T) {
	var statusCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tt-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v2/post/publish/content/init/":
			var req transfer.PhotoUploadRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "PHOTO", req.MediaType)
			assert.Equal(t, "PULL_FROM_URL", req.SourceInfo.Source)
			assert.Equal(t, []string{"https://cdn.example.com/cat.jpg"}, req.SourceInfo.PhotoImages)
			fmt.Fprint(w, `{"data":{"publish_id":"p_pub_1"},"error":{"code":"ok","message":""}}`)
		case "/v2/post/publish/status/fetch/":
			statusCalls++
			if statusCalls < 2 {
				fmt.Fprint(w, `{"data":{"status":"PROCESSING_DOWNLOAD"},"error":{"code":"ok"}}`)
				return
			}
			fmt.Fprint(w, `{"data":{"status":"PUBLISH_COMPLETE","publicaly_available_post_id":[7345]},"error":{"code":"ok"}}`)
		}
	}))
	defer srv.Close()

	conn := &models.PlatformConnection{Provider: models.ProviderTiktok, AccessToken: "tt-token"}
	res, err := NewTiktokDriver(srv.URL, srv.Client(), fastPoll).Publish(context.Background(), imagePost(), conn)
	require.NoError(t, err)
	assert.Equal(t, "7345", res.PlatformPostID)
	assert.Equal(t, 2, statusCalls)
}

func TestTiktokDriver_InitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{},"error":{"code":"spam_risk_too_many_posts","message":"daily limit"}}`)
	}))
	defer srv.Close()

	conn := &models.PlatformConnection{Provider: models.ProviderTiktok, AccessToken: "tt-token"}
	_, err := NewTiktokDriver(srv.URL, srv.Client(), fastPoll).Publish(context.Background(), imagePost(), conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spam_risk_too_many_posts")
}

func TestTiktokDriver_PollTimeoutKeepsPublishID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/post/publish/content/init/":
			fmt.Fprint(w, `{"data":{"publish_id":"p_pub_2"},"error":{"code":"ok"}}`)
		default:
			fmt.Fprint(w, `{"data":{"status":"PROCESSING_DOWNLOAD"},"error":{"code":"ok"}}`)
		}
	}))
	defer srv.Close()

	conn := &models.PlatformConnection{Provider: models.ProviderTiktok, AccessToken: "tt-token"}
	_, err := NewTiktokDriver(srv.URL, srv.Client(), fastPoll).Publish(context.Background(), imagePost(), conn)
	assert.ErrorIs(t, err, ErrContainerTimeout)

	var pending *PendingPublishError
	require.ErrorAs(t, err, &pending)
	assert.Equal(t, "p_pub_2", pending.PublishID)
}

func TestPollUntilDone_CheckErrorStopsPolling(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := pollUntilDone(context.Background(), "test", fastPoll, func(context.Context) (bool, error) {
		calls++
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestPollUntilDone_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := pollUntilDone(ctx, "test", PollPolicy{Interval: time.Hour, MaxAttempts: 10}, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRegistry_For(t *testing.T) {
	ig := NewInstagramDriver("http://graph", nil, fastPoll)
	fb := NewFacebookDriver("http://graph", nil)
	r := NewRegistry(ig, fb)

	assert.Same(t, ig, r.For("Instagram"))
	assert.Same(t, ig, r.For(" INSTAGRAM "))
	assert.Same(t, fb, r.For("facebook"))

	d := r.For("linkedin")
	assert.False(t, IsSupported(d))
	_, err := d.Publish(context.Background(), imagePost(), metaConn())
	assert.ErrorIs(t, err, ErrUnsupportedChannel)

	assert.True(t, IsSupported(ig))
}

func TestMetaTokenRefresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/oauth/access_token", r.URL.Path)
		assert.Equal(t, "fb_exchange_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "old", r.URL.Query().Get("fb_exchange_token"))
		fmt.Fprint(w, `{"access_token":"new","token_type":"bearer","expires_in":5184000}`)
	}))
	defer srv.Close()

	tok, err := NewMetaTokenRefresher(srv.URL, "id", "secret", srv.Client()).
		Refresh(context.Background(), &models.PlatformConnection{AccessToken: "old"})
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
	assert.WithinDuration(t, time.Now().Add(60*24*time.Hour), tok.ExpiresAt, time.Minute)
}

func TestTiktokTokenRefresher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r-old", r.PostForm.Get("refresh_token"))
		fmt.Fprint(w, `{"access_token":"a-new","refresh_token":"r-new","expires_in":86400}`)
	}))
	defer srv.Close()

	refresher := NewTiktokTokenRefresher(srv.URL, "key", "secret", srv.Client())

	_, err := refresher.Refresh(context.Background(), &models.PlatformConnection{AccessToken: "a"})
	assert.Error(t, err)

	tok, err := refresher.Refresh(context.Background(), &models.PlatformConnection{AccessToken: "a", RefreshToken: "r-old"})
	require.NoError(t, err)
	assert.Equal(t, "a-new", tok.AccessToken)
	assert.Equal(t, "r-new", tok.RefreshToken)
}
