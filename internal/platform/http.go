package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxBodySize bounds how much of a platform response is kept in memory and in error messages.
const maxBodySize = 1 << 20

type requester struct {
	platform string
	client   *http.Client
}

func newRequester(platform string, client *http.Client) requester {
	if client == nil {
		client = http.DefaultClient
	}
	return requester{platform: platform, client: client}
}

func (r requester) postForm(ctx context.Context, op, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return r.do(req, op, out)
}

func (r requester) get(ctx context.Context, op, endpoint string, query url.Values, out any) error {
	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", op, err)
	}

	return r.do(req, op, out)
}

func (r requester) postJSON(ctx context.Context, op, endpoint, bearer string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling %s payload: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return r.do(req, op, out)
}

func (r requester) do(req *http.Request, op string, out any) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", r.platform, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("error reading %s response body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Platform:   r.platform,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("error parsing %s response: %w", op, err)
	}
	return nil
}
