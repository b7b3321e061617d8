package transfer

// GraphIDResponse is returned by container creation, media_publish and photo posts.
type GraphIDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id,omitempty"`
}

// GraphContainerStatus is the body of GET /{container-id}?fields=status_code.
type GraphContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
	Status     string `json:"status,omitempty"`
}

type GraphTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
