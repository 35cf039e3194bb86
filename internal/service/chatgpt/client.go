package chatgpt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/chat-search/internal/model"
	"github.com/nhle/chat-search/internal/service"
)

// DefaultBaseURL is the root of the chatgpt.com backend API.
const DefaultBaseURL = "https://chatgpt.com/backend-api"

// Client is a thin HTTP client for the chatgpt.com backend API. It
// authenticates with the session cookie header handed in per request and
// retries with exponential backoff on HTTP 429.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a new chatgpt.com HTTP client. An empty baseURL
// selects DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}
}

// Get performs an HTTP GET request with the given cookie header and
// unmarshals the JSON response into result.
func (c *Client) Get(
	ctx context.Context,
	creds service.Credentials,
	path string,
	result interface{},
) error {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet, url, nil,
		)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Cookie", string(creds))
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &service.NetworkError{
				Service: model.ServiceChatGPT,
				Message: fmt.Sprintf("GET %s: %v", path, err),
			}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			waitDuration := retryAfterDuration(resp, attempt)
			lastErr = fmt.Errorf("rate limited (429) on GET %s", path)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized ||
			resp.StatusCode == http.StatusForbidden {
			return &service.AuthError{
				Service: model.ServiceChatGPT,
				Message: fmt.Sprintf(
					"session rejected (%d): sign in to chatgpt.com again",
					resp.StatusCode,
				),
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &service.NetworkError{
				Service:    model.ServiceChatGPT,
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("GET %s", path),
			}
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf(
				"unmarshaling response from GET %s: %w", path, err,
			)
		}

		return nil
	}

	return fmt.Errorf(
		"max retries (%d) exceeded: %w", c.maxRetries, lastErr,
	)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
