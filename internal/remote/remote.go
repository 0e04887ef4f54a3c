// Package remote implements the attendance, employee and settings stores
// on top of the attendance admin HTTP API.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BackendName is the DATABASE_BACKEND value selecting this package.
const BackendName = "remote"

// Client is an authenticated client of the admin API
type Client struct {
	URL        string
	parsedURL  *url.URL
	httpClient *http.Client
	token      string
	company    string
	userID     int64
}

// loginResponse fields are unexported with explicit JSON decoding to keep the token out of logs and dumps
type loginResponse struct {
	token   string
	company string
	userID  int64
}

func (l *loginResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal login response: %w", err)
	}
	_ = json.Unmarshal(raw["access_token"], &l.token)
	_ = json.Unmarshal(raw["company"], &l.company)
	_ = json.Unmarshal(raw["user_id"], &l.userID)
	return nil
}

// NewClient creates a client for the API at rawURL (the "/api/v1" suffix is added) and logs in.
func NewClient(ctx context.Context, rawURL, email, password string, timeout time.Duration) (*Client, error) {
	c, err := NewClientFromToken(rawURL, "", timeout)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx, email, password); err != nil {
		return nil, fmt.Errorf("could not authenticate: %w", err)
	}
	return c, nil
}

// NewClientFromToken creates a client from an existing access token
func NewClientFromToken(rawURL, token string, timeout time.Duration) (*Client, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("API URL is required")
	}
	apiURL := strings.TrimSuffix(rawURL, "/") + "/api/v1"
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		URL:        apiURL,
		parsedURL:  parsed,
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}, nil
}

// resolveURL builds a full URL from the base API URL and the given path segments.
// A query string in the last segment is kept.
func (c *Client) resolveURL(pathSegments ...string) string {
	if len(pathSegments) == 0 {
		return c.parsedURL.String()
	}
	last := pathSegments[len(pathSegments)-1]
	if pathPart, query, ok := strings.Cut(last, "?"); ok {
		pathSegments[len(pathSegments)-1] = pathPart
		result := c.parsedURL.JoinPath(pathSegments...)
		result.RawQuery = query
		return result.String()
	}
	return c.parsedURL.JoinPath(pathSegments...).String()
}

// Login authenticates with admin credentials and stores the access token
func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	result, err := doRequestJSON[loginResponse](ctx, c, http.MethodPost, "auth/admin/login", body, http.StatusOK)
	if err != nil {
		return err
	}
	if result.token == "" {
		return fmt.Errorf("login response did not contain an access token")
	}
	c.token = result.token
	c.company = result.company
	c.userID = result.userID
	return nil
}

// Authenticated reports whether the client holds an access token
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// Company returns the company of the logged-in admin
func (c *Client) Company() string {
	return c.company
}

// readErrorBody reads the response body for error messages.
func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "(could not read error body)"
	}
	// error bodies look like {"detail": "..."}
	var detail struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
		return detail.Detail
	}
	return string(body)
}
