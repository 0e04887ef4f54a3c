package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
)

// StatusError is returned when the API answers with an unexpected status code
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Message)
}

// IsNotFoundError returns true if the error indicates a 404 Not Found response.
func IsNotFoundError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// doGetJSON performs a GET request and unmarshals the JSON response into the result type.
func doGetJSON[T any](ctx context.Context, c *Client, endpoint string) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodGet, endpoint, nil, http.StatusOK)
}

// doPostJSON performs a POST request that accepts either 200 OK or 201 Created.
func doPostJSON[T any](ctx context.Context, c *Client, endpoint string, requestBody any) (*T, error) {
	return doRequestJSON[T](ctx, c, http.MethodPost, endpoint, requestBody, http.StatusOK, http.StatusCreated)
}

// doRequestJSON performs an HTTP request with a JSON body and response.
// If the response status doesn't match any of expectedStatuses, a *StatusError is returned.
func doRequestJSON[T any](ctx context.Context, c *Client, method, endpoint string, requestBody any, expectedStatuses ...int) (*T, error) {
	var bodyReader io.Reader
	if requestBody != nil {
		jsonBody, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("could not marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(endpoint), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req) //nolint:gosec // URL constructed from validated parsedURL via resolveURL
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer resp.Body.Close()

	if !slices.Contains(expectedStatuses, resp.StatusCode) {
		return nil, &StatusError{Code: resp.StatusCode, Message: readErrorBody(resp.Body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}

	var result T
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not unmarshal response: %w", err)
	}

	return &result, nil
}
