package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"campuspresence/internal/auth"
	"campuspresence/internal/models"
)

// ErrUnauthorized marks a 401/403 response. Callers must treat it as fatal
// for their retry loop: an expired credential fails every subsequent request
// the same way.
var ErrUnauthorized = errors.New("unauthorized")

// Client is the HTTP client for the campus location REST endpoints
type Client struct {
	baseURL string
	cred    *auth.Credential
	http    *http.Client
}

// NewClient creates a client for the given base URL and bearer credential
func NewClient(baseURL string, cred *auth.Credential, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		cred:    cred,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchRoomSnapshot retrieves the current roster snapshot for a room
func (c *Client) FetchRoomSnapshot(ctx context.Context, roomID string) ([]models.SnapshotEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/rooms/%s/locations", c.baseURL, roomID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload models.SnapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot response: %w", err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("snapshot fetch rejected: %s", payload.Message)
	}

	return payload.Data, nil
}

// PushLocation delivers one fix to a room destination
func (c *Client) PushLocation(ctx context.Context, push models.LocationPush) error {
	return c.post(ctx, "/location/update", push)
}

// PushGuardianLocation delivers one fix to the guardian channel
func (c *Client) PushGuardianLocation(ctx context.Context, push models.LocationPush) error {
	return c.post(ctx, "/location/guardian-update", push)
}

// post sends a JSON body and reads only the status code, which is all the
// push endpoints promise
func (c *Client) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// do attaches the bearer credential, sends the request and maps the status
// code. 401/403 become ErrUnauthorized so callers can tell an expired
// credential apart from a transport failure.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", c.cred.BearerHeader())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned %d: %w", req.URL.Path, resp.StatusCode, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("%s returned status %d", req.URL.Path, resp.StatusCode)
	}

	return resp, nil
}
