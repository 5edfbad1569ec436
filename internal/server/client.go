package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the control API of a running agent.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the agent listening on address, given as
// host:port or as a full URL.
func NewClient(address string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := address
	if u, err := url.Parse(address); err != nil || u.Scheme == "" || u.Host == "" {
		baseURL = "http://" + address
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) Kick(ctx context.Context) (bool, error) {
	var resp KickResponse
	if err := c.do(ctx, http.MethodPost, KickPath, nil, http.StatusOK, &resp); err != nil {
		return false, err
	}
	return resp.Accepted, nil
}

func (c *Client) MaxKick(ctx context.Context, duration time.Duration) error {
	query := url.Values{durationParam: []string{duration.String()}}
	return c.do(ctx, http.MethodPost, MaxKickPath, query, http.StatusNoContent, nil)
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.do(ctx, http.MethodGet, StatusPath, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, expected int, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expected {
		var apiErr errorResponse
		body, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
