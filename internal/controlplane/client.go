package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is the narrow surface the engine needs from the external control
// plane. All calls go through the Resilient wrapper, never directly.
type Client interface {
	// CheckLiveness reports whether the backing instance is currently in a
	// running or starting state.
	CheckLiveness(ctx context.Context, instanceRef string) (bool, error)
	Suspend(ctx context.Context, instanceRef string) error
	Resume(ctx context.Context, instanceRef string) error
	Delete(ctx context.Context, instanceRef string) error
}

// StatusError is a non-2xx control plane response. 4xx codes are
// client/validation faults and are never retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("control plane responded %d: %s", e.Code, e.Body)
}

// IsClientFault reports whether err is a 4xx-class StatusError.
func IsClientFault(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 400 && se.Code < 500
}

// IsNotFound reports whether the control plane no longer knows the
// instance.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// HTTPClient talks to a Pterodactyl-style application API with a bearer
// token.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type instanceState struct {
	State string `json:"state"`
}

func (c *HTTPClient) CheckLiveness(ctx context.Context, instanceRef string) (bool, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/instances/"+instanceRef+"/state", nil)
	if err != nil {
		return false, err
	}
	var st instanceState
	if err := json.Unmarshal(body, &st); err != nil {
		return false, fmt.Errorf("decode instance state: %w", err)
	}
	switch st.State {
	case "running", "starting":
		return true, nil
	default:
		return false, nil
	}
}

func (c *HTTPClient) Suspend(ctx context.Context, instanceRef string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/instances/"+instanceRef+"/suspend", nil)
	return err
}

func (c *HTTPClient) Resume(ctx context.Context, instanceRef string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/instances/"+instanceRef+"/unsuspend", nil)
	return err
}

func (c *HTTPClient) Delete(ctx context.Context, instanceRef string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/instances/"+instanceRef, nil)
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read response %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
