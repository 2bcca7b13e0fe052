// Package client talks to the license server from the licensed application:
// it validates a key for this device and keeps the session alive.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// ErrRejected is wrapped by *RejectedError
var ErrRejected = errors.New("license rejected")

// RejectedError is returned when the server answers 403: the key or session
// is no longer good for this device
type RejectedError struct {
	Reason  string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("license rejected: %s", e.Message)
	}
	return fmt.Sprintf("license rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// StatusError is any other non-2xx answer
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("license server returned %d: %s %s", e.StatusCode, e.Code, e.Message)
}

// Session is a granted validation
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Client calls the license endpoints of one server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type validateRequest struct {
	Key          string `json:"key"`
	Fingerprint  string `json:"fingerprint"`
	HardwareInfo any    `json:"hardware_info,omitempty"`
}

type licenseResponse struct {
	Valid     bool       `json:"valid"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at"`
	Reason    string     `json:"reason"`
	Message   string     `json:"message"`
	Error     string     `json:"error"`
}

// Validate presents key for this device. hardwareInfo is any value that
// encodes as a JSON object, or nil.
func (c *Client) Validate(ctx context.Context, key, fingerprint string, hardwareInfo any) (*Session, error) {
	body := validateRequest{Key: key, Fingerprint: fingerprint, HardwareInfo: hardwareInfo}

	resp, err := c.post(ctx, "/api/license/validate", "", body)
	if err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("license server granted validation without a token")
	}

	session := &Session{Token: resp.Token}
	if resp.ExpiresAt != nil {
		session.ExpiresAt = *resp.ExpiresAt
	}
	return session, nil
}

// Heartbeat reports that the session is still in use
func (c *Client) Heartbeat(ctx context.Context, token string) error {
	_, err := c.post(ctx, "/api/license/heartbeat", token, struct{}{})
	return err
}

func (c *Client) post(ctx context.Context, path, token string, body any) (*licenseResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("license server unreachable: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out licenseResponse
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("malformed response (status %d): %w", res.StatusCode, err)
		}
	}

	switch {
	case res.StatusCode == http.StatusForbidden:
		return nil, &RejectedError{Reason: out.Reason, Message: out.Message}
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, &StatusError{StatusCode: res.StatusCode, Code: out.Error, Message: out.Message}
	case !out.Valid:
		return nil, &RejectedError{Reason: out.Reason, Message: out.Message}
	}

	return &out, nil
}
