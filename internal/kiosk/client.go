package kiosk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wiselib/api/internal/scanner"
	"wiselib/api/internal/security"
)

// APIError is a non-2xx answer from the library API.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%d)", e.Code, e.Status)
}

type Visit struct {
	UserID      string     `json:"userId"`
	FullName    string     `json:"fullName"`
	Status      string     `json:"status"`
	ActionCount int        `json:"actionCount"`
	EnteredAt   time.Time  `json:"enteredAt"`
	ExitedAt    *time.Time `json:"exitedAt"`
}

type ScanResult struct {
	Action  string `json:"action"`
	Session Visit  `json:"session"`
}

// Client talks to the kiosk endpoints with signed requests.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secret     string
	deviceID   string
	now        func() time.Time
}

func NewClient(baseURL, secret, deviceID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secret:     secret,
		deviceID:   deviceID,
		now:        time.Now,
	}
}

// Verify asks the API who a decoded payload belongs to.
func (c *Client) Verify(ctx context.Context, payload string) (scanner.Match, error) {
	var match scanner.Match
	if err := c.post(ctx, "/kiosk/verify", map[string]string{"qrData": payload}, &match); err != nil {
		return scanner.Match{}, err
	}
	return match, nil
}

// Scan records an entry or an exit for the badge holder.
func (c *Client) Scan(ctx context.Context, payload string) (ScanResult, error) {
	var out ScanResult
	err := c.post(ctx, "/kiosk/scan", map[string]string{"qrData": payload}, &out)
	return out, err
}

// ScanID is Scan for visitors typing their id at the kiosk.
func (c *Client) ScanID(ctx context.Context, userID string) (ScanResult, error) {
	var out ScanResult
	err := c.post(ctx, "/kiosk/scan", map[string]string{"userId": userID}, &out)
	return out, err
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	security.SignRequest(req, c.secret, c.deviceID, raw, c.now())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
