package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	applog "wiselib/api/internal/log"
	"wiselib/api/internal/models"
)

// SyncResult tells callers what happened to a mirror call to the legacy
// directory API. The local store stays authoritative either way.
type SyncResult struct {
	Attempted bool
	OK        bool
	Status    int
	Err       error
}

func (r SyncResult) String() string {
	switch {
	case !r.Attempted:
		return "skipped"
	case r.OK:
		return "ok"
	case r.Err != nil:
		return "failed: " + r.Err.Error()
	default:
		return fmt.Sprintf("failed: status %d", r.Status)
	}
}

type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client that skips every call when baseURL is empty.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

type userPayload struct {
	ID         string `json:"id"`
	FullName   string `json:"fullName"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	UserType   string `json:"userType"`
	Course     string `json:"course,omitempty"`
	YearLevel  string `json:"yearLevel,omitempty"`
	Section    string `json:"section,omitempty"`
	Department string `json:"department,omitempty"`
	IsActive   bool   `json:"isActive"`
}

func (c *Client) SyncUser(ctx context.Context, user models.User) SyncResult {
	return c.send(ctx, http.MethodPut, "/api/users/"+url.PathEscape(user.ID), userPayload{
		ID:         user.ID,
		FullName:   user.FullName,
		FirstName:  user.FirstName,
		LastName:   user.LastName,
		Email:      user.Email,
		UserType:   string(user.Type),
		Course:     user.Course,
		YearLevel:  user.YearLevel,
		Section:    user.Section,
		Department: user.Department,
		IsActive:   user.IsActive,
	})
}

func (c *Client) DeleteUser(ctx context.Context, userID string) SyncResult {
	return c.send(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(userID), nil)
}

func (c *Client) SyncPasswordReset(ctx context.Context, userID string) SyncResult {
	return c.send(ctx, http.MethodPost, "/auth/password-reset", map[string]string{"userId": userID})
}

func (c *Client) send(ctx context.Context, method string, path string, body any) SyncResult {
	if c == nil || c.baseURL == "" {
		return SyncResult{}
	}
	res := SyncResult{Attempted: true}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			res.Err = fmt.Errorf("encode body: %w", err)
			return res
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		res.Err = fmt.Errorf("build request: %w", err)
		return res
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	applog.Propagate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	res.Status = resp.StatusCode
	res.OK = resp.StatusCode >= 200 && resp.StatusCode < 300
	return res
}
