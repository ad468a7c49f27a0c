// Package client is the Go SDK for the notification service: an HTTP API
// client, a websocket subscription with reconnects, and a Cache that keeps
// the unread badge and notification pages reconciled between push and poll.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/anonto42/nano-midea/notifications/internal/models"
)

// TokenSource returns the bearer token of the signed-in user.
type TokenSource func() string

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notifications api: %d %s", e.Status, e.Message)
}

// IsAuthError reports whether err means the session is no longer valid.
func IsAuthError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}

// Notification is one entry of the notification list.
type Notification struct {
	ID          uint                    `json:"id"`
	RecipientID uint                    `json:"recipient_id"`
	Type        models.NotificationType `json:"type"`
	Data        models.NotificationData `json:"data"`
	ReadAt      *time.Time              `json:"read_at"`
	CreatedAt   time.Time               `json:"created_at"`
}

// Page is one page of the caller's notifications, newest first.
type Page struct {
	Items           []Notification
	CurrentPage     int
	TotalPages      int
	TotalItems      int64
	ItemsPerPage    int
	HasNextPage     bool
	HasPreviousPage bool
	Cursor          uint
}

type APIClient struct {
	baseURL string
	token   TokenSource
	http    *http.Client
}

func NewAPIClient(baseURL string, token TokenSource, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &APIClient{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// List fetches one page. A zero before lets the server pick the cursor,
// which is returned in Page.Cursor.
func (c *APIClient) List(ctx context.Context, page, limit int, before uint) (*Page, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before > 0 {
		q.Set("before", strconv.FormatUint(uint64(before), 10))
	}

	var body struct {
		Data struct {
			Notifications []Notification `json:"notifications"`
		} `json:"data"`
		Meta struct {
			CurrentPage     int   `json:"currentPage"`
			TotalPages      int   `json:"totalPages"`
			TotalItems      int64 `json:"totalItems"`
			ItemsPerPage    int   `json:"itemsPerPage"`
			HasNextPage     bool  `json:"hasNextPage"`
			HasPreviousPage bool  `json:"hasPreviousPage"`
			Cursor          uint  `json:"cursor"`
		} `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	return &Page{
		Items:           body.Data.Notifications,
		CurrentPage:     body.Meta.CurrentPage,
		TotalPages:      body.Meta.TotalPages,
		TotalItems:      body.Meta.TotalItems,
		ItemsPerPage:    body.Meta.ItemsPerPage,
		HasNextPage:     body.Meta.HasNextPage,
		HasPreviousPage: body.Meta.HasPreviousPage,
		Cursor:          body.Meta.Cursor,
	}, nil
}

func (c *APIClient) UnreadCount(ctx context.Context) (int64, error) {
	var body struct {
		Data struct {
			Count int64 `json:"count"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/notifications/unread-count", &body); err != nil {
		return 0, err
	}
	return body.Data.Count, nil
}

func (c *APIClient) MarkAllRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/notifications/read-all", nil)
}

func (c *APIClient) MarkRead(ctx context.Context, id uint) (bool, error) {
	var body struct {
		Data struct {
			Updated bool `json:"updated"`
		} `json:"data"`
	}
	path := "/api/v1/notifications/" + strconv.FormatUint(uint64(id), 10) + "/read"
	if err := c.do(ctx, http.MethodPut, path, &body); err != nil {
		return false, err
	}
	return body.Data.Updated, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Message string `json:"message"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) != nil || e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
