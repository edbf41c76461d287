// Package emby talks to one Emby server: a request/response REST gateway and
// a persistent websocket event stream, both authenticated with the same API
// key.
package emby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"embymirror/internal/httputil"
	"embymirror/internal/models"
)

// ErrInvalidAuth means the API key was rejected. Not retried; new
// credentials are required.
var ErrInvalidAuth = errors.New("invalid API key")

// ErrCannotConnect wraps transport and timeout failures.
var ErrCannotConnect = errors.New("cannot connect")

// Connection describes one Emby server. Immutable after construction.
type Connection struct {
	Host     string
	Port     int
	APIKey   string
	SSL      bool
	DeviceID string
}

// BaseURL returns the http(s) root for REST calls.
func (c Connection) BaseURL() string {
	scheme := "http"
	if c.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Identity is returned by Connect for display and deduplication.
type Identity struct {
	Title    string `json:"title"`
	UniqueID string `json:"unique_id"`
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter

	serverName string
	systemID   string
	userID     string
}

// New builds a Client for conn. The http.Client is supplied by the caller so
// the transport pool can be shared with the rest of the application; pass
// nil for a default client with a 10 second timeout.
func New(conn Connection, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = httputil.NewClient()
	}
	return &Client{
		baseURL: conn.BaseURL(),
		apiKey:  conn.APIKey,
		client:  httpClient,
		limiter: rate.NewLimiter(50, 100),
	}
}

// NewWithBaseURL builds a Client against an explicit base URL with the rate
// limiter disabled. Used by tests.
func NewWithBaseURL(baseURL, apiKey string, httpClient *http.Client) *Client {
	c := New(Connection{APIKey: apiKey}, httpClient)
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.limiter = rate.NewLimiter(rate.Inf, 0)
	return c
}

// Request performs one authenticated API call. A 401 yields ErrInvalidAuth
// and a transport failure wraps ErrCannotConnect; both abort the caller. Any
// other non-2xx status, a 204, and an undecodable body all yield a nil
// result without an error, so one failed endpoint during a fan-out does not
// abort its siblings.
func (c *Client) Request(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}
	defer httputil.DrainBody(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidAuth
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotConnect, err)
	}

	if resp.StatusCode >= 400 {
		log.Printf("emby: %s %s returned %d: %s", method, path, resp.StatusCode, httputil.Truncate(data, 200))
		return nil, nil
	}

	if len(data) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		log.Printf("emby: %s %s returned undecodable body", method, path)
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// Connect validates the connection and captures the server identity. It also
// resolves a user id for user-scoped library queries: the first session that
// carries one, falling back to the hidden-users list.
func (c *Client) Connect(ctx context.Context) (Identity, error) {
	raw, err := c.Request(ctx, http.MethodGet, "System/Info", nil, nil)
	if err != nil {
		return Identity{}, err
	}
	if raw == nil {
		return Identity{}, fmt.Errorf("%w: no system info", ErrCannotConnect)
	}

	var info models.SystemInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return Identity{}, fmt.Errorf("parsing system info: %w", err)
	}
	if info.Name == "" {
		info.Name = "Emby Server"
	}
	c.serverName = info.Name
	c.systemID = info.ID

	if err := c.resolveUserID(ctx); err != nil {
		return Identity{}, err
	}

	return Identity{Title: c.serverName, UniqueID: c.systemID}, nil
}

func (c *Client) resolveUserID(ctx context.Context) error {
	sessions, err := c.GetSessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.UserID != "" {
			c.userID = s.UserID
			return nil
		}
	}

	raw, err := c.Request(ctx, http.MethodGet, "Users", url.Values{"IsHidden": {"true"}}, nil)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	var page struct {
		Items []struct {
			ID string `json:"Id"`
		} `json:"Items"`
	}
	if err := json.Unmarshal(raw, &page); err == nil && len(page.Items) > 0 {
		c.userID = page.Items[0].ID
	}
	return nil
}

func (c *Client) ServerName() string { return c.serverName }
func (c *Client) BaseURL() string    { return c.baseURL }

// GetSystemInfo fetches System/Info. A dropped request yields a zero value.
func (c *Client) GetSystemInfo(ctx context.Context) (models.SystemInfo, error) {
	raw, err := c.Request(ctx, http.MethodGet, "System/Info", nil, nil)
	if err != nil || raw == nil {
		return models.SystemInfo{}, err
	}
	var info models.SystemInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return models.SystemInfo{}, fmt.Errorf("parsing system info: %w", err)
	}
	return info, nil
}

// GetSessions fetches the active session list.
func (c *Client) GetSessions(ctx context.Context) ([]models.Session, error) {
	raw, err := c.Request(ctx, http.MethodGet, "Sessions", nil, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	var sessions []models.Session
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, fmt.Errorf("parsing sessions: %w", err)
	}
	return sessions, nil
}

// View is one top-level collection folder.
type View struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType"`
}

// GetViews fetches the user's top-level library folders. Returns nil when no
// user id could be resolved, matching servers with no visible users.
func (c *Client) GetViews(ctx context.Context) ([]View, error) {
	if c.userID == "" {
		return nil, nil
	}
	raw, err := c.Request(ctx, http.MethodGet, "Users/"+c.userID+"/Views", nil, nil)
	if err != nil || raw == nil {
		return nil, err
	}
	var page struct {
		Items []View `json:"Items"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("parsing views: %w", err)
	}
	return page.Items, nil
}

// ItemsPage is one page of a Users/{id}/Items query.
type ItemsPage struct {
	Items            []models.LatestItem `json:"Items"`
	TotalRecordCount int                 `json:"TotalRecordCount"`
}

// GetItems runs a user-scoped item query with the given filter/sort/paging
// parameters.
func (c *Client) GetItems(ctx context.Context, query url.Values) (ItemsPage, error) {
	if c.userID == "" {
		return ItemsPage{}, nil
	}
	raw, err := c.Request(ctx, http.MethodGet, "Users/"+c.userID+"/Items", query, nil)
	if err != nil || raw == nil {
		return ItemsPage{}, err
	}
	var page ItemsPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return ItemsPage{}, fmt.Errorf("parsing items: %w", err)
	}
	return page, nil
}

// GetLiveTVChannels fetches up to limit channels with their currently airing
// program, plus the server's total channel count.
func (c *Client) GetLiveTVChannels(ctx context.Context, limit int) ([]models.Channel, int, error) {
	query := url.Values{
		"Limit":        {fmt.Sprint(limit)},
		"EnableImages": {"false"},
	}
	raw, err := c.Request(ctx, http.MethodGet, "LiveTv/Channels", query, nil)
	if err != nil || raw == nil {
		return nil, 0, err
	}
	var page struct {
		Items []struct {
			Name           string `json:"Name"`
			CurrentProgram struct {
				Name string `json:"Name"`
			} `json:"CurrentProgram"`
		} `json:"Items"`
		TotalRecordCount int `json:"TotalRecordCount"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, 0, fmt.Errorf("parsing channels: %w", err)
	}
	channels := make([]models.Channel, 0, len(page.Items))
	for _, ch := range page.Items {
		name := ch.Name
		if name == "" {
			name = "Unknown"
		}
		program := ch.CurrentProgram.Name
		if program == "" {
			program = "Off Air"
		}
		channels = append(channels, models.Channel{Name: name, Program: program})
	}
	return channels, page.TotalRecordCount, nil
}

// ArtworkURL builds the image URL for an item.
func (c *Client) ArtworkURL(itemID, kind string, maxHeight int) string {
	if kind == "" {
		kind = "Primary"
	}
	return fmt.Sprintf("%s/Items/%s/Images/%s?maxHeight=%d&Quality=90", c.baseURL, itemID, kind, maxHeight)
}
