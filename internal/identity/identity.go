package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUserNotFound is returned when the identity provider has no user for the
// given id or token.
var ErrUserNotFound = errors.New("identity: user not found")

// User is the subset of the identity provider's user object this service needs.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// UserLookup resolves users against the identity provider. UserFromToken is
// used by checkout initiation; UserByID is the email-resolution fallback in
// payment reconciliation.
type UserLookup interface {
	UserFromToken(ctx context.Context, accessToken string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
}

// Client talks to a Supabase-style auth REST API. The anon key authorizes
// token introspection; the service-role key authorizes admin user lookups.
type Client struct {
	baseURL    string
	anonKey    string
	serviceKey string
	client     *http.Client
}

func NewClient(baseURL, anonKey, serviceKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) UserFromToken(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrUserNotFound
	}
	return c.getUser(ctx, c.baseURL+"/auth/v1/user", c.anonKey, accessToken)
}

func (c *Client) UserByID(ctx context.Context, id string) (*User, error) {
	if id == "" {
		return nil, ErrUserNotFound
	}
	endpoint := c.baseURL + "/auth/v1/admin/users/" + url.PathEscape(id)
	return c.getUser(ctx, endpoint, c.serviceKey, c.serviceKey)
}

func (c *Client) getUser(ctx context.Context, endpoint, apiKey, bearer string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("identity: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("identity: decode response: %w", err)
	}
	if user.ID == "" {
		return nil, ErrUserNotFound
	}
	return &user, nil
}
