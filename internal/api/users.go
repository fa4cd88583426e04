package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out struct {
		Users []User `json:"users"`
	}
	if err := c.doJSON(ctx, request{method: http.MethodGet, route: "/api/auth/users", path: "/api/auth/users"}, &out); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out.Users, nil
}

func (c *Client) CreateUser(ctx context.Context, in UserInput) error {
	if err := c.doJSON(ctx, request{method: http.MethodPost, route: "/api/auth/users", path: "/api/auth/users", body: in}, nil); err != nil {
		return fmt.Errorf("create user %s: %w", in.Username, err)
	}
	return nil
}

func (c *Client) DeleteUser(ctx context.Context, username string) error {
	err := c.doJSON(ctx, request{
		method: http.MethodDelete,
		route:  "/api/auth/users/{username}",
		path:   "/api/auth/users/" + url.PathEscape(username),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", username, err)
	}
	return nil
}
