package api

import (
	"context"
	"fmt"
	"net/http"
)

// Login exchanges credentials for a token. It never carries a bearer token,
// so a 401 here is a wrong password rather than a rejected session.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var out LoginResponse
	err := c.doJSON(ctx, request{
		method:    http.MethodPost,
		route:     "/api/auth/login",
		path:      "/api/auth/login",
		body:      map[string]string{"username": username, "password": password},
		anonymous: true,
	}, &out)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	return out, nil
}

func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	err := c.doJSON(ctx, request{
		method: http.MethodPost,
		route:  "/api/auth/change-password",
		path:   "/api/auth/change-password",
		body:   map[string]string{"old_password": oldPassword, "new_password": newPassword},
	}, nil)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	return nil
}

// Me returns the identity the server associates with the current token.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	var out Identity
	if err := c.doJSON(ctx, request{method: http.MethodGet, route: "/api/auth/me", path: "/api/auth/me"}, &out); err != nil {
		return Identity{}, fmt.Errorf("whoami: %w", err)
	}
	return out, nil
}
