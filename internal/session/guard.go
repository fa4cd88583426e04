package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"kmlc/internal/api"
	"kmlc/internal/credstore"
	"kmlc/internal/logging"
)

// Storage keys holding the credential.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Guard manages the credential lifecycle and admission decisions.
type Guard struct {
	store  credstore.Store
	client *api.Client
	logger *slog.Logger

	mu          sync.Mutex
	revoked     chan struct{}
	revokedDone bool
}

// New wires a Guard to its storage. The supplied client is copied and bound to
// the guard so its requests carry the stored token.
func New(store credstore.Store, client *api.Client, logger *slog.Logger) *Guard {
	g := &Guard{
		store:   store,
		logger:  logging.NewComponentLogger(logger, "session"),
		revoked: make(chan struct{}),
	}
	g.client = client.WithSession(g)
	if _, ok := g.Current(); !ok {
		close(g.revoked)
		g.revokedDone = true
	}
	return g
}

// Client returns the API client authenticated through this guard.
func (g *Guard) Client() *api.Client { return g.client }

// Authenticate logs in and persists the credential. Failed logins are never retried.
func (g *Guard) Authenticate(ctx context.Context, username, password string) (Credential, error) {
	resp, err := g.client.Login(ctx, username, password)
	if err != nil {
		if code := api.StatusCode(err); code >= 400 && code < 500 {
			return Credential{}, &AuthError{Kind: InvalidCredentials, Detail: api.Detail(err)}
		}
		return Credential{}, err
	}

	cred := Credential{
		Token: resp.AccessToken,
		Identity: Identity{
			Username:           resp.User.Username,
			Role:               Role(resp.User.Role),
			MustChangePassword: resp.User.MustChangePassword,
		},
	}
	if err := g.persist(ctx, cred); err != nil {
		return Credential{}, err
	}

	g.mu.Lock()
	if g.revokedDone {
		g.revoked = make(chan struct{})
		g.revokedDone = false
	}
	g.mu.Unlock()

	g.logger.Info("signed in",
		logging.String(logging.FieldUsername, cred.Identity.Username),
		logging.String("role", string(cred.Identity.Role)),
		logging.Bool("must_change_password", cred.Identity.MustChangePassword),
	)
	return cred, nil
}

func (g *Guard) persist(ctx context.Context, cred Credential) error {
	user, err := json.Marshal(cred.Identity)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := g.store.SetMany(ctx, map[string]string{KeyToken: cred.Token, KeyUser: string(user)}); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// Current returns the stored credential without touching the network.
func (g *Guard) Current() (Credential, bool) {
	ctx := context.Background()
	token, ok, err := g.store.Get(ctx, KeyToken)
	if err != nil || !ok || token == "" {
		return Credential{}, false
	}
	raw, ok, err := g.store.Get(ctx, KeyUser)
	if err != nil || !ok {
		return Credential{}, false
	}
	var identity Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		g.logger.Warn("stored user record unreadable", logging.Error(err))
		return Credential{}, false
	}
	return Credential{Token: token, Identity: identity}, true
}

// Require decides whether a command with the given requirements may run.
func (g *Guard) Require(req Requirements) Decision {
	cred, ok := g.Current()
	switch {
	case !ok:
		return RedirectLogin
	case cred.Identity.MustChangePassword:
		return RedirectChangePassword
	case req.RequireAdmin && !cred.IsAdmin():
		return RedirectHome
	default:
		return Admit
	}
}

// ChangePassword validates locally, submits the change, and signs out on
// success so the next command forces a fresh login.
func (g *Guard) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error {
	if newPassword != confirm {
		return &AuthError{Kind: Mismatch}
	}
	if len(newPassword) < MinPasswordLength {
		return &AuthError{Kind: TooShort}
	}

	if err := g.client.ChangePassword(ctx, oldPassword, newPassword); err != nil {
		code := api.StatusCode(err)
		if code >= 400 && code < 500 && code != http.StatusUnauthorized {
			return &AuthError{Kind: InvalidCredentials, Detail: api.Detail(err)}
		}
		return err
	}

	g.logger.Info("password changed; signing out")
	return g.clear()
}

// Whoami asks the server which identity the stored token belongs to.
func (g *Guard) Whoami(ctx context.Context) (api.Identity, error) {
	return g.client.Me(ctx)
}

// BearerToken returns the stored token, read at call time.
func (g *Guard) BearerToken() string {
	token, ok, err := g.store.Get(context.Background(), KeyToken)
	if err != nil || !ok {
		return ""
	}
	return token
}

// OnAuthRejected clears the credential after the server rejected token. A
// credential stored since the request was sent is left alone.
func (g *Guard) OnAuthRejected(token string) {
	deleted, err := g.store.DeleteIf(context.Background(), KeyToken, token, KeyToken, KeyUser)
	if err != nil {
		g.logger.Warn("clear rejected credential failed", logging.Error(err))
		return
	}
	if !deleted {
		g.logger.Debug("rejected token no longer stored; keeping current credential")
		if g.BearerToken() != "" {
			return
		}
	}
	g.revoke()
}

// Logout clears the credential unconditionally.
func (g *Guard) Logout() error {
	return g.clear()
}

// Revoked returns a channel closed once the current credential is cleared.
func (g *Guard) Revoked() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.revoked
}

func (g *Guard) clear() error {
	err := g.store.Delete(context.Background(), KeyToken, KeyUser)
	g.revoke()
	if err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

func (g *Guard) revoke() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.revokedDone {
		close(g.revoked)
		g.revokedDone = true
	}
}

// IsRejected reports whether err means the server no longer accepts the session.
func IsRejected(err error) bool {
	return errors.Is(err, api.ErrUnauthorized)
}
