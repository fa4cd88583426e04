package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"kmlc/internal/api"
	"kmlc/internal/config"
	"kmlc/internal/credstore"
	"kmlc/internal/jobs"
	"kmlc/internal/logging"
	"kmlc/internal/session"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	opts := logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Writer: w,
	}
	if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
		opts.Level = *c.logLevelFlag
	}
	return logging.New(opts)
}

// sessionDeps is what a command receives once it has been admitted.
type sessionDeps struct {
	cfg     *config.Config
	logger  *slog.Logger
	guard   *session.Guard
	client  *api.Client
	tracker *jobs.Tracker
}

// withSession opens the credential store for the duration of fn. When req is
// non-nil the guard must admit the command first.
func (c *commandContext) withSession(cmd *cobra.Command, req *session.Requirements, fn func(*sessionDeps) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	store, err := credstore.Open(cfg.CredentialStorePath())
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer store.Close()

	client := api.New(api.Options{
		BaseURL: cfg.Server.URL,
		Timeout: cfg.RequestTimeout(),
		Logger:  logger,
	})
	guard := session.New(store, client, logger)

	if req != nil {
		if decision := guard.Require(*req); decision != session.Admit {
			return admissionError(decision)
		}
	}

	tracker := jobs.NewTracker(jobs.Options{
		Client:       guard.Client(),
		Revoker:      guard,
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
	})
	deps := &sessionDeps{
		cfg:     cfg,
		logger:  logger,
		guard:   guard,
		client:  guard.Client(),
		tracker: tracker,
	}
	return explainRejection(fn(deps))
}

var (
	errNotLoggedIn    = errors.New("not logged in; run `kmlc login`")
	errMustChange     = errors.New("password change required; run `kmlc passwd`")
	errAdminRequired  = errors.New("this command requires an administrator account")
	errSessionRevoked = errors.New("session ended; run `kmlc login` to sign in again")
)

func admissionError(decision session.Decision) error {
	switch decision {
	case session.RedirectLogin:
		return errNotLoggedIn
	case session.RedirectChangePassword:
		return errMustChange
	case session.RedirectHome:
		return errAdminRequired
	default:
		return fmt.Errorf("unexpected admission decision %s", decision)
	}
}

// explainRejection turns a rejected token into a re-login hint.
func explainRejection(err error) error {
	if err == nil {
		return nil
	}
	if session.IsRejected(err) || errors.Is(err, jobs.ErrSessionRevoked) {
		return fmt.Errorf("%w (%v)", errSessionRevoked, err)
	}
	return err
}

func requireUser() *session.Requirements { return &session.Requirements{} }

func requireAdmin() *session.Requirements { return &session.Requirements{RequireAdmin: true} }

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
