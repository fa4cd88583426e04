package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kmlc/internal/session"
)

func newAuthCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newLoginCommand(ctx),
		newLogoutCommand(ctx),
		newWhoamiCommand(ctx),
		newPasswdCommand(ctx),
	}
}

func newLoginCommand(ctx *commandContext) *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, nil, func(deps *sessionDeps) error {
				p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
				name := strings.TrimSpace(username)
				if name == "" {
					var err error
					if name, err = p.line("Username: "); err != nil {
						return err
					}
					name = strings.TrimSpace(name)
				}
				password, err := p.secret("Password: ")
				if err != nil {
					return err
				}

				cred, err := deps.guard.Authenticate(cmd.Context(), name, password)
				if err != nil {
					if errors.Is(err, session.ErrInvalidCredentials) {
						return fmt.Errorf("login failed: %w", err)
					}
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Logged in as %s (%s)\n", cred.Identity.Username, cred.Identity.Role)
				if cred.Identity.MustChangePassword {
					fmt.Fprintln(out, "Password change required before continuing; run `kmlc passwd`")
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name (prompted when omitted)")
	return cmd
}

func newLogoutCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, nil, func(deps *sessionDeps) error {
				if err := deps.guard.Logout(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
}

func newWhoamiCommand(ctx *commandContext) *cobra.Command {
	var verify bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, nil, func(deps *sessionDeps) error {
				cred, ok := deps.guard.Current()
				if !ok {
					return errNotLoggedIn
				}
				identity := cred.Identity
				if verify {
					remote, err := deps.guard.Whoami(cmd.Context())
					if err != nil {
						return err
					}
					identity = session.Identity{
						Username:           remote.Username,
						Role:               session.Role(remote.Role),
						MustChangePassword: remote.MustChangePassword,
					}
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Username:         %s\n", identity.Username)
				fmt.Fprintf(out, "Role:             %s\n", identity.Role)
				fmt.Fprintf(out, "Must change pass: %s\n", yesNo(identity.MustChangePassword))
				fmt.Fprintf(out, "Server:           %s\n", deps.cfg.Server.URL)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&verify, "verify", false, "Ask the server instead of reading the stored identity")
	return cmd
}

func newPasswdCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the account password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, nil, func(deps *sessionDeps) error {
				if _, ok := deps.guard.Current(); !ok {
					return errNotLoggedIn
				}
				p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
				current, err := p.secret("Current password: ")
				if err != nil {
					return err
				}
				next, err := p.secret("New password: ")
				if err != nil {
					return err
				}
				confirm, err := p.secret("Confirm new password: ")
				if err != nil {
					return err
				}

				if err := deps.guard.ChangePassword(cmd.Context(), current, next, confirm); err != nil {
					return fmt.Errorf("change password: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Password changed; run `kmlc login` to sign in with the new password")
				return nil
			})
		},
	}
}
