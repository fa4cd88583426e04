package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kmlc/internal/api"
	"kmlc/internal/session"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts (admin)",
	}

	usersCmd.AddCommand(newUsersListCommand(ctx))
	usersCmd.AddCommand(newUsersCreateCommand(ctx))
	usersCmd.AddCommand(newUsersDeleteCommand(ctx))

	return usersCmd
}

func newUsersListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireAdmin(), func(deps *sessionDeps) error {
				users, err := deps.client.ListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, users)
				}
				rows := make([][]string, 0, len(users))
				for _, user := range users {
					rows = append(rows, []string{user.Username, user.Role, yesNo(user.MustChangePassword), user.CreatedAt})
				}
				fmt.Fprint(cmd.OutOrStdout(), userListing.render(rows))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newUsersCreateCommand(ctx *commandContext) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create an account; the new user must change the password at first login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := args[0]
			if len(username) < 3 || len(username) > 50 {
				return errors.New("username must be 3 to 50 characters")
			}
			if role != string(session.RoleAdmin) && role != string(session.RoleUser) {
				return fmt.Errorf("role must be admin or user, got %q", role)
			}
			return ctx.withSession(cmd, requireAdmin(), func(deps *sessionDeps) error {
				p := newPrompter(cmd.InOrStdin(), cmd.ErrOrStderr())
				password, err := p.secret("Initial password: ")
				if err != nil {
					return err
				}
				if len(password) < session.MinPasswordLength {
					return fmt.Errorf("password must be at least %d characters", session.MinPasswordLength)
				}
				if err := deps.client.CreateUser(cmd.Context(), api.UserInput{
					Username: username,
					Password: password,
					Role:     role,
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s account %s\n", role, username)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", string(session.RoleUser), "Account role (admin or user)")
	return cmd
}

func newUsersDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, requireAdmin(), func(deps *sessionDeps) error {
				if err := deps.client.DeleteUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted account %s\n", args[0])
				return nil
			})
		},
	}
}
