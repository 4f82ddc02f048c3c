// File: cmd/admin.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/graphedit/api/schemas"
	"github.com/xkilldash9x/graphedit/internal/records"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the records schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(a *app) error {
				// Opening the store already migrated it; running again is a no-op.
				if err := a.records.Migrate(cmd.Context()); err != nil {
					return err
				}
				cmd.Printf("records schema is up to date (%s)\n", a.cfg.Records().Driver)
				return nil
			})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var userRef string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(a *app) error {
				u, err := findUser(cmd, a.records, userRef)
				if err != nil {
					return err
				}
				tok, err := a.tokens.Issue(u.ID, u.Email)
				if err != nil {
					return err
				}
				cmd.Println(tok)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&userRef, "user", "u", "", "user id or email")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// findUser resolves ref as an id first, then as an email.
func findUser(cmd *cobra.Command, store records.Store, ref string) (*schemas.User, error) {
	u, err := store.GetUser(cmd.Context(), ref)
	if err == nil {
		return u, nil
	}
	list, lerr := store.ListUsers(cmd.Context())
	if lerr != nil {
		return nil, lerr
	}
	for i := range list {
		if strings.EqualFold(list[i].Email, ref) {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("no user with id or email %q", ref)
}

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}

	var email, name, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := schemas.ParseRole(role)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), false, func(a *app) error {
				u, err := a.users.Add(cmd.Context(), email, name, r)
				if err != nil {
					return err
				}
				cmd.Printf("created %s %s (%s)\n", u.ID, u.Email, u.Role)
				return nil
			})
		},
	}
	add.Flags().StringVar(&email, "email", "", "email address")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "role", string(schemas.RoleUser), "user, mod or admin")
	_ = add.MarkFlagRequired("email")

	cmd.AddCommand(add)
	return cmd
}
