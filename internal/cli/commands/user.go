package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/wp-orm/wpmeta/internal/cli/ui"
	"github.com/wp-orm/wpmeta/internal/orm/model"
)

// NewUserCommand creates the user command
func NewUserCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user roles",
	}
	cmd.AddCommand(newUserRolesCommand(opts))
	cmd.AddCommand(newUserSetRoleCommand(opts))
	cmd.AddCommand(newRoleListCommand())
	return cmd
}

func parseUserID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("user id must be a positive integer, got %q", arg)
	}
	return id, nil
}

func (a *app) user(id int64) *model.User {
	return model.UserByID(id, a.store, a.rows, a.logger,
		model.WithTablePrefix(a.cfg.Database.TablePrefix))
}

func newUserRolesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "roles ID",
		Short: "Print the roles of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			roles, err := a.user(id).Roles(cmd.Context())
			if err != nil {
				return err
			}
			if len(roles) == 0 {
				color.New(color.FgCyan).Fprintf(cmd.OutOrStdout(), "ℹ user %d has no role\n", id)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(roles, "\n"))
			return nil
		},
	}
}

func newUserSetRoleCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-role ID ROLE",
		Short: "Replace the roles of a user with one role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			// Only the deferred writes run; the user row is left untouched.
			u := a.user(id)
			if staged := u.SetRole(args[1]); staged.IsError() {
				return fmt.Errorf("%s: %s", staged.Code(), staged.Message())
			}
			results := u.PersistDeferred(cmd.Context(), id)
			ui.Results(cmd.OutOrStdout(), results, color.NoColor)
			return results.Err()
		},
	}
}

func newRoleListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "role-list",
		Short: "List the built-in roles and their capability counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roles := model.DefaultRoles()
			table := ui.NewTable(cmd.OutOrStdout(), color.NoColor, "ROLE", "NAME", "CAPABILITIES")
			for _, name := range roles.Names() {
				role, err := roles.Get(name)
				if err != nil {
					return err
				}
				table.AddRow(role.Name, role.DisplayName, strconv.Itoa(len(role.Capabilities)))
			}
			table.Render()
			return nil
		},
	}
}
