package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/umbusk1/bibliofep/internal/auth/users"
)

func newUsersCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage dashboard accounts",
	}
	cmd.AddCommand(newUsersCreateCommand(e), newUsersListCommand(e), newUsersPasswdCommand(e))
	return cmd
}

type credentials struct {
	email    string
	password string
	role     string
}

// resolve fills the password from DASHCTL_PASSWORD when the flag is empty
// and checks the fields before anything touches the database.
func (c *credentials) resolve(needRole bool) error {
	if c.password == "" {
		c.password = os.Getenv("DASHCTL_PASSWORD")
	}
	c.email = users.NormalizeEmail(c.email)
	switch {
	case c.email == "" || !strings.Contains(c.email, "@"):
		return errors.New("--email must be an email address")
	case len(c.password) < 8:
		return errors.New("--password (or DASHCTL_PASSWORD) must be at least 8 characters")
	case needRole && c.role != users.RoleAdmin && c.role != users.RoleViewer:
		return fmt.Errorf("--role must be %s or %s", users.RoleAdmin, users.RoleViewer)
	}
	return nil
}

func newUsersCreateCommand(e *env) *cobra.Command {
	c := &credentials{role: users.RoleViewer}
	cmd := &cobra.Command{
		Use:   "create --email <email> [--role admin|viewer]",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.resolve(true); err != nil {
				return err
			}
			a, err := e.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			u, err := a.Users.Create(cmd.Context(), c.email, c.password, c.role)
			if err != nil {
				return err
			}
			fmt.Fprintln(e.out, okStyle.Render("created"), valueStyle.Render(u.Email), labelStyle.Render(fmt.Sprintf("(id %d, %s)", u.ID, u.Role)))
			return nil
		},
	}
	cmd.Flags().StringVar(&c.email, "email", "", "account email")
	cmd.Flags().StringVar(&c.password, "password", "", "account password (defaults to $DASHCTL_PASSWORD)")
	cmd.Flags().StringVar(&c.role, "role", c.role, "admin or viewer")
	return cmd
}

func newUsersPasswdCommand(e *env) *cobra.Command {
	c := &credentials{}
	cmd := &cobra.Command{
		Use:   "passwd --email <email>",
		Short: "Replace an account's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.resolve(false); err != nil {
				return err
			}
			a, err := e.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			if err := a.Users.SetPassword(cmd.Context(), c.email, c.password); err != nil {
				if errors.Is(err, users.ErrInvalidCredentials) {
					return fmt.Errorf("no account for %s", c.email)
				}
				return err
			}
			fmt.Fprintln(e.out, okStyle.Render("password updated for"), valueStyle.Render(c.email))
			return nil
		},
	}
	cmd.Flags().StringVar(&c.email, "email", "", "account email")
	cmd.Flags().StringVar(&c.password, "password", "", "new password (defaults to $DASHCTL_PASSWORD)")
	return cmd
}

func newUsersListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			list, err := a.Users.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(e.out, warnStyle.Render("no accounts; create one with `dashctl users create`"))
				return nil
			}
			pairs := make([]pair, 0, len(list))
			for _, u := range list {
				pairs = append(pairs, pair{label: u.Email, value: fmt.Sprintf("%s  since %s", u.Role, u.CreatedAt.Format("2006-01-02"))})
			}
			writePairs(e.out, pairs)
			return nil
		},
	}
}
