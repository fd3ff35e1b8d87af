package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/whispersoftheland/whispers/internal/profile"
)

func newRoleCmd(connect Connector) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage account roles",
	}
	cmd.AddCommand(newRoleSetCmd(connect))
	return cmd
}

func newRoleSetCmd(connect Connector) *cobra.Command {
	var email, role string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the role of an account",
		Long: `Set the role stored on an account's profile. "admin" makes the account a
moderator; "user" revokes it. The account must have signed up first.

Examples:
  whisperctl role set --email ada@example.com --role admin
  whisperctl role set --email ada@example.com --role user`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(email)
			if email == "" {
				return errors.New("--email is required")
			}
			if !profile.ValidRole(role) {
				return fmt.Errorf("invalid role %q. Valid roles: %s, %s", role, profile.RoleRegular, profile.RolePrivileged)
			}

			b, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer b.Close()

			repo := b.Profiles()
			p, err := repo.GetByEmail(cmd.Context(), email)
			if errors.Is(err, profile.ErrNotFound) {
				return fmt.Errorf("no profile for %s; the account must sign up first", email)
			}
			if err != nil {
				return fmt.Errorf("looking up profile: %w", err)
			}

			if p.Role == role {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already has role %s\n", email, role)
				return nil
			}
			if _, err := repo.SetRole(cmd.Context(), p.ID, role); err != nil {
				return fmt.Errorf("setting role: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", email, p.Role, role)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address of the account")
	cmd.Flags().StringVar(&role, "role", profile.RolePrivileged, "role to set (user or admin)")
	return cmd
}
