package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/diegolsarmond/jus-connect/internal/config"
	"github.com/diegolsarmond/jus-connect/internal/output"
	"github.com/diegolsarmond/jus-connect/internal/store"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage users and API keys directly in the database",
	Long: `Operator commands that bypass the HTTP API.

Subcommands:
  create-user  Create a user (the first admin of a fresh install)
  grant        Give a user the admin role
  revoke       Demote an admin to another role
  create-key   Issue a long-lived API key for a user`,
	GroupID: "server",
}

// withStore loads the config, opens the store and runs fn against it.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, st *store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		output.Error("%v", err)
		return err
	}
	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		output.Error("%v", err)
		return err
	}
	defer st.Close()
	if err := fn(cmd.Context(), st); err != nil {
		output.Error("%v", err)
		return err
	}
	return nil
}

func requireEmail(cmd *cobra.Command) (string, error) {
	email, _ := cmd.Flags().GetString("email")
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("--email is required")
	}
	return email, nil
}

// userByEmail resolves an email to a user, failing when none exists.
func userByEmail(ctx context.Context, st *store.Store, email string) (*store.User, error) {
	u, err := st.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user not found: %s", email)
	}
	return u, nil
}

// setRole changes the role of the user with the given email. Demoting the
// last active admin is refused.
func setRole(ctx context.Context, st *store.Store, email, role string) (*store.User, error) {
	u, err := userByEmail(ctx, st, email)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() && role != store.RoleAdmin && u.Active {
		n, err := st.CountAdmins(ctx)
		if err != nil {
			return nil, err
		}
		if n <= 1 {
			return nil, fmt.Errorf("%s is the last admin", email)
		}
	}
	return st.UpdateUser(ctx, u.ID, store.UserPatch{Role: &role})
}

// createKey issues an API key for email. expires accepts "90d" or a Go
// duration; empty means the key never expires.
func createKey(ctx context.Context, st *store.Store, email, name, expires string, now time.Time) (string, *store.APIKey, error) {
	u, err := userByEmail(ctx, st, email)
	if err != nil {
		return "", nil, err
	}
	var expiresAt *time.Time
	if expires != "" {
		d := config.ParseDaysDuration(expires)
		if d <= 0 {
			return "", nil, fmt.Errorf("invalid --expires %q", expires)
		}
		t := now.Add(d).UTC()
		expiresAt = &t
	}
	return st.GenerateAPIKey(ctx, u.ID, name, expiresAt)
}

// readPassword prompts on the terminal when --password was not given.
func readPassword(cmd *cobra.Command) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}
	if pw := os.Getenv("JUS_ADMIN_PASSWORD"); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--password is required when stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

var adminCreateUserCmd = &cobra.Command{
	Use:   "create-user",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := requireEmail(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		password, err := readPassword(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		oab, _ := cmd.Flags().GetString("oab")
		if name == "" {
			name = email
		}

		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			u, err := st.CreateUser(ctx, store.NewUser{Name: name, Email: email, Password: password, Role: role, OAB: oab})
			if err != nil {
				return err
			}
			output.Success("created %s %s (%s)", u.Role, u.Email, u.ID)
			return nil
		})
	},
}

var adminGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant the admin role to a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := requireEmail(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			if _, err := setRole(ctx, st, email, store.RoleAdmin); err != nil {
				return err
			}
			output.Success("granted admin to %s", email)
			return nil
		})
	},
}

var adminRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke the admin role from a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := requireEmail(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		role, _ := cmd.Flags().GetString("role")
		if role == store.RoleAdmin || !store.IsValidRole(role) {
			err := fmt.Errorf("invalid --role %q", role)
			output.Error("%v", err)
			return err
		}
		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			if _, err := setRole(ctx, st, email, role); err != nil {
				return err
			}
			output.Success("revoked admin from %s (now %s)", email, role)
			return nil
		})
	},
}

var adminCreateKeyCmd = &cobra.Command{
	Use:   "create-key",
	Short: "Create an API key for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, err := requireEmail(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		expires, _ := cmd.Flags().GetString("expires")

		return withStore(cmd, func(ctx context.Context, st *store.Store) error {
			plaintext, key, err := createKey(ctx, st, email, name, expires, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(plaintext)
			output.Info("key %s for %s", key.ID, email)
			if key.ExpiresAt != nil {
				output.Info("expires %s", key.ExpiresAt.Format(time.RFC3339))
			}
			output.Warning("store this key now; it cannot be shown again")
			return nil
		})
	},
}

func init() {
	adminCreateUserCmd.Flags().String("email", "", "user email address")
	adminCreateUserCmd.Flags().String("name", "", "display name (defaults to the email)")
	adminCreateUserCmd.Flags().String("password", "", "password (prompted when omitted, or env JUS_ADMIN_PASSWORD)")
	adminCreateUserCmd.Flags().String("role", store.RoleAdmin, "role: admin, lawyer or assistant")
	adminCreateUserCmd.Flags().String("oab", "", "OAB registration number")

	adminGrantCmd.Flags().String("email", "", "user email address")

	adminRevokeCmd.Flags().String("email", "", "user email address")
	adminRevokeCmd.Flags().String("role", store.RoleLawyer, "role to assign instead of admin")

	adminCreateKeyCmd.Flags().String("email", "", "user email address")
	adminCreateKeyCmd.Flags().String("name", "admin-cli", "key name")
	adminCreateKeyCmd.Flags().String("expires", "", "lifetime such as 90d or 720h (default: never)")

	adminCmd.AddCommand(adminCreateUserCmd, adminGrantCmd, adminRevokeCmd, adminCreateKeyCmd)
	rootCmd.AddCommand(adminCmd)
}
