package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bher20/tarifmanager/internal/auth"
	"github.com/bher20/tarifmanager/internal/storage"
)

var (
	tokenUser     string
	tokenPassword string
	tokenRole     string
	tokenName     string
	tokenExpires  string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue an API token, creating the user when --password is given",
	Long: `Issue an API token for a user. The raw token is printed once.

Examples:
  # First admin
  tarifmanager token create --user admin --password secret --role admin

  # Read-only token for a dashboard, valid 30 days
  tarifmanager token create --user admin --role viewer --name dashboard --expires 30d
`,
	Args: cobra.NoArgs,
	RunE: runTokenCreate,
}

func init() {
	f := tokenCreateCmd.Flags()
	f.StringVar(&tokenUser, "user", "admin", "Username")
	f.StringVar(&tokenPassword, "password", "", "Password, required when the user does not exist")
	f.StringVar(&tokenRole, "role", "", "Token role (admin, editor, viewer); defaults to the user role")
	f.StringVar(&tokenName, "name", "cli", "Token name")
	f.StringVar(&tokenExpires, "expires", "never", "Expiry: never, a duration (12h, 30d, 2w) or a date (31/12/2026)")
	tokenCmd.AddCommand(tokenCreateCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenCreate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.DBDriver == "memory" {
		return fmt.Errorf("tokens need persistent storage; set TARIFMANAGER_DB_DRIVER to sqlite or postgres")
	}
	ctx := cmd.Context()
	st, err := storage.Open(ctx, storage.Config{Driver: cfg.DBDriver, DSN: cfg.DBDSN})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer st.Close()

	svc, err := auth.NewService(st)
	if err != nil {
		return err
	}
	expiresAt, err := auth.ParseExpiration(tokenExpires, time.Now())
	if err != nil {
		return err
	}

	user, err := st.GetUserByUsername(ctx, tokenUser)
	if err != nil {
		return err
	}
	if user == nil {
		if tokenPassword == "" {
			return fmt.Errorf("user %q does not exist; pass --password to create it", tokenUser)
		}
		role := tokenRole
		if role == "" {
			role = auth.RoleAdmin
		}
		if user, err = svc.Register(ctx, tokenUser, tokenPassword, role); err != nil {
			return err
		}
		logger.Info().Str("user", user.Username).Str("role", user.Role).Msg("user created")
	}

	role := tokenRole
	if role == "" {
		role = user.Role
	}
	tok, raw, err := svc.CreateToken(ctx, user.ID, tokenName, role, expiresAt)
	if err != nil {
		return err
	}
	logger.Info().Str("token", tok.ID).Str("role", tok.Role).Msg("token created")
	fmt.Fprintln(cmd.OutOrStdout(), raw)
	return nil
}
