package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/database"
	"github.com/stemsi/examcore/internal/logger"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
	"github.com/stemsi/examcore/internal/service"
	"golang.org/x/term"
)

const minPasswordLength = 6

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "create-user",
		Short:        "Create a student, teacher or admin account",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         run,
	}
	f := cmd.Flags()
	f.String("name", "", "Display name (required)")
	f.String("email", "", "Login email (required)")
	f.String("role", string(model.RoleTeacher), "Role: student, teacher or admin")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	roleFlag, _ := cmd.Flags().GetString("role")

	role := model.Role(strings.ToLower(roleFlag))
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", roleFlag)
	}

	// ─── Load Configuration ────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	// ─── Password ──────────────────────────────────────────────────────
	fmt.Fprint(cmd.OutOrStdout(), "Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(cmd.OutOrStdout()) // Newline after password input
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	password := string(bytePassword)
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	defer pool.Close()

	// Session storage is not needed to create accounts.
	authService := service.NewAuthService(cfg, repository.NewDirectoryRepository(pool), nil, log)

	u, err := authService.CreateUser(ctx, name, email, password, role)
	if errors.Is(err, service.ErrEmailTaken) {
		return fmt.Errorf("a user with email %s already exists", email)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Success! %s '%s' (%s) created with ID: %d\n", u.Role, u.Name, u.Email, u.ID)
	return nil
}
