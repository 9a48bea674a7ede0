package main

import (
	"fmt"
	"strings"

	"github.com/aman-churiwal/tenantgate/internal/models"
	"github.com/aman-churiwal/tenantgate/internal/repository"
	"github.com/aman-churiwal/tenantgate/internal/service"
	"github.com/spf13/cobra"
)

func newCreateAdminCmd(configPath *string) *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a platform admin and print a bearer token for it",
		RunE: func(cmd *cobra.Command, args []string) error {
			email = strings.TrimSpace(email)
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			cfg, db, err := openDatabase(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			auth := service.NewAuthService(repository.NewUserRepository(db), cfg.Auth.JWTSecret, cfg.Auth.JWTExpiryHours)
			user, err := auth.Register(cmd.Context(), email, password, name, models.RoleAdmin, nil)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}

			token, err := auth.IssueToken(user)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}

			fmt.Printf("Created admin %s (%s)\n", user.Email, user.ID)
			fmt.Printf("Token: %s\n", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}
