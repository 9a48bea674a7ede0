package main

import (
	"fmt"

	"github.com/aman-churiwal/tenantgate/internal/authz"
	"github.com/aman-churiwal/tenantgate/internal/config"
	"github.com/aman-churiwal/tenantgate/internal/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema and seed the authorization policies",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDatabase(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.AutoMigrate(); err != nil {
				return fmt.Errorf("migrate database: %w", err)
			}
			if _, err := authz.NewEnforcer(db.DB); err != nil {
				return fmt.Errorf("seed policies: %w", err)
			}

			fmt.Println("Database migrated")
			return nil
		},
	}
}

func openDatabase(configPath string) (*config.Config, *storage.Database, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	db, err := storage.NewPostgres(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
