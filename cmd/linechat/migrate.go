package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"linechat/internal/app/db"
	"linechat/internal/configs"
	"linechat/internal/pkg/logx"
)

func migrateCmd() *cobra.Command {
	var dsn string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configs.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel); err != nil {
				return err
			}

			if dsn == "" {
				dsn = cfg.DatabaseDSN
			}
			if dsn == "" {
				return fmt.Errorf("no database DSN: set DATABASE_URL or pass --dsn")
			}

			if err := db.Migrate(dsn); err != nil {
				return err
			}

			logx.Info("Database migrations applied.")
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "Database DSN (default from DATABASE_URL)")

	return cmd
}
