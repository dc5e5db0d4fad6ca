package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/M5rkn/NailsBot/internal/db"
	"github.com/M5rkn/NailsBot/internal/model"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update database tables and indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			gormDB, err := db.NewGormDB(cfg.DB)
			if err != nil {
				return fmt.Errorf("init db: %w", err)
			}
			defer db.Close(gormDB)

			if err := model.AutoMigrate(gormDB); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			log.Info("migrations applied", slog.String("driver", cfg.DB.Driver))
			return nil
		},
	}
}
