package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"flashdeck-backend/internal/database"
	"flashdeck-backend/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	var (
		databaseURL string
		dir         string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.New("DATABASE_URL is not set; pass --database-url")
			}

			log, err := logger.New(os.Getenv("LOG_MODE"))
			if err != nil {
				return err
			}
			defer log.Sync()

			pool, err := database.NewPostgresPool(databaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			if dryRun {
				pending, err := database.PendingMigrations(cmd.Context(), pool, dir)
				if err != nil {
					return err
				}
				for _, m := range pending {
					fmt.Fprintf(cmd.OutOrStdout(), "pending %03d %s\n", m.Version, m.Name)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d pending\n", len(pending))
				return nil
			}

			if err := database.RunMigrations(pool, dir, log); err != nil {
				return err
			}
			log.Info("migrations up to date", "dir", dir)
			return nil
		},
	}
	cmd.PreRun = func(*cobra.Command, []string) {
		godotenv.Load()
	}
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres URL (default $DATABASE_URL)")
	cmd.Flags().StringVar(&dir, "dir", "migrations", "migrations directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}
