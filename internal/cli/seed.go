package cli

import (
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"qrquest/internal/config"
	"qrquest/internal/infra/file"
	"qrquest/internal/infra/postgres"
	"qrquest/internal/logging"
)

// NewSeedCmd loads the YAML question catalog into Postgres. Existing questions are kept.
func NewSeedCmd(configPath *string) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the question catalog into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if catalogPath == "" {
				catalogPath = cfg.Quest.Catalog
			}
			if catalogPath == "" {
				return fmt.Errorf("catalog path not configured")
			}
			logger := logging.New(cfg.Log.Level, cfg.Log.Format)
			ctx := cmd.Context()

			if err := runMigrations(ctx, cfg, logger); err != nil {
				return err
			}
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			return seedCatalog(ctx, file.NewCatalogLoader(catalogPath), postgres.NewCatalogLoader(pool), logger)
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML catalog to seed (defaults to quest.catalog)")
	return cmd
}
