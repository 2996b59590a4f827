package cli

import (
	"context"
	"fmt"

	"github.com/gzhole/shopbot/internal/redact"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the schema and load the demo catalog and users",
	Long: `Apply the schema to the configured database and insert the demo
products and users. Seeding an already populated database does nothing.

  shopbot seed
  SHOPBOT_DATABASE_DRIVER=postgres SHOPBOT_DATABASE_DSN=postgres://... shopbot seed`,
	RunE: seedCommand,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func seedCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	seeded, err := s.Seed(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed: %w", err)
	}
	log.Debug("seed finished", "driver", s.Driver(), "seeded", seeded)

	dsn := redact.RedactDSN(cfg.Database.DSN)
	if seeded {
		fmt.Printf("✅ Seeded %s %s\n", cfg.Database.Driver, dsn)
	} else {
		fmt.Printf("Database %s already holds data, nothing to do.\n", dsn)
	}
	return nil
}
