package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/replayer/internal/infra/storage/sqldb"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if appConfig.Database.URL == "" {
		return errors.New("database.url is not configured")
	}

	ctx := context.Background()
	db, err := sqldb.NewDB(ctx, appConfig.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	slog.Info("Migrations applied", "driver", db.Driver())
	return nil
}
