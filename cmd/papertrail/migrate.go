package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papertrail-ai/papertrail/backend/internal/bootstrap"
	"github.com/papertrail-ai/papertrail/backend/internal/util"
	"github.com/papertrail-ai/papertrail/backend/pkg/logger"
	pgstore "github.com/papertrail-ai/papertrail/backend/pkg/store/pgx"
	"github.com/papertrail-ai/papertrail/backend/pkg/store/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or revert database migrations",
	Long:      `Applies every pending migration (up) or reverts all of them (down) on the configured store.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	direction := args[0]
	if direction != "up" && direction != "down" {
		return fmt.Errorf("unknown direction %q, expected up or down", direction)
	}

	switch driver := util.GetEnvString("STORE_DRIVER", bootstrap.DriverPostgres); driver {
	case bootstrap.DriverPostgres:
		dsn := util.GetEnv("DATABASE_URL")
		if dsn == "" {
			return errors.New("DATABASE_URL is not set")
		}
		var err error
		if direction == "up" {
			err = pgstore.MigrateUp(dsn)
		} else {
			err = pgstore.MigrateDown(dsn)
		}
		if err != nil {
			return err
		}

	case bootstrap.DriverSQLite:
		if direction == "down" {
			return errors.New("migrate down is not supported for sqlite, delete the database file instead")
		}
		// the sqlite store applies its schema when opened
		s, err := sqlite.NewStore(util.GetEnvString("SQLITE_PATH", "./papertrail.db"))
		if err != nil {
			return err
		}
		if err := s.Close(); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}

	logger.Info("[Migrate] Done", "direction", direction)
	return nil
}
