package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/rid-registry/internal/infrastructure/database/postgres"
	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/rid-registry/pkg/errors"
)

// migrator is the schema tooling the migrate commands drive.
type migrator struct {
	up     func(dsn string) error
	down   func(dsn string, steps int) error
	status func(dsn string) (uint, bool, error)
	force  func(dsn string, version int) error
}

var schema = migrator{
	up:     postgres.RunMigrations,
	down:   postgres.RollbackMigration,
	status: postgres.MigrationStatus,
	force:  postgres.ForceMigrationVersion,
}

// MigrationState is the printed result of migrate status.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func (s MigrationState) String() string {
	if s.Dirty {
		return fmt.Sprintf("schema version %d (dirty: fix the failed migration, then run migrate force)", s.Version)
	}
	return fmt.Sprintf("schema version %d", s.Version)
}

func (s MigrationState) TableHeaders() []string { return []string{"VERSION", "DIRTY"} }

func (s MigrationState) TableRows() [][]string {
	return [][]string{{strconv.FormatUint(uint64(s.Version), 10), strconv.FormatBool(s.Dirty)}}
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the registry database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := schema.up(cliCtx.Config.Database.DSN()); err != nil {
				return errors.Wrap(err, errors.CodeDBConnectionError, "migrate up failed")
			}
			cliCtx.Logger.Info("migrations applied")
			return printStatus(cmd, cliCtx)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if steps < 1 {
				return errors.InvalidParam("--steps must be at least 1")
			}
			if err := schema.down(cliCtx.Config.Database.DSN(), steps); err != nil {
				return errors.Wrap(err, errors.CodeDBConnectionError, "migrate down failed")
			}
			cliCtx.Logger.Info("migrations rolled back", logging.Int("steps", steps))
			return printStatus(cmd, cliCtx)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return printStatus(cmd, cliCtx)
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			version, err := strconv.Atoi(args[0])
			if err != nil || version < -1 {
				return errors.InvalidParam("version must be an integer >= -1").WithDetail(args[0])
			}
			if err := schema.force(cliCtx.Config.Database.DSN(), version); err != nil {
				return errors.Wrap(err, errors.CodeDBConnectionError, "migrate force failed")
			}
			cliCtx.Logger.Warn("schema version forced", logging.Int("version", version))
			return printStatus(cmd, cliCtx)
		},
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

func printStatus(cmd *cobra.Command, cliCtx *CLIContext) error {
	version, dirty, err := schema.status(cliCtx.Config.Database.DSN())
	if err != nil {
		return errors.Wrap(err, errors.CodeDBConnectionError, "cannot read schema version")
	}
	return PrintResult(cmd, MigrationState{Version: version, Dirty: dirty})
}
