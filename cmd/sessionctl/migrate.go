package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/BaSui01/sessionctx/internal/migration"
)

// =============================================================================
// 🗃️ 数据库迁移命令
// =============================================================================

type migrateFlags struct {
	DBType string
	DBURL  string
}

// NewMigrateCmd 创建 migrate 命令组
func NewMigrateCmd() *cobra.Command {
	var opts migrateFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session_memory schema",
		Long: `Apply or roll back the embedded session_memory migrations.

The database is taken from the database section of the config unless both
--db-type and --db-url are given.`,
	}

	cmd.PersistentFlags().StringVar(&opts.DBType, "db-type", "", "database type: postgres, mysql, sqlite (default: from config)")
	cmd.PersistentFlags().StringVar(&opts.DBURL, "db-url", "", "database connection URL (default: from config)")

	cmd.AddCommand(
		migrateSubcommand(&opts, "up", "Apply all pending migrations", cobra.NoArgs, runMigrateUp),
		migrateSubcommand(&opts, "down", "Roll back the last migration", cobra.NoArgs, runMigrateDown),
		migrateSubcommand(&opts, "reset", "Roll back all migrations", cobra.NoArgs, runMigrateReset),
		migrateSubcommand(&opts, "status", "Show migration status", cobra.NoArgs, runMigrateStatus),
		migrateSubcommand(&opts, "version", "Show current migration version", cobra.NoArgs, runMigrateVersion),
		migrateSubcommand(&opts, "goto <version>", "Migrate to a specific version", cobra.ExactArgs(1), runMigrateGoto),
		migrateSubcommand(&opts, "force <version>", "Force set migration version (use with caution)", cobra.ExactArgs(1), runMigrateForce),
	)

	return cmd
}

type migrateRunner func(ctx context.Context, w io.Writer, m migration.Migrator, args []string) error

func migrateSubcommand(opts *migrateFlags, use, short string, args cobra.PositionalArgs, run migrateRunner) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, a []string) error {
			m, err := createMigrator(opts)
			if err != nil {
				return err
			}
			defer m.Close()
			return run(cmd.Context(), cmd.OutOrStdout(), m, a)
		},
	}
}

// createMigrator 两个 flag 都给出时直接用，否则读配置文件的 database 段
func createMigrator(opts *migrateFlags) (*migration.SchemaMigrator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := initLogger(cfg.Log, globalFlags.Verbose)

	if opts.DBType != "" && opts.DBURL != "" {
		return migration.FromURL(opts.DBType, opts.DBURL, logger)
	}
	if opts.DBType != "" {
		cfg.Database.Driver = opts.DBType
	}
	return migration.FromDatabaseConfig(cfg.Database, logger)
}

func runMigrateUp(ctx context.Context, w io.Writer, m migration.Migrator, _ []string) error {
	fmt.Fprintln(w, "Running migrations...")
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	state, err := m.State(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Migrations complete. Current version: %d\n", state.Version)
	return nil
}

func runMigrateDown(ctx context.Context, w io.Writer, m migration.Migrator, _ []string) error {
	fmt.Fprintln(w, "Rolling back last migration...")
	if err := m.Down(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	state, err := m.State(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Rollback complete. Current version: %d\n", state.Version)
	return nil
}

func runMigrateReset(ctx context.Context, w io.Writer, m migration.Migrator, _ []string) error {
	fmt.Fprintln(w, "Rolling back all migrations...")
	if err := m.Reset(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	fmt.Fprintln(w, "All migrations rolled back.")
	return nil
}

func runMigrateStatus(ctx context.Context, w io.Writer, m migration.Migrator, _ []string) error {
	state, err := m.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if len(state.Steps) == 0 {
		fmt.Fprintln(w, "No migrations found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS")
	for _, s := range state.Steps {
		status := "Pending"
		if s.Applied {
			status = "Applied"
		}
		if s.Dirty {
			status = "Dirty"
		}
		fmt.Fprintf(tw, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nTotal: %d, Applied: %d, Pending: %d\n",
		len(state.Steps), state.Applied(), state.Pending())
	return nil
}

func runMigrateVersion(ctx context.Context, w io.Writer, m migration.Migrator, _ []string) error {
	state, err := m.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}
	if state.Version == 0 {
		fmt.Fprintln(w, "No migrations applied yet.")
		return nil
	}
	fmt.Fprintf(w, "Current version: %d", state.Version)
	if state.Dirty {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)
	return nil
}

func runMigrateGoto(ctx context.Context, w io.Writer, m migration.Migrator, args []string) error {
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	fmt.Fprintf(w, "Migrating to version %d...\n", version)
	if err := m.Goto(ctx, uint(version)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintf(w, "Migration complete. Current version: %d\n", version)
	return nil
}

func runMigrateForce(ctx context.Context, w io.Writer, m migration.Migrator, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	fmt.Fprintf(w, "Forcing version to %d...\n", version)
	if err := m.Force(ctx, version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}
	fmt.Fprintf(w, "Version forced to %d\n", version)
	return nil
}
