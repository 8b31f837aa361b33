package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newhook/runlens/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage history database migrations",
	Long:  `Manage database migrations for the runlens history database.`,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long:  `Apply all pending database migrations. This happens automatically when the database is opened, but can be run manually if needed.`,
	Args:  cobra.NoArgs,
	RunE:  runMigrateUp,
}

var migrateRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Roll back the last migration",
	Long: `Roll back the most recently applied database migration.

The history database is migrated forward again the next time it is opened.`,
	Args: cobra.NoArgs,
	RunE: runMigrateRollback,
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateRollbackCmd)
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	store, err := proj.DB(ctx)
	if err != nil {
		return err
	}

	versions, err := db.MigrationStatus(ctx, store.DB)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	pending, err := db.PendingMigrations(ctx, store.DB)
	if err != nil {
		return fmt.Errorf("failed to get pending migrations: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(versions) == 0 {
		fmt.Fprintln(out, "No migrations applied.")
	} else {
		fmt.Fprintf(out, "Applied migrations (%d):\n", len(versions))
		for _, version := range versions {
			fmt.Fprintf(out, "  %s\n", version)
		}
	}
	if len(pending) > 0 {
		fmt.Fprintf(out, "Pending migrations (%d):\n", len(pending))
		for _, m := range pending {
			fmt.Fprintf(out, "  %s_%s\n", m.Version, m.Name)
		}
	}
	return nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	// Opening the store already migrates; run again to report errors here.
	store, err := proj.DB(ctx)
	if err != nil {
		return err
	}
	if err := db.RunMigrations(ctx, store.DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "All migrations applied successfully.")
	return nil
}

func runMigrateRollback(cmd *cobra.Command, args []string) error {
	ctx := GetContext()

	proj, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer proj.Close()

	store, err := proj.DB(ctx)
	if err != nil {
		return err
	}

	m, err := db.RollbackMigration(ctx, store.DB)
	if errors.Is(err, db.ErrNoMigrations) {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations to roll back.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %s_%s.\n", m.Version, m.Name)
	return nil
}
