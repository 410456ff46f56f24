package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/iota-uz/legacy-migrator/modules/migration/infrastructure/persistence"
	"github.com/iota-uz/legacy-migrator/pkg/configuration"
)

type migrateDBSummary struct {
	Status  string `json:"status"`
	Applied int    `json:"applied,omitempty"`
}

func newMigrateDBCmd() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate-db",
		Short: "Apply the migration engine schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateDB(cmd.Context(), cmd.OutOrStdout(), down)
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "Roll back the most recent schema version")
	return cmd
}

func runMigrateDB(ctx context.Context, out io.Writer, down bool) error {
	conf := configuration.Use()
	pool, err := connectDB(ctx, conf)
	if err != nil {
		return withCode(exitDB, err)
	}
	defer pool.Close()

	if down {
		if err := persistence.MigrateDown(ctx, pool); err != nil {
			return withCode(exitDBWrite, fmt.Errorf("migrate down: %w", err))
		}
		return writeJSONLine(out, migrateDBSummary{Status: "rolled_back"})
	}
	n, err := persistence.MigrateUp(ctx, pool, conf.Logger().WithField("component", "migration.schema"))
	if err != nil {
		return withCode(exitDBWrite, fmt.Errorf("migrate up: %w", err))
	}
	return writeJSONLine(out, migrateDBSummary{Status: "migrated", Applied: n})
}
