package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"fuelimport/internal/storage"
	"fuelimport/internal/storage/postgres"
)

func newMigrateCmd(g *globals) *cobra.Command {
	var (
		down    int
		version bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the storage schema",
		Long: "Postgres schemas are versioned migrations; --down and --version apply to them only.\n" +
			"Other backends run their idempotent bootstrap script.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := g.logger(cmd)
			job, err := g.loadJob()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if job.Storage.Kind == "postgres" {
				switch {
				case version:
					v, dirty, err := postgres.MigrationVersion(job.Storage.DSN)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "version=%d dirty=%t\n", v, dirty)
					return nil
				case down > 0:
					if err := postgres.MigrateDown(job.Storage.DSN, down); err != nil {
						return err
					}
					fmt.Fprintf(out, "migrated down %d step(s)\n", down)
					return nil
				}
				err := postgres.MigrateUp(job.Storage.DSN)
				if err == nil {
					fmt.Fprintln(out, "migrations applied")
					return nil
				}
				if !errors.Is(err, postgres.ErrKeywordDSN) {
					return err
				}
				logger.Printf("migrate: keyword DSN; falling back to plain bootstrap")
			} else if down > 0 || version {
				return fmt.Errorf("--down and --version require storage.kind=postgres, got %q", job.Storage.Kind)
			}

			repo, err := storage.New(cmd.Context(), storage.Config{Kind: job.Storage.Kind, DSN: job.Storage.DSN, Options: job.Storage.Options})
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer repo.Close()
			if err := storage.EnsureSchema(cmd.Context(), job.Storage.Kind, repo); err != nil {
				return fmt.Errorf("bootstrap schema: %w", err)
			}
			fmt.Fprintf(out, "schema ready for %s\n", job.Storage.Kind)
			return nil
		},
	}
	cmd.Flags().IntVar(&down, "down", 0, "roll back N migrations (postgres)")
	cmd.Flags().BoolVar(&version, "version", false, "print the current migration version (postgres)")
	return cmd
}
