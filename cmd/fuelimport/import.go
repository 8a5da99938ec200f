package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"fuelimport/internal/datasource"
	"fuelimport/internal/pipeline"
	"fuelimport/internal/skiplog"
)

type importFlags struct {
	rejects   string
	warnings  bool
	dryRun    bool
	delimiter string
	batchSize int
	maxBytes  int64
}

func newImportCmd(g *globals) *cobra.Command {
	f := &importFlags{}
	cmd := &cobra.Command{
		Use:   "import FILE|URL",
		Short: "Import one CSV export and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, g, f, args[0])
		},
	}
	cmd.Flags().StringVar(&f.rejects, "rejects", "", "write failed and skipped rows to this CSV file")
	cmd.Flags().BoolVar(&f.warnings, "rejects-warnings", false, "include warnings of imported rows in the rejects file")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "run every stage except the loader")
	cmd.Flags().StringVar(&f.delimiter, "delimiter", "", "force \",\" or \";\" instead of detecting it")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "override options.batch_size")
	cmd.Flags().Int64Var(&f.maxBytes, "max-bytes", 0, "refuse exports larger than this (default 256 MiB)")
	return cmd
}

func runImport(cmd *cobra.Command, g *globals, f *importFlags, arg string) error {
	logger := g.logger(cmd)
	job, err := g.loadValidJob(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if f.delimiter != "" {
		job.Parser.Delimiter = f.delimiter
	}
	if f.batchSize > 0 {
		job.Options.BatchSize = f.batchSize
	}
	mapping, _, err := g.resolveMapping(job)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	data, err := datasource.ReadAll(ctx, sourceFor(arg), f.maxBytes)
	if err != nil {
		return err
	}

	flush := setupMetrics(job, logger)
	defer flush()

	repo, err := openStorage(ctx, job, logger)
	if err != nil {
		return err
	}
	defer repo.Close()

	opt := pipeline.OptionsFromConfig(job)
	opt.DryRun = f.dryRun
	p := pipeline.FromRepository(repo, pipeline.WithLogger(logger), pipeline.WithVerbose(g.verbose))

	res, err := p.ImportCSV(ctx, data, mapping, opt)
	if err != nil {
		return err
	}

	if f.rejects != "" {
		n, err := skiplog.WriteFile(f.rejects, res, f.warnings)
		if err != nil {
			return err
		}
		logger.Printf("rejects: wrote %d lines to %s", n, f.rejects)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if res.Cancelled {
		return fmt.Errorf("import cancelled: %d rows pending", res.PendingCount)
	}
	return nil
}
