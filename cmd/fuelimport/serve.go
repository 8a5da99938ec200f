package main

import (
	"github.com/spf13/cobra"

	"fuelimport/internal/config"
	"fuelimport/internal/pipeline"
	"fuelimport/internal/server"
)

func newServeCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the import pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := g.logger(cmd)
			job, err := g.loadJob()
			if err != nil {
				return err
			}
			// A mapping is optional here; requests may bring their own.
			issues := config.ValidateJob(job)
			var blocking []config.Issue
			for _, iss := range issues {
				if iss.Severity == config.SeverityError && iss.Path != "mapping" {
					blocking = append(blocking, iss)
				}
			}
			printIssues(cmd.ErrOrStderr(), issues)
			if len(blocking) > 0 {
				return blocking[0]
			}
			mapping, _, err := g.resolveMapping(job)
			if err != nil {
				return err
			}
			if addr != "" {
				job.Server.Addr = addr
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			flush := setupMetrics(job, logger)
			defer flush()

			repo, err := openStorage(ctx, job, logger)
			if err != nil {
				return err
			}
			defer repo.Close()

			p := pipeline.FromRepository(repo, pipeline.WithLogger(logger), pipeline.WithVerbose(g.verbose))
			srv := server.New(server.Config{
				Addr:           job.Server.Addr,
				AllowedOrigins: job.Server.AllowedOrigins,
				MaxUploadBytes: job.Server.MaxUploadBytes,
				Defaults:       pipeline.OptionsFromConfig(job),
				Mapping:        mapping,
			}, p, logger)
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; overrides server.addr")
	return cmd
}
