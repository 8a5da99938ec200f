package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"fuelimport/internal/config"
	"fuelimport/internal/datasource"
	"fuelimport/internal/datasource/file"
	"fuelimport/internal/datasource/httpds"
	"fuelimport/internal/domain"
	"fuelimport/internal/mapper"
	"fuelimport/internal/storage"
)

// globals are the persistent flags shared by every subcommand.
type globals struct {
	cfgPath string
	mapping string
	verbose bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "fuelimport",
		Short:        "Import fleet refuel exports and flag implausible entries",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.cfgPath, "config", "c", "", "job config file (YAML or JSON)")
	root.PersistentFlags().StringVarP(&g.mapping, "mapping", "m", "", "column mapping file; overrides the job's mapping")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(
		newImportCmd(g),
		newProbeCmd(g),
		newCheckCmd(g),
		newMigrateCmd(g),
		newServeCmd(g),
	)
	return root
}

// logger writes to stderr so stdout stays machine-readable.
func (g *globals) logger(cmd *cobra.Command) *log.Logger {
	return log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
}

// loadJob reads the job file and applies the --mapping override.
func (g *globals) loadJob() (config.Job, error) {
	job, err := config.Load(g.cfgPath)
	if err != nil {
		return config.Job{}, err
	}
	if g.mapping != "" {
		job.MappingFile = g.mapping
		job.Mapping = nil
	}
	return job, nil
}

// loadValidJob is loadJob plus lint; errors are printed and fail the command.
func (g *globals) loadValidJob(w io.Writer) (config.Job, error) {
	job, err := g.loadJob()
	if err != nil {
		return job, err
	}
	issues := config.ValidateJob(job)
	printIssues(w, issues)
	if config.HasErrors(issues) {
		return job, fmt.Errorf("configuration is invalid: %s", describeConfig(g.cfgPath))
	}
	return job, nil
}

// resolveMapping returns the --mapping file, else the job mapping. ok is
// false when neither is set.
func (g *globals) resolveMapping(job config.Job) (domain.ColumnMapping, bool, error) {
	if g.mapping != "" {
		m, err := mapper.LoadMappingFile(g.mapping)
		return m, err == nil, err
	}
	if job.MappingFile == "" && len(job.Mapping) == 0 {
		return nil, false, nil
	}
	m, err := job.ColumnMapping()
	return m, err == nil, err
}

func printIssues(w io.Writer, issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
}

func describeConfig(path string) string {
	if path == "" {
		return "(defaults and environment)"
	}
	return path
}

// sourceFor picks the datasource for a CLI argument.
func sourceFor(arg string) datasource.Source {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return httpds.NewRemote(httpds.NewClient(httpds.Config{MaxRetries: 3}), arg)
	}
	return file.NewLocal(arg)
}

// openStorage opens the configured backend and, unless
// storage.options.bootstrap is false, brings its schema up to date.
func openStorage(ctx context.Context, job config.Job, logger *log.Logger) (storage.Repository, error) {
	repo, err := storage.New(ctx, storage.Config{Kind: job.Storage.Kind, DSN: job.Storage.DSN, Options: job.Storage.Options})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if job.Storage.Options.Bool("bootstrap", true) {
		if err := storage.EnsureSchema(ctx, job.Storage.Kind, repo); err != nil {
			repo.Close()
			return nil, fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	logger.Printf("storage: kind=%s ready", job.Storage.Kind)
	return repo, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
