package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"fuelimport/internal/config"
	"fuelimport/internal/datasource"
	"fuelimport/internal/domain"
	"fuelimport/internal/mapper"
	"fuelimport/internal/parser/csv"
)

// probeReport describes an export before it is imported.
type probeReport struct {
	Delimiter  string                  `json:"delimiter"`
	Header     []string                `json:"header"`
	DataRows   int                     `json:"dataRows"`
	RowErrors  []domain.RowDiagnostics `json:"rowErrors,omitempty"`
	Resolved   map[domain.Field]string `json:"resolved,omitempty"`
	Unresolved []domain.Field          `json:"unresolved,omitempty"`
}

func newProbeCmd(g *globals) *cobra.Command {
	var delimiter string
	cmd := &cobra.Command{
		Use:   "probe FILE|URL",
		Short: "Detect the delimiter and header of an export and check the mapping against it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := g.loadJob()
			if err != nil {
				return err
			}
			rep, err := probe(cmd, g, job, args[0], delimiter)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		},
	}
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "force \",\" or \";\" instead of detecting it")
	return cmd
}

func probe(cmd *cobra.Command, g *globals, job config.Job, arg, delimiter string) (probeReport, error) {
	var rep probeReport
	data, err := datasource.ReadAll(cmd.Context(), sourceFor(arg), 0)
	if err != nil {
		return rep, err
	}
	var hint rune
	if delimiter != "" {
		hint = []rune(delimiter)[0]
	}
	doc, err := csv.Parse(data, hint)
	if err != nil {
		return rep, err
	}
	rep.Delimiter = string(doc.Delimiter())
	rep.Header = doc.Header().Names()

	rows, rowErrs, err := doc.ReadAll(cmd.Context())
	if err != nil {
		return rep, err
	}
	rep.DataRows = len(rows) + len(rowErrs)
	for _, e := range rowErrs {
		rep.RowErrors = append(rep.RowErrors, domain.RowDiagnostics{RowIndex: e.Index, Line: e.Line, Reasons: []domain.Diagnostic{e.Diagnostic()}})
	}

	m, ok, err := g.resolveMapping(job)
	if err != nil {
		return rep, err
	}
	if !ok {
		return rep, nil
	}
	plan, err := mapper.Compile(doc.Header(), m, mapper.Options{})
	if err != nil {
		return rep, fmt.Errorf("compile mapping: %w", err)
	}
	rep.Unresolved = plan.Unresolved()
	missing := make(map[domain.Field]bool, len(rep.Unresolved))
	for _, f := range rep.Unresolved {
		missing[f] = true
	}
	rep.Resolved = map[domain.Field]string{}
	for f, spec := range m {
		if !missing[f] {
			rep.Resolved[f] = spec.Column
		}
	}
	return rep, nil
}
