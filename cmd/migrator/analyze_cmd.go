package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/presentation/controllers/dtos"
)

type analyzeOptions struct {
	operator        operatorFlags
	output          string
	mappingTemplate string
}

type analyzeSummary struct {
	Status     string             `json:"status"`
	SessionID  string             `json:"session_id"`
	TenantID   string             `json:"tenant_id"`
	Files      int                `json:"files"`
	Rows       int                `json:"rows"`
	Rejected   int                `json:"rejected_rows"`
	Mapped     int                `json:"mapped_columns"`
	Unmapped   int                `json:"unmapped_columns"`
	FileErrors []domain.FileError `json:"file_errors,omitempty"`
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [files or directories...]",
		Short: "Parse legacy files and propose a column mapping",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.operator.parse()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}
	opts.operator.register(cmd)
	cmd.Flags().StringVar(&opts.output, "output", "", "Write the full analysis as JSON to this path")
	cmd.Flags().StringVar(&opts.mappingTemplate, "mapping-template", "", "Write the suggested mapping as YAML to this path")
	return cmd
}

func runAnalyze(ctx context.Context, out io.Writer, opts analyzeOptions, paths []string) error {
	files, err := loadSourceFiles(paths)
	if err != nil {
		return err
	}
	eng, err := buildEngine(ctx, engineOptions{offline: true})
	if err != nil {
		return err
	}
	defer eng.close()

	result, err := eng.sessions.StartAnalyze(ctx, files, opts.operator.tenantID, opts.operator.identity)
	if err != nil {
		if result != nil {
			_ = writeJSONLine(out, summarizeAnalysis("failed", opts.operator, result))
		}
		return classify(err)
	}

	if opts.output != "" {
		b, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return withCode(exitDB, fmt.Errorf("json marshal: %w", err))
		}
		if err := writeFile(opts.output, b); err != nil {
			return err
		}
	}
	if opts.mappingTemplate != "" {
		if err := writeMappingFile(opts.mappingTemplate, mappingTemplate(result)); err != nil {
			return err
		}
	}
	return writeJSONLine(out, summarizeAnalysis("analyzed", opts.operator, result))
}

// mappingTemplate turns the suggestions into an editable mapping. Value
// mapped fields get an identity entry per distinct value.
func mappingTemplate(result *domain.AnalysisResult) *dtos.MappingRequest {
	req := &dtos.MappingRequest{Columns: result.SuggestedMapping().Entries()}
	for _, sample := range result.ValueSamples {
		for _, v := range sample.Values {
			if strings.TrimSpace(v) == "" {
				continue
			}
			req.Values = append(req.Values, domain.ValueMappingEntry{Field: sample.Field, Raw: v, Canonical: v})
		}
	}
	return req
}

func summarizeAnalysis(status string, op operatorFlags, result *domain.AnalysisResult) analyzeSummary {
	s := analyzeSummary{
		Status:     status,
		SessionID:  result.SessionID.String(),
		TenantID:   op.tenantID.String(),
		Files:      len(result.Files),
		FileErrors: result.FileErrors,
	}
	for _, f := range result.Files {
		s.Rows += f.Rows
		s.Rejected += len(f.Rejected)
	}
	for _, sug := range result.Suggestions {
		if sug.Field == "" {
			s.Unmapped++
		} else {
			s.Mapped++
		}
	}
	return s
}
