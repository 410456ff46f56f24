package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
	"github.com/iota-uz/legacy-migrator/modules/migration/services"
)

type executeOptions struct {
	operator operatorFlags
	mapping  string
	report   string
	apply    bool
	offline  bool
	strict   bool
}

type executeSummary struct {
	Status      string                    `json:"status"`
	SessionID   string                    `json:"session_id"`
	ReportID    string                    `json:"report_id"`
	TenantID    string                    `json:"tenant_id"`
	Fingerprint string                    `json:"plan_fingerprint"`
	Apply       bool                      `json:"apply"`
	Canceled    bool                      `json:"canceled"`
	Counts      map[domain.Outcome]int    `json:"counts"`
	Created     map[domain.EntityType]int `json:"created"`
	Staged      map[domain.EntityType]int `json:"staged,omitempty"`
	ElapsedMs   int64                     `json:"elapsed_ms"`
}

func newExecuteCmd() *cobra.Command {
	var opts executeOptions

	cmd := &cobra.Command{
		Use:   "execute [files or directories...]",
		Short: "Import legacy files with a confirmed mapping (dry-run by default)",
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.operator.parse()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd.Context(), cmd.OutOrStdout(), opts, args)
		},
	}
	opts.operator.register(cmd)
	cmd.Flags().StringVar(&opts.mapping, "mapping", "", "YAML mapping file (required)")
	cmd.Flags().StringVar(&opts.report, "report", "", "Write the report to this path (.json or .xlsx)")
	cmd.Flags().BoolVar(&opts.apply, "apply", false, "Write to the store (default is dry-run)")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Dry-run against an empty in-memory store, without a database")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Exit non-zero when any row was skipped or failed")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

func runExecute(ctx context.Context, out io.Writer, opts executeOptions, paths []string) error {
	files, err := loadSourceFiles(paths)
	if err != nil {
		return err
	}
	mapping, err := readMappingFile(opts.mapping)
	if err != nil {
		return err
	}
	eng, err := buildEngine(ctx, engineOptions{apply: opts.apply, offline: opts.offline})
	if err != nil {
		return err
	}
	defer eng.close()

	result, err := eng.sessions.StartAnalyze(ctx, files, opts.operator.tenantID, opts.operator.identity)
	if err != nil {
		return classify(err)
	}

	var resolveOpts []services.ResolveOption
	if mapping.DedupStrategy != "" {
		resolveOpts = append(resolveOpts, services.ResolveWithDedupStrategy(mapping.DedupStrategy))
	}
	if _, err := eng.sessions.SubmitMapping(ctx, result.SessionID, mapping.ColumnMapping(), mapping.ValueMapping(), resolveOpts...); err != nil {
		return classify(err)
	}

	var report *domain.MigrationReport
	err = eng.guard.Run(ctx, opts.operator.tenantID, func(ctx context.Context) error {
		var runErr error
		report, runErr = eng.sessions.Execute(ctx, result.SessionID)
		return runErr
	})
	if err != nil {
		return classify(err)
	}

	if opts.report != "" {
		if err := writeReport(opts.report, report); err != nil {
			return err
		}
	}

	status := "dry_run"
	if opts.apply {
		status = "applied"
	}
	if report.Canceled {
		status = "canceled"
	}
	summary := executeSummary{
		Status:      status,
		SessionID:   result.SessionID.String(),
		ReportID:    report.ID.String(),
		TenantID:    opts.operator.tenantID.String(),
		Fingerprint: report.Fingerprint,
		Apply:       opts.apply,
		Canceled:    report.Canceled,
		Counts:      report.Counts,
		Created:     report.Created,
		ElapsedMs:   report.Elapsed.Milliseconds(),
	}
	if eng.staged != nil {
		summary.Staged = make(map[domain.EntityType]int)
		for _, entity := range []domain.EntityType{domain.EntityCustomer, domain.EntityAddress, domain.EntityDeliveryZone} {
			summary.Staged[entity] = eng.staged.Count(opts.operator.tenantID, entity)
		}
	}
	if err := writeJSONLine(out, summary); err != nil {
		return err
	}
	if opts.strict && report.NeedsAttention() {
		return withCode(exitNeedsAttention, fmt.Errorf("%d rows skipped, %d rows failed",
			report.Count(domain.OutcomeSkippedInvalid), report.Count(domain.OutcomeFailed)))
	}
	return nil
}

func writeReport(path string, report *domain.MigrationReport) error {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		b, err := services.ExportReportXLSX(report)
		if err != nil {
			return withCode(exitDB, fmt.Errorf("export report: %w", err))
		}
		return writeFile(path, b)
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return withCode(exitDB, fmt.Errorf("json marshal: %w", err))
	}
	return writeFile(path, b)
}
