package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/legacy-migrator/modules/migration/domain"
)

const (
	summarySheet = "Summary"
	rowsSheet    = "Rows"
)

var rowHeaders = []interface{}{
	"File", "Row", "Line", "Outcome", "Created IDs", "Merged IDs", "Detail",
}

// ExportReportXLSX renders a report as a workbook with a summary sheet and one
// line per source row.
func ExportReportXLSX(report *domain.MigrationReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	summary := [][]interface{}{
		{"Report", report.ID.String()},
		{"Session", report.SessionID.String()},
		{"Tenant", report.TenantID.String()},
		{"Plan", report.PlanID.String()},
		{"Plan fingerprint", report.Fingerprint},
		{"Dry run", report.DryRun},
		{"Canceled", report.Canceled},
		{"Started", report.StartedAt.Format(time.RFC3339)},
		{"Finished", report.FinishedAt.Format(time.RFC3339)},
		{"Elapsed", report.Elapsed.String()},
	}
	for _, o := range domain.Outcomes {
		summary = append(summary, []interface{}{"Rows " + string(o), report.Counts[o]})
	}
	for _, entity := range []domain.EntityType{domain.EntityCustomer, domain.EntityAddress, domain.EntityDeliveryZone} {
		summary = append(summary, []interface{}{"Created " + string(entity), report.Created[entity]})
	}
	for i, line := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		row := line
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetColStyle(summarySheet, "A", bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 28); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(rowsSheet); err != nil {
		return nil, err
	}
	header := rowHeaders
	if err := f.SetSheetRow(rowsSheet, "A1", &header); err != nil {
		return nil, err
	}
	last, err := excelize.CoordinatesToCellName(len(rowHeaders), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(rowsSheet, "A1", last, bold); err != nil {
		return nil, err
	}
	for i, res := range report.Results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			res.SourceFile,
			res.SourceRowIndex,
			res.Line,
			string(res.Outcome),
			strings.Join(res.CreatedEntityIDs, ", "),
			strings.Join(res.MergedEntityIDs, ", "),
			res.ErrorDetail,
		}
		if err := f.SetSheetRow(rowsSheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if err := f.AutoFilter(rowsSheet, "A1:"+last, nil); err != nil {
		return nil, err
	}
	if err := f.SetPanes(rowsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write report workbook: %w", err)
	}
	return buf.Bytes(), nil
}
