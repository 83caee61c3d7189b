package normalize

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX exports the report as a workbook with summary, outcomes and
// offenders sheets.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), "summary"); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	summary := [][]any{
		{"metric", "value"},
		{"started_at", r.StartedAt.Format(time.RFC3339)},
		{"finished_at", r.FinishedAt.Format(time.RFC3339)},
		{"dry_run", r.DryRun},
		{"total", r.Total},
		{"candidates", r.Candidates},
		{"migrated", r.Migrated},
		{"skipped", r.Skipped},
		{"anomalies", r.Anomalies},
		{"failed", r.Failed},
		{"planned", r.Planned},
		{"documents_with_new_format", r.Verification.DocumentsWithNewFormat},
		{"documents_with_old_format", r.Verification.DocumentsWithOldFormat},
		{"remaining_offenders", len(r.Verification.RemainingOffenders)},
	}
	if err := writeRows(f, "summary", summary); err != nil {
		return err
	}

	if _, err := f.NewSheet("outcomes"); err != nil {
		return fmt.Errorf("create outcomes sheet: %w", err)
	}
	outcomes := [][]any{{"document_id", "action", "set", "unset", "error"}}
	for _, o := range r.Outcomes {
		outcomes = append(outcomes, []any{
			o.DocumentID,
			string(o.Action),
			strings.Join(sortedKeys(o.Set), ","),
			strings.Join(o.Unset, ","),
			o.Error,
		})
	}
	if err := writeRows(f, "outcomes", outcomes); err != nil {
		return err
	}

	if _, err := f.NewSheet("offenders"); err != nil {
		return fmt.Errorf("create offenders sheet: %w", err)
	}
	offenders := [][]any{{"document_id"}}
	for _, id := range r.Verification.RemainingOffenders {
		offenders = append(offenders, []any{id})
	}
	if err := writeRows(f, "offenders", offenders); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
