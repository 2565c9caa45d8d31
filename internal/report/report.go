// Package report writes the outcome of an upload run as a spreadsheet or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/matflow/internal/config"
	"github.com/Veraticus/matflow/internal/model"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	outcomesSheet = "Outcomes"
	journalSheet  = "Journal"
)

// Report is everything written for one batch.
type Report struct {
	GeneratedAt time.Time            `json:"generated_at"`
	BatchID     string               `json:"batch_id"`
	Journal     []model.JournalEntry `json:"journal,omitempty"`
	Result      model.BatchResult    `json:"result"`
	Threshold   float64              `json:"threshold"`
}

// Write picks the format from the file extension: .json writes JSON, anything
// else an xlsx workbook.
func Write(path string, r Report) error {
	path = config.ExpandPath(path)
	if err := config.EnsureParentDir(path); err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		f, err := os.Create(path) // #nosec G304 -- operator-selected path
		if err != nil {
			return fmt.Errorf("failed to create report %s: %w", path, err)
		}
		if err := WriteJSON(f, r); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	return WriteXLSX(path, r)
}

// WriteJSON encodes the report as indented JSON.
func WriteJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteXLSX writes a workbook with a summary tab, one row per file outcome
// and, when present, the journal entries of the batch.
func WriteXLSX(path string, r Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(outcomesSheet); err != nil {
		return fmt.Errorf("failed to add sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRows(f, summarySheet, summaryRows(r), 0); err != nil {
		return err
	}
	if err := writeRows(f, outcomesSheet, outcomeRows(r.Result), headerStyle); err != nil {
		return err
	}
	if len(r.Journal) > 0 {
		if _, err := f.NewSheet(journalSheet); err != nil {
			return fmt.Errorf("failed to add sheet: %w", err)
		}
		if err := writeRows(f, journalSheet, journalRows(r.Journal), headerStyle); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
	_ = f.SetColWidth(outcomesSheet, "A", "A", 40)
	_ = f.SetColWidth(outcomesSheet, "C", "C", 60)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	if headerStyle != 0 && len(rows) > 0 {
		if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
			return fmt.Errorf("failed to style %s header: %w", sheet, err)
		}
	}
	return nil
}

func summaryRows(r Report) [][]any {
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	return [][]any{
		{"Batch", r.BatchID},
		{"Generated", generated.Format(time.RFC3339)},
		{"Threshold", r.Threshold},
		{"Files", r.Result.Total()},
		{"Succeeded", r.Result.SuccessCount},
		{"Failed", r.Result.FailureCount},
	}
}

func outcomeRows(result model.BatchResult) [][]any {
	rows := make([][]any, 0, result.Total()+1)
	rows = append(rows, []any{"File", "Outcome", "Detail"})
	for _, o := range result.Successes {
		rows = append(rows, []any{o.Filename, "success", o.Detail})
	}
	for _, o := range result.Failures {
		rows = append(rows, []any{o.Filename, "failure", o.Detail})
	}
	return rows
}

func journalRows(entries []model.JournalEntry) [][]any {
	rows := make([][]any, 0, len(entries)+1)
	rows = append(rows, []any{"Time", "File", "Status", "Product", "Type", "Material ID", "Detail"})
	for _, e := range entries {
		var materialID any = ""
		if e.MaterialID != nil {
			materialID = *e.MaterialID
		}
		rows = append(rows, []any{
			e.CreatedAt.Format(time.RFC3339),
			e.Filename,
			e.Status,
			e.ProductName,
			string(e.MaterialType),
			materialID,
			e.Detail,
		})
	}
	return rows
}
