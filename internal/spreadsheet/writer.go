// Package spreadsheet writes projected interval rows to an .xlsx workbook.
package spreadsheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/intervalmerge/internal/measurement"
	"github.com/xuri/excelize/v2"
)

// DefaultFileName is the workbook name used when none is configured.
const DefaultFileName = "Wernau_Output.xlsx"

// SheetName is the single worksheet written.
const SheetName = "Sheet1"

// TimestampFormat is the Excel number format applied to the first column.
const TimestampFormat = "dd.mm.yyyy hh:mm"

// ErrNoData is returned when there are no rows to write. No file is created.
var ErrNoData = errors.New("no data to save")

// Header builds the output header for two selected columns.
func Header(col1, col2 string) []string {
	return []string{measurement.HeaderToken, col1, col2}
}

// Write saves rows to path as a workbook with header as its first row.
// Timestamps are stored as Excel dates, values as text exactly as read.
func Write(path string, header []string, rows []measurement.ProjectedRow) error {
	if len(rows) == 0 {
		return ErrNoData
	}
	if len(header) != 3 {
		return fmt.Errorf("header must have 3 columns, got %d", len(header))
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(SheetName, "A1", &[]any{header[0], header[1], header[2]}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{row.At.Time(), row.Value1, row.Value2}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	numFmt := TimestampFormat
	style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return fmt.Errorf("timestamp style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A2", last, style); err != nil {
		return fmt.Errorf("apply timestamp style: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", "A", 18); err != nil {
		return fmt.Errorf("column width: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", filepath.Base(path), err)
	}
	return nil
}
