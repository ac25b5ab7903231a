package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/mmynk/rollcall/internal/models"
)

const sheetName = "Attendance"

// XLSX renders records as a single-sheet workbook. Coordinates are written as
// text so the six decimal places survive.
func XLSX(records []models.AttendanceRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, err
	}

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
		return nil, err
	}

	for i, r := range records {
		cells := row(r)
		values := make([]any, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		values[5] = r.Accuracy

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 24); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "B", "G", 16); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
