package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Grades"

// XLSXExporter renders grade sheets as a single-sheet workbook.
type XLSXExporter struct{}

// NewXLSXExporter constructs an XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Render writes a bold, frozen, filterable header row. Numeric cells are stored as numbers
// displayed with two decimals.
func (e *XLSXExporter) Render(data Dataset, sheet string) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = defaultSheet
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	decimal := "0.00"
	number, err := f.NewStyle(&excelize.Style{CustomNumFmt: &decimal})
	if err != nil {
		return nil, fmt.Errorf("create number style: %w", err)
	}

	for i, col := range data.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellStr(sheet, cell, col.Header); err != nil {
			return nil, fmt.Errorf("write header %s: %w", col.Header, err)
		}
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, name, name, 20)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(data.Columns), 1)
	_ = f.SetCellStyle(sheet, "A1", lastHeader, bold)

	writeRow := func(r int, row []string) error {
		for i, value := range row {
			cell, _ := excelize.CoordinatesToCellName(i+1, r)
			if data.Columns[i].Numeric && value != "" {
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return fmt.Errorf("cell %s: %w", cell, err)
				}
				if err := f.SetCellFloat(sheet, cell, v, -1, 64); err != nil {
					return fmt.Errorf("write cell %s: %w", cell, err)
				}
				_ = f.SetCellStyle(sheet, cell, cell, number)
				continue
			}
			if err := f.SetCellStr(sheet, cell, value); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
		return nil
	}
	for r, row := range data.Rows {
		if err := writeRow(r+2, row); err != nil {
			return nil, err
		}
	}
	if len(data.Rows) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(data.Columns), len(data.Rows)+1)
		if err := f.AutoFilter(sheet, "A1:"+lastCell, nil); err != nil {
			return nil, fmt.Errorf("add filter: %w", err)
		}
	}
	if data.Footer != nil {
		footerRow := len(data.Rows) + 2
		if err := writeRow(footerRow, data.Footer); err != nil {
			return nil, err
		}
		first, _ := excelize.CoordinatesToCellName(1, footerRow)
		_ = f.SetCellStyle(sheet, first, first, bold)
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
