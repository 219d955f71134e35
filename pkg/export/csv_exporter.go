package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// CSVExporter renders grade sheets as CSV.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes headers, rows and footer. Text cells that a spreadsheet would evaluate as a
// formula are prefixed with a quote.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers()); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	rows := data.Rows
	if data.Footer != nil {
		rows = append(rows[:len(rows):len(rows)], data.Footer)
	}
	for _, row := range rows {
		record := make([]string, len(row))
		for i, cell := range row {
			if data.Columns[i].Numeric {
				record[i] = cell
				continue
			}
			record[i] = neutralizeFormula(cell)
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func neutralizeFormula(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
