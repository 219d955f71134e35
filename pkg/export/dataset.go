package export

import (
	"fmt"
	"strconv"
)

// Column describes one grade sheet column. Numeric columns hold decimal strings or "".
type Column struct {
	Header  string
	Numeric bool
}

// Dataset is an ordered table: every row and the optional footer have one cell per column.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    [][]string
	Footer  []string
}

// Validate checks the table shape before rendering.
func (d Dataset) Validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("dataset requires at least one column")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(d.Columns))
		}
	}
	if d.Footer != nil && len(d.Footer) != len(d.Columns) {
		return fmt.Errorf("footer has %d cells, want %d", len(d.Footer), len(d.Columns))
	}
	return nil
}

// Headers lists the column headers in order.
func (d Dataset) Headers() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Header
	}
	return out
}

// Mean averages the non-empty numeric cells of column idx. ok is false when there are none.
func (d Dataset) Mean(idx int) (mean float64, ok bool) {
	var sum float64
	var n int
	for _, row := range d.Rows {
		if row[idx] == "" {
			continue
		}
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
