// Package export renders priced tables to spreadsheet artifacts.
package export

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind controls how a column's cells are formatted.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindMoney
	KindPercent
	KindImage
)

// Column describes one table column.
type Column struct {
	Header string
	Kind   Kind
	Width  float64
}

// Row is one data row. Cells align with Table.Columns; image columns hold an
// image reference string.
type Row struct {
	Cells     []any
	Highlight bool
}

// Table is a format-agnostic export artifact. Rows keep their source order.
type Table struct {
	Sheet   string
	Title   string
	Summary []string
	Columns []Column
	Rows    []Row
}

// Validate checks every row has one cell per column.
func (t Table) Validate() error {
	if len(t.Columns) == 0 {
		return fmt.Errorf("export: table has no columns")
	}
	for i, r := range t.Rows {
		if len(r.Cells) != len(t.Columns) {
			return fmt.Errorf("export: row %d has %d cells, want %d", i, len(r.Cells), len(t.Columns))
		}
	}
	return nil
}

// Headers returns the column headers in order.
func (t Table) Headers() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Header
	}
	return out
}

// numeric converts the decimal flavours used by callers into a float for the
// spreadsheet cell. ok is false for absent values.
func numeric(v any) (float64, bool) {
	switch d := v.(type) {
	case decimal.Decimal:
		return d.InexactFloat64(), true
	case *decimal.Decimal:
		if d == nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	case decimal.NullDecimal:
		if !d.Valid {
			return 0, false
		}
		return d.Decimal.InexactFloat64(), true
	case int:
		return float64(d), true
	case int64:
		return float64(d), true
	case float64:
		return d, true
	default:
		return 0, false
	}
}
