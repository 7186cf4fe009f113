// Package tabular parses uploaded CSV files into row-oriented tables whose
// cells are already strings.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrNoColumns    = errors.New("no columns to parse from file")
	ErrRowTooLong   = errors.New("row has more fields than the header")
	ErrInvalidInput = errors.New("invalid csv input")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Table is immutable once parsed.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	// TotalRows counts every data row in the source, including the ones
	// dropped by the row ceiling.
	TotalRows int  `json:"total_rows"`
	Truncated bool `json:"truncated"`
}

// ParseCSV reads a header row followed by data rows. When maxRows is positive
// only the first maxRows data rows are kept; the rest are counted but dropped.
func ParseCSV(r io.Reader, maxRows int) (*Table, error) {
	if r == nil {
		return nil, ErrInvalidInput
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv failed: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoColumns
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header failed: %w", err)
	}
	if len(header) == 0 || (len(header) == 1 && strings.TrimSpace(header[0]) == "") {
		return nil, ErrNoColumns
	}

	table := &Table{Columns: dedupeColumns(header)}
	width := len(table.Columns)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv failed: %w", err)
		}
		if len(record) > width {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected %d fields, saw %d: %w", line, width, len(record), ErrRowTooLong)
		}

		table.TotalRows++
		if maxRows > 0 && len(table.Rows) >= maxRows {
			table.Truncated = true
			continue
		}
		if len(record) < width {
			padded := make([]string, width)
			copy(padded, record)
			record = padded
		}
		table.Rows = append(table.Rows, record)
	}

	return table, nil
}

// Len is the number of rows kept after truncation.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Head returns a table holding at most the first n rows.
func (t *Table) Head(n int) *Table {
	if t == nil {
		return nil
	}
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{
		Columns:   t.Columns,
		Rows:      t.Rows[:n],
		TotalRows: t.TotalRows,
		Truncated: t.Truncated,
	}
}

// dedupeColumns renames repeated header names to name.1, name.2, ... and
// gives blank headers a positional name so every column stays addressable.
func dedupeColumns(header []string) []string {
	columns := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		candidate := name
		for n := 1; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s.%d", name, n)
		}
		used[candidate] = true
		columns[i] = candidate
	}
	return columns
}
