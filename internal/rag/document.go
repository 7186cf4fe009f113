// Package rag turns table rows into retrievable text units and builds the
// vector index the chat engine retrieves from.
package rag

import (
	"fmt"
	"strconv"
	"strings"

	"loganalyzer/internal/tabular"
)

// DocumentUnit is the text form of one table row.
type DocumentUnit struct {
	ID   string `json:"id"`
	Row  int    `json:"row"`
	Text string `json:"text"`
}

// UnitID is stable for a (file name, row index) pair.
func UnitID(fileName string, row int) string {
	return fileName + "_row_" + strconv.Itoa(row)
}

// RowsToDocuments produces one unit per row, in row order. An empty or nil
// table yields no units; callers warn instead of building.
func RowsToDocuments(fileName string, table *tabular.Table) []DocumentUnit {
	if table.Len() == 0 {
		return nil
	}

	units := make([]DocumentUnit, len(table.Rows))
	for i, row := range table.Rows {
		pairs := make([]string, len(table.Columns))
		for j, col := range table.Columns {
			val := ""
			if j < len(row) {
				val = row[j]
			}
			pairs[j] = col + ": " + val
		}
		units[i] = DocumentUnit{
			ID:   UnitID(fileName, i),
			Row:  i,
			Text: fmt.Sprintf("Row %d: %s", i, strings.Join(pairs, ", ")),
		}
	}
	return units
}
