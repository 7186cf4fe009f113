package rag

import (
	"fmt"
	"strconv"
)

// Chunk is the unit that actually gets embedded. Short rows map to exactly
// one chunk that shares the unit's id.
type Chunk struct {
	ID     string
	UnitID string
	Row    int
	Text   string
}

// SplitUnits splits every unit longer than size runes into overlapping
// windows. Continuation windows are re-prefixed with their row number so each
// chunk still says where it came from.
func SplitUnits(units []DocumentUnit, size, overlap int) []Chunk {
	chunks := make([]Chunk, 0, len(units))
	for _, u := range units {
		parts := splitText(u.Text, size, overlap)
		if len(parts) == 1 {
			chunks = append(chunks, Chunk{ID: u.ID, UnitID: u.ID, Row: u.Row, Text: u.Text})
			continue
		}
		for k, part := range parts {
			text := part
			if k > 0 {
				text = fmt.Sprintf("Row %d (continued): %s", u.Row, part)
			}
			chunks = append(chunks, Chunk{
				ID:     u.ID + "#" + strconv.Itoa(k),
				UnitID: u.ID,
				Row:    u.Row,
				Text:   text,
			})
		}
	}
	return chunks
}

// splitText splits text into overlapping windows by rune count.
func splitText(text string, size, overlap int) []string {
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 2
	}

	var parts []string
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[i:end]))
		if end == len(runes) {
			break
		}
		i += size - overlap
	}
	return parts
}
