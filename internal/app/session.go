package app

import (
	"sync"
	"time"

	"loganalyzer/internal/ai"
	"loganalyzer/internal/tabular"
)

// Session is the state of one interactive client. All fields are guarded by
// mu; the orchestrator holds it for a whole interaction.
type Session struct {
	ID string

	mu       sync.Mutex
	fileName string
	table    *tabular.Table
	engine   *ChatEngine
	// builds caches ready engines by file name. At most one entry is live:
	// switching files invalidates the old name.
	builds   map[string]*ChatEngine
	messages []ai.ChatMessage

	lastSeen time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:       id,
		builds:   make(map[string]*ChatEngine),
		lastSeen: now,
	}
}

// FileSummary describes the file currently bound to a session.
type FileSummary struct {
	FileName  string         `json:"file_name"`
	Ready     bool           `json:"ready"`
	Columns   []string       `json:"columns"`
	Preview   *tabular.Table `json:"preview"`
	RowCount  int            `json:"row_count"`
	TotalRows int            `json:"total_rows"`
	Truncated bool           `json:"truncated"`
}

func (s *Session) Messages() []ai.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ai.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// File reports the bound file, or nil when nothing is loaded.
func (s *Session) File(previewRows int) *FileSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fileName == "" || s.table == nil {
		return nil
	}
	return &FileSummary{
		FileName:  s.fileName,
		Ready:     s.engine != nil,
		Columns:   s.table.Columns,
		Preview:   s.table.Head(previewRows),
		RowCount:  s.table.Len(),
		TotalRows: s.table.TotalRows,
		Truncated: s.table.Truncated,
	}
}

func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine != nil
}

// clearFile drops the bound file and every cached build. Callers hold mu.
func (s *Session) clearFile() {
	s.fileName = ""
	s.table = nil
	s.engine = nil
	clear(s.builds)
}
