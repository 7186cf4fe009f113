package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"loganalyzer/internal/ai"
	"loganalyzer/internal/model"
	"loganalyzer/internal/rag"
	"loganalyzer/internal/tabular"
)

const defaultPreviewRows = 10

// File statuses reported by SelectFile.
const (
	StatusBuilt  = "built"
	StatusReused = "reused"
	StatusEmpty  = "empty"
)

// IndexBuilder builds a vector index and embeds queries against it.
// *rag.Builder is the production implementation.
type IndexBuilder interface {
	Build(ctx context.Context, units []rag.DocumentUnit) (*rag.Index, rag.BuildStats, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

type OrchestratorConfig struct {
	MaxRows     int
	TopK        int
	MaxHistory  int
	PreviewRows int
}

// UploadedFile is identified by Name alone; Data is never hashed.
type UploadedFile struct {
	Name string
	Data []byte
}

type SelectResult struct {
	FileName  string         `json:"file_name"`
	Status    string         `json:"status"`
	Columns   []string       `json:"columns"`
	Preview   *tabular.Table `json:"preview"`
	RowCount  int            `json:"row_count"`
	TotalRows int            `json:"total_rows"`
	Truncated bool           `json:"truncated"`
	Warning   string         `json:"warning,omitempty"`
	Chunks    int            `json:"chunks,omitempty"`
}

// Turn is one question and its transcript answer. Failed turns carry the
// assistant error entry as Answer.
type Turn struct {
	Question string    `json:"question"`
	Query    string    `json:"query,omitempty"`
	Answer   string    `json:"answer"`
	Sources  []rag.Hit `json:"sources,omitempty"`
	Failed   bool      `json:"failed"`
}

type Orchestrator struct {
	builder  IndexBuilder
	model    ai.ChatModel
	recorder Recorder
	cfg      OrchestratorConfig
}

// NewOrchestrator accepts a nil recorder.
func NewOrchestrator(builder IndexBuilder, chatModel ai.ChatModel, recorder Recorder, cfg OrchestratorConfig) *Orchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.TopK < minTopK {
		cfg.TopK = minTopK
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = defaultPreviewRows
	}
	return &Orchestrator{
		builder:  builder,
		model:    chatModel,
		recorder: recorder,
		cfg:      cfg,
	}
}

func (o *Orchestrator) PreviewRows() int {
	return o.cfg.PreviewRows
}

// SelectFile binds file to the session.
//
// A name different from the bound one clears the transcript, invalidates the
// old build and builds once for the new name. The same name without a ready
// engine builds again and keeps the transcript. The same name with a ready
// engine is reused as is, even if the content changed.
func (o *Orchestrator) SelectFile(ctx context.Context, s *Session, file UploadedFile) (*SelectResult, error) {
	name := strings.TrimSpace(file.Name)
	if name == "" {
		return nil, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if name == s.fileName && s.table != nil {
		if engine, ok := s.builds[name]; ok {
			s.engine = engine
			return o.result(name, StatusReused, s.table, 0), nil
		}
	}

	if name != s.fileName {
		s.messages = nil
		s.clearFile()
	}

	table, err := tabular.ParseCSV(bytes.NewReader(file.Data), o.cfg.MaxRows)
	if err != nil {
		s.clearFile()
		log.Printf("[session %s] parse %s failed: %v", s.ID, name, err)
		return nil, fmt.Errorf("%w: %v", ErrFileParse, err)
	}
	s.fileName = name
	s.table = table
	s.engine = nil

	units := rag.RowsToDocuments(name, table)
	if len(units) == 0 {
		res := o.result(name, StatusEmpty, table, 0)
		res.Warning = "The file has no data rows, so there is nothing to ask about."
		return res, nil
	}

	engine, stats, err := o.ensureEngine(ctx, s, name, units)
	if err != nil {
		return nil, err
	}
	s.engine = engine
	return o.result(name, StatusBuilt, table, stats.Chunks), nil
}

// ensureEngine is the only place an index build is dispatched. A cached
// engine for name is returned without building.
func (o *Orchestrator) ensureEngine(ctx context.Context, s *Session, name string, units []rag.DocumentUnit) (*ChatEngine, rag.BuildStats, error) {
	if engine, ok := s.builds[name]; ok {
		return engine, rag.BuildStats{}, nil
	}

	started := time.Now()
	index, stats, err := o.builder.Build(ctx, units)
	if err != nil {
		log.Printf("[session %s] build index for %s failed: %v", s.ID, name, err)
		return nil, stats, fmt.Errorf("%w: %v", ErrIndexBuild, err)
	}
	elapsed := time.Since(started)
	log.Printf("[session %s] built index for %s: %d rows, %d chunks, %d cached, %s",
		s.ID, name, stats.Units, stats.Chunks, stats.CacheHits, elapsed.Round(time.Millisecond))

	engine := NewChatEngine(name, index, o.builder, o.model, o.cfg.TopK, o.cfg.MaxHistory)
	s.builds[name] = engine

	o.recordBuild(ctx, model.IndexBuild{
		SessionID:  s.ID,
		FileName:   name,
		Rows:       stats.Units,
		Chunks:     stats.Chunks,
		CacheHits:  stats.CacheHits,
		DurationMS: elapsed.Milliseconds(),
		CreatedAt:  time.Now(),
	})
	return engine, stats, nil
}

// Ask runs one chat turn against the bound file and appends it to the
// transcript. Provider failures do not return an error: they become a single
// assistant entry and the turn is marked Failed.
func (o *Orchestrator) Ask(ctx context.Context, s *Session, question string, onToken func(string) error) (*Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrQuestionEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return nil, ErrEngineNotReady
	}

	history := make([]ai.ChatMessage, len(s.messages))
	copy(history, s.messages)

	answer, err := s.engine.Chat(ctx, history, question, onToken)
	o.appendMessage(ctx, s, ai.RoleUser, question)

	if err != nil {
		log.Printf("[session %s] chat turn failed: %v", s.ID, err)
		text := "Sorry, I could not answer that: " + errorText(err)
		o.appendMessage(ctx, s, ai.RoleAssistant, text)
		return &Turn{Question: question, Answer: text, Failed: true}, nil
	}

	o.appendMessage(ctx, s, ai.RoleAssistant, answer.Text)
	return &Turn{
		Question: question,
		Query:    answer.Query,
		Answer:   answer.Text,
		Sources:  answer.Sources,
	}, nil
}

// Reset drops the bound file, every cached build and the transcript,
// including the persisted copy of the transcript.
func (o *Orchestrator) Reset(ctx context.Context, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.clearFile()
	if o.recorder == nil {
		return
	}
	if err := o.recorder.ForgetSession(ctx, s.ID); err != nil {
		log.Printf("[session %s] forget persisted transcript failed: %v", s.ID, err)
	}
}

func (o *Orchestrator) appendMessage(ctx context.Context, s *Session, role, content string) {
	s.messages = append(s.messages, ai.ChatMessage{Role: role, Content: content})
	if o.recorder == nil {
		return
	}
	err := o.recorder.RecordMessage(ctx, model.Message{
		SessionID: s.ID,
		FileName:  s.fileName,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if err != nil {
		log.Printf("[session %s] record message failed: %v", s.ID, err)
	}
}

func (o *Orchestrator) recordBuild(ctx context.Context, build model.IndexBuild) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordBuild(ctx, build); err != nil {
		log.Printf("[session %s] record build failed: %v", build.SessionID, err)
	}
}

func (o *Orchestrator) result(name, status string, table *tabular.Table, chunks int) *SelectResult {
	res := &SelectResult{
		FileName:  name,
		Status:    status,
		Columns:   table.Columns,
		Preview:   table.Head(o.cfg.PreviewRows),
		RowCount:  table.Len(),
		TotalRows: table.TotalRows,
		Truncated: table.Truncated,
		Chunks:    chunks,
	}
	if table.Truncated {
		res.Warning = fmt.Sprintf("Only the first %d of %d rows were loaded.", table.Len(), table.TotalRows)
	}
	return res
}

func errorText(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the model backend timed out"
	case errors.Is(err, context.Canceled):
		return "the request was cancelled before the answer finished"
	case errors.Is(err, ai.ErrIncompleteResponse):
		return "the model backend stopped before the answer finished"
	}
	return err.Error()
}
