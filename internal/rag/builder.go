package rag

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/philippgille/chromem-go"

	"loganalyzer/internal/ai"
)

const (
	defaultChunkSize    = 1024
	defaultChunkOverlap = 64
	defaultBatchSize    = 10
)

var ErrNoUnits = errors.New("no document units to index")

// EmbeddingCache remembers vectors across builds. Lookup returns a slice
// aligned with texts holding nil for every miss.
type EmbeddingCache interface {
	Lookup(ctx context.Context, model string, texts []string) ([][]float32, error)
	Store(ctx context.Context, model string, texts []string, vectors [][]float32) error
}

type BuilderConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
}

// BuildStats describes a finished build.
type BuildStats struct {
	Units      int
	Chunks     int
	CacheHits  int
	EmbedCalls int
}

type Builder struct {
	embedder ai.Embedder
	cache    EmbeddingCache
	cfg      BuilderConfig
}

// NewBuilder accepts a nil cache.
func NewBuilder(embedder ai.Embedder, cache EmbeddingCache, cfg BuilderConfig) *Builder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &Builder{
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
	}
}

// Build splits, embeds and indexes units. It either returns a complete index
// or an error and no index at all.
func (b *Builder) Build(ctx context.Context, units []DocumentUnit) (*Index, BuildStats, error) {
	stats := BuildStats{Units: len(units)}
	if len(units) == 0 {
		return nil, stats, ErrNoUnits
	}

	chunks := SplitUnits(units, b.cfg.ChunkSize, b.cfg.ChunkOverlap)
	stats.Chunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, hits, calls, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, stats, err
	}
	stats.CacheHits = hits
	stats.EmbedCalls = calls

	collection, err := newCollection()
	if err != nil {
		return nil, stats, err
	}
	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: vectors[i],
			Metadata: map[string]string{
				"row":  strconv.Itoa(c.Row),
				"unit": c.UnitID,
			},
		}
	}
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return nil, stats, fmt.Errorf("insert into index failed: %w", err)
	}

	return &Index{collection: collection}, stats, nil
}

// Embed embeds a single query text with the same model used for the index.
func (b *Builder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding query returned %d vectors", len(vecs))
	}
	return vecs[0], nil
}

func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, int, int, error) {
	model := b.embedder.Model()
	vectors := make([][]float32, len(texts))

	if b.cache != nil {
		cached, err := b.cache.Lookup(ctx, model, texts)
		if err != nil {
			log.Printf("[rag] embedding cache lookup failed, embedding everything: %v", err)
		} else if len(cached) == len(texts) {
			copy(vectors, cached)
		}
	}

	var missing []int
	for i := range texts {
		if len(vectors[i]) == 0 {
			missing = append(missing, i)
		}
	}
	hits := len(texts) - len(missing)

	calls := 0
	for start := 0; start < len(missing); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batchIdx := missing[start:end]
		batch := make([]string, len(batchIdx))
		for j, idx := range batchIdx {
			batch[j] = texts[idx]
		}

		embedded, err := b.embedder.EmbedBatch(ctx, batch)
		calls++
		if err != nil {
			return nil, hits, calls, fmt.Errorf("embed batch %d-%d failed: %w", start, end, err)
		}
		if len(embedded) != len(batch) {
			return nil, hits, calls, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(batch), len(embedded))
		}
		for j, idx := range batchIdx {
			if len(embedded[j]) == 0 {
				return nil, hits, calls, fmt.Errorf("empty embedding for chunk %d", idx)
			}
			vectors[idx] = embedded[j]
		}

		if b.cache != nil {
			if err := b.cache.Store(ctx, model, batch, embedded); err != nil {
				log.Printf("[rag] embedding cache store failed: %v", err)
			}
		}
	}

	return vectors, hits, calls, nil
}
