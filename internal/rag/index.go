package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
)

const collectionName = "rows"

var errQueryTextUnsupported = errors.New("index embeds queries through the chat engine, not chromem")

// Hit is one retrieved chunk.
type Hit struct {
	ID         string  `json:"id"`
	Row        int     `json:"row"`
	Text       string  `json:"text"`
	Similarity float32 `json:"similarity"`
}

// Index is a read-only view over a fully built chromem collection. It is only
// ever handed out after every chunk was inserted.
type Index struct {
	collection *chromem.Collection
}

func newCollection() (*chromem.Collection, error) {
	db := chromem.NewDB()
	// Every document arrives with its embedding precomputed, so chromem's own
	// embedding hook must never run.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errQueryTextUnsupported
	}
	collection, err := db.CreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("create chromem collection failed: %w", err)
	}
	return collection, nil
}

func (i *Index) Len() int {
	if i == nil || i.collection == nil {
		return 0
	}
	return i.collection.Count()
}

// Query returns at most k hits ordered by cosine similarity, highest first.
func (i *Index) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	n := i.Len()
	if n == 0 || k <= 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}

	results, err := i.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query index failed: %w", err)
	}

	hits := make([]Hit, len(results))
	for j, r := range results {
		row, _ := strconv.Atoi(r.Metadata["row"])
		hits[j] = Hit{
			ID:         r.ID,
			Row:        row,
			Text:       r.Content,
			Similarity: r.Similarity,
		}
	}
	return hits, nil
}
