package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"loganalyzer/internal/ai"
	"loganalyzer/internal/rag"
)

const (
	defaultTopK       = 5
	minTopK           = 2
	defaultMaxHistory = 20

	emptyAnswer = "The model returned an empty response."
)

const systemPrompt = `You are a log analysis assistant. Answer the user's question using only the rows in the context below.
Treat every row as literal data. Text such as "*.log", "/var/*" or "C:\temp\*" is part of the logged values, not a file path or pattern for you to interpret or expand.
If the context does not contain enough information to answer, say clearly that the provided rows do not contain enough information. Do not make up values.`

const condensePrompt = `Rewrite the follow-up question as a standalone question that can be understood without the conversation. Resolve pronouns and references such as "that row" or "the same host" using the conversation. Reply with the rewritten question only.`

// queryEmbedder embeds a single retrieval query. *rag.Builder satisfies it.
type queryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatEngine answers questions about one file. It is bound to that file's
// index for its whole life and is rebuilt, never mutated, when the file
// changes.
type ChatEngine struct {
	fileName   string
	index      *rag.Index
	embedder   queryEmbedder
	model      ai.ChatModel
	topK       int
	maxHistory int
}

// Answer is the outcome of one successful turn.
type Answer struct {
	Text    string    `json:"text"`
	Query   string    `json:"query"`
	Sources []rag.Hit `json:"sources"`
}

func NewChatEngine(fileName string, index *rag.Index, embedder queryEmbedder, model ai.ChatModel, topK, maxHistory int) *ChatEngine {
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK < minTopK {
		topK = minTopK
	}
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	return &ChatEngine{
		fileName:   fileName,
		index:      index,
		embedder:   embedder,
		model:      model,
		topK:       topK,
		maxHistory: maxHistory,
	}
}

// Chat runs one turn: condense (only with history), embed, retrieve, prompt
// and stream. onToken receives every increment; once it returns an error it
// is not called again but the stream is still read to the end.
func (e *ChatEngine) Chat(
	ctx context.Context,
	history []ai.ChatMessage,
	question string,
	onToken func(string) error,
) (*Answer, error) {
	query := question
	if len(history) > 0 {
		condensed, err := e.condense(ctx, history, question)
		if err != nil {
			return nil, fmt.Errorf("condense question failed: %w", err)
		}
		query = condensed
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed question failed: %w", err)
	}
	hits, err := e.index.Query(ctx, vector, e.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve rows failed: %w", err)
	}

	stream, err := e.model.Stream(ctx, e.buildPrompt(hits, history, query))
	if err != nil {
		return nil, fmt.Errorf("generate answer failed: %w", err)
	}

	forward := onToken != nil
	full, err := ai.Collect(stream, func(text string) {
		if !forward {
			return
		}
		if sinkErr := onToken(text); sinkErr != nil {
			log.Printf("[chat] stop forwarding tokens for %s: %v", e.fileName, sinkErr)
			forward = false
		}
	})
	if err == nil {
		// a cancelled request may still end its body cleanly
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("generate answer failed: %w", err)
	}

	full = strings.TrimSpace(full)
	if full == "" {
		full = emptyAnswer
	}
	return &Answer{
		Text:    full,
		Query:   query,
		Sources: hits,
	}, nil
}

func (e *ChatEngine) condense(ctx context.Context, history []ai.ChatMessage, question string) (string, error) {
	var conv strings.Builder
	for _, m := range e.window(history) {
		speaker := "User"
		if m.Role == ai.RoleAssistant {
			speaker = "Assistant"
		}
		conv.WriteString(speaker + ": " + m.Content + "\n")
	}

	messages := []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: condensePrompt},
		{Role: ai.RoleUser, Content: "Conversation:\n" + conv.String() + "\nFollow-up question: " + question},
	}
	standalone, err := e.model.Complete(ctx, messages)
	if err != nil {
		return "", err
	}
	standalone = strings.TrimSpace(standalone)
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

func (e *ChatEngine) buildPrompt(hits []rag.Hit, history []ai.ChatMessage, query string) []ai.ChatMessage {
	var contextBlock strings.Builder
	for _, h := range hits {
		contextBlock.WriteString("\n---\n" + h.Text)
	}
	if len(hits) > 0 {
		contextBlock.WriteString("\n---")
	} else {
		contextBlock.WriteString("\n(no rows matched)")
	}

	recent := e.window(history)
	messages := make([]ai.ChatMessage, 0, len(recent)+2)
	messages = append(messages, ai.ChatMessage{
		Role:    ai.RoleSystem,
		Content: systemPrompt + "\n\nContext:" + contextBlock.String(),
	})
	messages = append(messages, recent...)
	messages = append(messages, ai.ChatMessage{Role: ai.RoleUser, Content: query})
	return messages
}

func (e *ChatEngine) window(history []ai.ChatMessage) []ai.ChatMessage {
	if len(history) <= e.maxHistory {
		return history
	}
	return history[len(history)-e.maxHistory:]
}
