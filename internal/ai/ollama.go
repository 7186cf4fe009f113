package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const defaultOllamaHost = "http://127.0.0.1:11434"

var ErrIncompleteResponse = errors.New("response ended before the model finished")

// OllamaClient uses the official Ollama API client for /api/chat and /api/embed.
type OllamaClient struct {
	client         *api.Client
	model          string
	embeddingModel string
}

func NewOllamaClient(baseURL, model, embeddingModel string, httpClient *http.Client) (*OllamaClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOllamaHost
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host %q failed: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaClient{
		client:         api.NewClient(base, httpClient),
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

func (c *OllamaClient) Model() string {
	return c.embeddingModel
}

func (c *OllamaClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
	}

	var full strings.Builder
	done := false
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		full.WriteString(resp.Message.Content)
		done = done || resp.Done
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	if !done {
		return "", fmt.Errorf("ollama chat failed: %w", incomplete(ctx))
	}
	return full.String(), nil
}

// Stream starts a streaming chat. The Ollama client only reports HTTP errors
// from inside its callback loop, so they arrive through Recv. A body that ends
// before the final done chunk is an error, not a short answer.
func (c *OllamaClient) Stream(ctx context.Context, messages []ChatMessage) (*Stream, error) {
	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: toOllamaMessages(messages),
		Stream:   &stream,
	}

	return NewStream(func(emit func(string)) error {
		done := false
		err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			emit(resp.Message.Content)
			done = done || resp.Done
			return nil
		})
		if err != nil {
			return fmt.Errorf("ollama chat stream failed: %w", err)
		}
		if !done {
			return fmt.Errorf("ollama chat stream failed: %w", incomplete(ctx))
		}
		return nil
	}), nil
}

// incomplete explains a response that stopped before its done chunk.
func incomplete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrIncompleteResponse
}

func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(resp.Embeddings))
	}
	for i, vec := range resp.Embeddings {
		if len(vec) == 0 {
			return nil, fmt.Errorf("empty embedding for input %d", i)
		}
	}
	return resp.Embeddings, nil
}

func (c *OllamaClient) Ping(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat failed: %w", err)
	}
	return nil
}

func toOllamaMessages(messages []ChatMessage) []api.Message {
	out := make([]api.Message, len(messages))
	for i, m := range messages {
		out[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
