package ai

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatModel is a chat-completion backend.
type ChatModel interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
	Stream(ctx context.Context, messages []ChatMessage) (*Stream, error)
}

// Embedder maps a batch of texts to one vector per text, in order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Provider bundles both halves of a model-serving backend.
type Provider interface {
	ChatModel
	Embedder
	Ping(ctx context.Context) error
}

type ProviderConfig struct {
	Kind           string
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
}

// NewProvider picks the backend implementation named by cfg.Kind.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Kind {
	case "ollama", "":
		return NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.EmbeddingModel, httpClient)
	case "openai":
		return NewOpenAICompatibleClient(ChatConfig{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			EmbeddingModel: cfg.EmbeddingModel,
		}, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Kind)
	}
}
