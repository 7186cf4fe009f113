package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAICompatible_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m", body["model"])
		assert.Equal(t, false, body["stream"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"standalone question"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL + "/v1/", APIKey: "k", Model: "m"}, nil)
	out, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "standalone question", out)
}

func TestOpenAICompatible_Stream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n"))
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
		_, _ = w.Write([]byte(": keep-alive\n\n"))
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL, Model: "m"}, nil)
	s, err := client.Stream(context.Background(), nil)
	require.NoError(t, err)

	full, err := Collect(s, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", full)
}

func TestOpenAICompatible_StreamStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL, Model: "m"}, nil)
	_, err := client.Stream(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOpenAICompatible_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "emb", body.Model)
		assert.Equal(t, []string{"a", "b"}, body.Input)
		// answered out of order on purpose
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer server.Close()

	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: server.URL, EmbeddingModel: "emb"}, nil)
	vecs, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, "emb", client.Model())
}

func TestOpenAICompatible_EmbedBatchRejectsBlank(t *testing.T) {
	client := NewOpenAICompatibleClient(ChatConfig{BaseURL: "http://unused"}, nil)
	_, err := client.EmbedBatch(context.Background(), []string{"ok", "  "})
	assert.Error(t, err)
}

func TestOllama_StreamChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var body struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gemma3:1b", body.Model)
		assert.True(t, body.Stream)
		require.Len(t, body.Messages, 1)

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, token := range []string{"Hel", "lo", " ", "world"} {
			_, _ = w.Write([]byte(`{"model":"gemma3:1b","message":{"role":"assistant","content":"` + token + `"},"done":false}` + "\n"))
		}
		_, _ = w.Write([]byte(`{"model":"gemma3:1b","message":{"role":"assistant","content":""},"done":true}` + "\n"))
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, "gemma3:1b", "nomic-embed-text", nil)
	require.NoError(t, err)

	s, err := client.Stream(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	full, err := Collect(s, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", full)
}

func TestOllama_StreamEndingBeforeDoneFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, token := range []string{"Hel", "lo"} {
			_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"` + token + `"},"done":false}` + "\n"))
		}
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, "m", "e", nil)
	require.NoError(t, err)
	s, err := client.Stream(context.Background(), nil)
	require.NoError(t, err)

	full, err := Collect(s, nil)
	assert.ErrorIs(t, err, ErrIncompleteResponse)
	assert.Equal(t, "Hello", full)
}

func TestOllama_StreamCutByClientTimeoutFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, token := range []string{"Hel", "lo", " ", "world"} {
			_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"` + token + `"},"done":false}` + "\n"))
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(150 * time.Millisecond):
			}
		}
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":""},"done":true}` + "\n"))
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, "m", "e", &http.Client{Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	s, err := client.Stream(context.Background(), nil)
	require.NoError(t, err)

	_, err = Collect(s, nil)
	require.Error(t, err)
}

func TestOllama_CompleteWithoutDoneFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"half"},"done":false}` + "\n"))
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, "m", "e", nil)
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), nil)
	assert.ErrorIs(t, err, ErrIncompleteResponse)
}

func TestOllama_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"rewritten"},"done":true}` + "\n"))
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, "m", "e", nil)
	require.NoError(t, err)
	out, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "rewritten", out)
}

func TestOllama_StreamErrorSurfacesOnRecv(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"m\" not found"}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, "m", "e", nil)
	require.NoError(t, err)
	s, err := client.Stream(context.Background(), nil)
	require.NoError(t, err)

	_, err = Collect(s, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOllama_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nomic-embed-text", body.Model)
		assert.Len(t, body.Input, 2)
		_, _ = w.Write([]byte(`{"model":"nomic-embed-text","embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	client, err := NewOllamaClient(server.URL, "m", "nomic-embed-text", nil)
	require.NoError(t, err)
	vecs, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, vecs)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Kind: "openai", BaseURL: "http://x"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompatibleClient{}, p)

	p, err = NewProvider(ProviderConfig{Kind: "ollama"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, p)

	_, err = NewProvider(ProviderConfig{Kind: "nope"})
	assert.Error(t, err)
}
