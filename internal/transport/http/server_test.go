package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loganalyzer/internal/ai"
	"loganalyzer/internal/app"
	"loganalyzer/internal/bootstrap"
	"loganalyzer/internal/config"
	"loganalyzer/internal/rag"
)

type stubProvider struct {
	answer  []string
	pingErr error
	// afterFirst runs once the first increment is emitted
	afterFirst func()
}

func (p *stubProvider) Complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	return messages[len(messages)-1].Content, nil
}

// Stream ends without an error once ctx is cancelled, the way a model backend
// does when its response body is cut short.
func (p *stubProvider) Stream(ctx context.Context, messages []ai.ChatMessage) (*ai.Stream, error) {
	if p.afterFirst == nil {
		return ai.StreamOf(p.answer...), nil
	}
	return ai.NewStream(func(emit func(string)) error {
		for i, text := range p.answer {
			if ctx.Err() != nil {
				return nil
			}
			emit(text)
			if i == 0 {
				p.afterFirst()
			}
		}
		return nil
	}), nil
}

func (p *stubProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t))}
	}
	return out, nil
}

func (p *stubProvider) Model() string { return "stub" }

func (p *stubProvider) Ping(ctx context.Context) error { return p.pingErr }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestApp(t *testing.T, provider *stubProvider) *bootstrap.App {
	t.Helper()
	cfg, _ := config.LoadFile("")
	cfg.App.GinMode = gin.TestMode
	cfg.Session.Secret = "test-secret"

	builder := rag.NewBuilder(provider, nil, rag.BuilderConfig{})
	return &bootstrap.App{
		Config:       cfg,
		Provider:     provider,
		Orchestrator: app.NewOrchestrator(builder, provider, nil, app.OrchestratorConfig{}),
		Sessions:     app.NewSessionStore(time.Hour),
		StartedAt:    time.Now(),
	}
}

type client struct {
	t       *testing.T
	router  *gin.Engine
	cookies []*nethttp.Cookie
}

func (c *client) do(req *nethttp.Request) *httptest.ResponseRecorder {
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	if set := w.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return w
}

func (c *client) upload(name, content string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(c.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/file", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *client) ask(question string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"question": question})
	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/chat", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestRouter_UploadAndChat(t *testing.T) {
	a := newTestApp(t, &stubProvider{answer: []string{"Hel", "lo", " ", "world"}})
	c := &client{t: t, router: NewRouter(a)}

	w := c.upload("app.csv", "level,message\nINFO,started\nERROR,disk full\n")
	require.Equal(t, nethttp.StatusOK, w.Code, w.Body.String())
	require.NotEmpty(t, c.cookies)

	env := decode(t, w)
	var res app.SelectResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "app.csv", res.FileName)
	assert.Equal(t, app.StatusBuilt, res.Status)
	assert.Equal(t, 2, res.RowCount)
	require.NotNil(t, res.Preview)
	assert.Len(t, res.Preview.Rows, 2)

	w = c.upload("app.csv", "level,message\nINFO,started\n")
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &res))
	assert.Equal(t, app.StatusReused, res.Status)

	w = c.ask("what failed?")
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "data: Hel\n\n")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: Hello world\n\n"), body)

	w = c.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages", nil))
	require.Equal(t, nethttp.StatusOK, w.Code)
	var transcript struct {
		Messages []ai.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &transcript))
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, "Hello world", transcript.Messages[1].Content)

	w = c.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/file", nil))
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready":true`)

	w = c.do(httptest.NewRequest(nethttp.MethodDelete, "/api/v1/session", nil))
	require.Equal(t, nethttp.StatusOK, w.Code)
	w = c.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages", nil))
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &transcript))
	assert.Empty(t, transcript.Messages)
}

func TestRouter_ChatOutlivesDisconnectedClient(t *testing.T) {
	p := &stubProvider{answer: []string{"Hel", "lo", " ", "world"}}
	c := &client{t: t, router: NewRouter(newTestApp(t, p))}
	require.Equal(t, nethttp.StatusOK, c.upload("app.csv", "level,message\nERROR,disk full\n").Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.afterFirst = cancel

	payload, _ := json.Marshal(map[string]string{"question": "what failed?"})
	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/chat", bytes.NewReader(payload)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	w := c.do(req)
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.Error(t, ctx.Err())
	assert.Contains(t, w.Body.String(), "event: done\ndata: Hello world\n\n")

	w = c.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages", nil))
	var transcript struct {
		Messages []ai.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &transcript))
	require.Len(t, transcript.Messages, 2)
	assert.Equal(t, "Hello world", transcript.Messages[1].Content)
}

func TestRouter_SessionsAreIsolated(t *testing.T) {
	a := newTestApp(t, &stubProvider{answer: []string{"ok"}})
	router := NewRouter(a)
	first := &client{t: t, router: router}
	second := &client{t: t, router: router}

	require.Equal(t, nethttp.StatusOK, first.upload("a.csv", "x\n1\n").Code)

	w := second.ask("anything?")
	assert.Equal(t, nethttp.StatusConflict, w.Code)
	assert.Equal(t, 2, a.Sessions.Len())
}

func TestRouter_UploadRejectsNonCSV(t *testing.T) {
	c := &client{t: t, router: NewRouter(newTestApp(t, &stubProvider{}))}

	w := c.upload("notes.txt", "hello")
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
}

func TestRouter_UploadMalformedCSV(t *testing.T) {
	c := &client{t: t, router: NewRouter(newTestApp(t, &stubProvider{}))}

	w := c.upload("bad.csv", "a,b\n1,2,3\n")
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	assert.Equal(t, 40001, decode(t, w).Code)
}

func TestRouter_UploadEmptyTableWarns(t *testing.T) {
	c := &client{t: t, router: NewRouter(newTestApp(t, &stubProvider{}))}

	w := c.upload("empty.csv", "a,b\n")
	require.Equal(t, nethttp.StatusOK, w.Code)
	env := decode(t, w)
	assert.Contains(t, env.Message, "no data rows")
	assert.Contains(t, string(env.Data), `"status":"empty"`)
}

func TestRouter_ChatValidation(t *testing.T) {
	c := &client{t: t, router: NewRouter(newTestApp(t, &stubProvider{}))}

	w := c.ask("before upload")
	assert.Equal(t, nethttp.StatusConflict, w.Code)

	require.Equal(t, nethttp.StatusOK, c.upload("a.csv", "x\n1\n").Code)
	w = c.ask("   ")
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	assert.Equal(t, 40002, decode(t, w).Code)

	w = c.ask(strings.Repeat("why? ", 1000))
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	env := decode(t, w)
	assert.Equal(t, 40004, env.Code)
	assert.Equal(t, "question is longer than 4000 characters", env.Message)

	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/chat", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w = c.do(req)
	assert.Equal(t, nethttp.StatusBadRequest, w.Code)
	assert.Equal(t, 40000, decode(t, w).Code)
}

func TestRouter_TamperedCookieGetsNewSession(t *testing.T) {
	a := newTestApp(t, &stubProvider{})
	c := &client{t: t, router: NewRouter(a)}
	c.cookies = []*nethttp.Cookie{{Name: "session", Value: "not-a-token"}}

	w := c.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/messages", nil))
	require.Equal(t, nethttp.StatusOK, w.Code)
	require.NotEmpty(t, c.cookies)
	assert.NotEqual(t, "not-a-token", c.cookies[0].Value)
	assert.Equal(t, 1, a.Sessions.Len())
}

func TestRouter_BuildsDisabledWithoutStore(t *testing.T) {
	c := &client{t: t, router: NewRouter(newTestApp(t, &stubProvider{}))}

	w := c.do(httptest.NewRequest(nethttp.MethodGet, "/api/v1/builds", nil))
	assert.Equal(t, nethttp.StatusNotFound, w.Code)
}

func TestRouter_Health(t *testing.T) {
	p := &stubProvider{}
	c := &client{t: t, router: NewRouter(newTestApp(t, p))}

	w := c.do(httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	require.Equal(t, nethttp.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":{"enabled":false,"ok":false}`)

	p.pingErr = errors.New("connection refused")
	w = c.do(httptest.NewRequest(nethttp.MethodGet, "/healthz", nil))
	assert.Equal(t, nethttp.StatusServiceUnavailable, w.Code)
}
