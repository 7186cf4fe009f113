package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	"loganalyzer/internal/app"
	"loganalyzer/internal/transport/http/middleware"
	"loganalyzer/internal/transport/http/response"
)

type ChatHandler struct {
	orchestrator *app.Orchestrator
}

const maxQuestionLen = 4000

type AskRequest struct {
	Question string `json:"question"`
}

func NewChatHandler(orchestrator *app.Orchestrator) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator}
}

// Stream answers one question over server-sent events: one "data:" line per
// increment, then "event: done" with the full answer or "event: error" with
// the transcript entry that replaced it.
func (h *ChatHandler) Stream(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "session missing")
		return
	}

	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request body")
		return
	}
	if utf8.RuneCountInString(req.Question) > maxQuestionLen {
		response.Error(c, http.StatusBadRequest, response.CodeQuestionTooLong,
			fmt.Sprintf("question is longer than %d characters", maxQuestionLen))
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeQuestionEmpty, app.ErrQuestionEmpty.Error())
		return
	}
	if !session.Ready() {
		response.Error(c, http.StatusConflict, response.CodeEngineNotReady, "upload a CSV file before asking")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	// the turn outlives a disconnected client so the transcript stays whole
	ctx := context.WithoutCancel(c.Request.Context())
	turn, err := h.orchestrator.Ask(ctx, session, req.Question, func(chunk string) error {
		if _, writeErr := c.Writer.Write([]byte("data: " + sanitizeSSE(chunk) + "\n\n")); writeErr != nil {
			return writeErr
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		msg := err.Error()
		if errors.Is(err, app.ErrEngineNotReady) {
			msg = "upload a CSV file before asking"
		}
		writeEvent(c, flusher, "error", msg)
		return
	}
	if turn.Failed {
		writeEvent(c, flusher, "error", turn.Answer)
		return
	}
	writeEvent(c, flusher, "done", turn.Answer)
}

func writeEvent(c *gin.Context, flusher http.Flusher, event, data string) {
	if _, err := c.Writer.Write([]byte("event: " + event + "\ndata: " + sanitizeSSE(data) + "\n\n")); err == nil {
		flusher.Flush()
	}
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}
