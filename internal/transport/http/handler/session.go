package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"loganalyzer/internal/app"
	"loganalyzer/internal/repository"
	"loganalyzer/internal/transport/http/middleware"
	"loganalyzer/internal/transport/http/response"
)

type SessionHandler struct {
	orchestrator *app.Orchestrator
	builds       *repository.IndexBuildRepository
}

// NewSessionHandler accepts a nil build repository when no store is configured.
func NewSessionHandler(orchestrator *app.Orchestrator, builds *repository.IndexBuildRepository) *SessionHandler {
	return &SessionHandler{
		orchestrator: orchestrator,
		builds:       builds,
	}
}

func (h *SessionHandler) Messages(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "session missing")
		return
	}
	response.OK(c, gin.H{"messages": session.Messages()})
}

func (h *SessionHandler) Reset(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "session missing")
		return
	}
	h.orchestrator.Reset(c.Request.Context(), session)
	response.OK(c, gin.H{"session_id": session.ID})
}

// Builds lists recently recorded index builds.
func (h *SessionHandler) Builds(c *gin.Context) {
	if h.builds == nil {
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, "build history is disabled")
		return
	}
	builds, err := h.builds.ListRecent(50)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list builds failed")
		return
	}
	response.OK(c, gin.H{"builds": builds})
}
