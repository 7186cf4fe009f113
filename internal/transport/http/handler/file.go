package handler

import (
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"loganalyzer/internal/app"
	"loganalyzer/internal/transport/http/middleware"
	"loganalyzer/internal/transport/http/response"
)

type FileHandler struct {
	orchestrator *app.Orchestrator
	maxBytes     int64
}

func NewFileHandler(orchestrator *app.Orchestrator, maxBytes int64) *FileHandler {
	if maxBytes <= 0 {
		maxBytes = 50 << 20
	}
	return &FileHandler{
		orchestrator: orchestrator,
		maxBytes:     maxBytes,
	}
}

// Upload accepts a multipart form with a single "file" (CSV) and binds it to
// the caller's session.
func (h *FileHandler) Upload(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "session missing")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if file.Size > h.maxBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeFileTooLarge, "file too large")
		return
	}
	name := filepath.Base(file.Filename)
	if strings.ToLower(filepath.Ext(name)) != ".csv" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "only CSV files are allowed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	result, err := h.orchestrator.SelectFile(c.Request.Context(), session, app.UploadedFile{Name: name, Data: data})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrFileParse):
			response.Error(c, http.StatusBadRequest, response.CodeFileParse, err.Error())
		case errors.Is(err, app.ErrIndexBuild):
			response.Error(c, http.StatusBadGateway, response.CodeIndexBuild,
				"could not index the file, check the model backend and select the file again: "+err.Error())
		default:
			log.Printf("[http] select file %s failed: %v", name, err)
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "upload failed")
		}
		return
	}

	if result.Warning != "" {
		response.Warn(c, result.Warning, result)
		return
	}
	response.OK(c, result)
}

func (h *FileHandler) Current(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "session missing")
		return
	}
	response.OK(c, gin.H{"file": session.File(h.orchestrator.PreviewRows())})
}
