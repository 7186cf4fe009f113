package http

import (
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"loganalyzer/internal/bootstrap"
	"loganalyzer/internal/transport/http/handler"
	"loganalyzer/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	gin.SetMode(cfg.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	maxUpload := int64(cfg.RAG.MaxUploadMB) << 20
	router.MaxMultipartMemory = maxUpload

	healthHandler := handler.NewHealthHandler(app)
	router.StaticFile("/", filepath.Join(cfg.App.WebRoot, "index.html"))
	router.GET("/healthz", healthHandler.Check)

	fileHandler := handler.NewFileHandler(app.Orchestrator, maxUpload)
	chatHandler := handler.NewChatHandler(app.Orchestrator)
	sessionHandler := handler.NewSessionHandler(app.Orchestrator, app.Builds)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Session(app.Sessions, middleware.SessionOptions{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		TTL:        time.Duration(cfg.Session.IdleMinutes) * time.Minute,
		Secure:     cfg.App.Env == "prod",
	}))
	v1.POST("/file", fileHandler.Upload)
	v1.GET("/file", fileHandler.Current)
	v1.POST("/chat", chatHandler.Stream)
	v1.GET("/messages", sessionHandler.Messages)
	v1.DELETE("/session", sessionHandler.Reset)
	v1.GET("/builds", sessionHandler.Builds)

	return router
}
