package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/chat"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultHeartbeatInterval = 25 * time.Second
	msgInternalError         = "internal server error"
)

var (
	errMissingNotesService = errors.New("notes service dependency required")
	errMissingAudioService = errors.New("audio service dependency required")
	errMissingProcessor    = errors.New("audio processor dependency required")
	errMissingChatEngine   = errors.New("chat engine dependency required")
)

type Dependencies struct {
	NotesService      *notes.Service
	AudioService      *audio.Service
	Processor         *audio.Processor
	ChatEngine        *chat.Engine
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	MaxUploadBytes    int64
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.NotesService == nil {
		return nil, errMissingNotesService
	}
	if deps.AudioService == nil {
		return nil, errMissingAudioService
	}
	if deps.Processor == nil {
		return nil, errMissingProcessor
	}
	if deps.ChatEngine == nil {
		return nil, errMissingChatEngine
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		notesService:   deps.NotesService,
		audioService:   deps.AudioService,
		processor:      deps.Processor,
		chatEngine:     deps.ChatEngine,
		realtime:       realtime,
		logger:         logger,
		maxUploadBytes: deps.MaxUploadBytes,
		heartbeat:      heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)

	router.POST("/notes", handler.handleCreateNote)
	router.GET("/notes", handler.handleListNotes)
	router.GET("/notes/:id", handler.handleGetNote)
	router.PATCH("/notes/:id", handler.handleUpdateNote)
	router.DELETE("/notes/:id", handler.handleDeleteNote)

	router.POST("/notes/:id/audio", handler.handleUploadAudio)
	router.GET("/notes/:id/audio", handler.handleListAudioJobs)
	router.POST("/notes/:id/process", handler.handleProcessAudio)
	router.GET("/notes/:id/events", handler.handleNoteEvents)

	router.POST("/chat/query", handler.handleChatQuery)

	return router, nil
}

type httpHandler struct {
	notesService   *notes.Service
	audioService   *audio.Service
	processor      *audio.Processor
	chatEngine     *chat.Engine
	realtime       *RealtimeDispatcher
	logger         *zap.Logger
	maxUploadBytes int64
	heartbeat      time.Duration
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Accept", "Cache-Control"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || containsWildcard(allowedOrigins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
		}
		if c.FullPath() == "" {
			fields[1] = zap.String("path", c.Request.URL.Path)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("http request failed", fields...)
			return
		}
		logger.Info("http request", fields...)
	}
}

func statusForError(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as {"error": message}. Internal errors never expose their cause.
func (h *httpHandler) writeError(c *gin.Context, operation string, err error) {
	status := statusForError(err)
	message := err.Error()
	if apperr.KindOf(err) == apperr.KindInternal {
		message = msgInternalError
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("code", apperr.CodeOf(err)),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message})
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
