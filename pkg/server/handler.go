package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/adrianhesketh/deepresearch/pkg/deepresearch"
	"github.com/adrianhesketh/deepresearch/pkg/store"
)

// Handler exposes the research engine over HTTP: a streaming endpoint for
// interactive callers and a create/list/get/events CRUD surface for
// background sessions, grounded on the teacher's handler.go route shape.
type Handler struct {
	Service            *Service
	Engine             *deepresearch.ResearchEngine
	DefaultModelID     string
	DefaultConcurrency int
}

func NewHandler(s *Service, engine *deepresearch.ResearchEngine, defaultModelID string, defaultConcurrency int) *Handler {
	return &Handler{
		Service:            s,
		Engine:             engine,
		DefaultModelID:     defaultModelID,
		DefaultConcurrency: defaultConcurrency,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/research/stream", h.streamResearch)
		api.POST("/research", h.createSession)
		api.GET("/research", h.listSessions)
		api.GET("/research/:id", h.getSession)
		api.GET("/research/:id/events", h.getSessionEvents)
	}
}

// streamResearch runs one session synchronously and streams its events as
// NDJSON over a chunked response, adapted from the teacher's sendMessage
// SSE writer (same per-event Write+Flush loop, bare `<json>\n` framing
// instead of `data: <json>\n\n`).
func (h *Handler) streamResearch(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts := req.toOptions(h.DefaultModelID, h.DefaultConcurrency)

	stream, err := h.Engine.Run(c.Request.Context(), req.Query, opts)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Transfer-Encoding", "chunked")
	c.Status(http.StatusOK)

	if err := deepresearch.WriteNDJSON(c.Writer, stream); err != nil {
		// The response has already started; nothing further to send.
		return
	}
}

func (h *Handler) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.Service.CreateSession(c.Request.Context(), req, h.DefaultModelID, h.DefaultConcurrency)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, session)
}

func (h *Handler) listSessions(c *gin.Context) {
	sessions, err := h.Service.ListSessions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []store.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *Handler) getSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	session, err := h.Service.GetSession(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) getSessionEvents(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return
	}

	events, err := h.Service.GetSessionEvents(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if events == nil {
		events = []store.EventRow{}
	}
	c.JSON(http.StatusOK, events)
}

// statusForError maps the deepresearch error taxonomy to HTTP status codes
// per SPEC_FULL.md §7's handler-side mapping.
func statusForError(err error) int {
	switch {
	case deepresearch.IsKind(err, deepresearch.KindInvalidInput):
		return http.StatusBadRequest
	case deepresearch.IsKind(err, deepresearch.KindCancelled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}
