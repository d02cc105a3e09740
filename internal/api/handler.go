// Package api exposes the application lifecycle over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"

	"go-openclaw-autoapply/internal/errors"
	"go-openclaw-autoapply/internal/evidence"
	"go-openclaw-autoapply/internal/models"
	"go-openclaw-autoapply/internal/scheduler"
	"go-openclaw-autoapply/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Lifecycle is what the handlers need from the scheduler
type Lifecycle interface {
	Enqueue(ctx context.Context, userID, jobID string) (*models.Application, error)
	Retry(ctx context.Context, appID string) (*models.Application, error)
	Cancel(ctx context.Context, appID string) (*models.Application, error)
	Get(ctx context.Context, appID string) (*models.Application, error)
}

// Evidence serves recorded screenshots and logs
type Evidence interface {
	ListScreenshots(appID string, attempt int) ([]string, error)
	Screenshot(appID string, attempt int, step string) ([]byte, error)
	Logs(appID string, attempt int) ([]string, error)
}

// Sockets upgrades a request to the user's notification stream
type Sockets interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

type Handler struct {
	apps     Lifecycle
	evidence Evidence
	sockets  Sockets
	log      *zap.SugaredLogger
}

func NewHandler(apps Lifecycle, ev Evidence, sockets Sockets, log *zap.SugaredLogger) *Handler {
	return &Handler{apps: apps, evidence: ev, sockets: sockets, log: log}
}

type queueRequest struct {
	UserID string `json:"user_id" binding:"required"`
	JobID  string `json:"job_id" binding:"required"`
}

// Queue handles POST /api/applications/queue
func (h *Handler) Queue(c *gin.Context) {
	var req queueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.apps.Enqueue(c.Request.Context(), req.UserID, req.JobID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"application_id": app.ID,
		"status":         app.Status,
	})
}

// Get handles GET /api/applications/:id
func (h *Handler) Get(c *gin.Context) {
	app, err := h.apps.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

// Retry handles POST /api/applications/:id/retry
func (h *Handler) Retry(c *gin.Context) {
	app, err := h.apps.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application_id": app.ID, "status": app.Status})
}

// Cancel handles POST /api/applications/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	app, err := h.apps.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application_id": app.ID, "status": app.Status})
}

// Screenshots handles GET /api/applications/:id/attempts/:n/screenshots
func (h *Handler) Screenshots(c *gin.Context) {
	app, n, ok := h.attempt(c)
	if !ok {
		return
	}
	refs, err := h.evidence.ListScreenshots(app.ID, n)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application_id": app.ID, "attempt": n, "screenshots": refs})
}

// Screenshot handles GET /api/applications/:id/attempts/:n/screenshots/:step
func (h *Handler) Screenshot(c *gin.Context) {
	app, n, ok := h.attempt(c)
	if !ok {
		return
	}
	data, err := h.evidence.Screenshot(app.ID, n, c.Param("step"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// Logs handles GET /api/applications/:id/attempts/:n/logs
func (h *Handler) Logs(c *gin.Context) {
	app, n, ok := h.attempt(c)
	if !ok {
		return
	}
	lines, err := h.evidence.Logs(app.ID, n)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"application_id": app.ID, "attempt": n, "lines": lines})
}

// WebSocket handles GET /ws?user_id=
func (h *Handler) WebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	if err := h.sockets.ServeWS(c.Writer, c.Request, userID); err != nil {
		// the upgrader already wrote the HTTP error
		h.log.Warnw("⚠️ WebSocket upgrade failed", "user_id", userID, "error", err)
	}
}

// attempt resolves :id and :n, writing the error response itself when they are invalid
func (h *Handler) attempt(c *gin.Context) (*models.Application, int, bool) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "attempt must be a positive number"})
		return nil, 0, false
	}
	app, err := h.apps.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, 0, false
	}
	if n > app.TotalAttempts {
		c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		return nil, 0, false
	}
	return app, n, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Errorw("❌ Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": errors.UnwrapAll(err).Error()})
}

func statusFor(err error) int {
	switch {
	case errors.IsAny(err, scheduler.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.IsAny(err, store.ErrNotFound, scheduler.ErrJobNotFound, evidence.ErrNotFound):
		return http.StatusNotFound
	case errors.IsAny(err, scheduler.ErrDuplicateApplication, scheduler.ErrNotRetryable, scheduler.ErrNotCancellable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
