package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/hvac_dispatch/backend/internal/board"
	"github.com/hvac_dispatch/backend/internal/db"
	"github.com/hvac_dispatch/backend/internal/events"
	"github.com/hvac_dispatch/backend/internal/models"
	"github.com/hvac_dispatch/backend/internal/service"
)

// Store is the part of the storage layer the HTTP surface touches directly.
// Scheduling itself always goes through the dispatch service.
type Store interface {
	Ping(ctx context.Context) error
	ListTechnicians(ctx context.Context) ([]models.Technician, error)
	Import(ctx context.Context, seed db.Seed) error
}

type Handler struct {
	Store     Store
	Dispatch  *service.Service
	Board     *board.Board
	Bus       *events.Bus
	Validator *validator.Validate
	Logger    zerolog.Logger
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps dispatch errors onto the error envelope.
func (h *Handler) writeServiceError(c *gin.Context, err error) {
	var verr *service.ValidationError
	var cerr *service.ConflictError
	switch {
	case errors.As(err, &verr):
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), gin.H{"field": verr.Field})
	case errors.As(err, &cerr):
		writeError(c, http.StatusConflict, "CONFLICT", "Technician already has overlapping jobs", cerr.JobIDs)
	case errors.Is(err, models.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, service.ErrNoCandidate):
		writeError(c, http.StatusUnprocessableEntity, "NO_CANDIDATE", "No technician can take this job", nil)
	case errors.Is(err, service.ErrInvalidTransition):
		writeError(c, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(c, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil)
	default:
		h.log(c).Error().Err(err).Str("path", c.FullPath()).Msg("dispatch operation failed")
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
	}
}

// bindJSON decodes and validates a request body, writing the error response itself.
func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if h.Validator == nil {
		return true
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

// log returns the request-scoped logger set by the request id middleware, or h.Logger.
func (h *Handler) log(c *gin.Context) *zerolog.Logger {
	if l := zerolog.Ctx(c.Request.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.Logger
}

func (h *Handler) location() *time.Location {
	if h.Dispatch != nil && h.Dispatch.Location != nil {
		return h.Dispatch.Location
	}
	return time.UTC
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", key+" is required", nil)
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", key+" must be an integer", raw)
		return 0, false
	}
	return v, true
}
