// Package logs ingests frontend log batches.
package logs

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/diarisk/health-api/internal/middleware"
	"github.com/diarisk/health-api/internal/model"
	apperrors "github.com/diarisk/health-api/pkg/errors"
	"github.com/diarisk/health-api/pkg/httputil"
)

type Handler struct {
	logger       zerolog.Logger
	maxBatchSize int
}

func NewHandler(logger zerolog.Logger, maxBatchSize int) *Handler {
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	return &Handler{logger: logger, maxBatchSize: maxBatchSize}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	r.POST("", auth.Authenticate(), h.Ingest)
}

// Ingest processes the batch inline. Oversize batches are rejected rather
// than buffered; the client is expected to retry with smaller batches.
func (h *Handler) Ingest(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing authorization header", nil))
		return
	}

	var req model.IngestLogsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest(err.Error(), nil))
		return
	}
	if len(req.Entries) > h.maxBatchSize {
		httputil.RespondWithError(c, apperrors.BadRequest(
			fmt.Sprintf("batch exceeds %d entries", h.maxBatchSize), nil))
		return
	}

	for _, entry := range req.Entries {
		event := h.logger.Info()
		switch entry.Level {
		case "debug":
			event = h.logger.Debug()
		case "warn":
			event = h.logger.Warn()
		case "error":
			event = h.logger.Error()
		}
		event.
			Str("source", "client").
			Str("user_id", user.ID.String()).
			Str("client_timestamp", entry.Timestamp).
			Str("context", entry.Context).
			Msg(entry.Message)
	}

	httputil.RespondWithSuccess(c, gin.H{"accepted": len(req.Entries)})
}
