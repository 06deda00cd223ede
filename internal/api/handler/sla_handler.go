package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/routedly/marketplace-be/internal/api/dto"
	"github.com/routedly/marketplace-be/internal/sla"
)

// Evaluate handles POST /api/v1/sla/evaluate
// Runs one on-demand monitoring pass; re-runs over unchanged data emit
// nothing
func (h *SlaHandler) Evaluate(c *gin.Context) {
	counts, err := h.evaluator.Run(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	emitted := make(map[string]int, len(counts))
	for t, n := range counts {
		emitted[string(t)] = n
	}

	c.JSON(http.StatusOK, gin.H{"emitted": emitted})
}

// ListEvents handles GET /api/v1/sla/events
// Cursor-paginated, newest first
func (h *SlaHandler) ListEvents(c *gin.Context) {
	var req dto.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeEventCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid event cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}

	events, err := h.events.ListEvents(c.Request.Context(), sla.EventFilter{
		Type:          req.Type,
		JobID:         req.JobID,
		UnhandledOnly: req.Unhandled,
		PageSize:      req.PageSize,
		Cursor:        cursor,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(events) > req.PageSize
	if hasMore {
		events = events[:req.PageSize]
	}

	resp := dto.ListEventsResponse{Events: make([]dto.EventDTO, len(events))}
	for i, ev := range events {
		var handledAt *string
		if ev.HandledAt != nil {
			s := ev.HandledAt.Format(time.RFC3339)
			handledAt = &s
		}
		resp.Events[i] = dto.EventDTO{
			EventID:         ev.EventID,
			JobID:           ev.JobID,
			Type:            string(ev.Type),
			Role:            ev.Role,
			UserID:          ev.UserID,
			CreatedAt:       ev.CreatedAt.Format(time.RFC3339),
			HandledAt:       handledAt,
			JobTitle:        ev.JobTitle,
			JobStatus:       string(ev.JobStatus),
			JobPosterUserID: ev.JobPosterUserID,
		}
	}

	if hasMore {
		last := events[len(events)-1]
		resp.NextCursor = EncodeEventCursor(&sla.EventCursor{
			CreatedAt: last.CreatedAt,
			EventID:   last.EventID,
		})
	}

	c.JSON(http.StatusOK, resp)
}
