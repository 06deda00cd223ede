package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/routedly/marketplace-be/internal/api/dto"
	"github.com/routedly/marketplace-be/internal/routing"
)

// ClaimJob handles POST /api/v1/jobs/:job_id/claim
// A router takes the exclusive routing slot on an open job
func (h *RoutingHandler) ClaimJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	if authRole(c) != "router" {
		c.JSON(http.StatusForbidden, gin.H{"error": "only routers claim jobs"})
		return
	}

	routerID := authUserID(c)
	if err := h.engine.Claim(c.Request.Context(), jobID, routerID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("router_id", routerID),
	)

	c.JSON(http.StatusOK, gin.H{
		"job_id":     jobID,
		"claimed_by": routerID,
	})
}

// ApplyRouting handles POST /api/v1/jobs/:job_id/routing
// Fans the job out to 1-5 contractors; plaintext tokens appear only in this
// response
func (h *RoutingHandler) ApplyRouting(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	var req dto.ApplyRoutingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	offers, err := h.engine.ApplyRouting(c.Request.Context(), jobID, authUserID(c), req.ContractorIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	resp := dto.ApplyRoutingResponse{JobID: jobID, Offers: make([]dto.OfferDTO, len(offers))}
	for i, o := range offers {
		resp.Offers[i] = dto.OfferDTO{
			DispatchID:   o.DispatchID,
			ContractorID: o.ContractorID,
			Token:        o.Token,
			ExpiresAt:    o.ExpiresAt.Format(time.RFC3339),
		}
	}

	c.JSON(http.StatusCreated, resp)
}

// RespondDispatch handles POST /api/v1/dispatches/respond
// The token is the capability; no session is required
func (h *RoutingHandler) RespondDispatch(c *gin.Context) {
	var req dto.RespondDispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var decision routing.Decision
	switch req.Decision {
	case string(routing.DecisionAccept):
		decision = routing.DecisionAccept
	case string(routing.DecisionDecline):
		decision = routing.DecisionDecline
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be ACCEPT or DECLINE"})
		return
	}

	var ecd *time.Time
	if req.EstimatedCompletionDate != "" {
		t, err := time.Parse("2006-01-02", req.EstimatedCompletionDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "estimated_completion_date must be YYYY-MM-DD"})
			return
		}
		ecd = &t
	}

	d, err := h.engine.Respond(c.Request.Context(), req.Token, decision, ecd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.RespondDispatchResponse{
		DispatchID: d.DispatchID,
		JobID:      d.JobID,
		Status:     string(d.Status),
	})
}

// AdminRoute handles POST /api/v1/jobs/:job_id/admin-route
// Direct assignment bypassing the claim flow
func (h *RoutingHandler) AdminRoute(c *gin.Context) {
	if authRole(c) != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admins route directly"})
		return
	}

	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	var req dto.AdminRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if _, err := uuid.Parse(req.ContractorID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "contractor_id must be a valid UUID"})
		return
	}

	if err := h.engine.AdminRoute(c.Request.Context(), jobID, authUserID(c), req.ContractorID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":        jobID,
		"contractor_id": req.ContractorID,
	})
}
