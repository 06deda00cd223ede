package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/routedly/marketplace-be/internal/api/dto"
	"github.com/routedly/marketplace-be/internal/job"
)

func toJobResponse(j *job.Job) dto.JobResponse {
	fmtTime := func(t *time.Time) *string {
		if t == nil {
			return nil
		}
		s := t.Format(time.RFC3339)
		return &s
	}

	return dto.JobResponse{
		JobID:                 j.JobID,
		JobPosterUserID:       j.JobPosterUserID,
		Title:                 j.Title,
		Description:           j.Description,
		Status:                string(j.Status),
		RoutingStatus:         string(j.RoutingStatus),
		Archived:              j.Archived,
		PostedAt:              fmtTime(j.PostedAt),
		RoutingDueAt:          fmtTime(j.RoutingDueAt),
		RoutedAt:              fmtTime(j.RoutedAt),
		ClaimedByUserID:       j.ClaimedByUserID,
		ContractorUserID:      j.ContractorUserID,
		LaborTotalCents:       j.LaborTotalCents,
		MaterialsTotalCents:   j.MaterialsTotalCents,
		RouterEarningsCents:   j.RouterEarningsCents,
		ContractorPayoutCents: j.ContractorPayoutCents,
		BrokerFeeCents:        j.BrokerFeeCents,
		Funded:                j.Funded(),
		CreatedAt:             j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             j.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateJob handles POST /api/v1/jobs
// Creates a DRAFT job owned by the authenticated poster
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if req.LaborTotalCents < 0 || req.MaterialsTotalCents < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totals must not be negative"})
		return
	}

	var routingDueAt *time.Time
	if req.RoutingDueAt != "" {
		t, err := time.Parse(time.RFC3339, req.RoutingDueAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "routing_due_at must be RFC3339"})
			return
		}
		routingDueAt = &t
	}

	now := time.Now().UTC()
	j := job.Job{
		JobID:               uuid.New().String(),
		JobPosterUserID:     authUserID(c),
		Title:               req.Title,
		Description:         req.Description,
		Status:              job.StatusDraft,
		RoutingStatus:       job.RoutingUnrouted,
		RoutingDueAt:        routingDueAt,
		LaborTotalCents:     req.LaborTotalCents,
		MaterialsTotalCents: req.MaterialsTotalCents,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	job.ApplyPayout(&j)

	if err := h.jobs.CreateJob(c.Request.Context(), &j); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", j.JobID),
		slog.String("poster_id", j.JobPosterUserID),
	)

	c.JSON(http.StatusCreated, toJobResponse(&j))
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return
	}

	j, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toJobResponse(j))
}

// loadOwnedJob fetches the job and enforces poster ownership (admin passes).
func (h *JobHandler) loadOwnedJob(c *gin.Context) (*job.Job, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "job_id must be a valid UUID"})
		return nil, false
	}

	j, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return nil, false
	}

	if authRole(c) != "admin" && j.JobPosterUserID != authUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the job poster"})
		return nil, false
	}

	return j, true
}

// transition applies an in-memory status change and persists it with the
// conditional write keyed on the status the caller saw.
func (h *JobHandler) transition(c *gin.Context, j *job.Job, to job.Status) {
	from := j.Status
	if err := job.Transition(j, to, time.Now().UTC()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.jobs.UpdateStatus(c.Request.Context(), j, from); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Job status changed",
		slog.String("job_id", j.JobID),
		slog.String("from", string(from)),
		slog.String("to", string(j.Status)),
	)

	c.JSON(http.StatusOK, toJobResponse(j))
}

// PublishJob handles POST /api/v1/jobs/:job_id/publish
// Moves a draft into the routable pool
func (h *JobHandler) PublishJob(c *gin.Context) {
	j, ok := h.loadOwnedJob(c)
	if !ok {
		return
	}
	h.transition(c, j, job.StatusOpenForRouting)
}

// UpdateTotals handles PATCH /api/v1/jobs/:job_id/totals
// Totals are rejected once escrow is locked
func (h *JobHandler) UpdateTotals(c *gin.Context) {
	j, ok := h.loadOwnedJob(c)
	if !ok {
		return
	}

	var req dto.UpdateTotalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.LaborTotalCents < 0 || req.MaterialsTotalCents < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totals must not be negative"})
		return
	}

	err := h.jobs.UpdateTotals(c.Request.Context(), j.JobID, req.LaborTotalCents, req.MaterialsTotalCents, time.Now().UTC())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	updated, err := h.jobs.GetJobByID(c.Request.Context(), j.JobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toJobResponse(updated))
}

// StartJob handles POST /api/v1/jobs/:job_id/start
// The assigned contractor begins work
func (h *JobHandler) StartJob(c *gin.Context) {
	jobID := c.Param("job_id")
	j, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if j.ContractorUserID == nil || *j.ContractorUserID != authUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the assigned contractor"})
		return
	}

	h.transition(c, j, job.StatusInProgress)
}

// CompleteJob handles POST /api/v1/jobs/:job_id/complete
// The assigned contractor marks the work done, stamping both the job and
// the assignment
func (h *JobHandler) CompleteJob(c *gin.Context) {
	jobID := c.Param("job_id")
	j, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if j.ContractorUserID == nil || *j.ContractorUserID != authUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the assigned contractor"})
		return
	}

	from := j.Status
	now := time.Now().UTC()
	if err := job.Transition(j, job.StatusContractorCompleted, now); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.jobs.UpdateStatus(c.Request.Context(), j, from); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.jobs.MarkAssignmentCompleted(c.Request.Context(), j.JobID, now); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toJobResponse(j))
}

// ApproveJob handles POST /api/v1/jobs/:job_id/approve
// The approval target depends on who is approving: the poster confirms the
// work, the router countersigns, an admin finalizes
func (h *JobHandler) ApproveJob(c *gin.Context) {
	jobID := c.Param("job_id")
	j, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var target job.Status
	switch authRole(c) {
	case "job_poster":
		if j.JobPosterUserID != authUserID(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not the job poster"})
			return
		}
		target = job.StatusCustomerApproved
	case "router":
		if j.ClaimedByUserID == nil || *j.ClaimedByUserID != authUserID(c) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not the routing holder"})
			return
		}
		target = job.StatusRouterApproved
	case "admin":
		target = job.StatusCompletedApproved
	default:
		c.JSON(http.StatusForbidden, gin.H{"error": "role cannot approve"})
		return
	}

	h.transition(c, j, target)
}

// RejectJob handles POST /api/v1/jobs/:job_id/reject
// The poster sends completed work back to the contractor
func (h *JobHandler) RejectJob(c *gin.Context) {
	j, ok := h.loadOwnedJob(c)
	if !ok {
		return
	}
	h.transition(c, j, job.StatusCustomerRejected)
}

// FlagJob handles POST /api/v1/jobs/:job_id/flag
// The routing holder contests a completion claim
func (h *JobHandler) FlagJob(c *gin.Context) {
	jobID := c.Param("job_id")
	j, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if authRole(c) != "admin" && (j.ClaimedByUserID == nil || *j.ClaimedByUserID != authUserID(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the routing holder"})
		return
	}

	h.transition(c, j, job.StatusCompletionFlagged)
}

// DisputeJob handles POST /api/v1/jobs/:job_id/dispute
// Opens the dispute hold on a funded job
func (h *JobHandler) DisputeJob(c *gin.Context) {
	j, ok := h.loadOwnedJob(c)
	if !ok {
		return
	}

	from := j.Status
	if err := job.OpenDispute(j, time.Now().UTC()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.jobs.UpdateStatus(c.Request.Context(), j, from); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Dispute opened",
		slog.String("job_id", j.JobID),
		slog.String("held_from", string(from)),
	)

	c.JSON(http.StatusOK, toJobResponse(j))
}

// ClearDisputeJob handles POST /api/v1/jobs/:job_id/dispute/clear
// Lifts the hold and restores the pre-dispute status
func (h *JobHandler) ClearDisputeJob(c *gin.Context) {
	if authRole(c) != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admins clear disputes"})
		return
	}

	jobID := c.Param("job_id")
	j, err := h.jobs.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	from := j.Status
	if err := job.ClearDispute(j, time.Now().UTC()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.jobs.UpdateStatus(c.Request.Context(), j, from); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toJobResponse(j))
}

// ArchiveJob handles POST /api/v1/jobs/:job_id/archive
// Soft delete; archived jobs leave every active-path query
func (h *JobHandler) ArchiveJob(c *gin.Context) {
	j, ok := h.loadOwnedJob(c)
	if !ok {
		return
	}

	if err := h.jobs.Archive(c.Request.Context(), j.JobID, time.Now().UTC()); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
