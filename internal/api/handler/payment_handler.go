package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/routedly/marketplace-be/internal/api/dto"
)

// CreatePaymentIntent handles POST /api/v1/jobs/:job_id/payment-intent
// Safe to retry: the same job and amount always yield the same intent
func (h *PaymentHandler) CreatePaymentIntent(c *gin.Context) {
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
	if authRole(c) != "admin" && j.JobPosterUserID != authUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the job poster"})
		return
	}

	result, err := h.payments.CreateIntent(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.PaymentIntentResponse{
		JobID:            jobID,
		ProviderIntentID: result.ProviderIntentID,
		ClientSecret:     result.ClientSecret,
		AmountCents:      result.AmountCents,
	})
}

// ConfirmPayment handles POST /api/v1/payments/confirm
// Called by the provider webhook once the charge settles; locks escrow
// exactly once
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	var req dto.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	rec, err := h.payments.Confirm(c.Request.Context(), req.JobID, req.ProviderIntentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Payment confirmed",
		slog.String("job_id", rec.JobID),
		slog.Int64("amount_cents", rec.AmountCents),
	)

	c.JSON(http.StatusOK, dto.ConfirmPaymentResponse{
		JobID:       rec.JobID,
		Status:      string(rec.Status),
		AmountCents: rec.AmountCents,
	})
}
