package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/routedly/marketplace-be/internal/job"
	"github.com/routedly/marketplace-be/internal/payment"
	"github.com/routedly/marketplace-be/internal/routing"
)

// respondError maps domain errors onto the HTTP surface: validation 400,
// not-found 404, conflict class 409, expired tokens 410, provider failures
// 502, everything else 500.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var providerErr *payment.ProviderError

	switch {
	case job.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.Is(err, job.ErrJobNotFound),
		errors.Is(err, routing.ErrDispatchNotFound),
		errors.Is(err, payment.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})

	case errors.Is(err, routing.ErrDispatchExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})

	case errors.Is(err, job.ErrInvalidTransition),
		errors.Is(err, job.ErrNotEligible),
		errors.Is(err, job.ErrAlreadyClaimed),
		errors.Is(err, job.ErrAlreadyAssigned),
		errors.Is(err, job.ErrJobArchived),
		errors.Is(err, job.ErrDisputeHold),
		errors.Is(err, job.ErrTotalsLocked),
		errors.Is(err, routing.ErrAlreadyResponded),
		errors.Is(err, payment.ErrAlreadyFunded),
		errors.Is(err, payment.ErrIntentMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})

	case errors.As(err, &providerErr):
		logger.Error("Payment provider failure",
			slog.String("op", providerErr.Op),
			slog.String("error", providerErr.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider unavailable"})

	default:
		logger.Error("Unhandled error", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
