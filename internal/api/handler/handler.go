package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/routedly/marketplace-be/internal/job"
	"github.com/routedly/marketplace-be/internal/payment"
	"github.com/routedly/marketplace-be/internal/routing"
	"github.com/routedly/marketplace-be/internal/sla"
	"github.com/routedly/marketplace-be/shared/postgresql"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	DBClient  *postgresql.Client
	Jobs      *job.Storage
	Routing   *routing.Engine
	Payments  *payment.Manager
	Evaluator *sla.Evaluator
	Events    *sla.Storage
}

// JobHandler handles job lifecycle HTTP requests
type JobHandler struct {
	logger *slog.Logger
	jobs   *job.Storage
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}

// RoutingHandler handles claim, fan-out and dispatch response requests
type RoutingHandler struct {
	logger *slog.Logger
	engine *routing.Engine
}

// NewRoutingHandler creates a new RoutingHandler instance
func NewRoutingHandler(deps *Dependencies) *RoutingHandler {
	return &RoutingHandler{
		logger: deps.Logger,
		engine: deps.Routing,
	}
}

// SlaHandler handles monitoring evaluation and event queries
type SlaHandler struct {
	logger    *slog.Logger
	evaluator *sla.Evaluator
	events    *sla.Storage
}

// NewSlaHandler creates a new SlaHandler instance
func NewSlaHandler(deps *Dependencies) *SlaHandler {
	return &SlaHandler{
		logger:    deps.Logger,
		evaluator: deps.Evaluator,
		events:    deps.Events,
	}
}

// PaymentHandler handles escrow funding requests
type PaymentHandler struct {
	logger   *slog.Logger
	jobs     *job.Storage
	payments *payment.Manager
}

// NewPaymentHandler creates a new PaymentHandler instance
func NewPaymentHandler(deps *Dependencies) *PaymentHandler {
	return &PaymentHandler{
		logger:   deps.Logger,
		jobs:     deps.Jobs,
		payments: deps.Payments,
	}
}

// authUserID returns the user id placed in the context by the auth
// middleware.
func authUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// authRole returns the role claim placed in the context by the auth
// middleware.
func authRole(c *gin.Context) string {
	return c.GetString("role")
}
