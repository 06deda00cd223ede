package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/routedly/marketplace-be/internal/job"
)

// Fan-out bounds. A routing round offers the job to between 1 and 5
// contractors.
const (
	MinContractors = 1
	MaxContractors = 5

	// DefaultOfferTTL bounds how long a dispatch offer stays acceptable.
	DefaultOfferTTL = 24 * time.Hour
)

// Store is the durable surface the engine drives. All conditional methods
// return false (not an error) when the guarded write affected zero rows, so
// the engine can classify the conflict.
type Store interface {
	GetJobByID(ctx context.Context, jobID string) (*job.Job, error)
	CountClaimedUnrouted(ctx context.Context, routerID string) (int, error)
	ClaimJob(ctx context.Context, jobID, routerID string, now time.Time) (bool, error)
	CreateDispatches(ctx context.Context, dispatches []*Dispatch) error
	SupersedePending(ctx context.Context, jobID string, now time.Time) error
	GetDispatchByTokenHash(ctx context.Context, tokenHash string) (*Dispatch, error)
	AcceptDispatch(ctx context.Context, d *Dispatch, ecd *time.Time, now time.Time) (bool, error)
	DeclineDispatch(ctx context.Context, dispatchID string, now time.Time) (bool, error)
	MarkExpired(ctx context.Context, dispatchID string, now time.Time) error
	HasAssignment(ctx context.Context, jobID string) (bool, error)
	AdminAssign(ctx context.Context, jobID, adminID, contractorID string, now time.Time) (bool, error)
}

// Engine coordinates router claims and the dispatch fan-out / first-accept
// flow. Cross-request invariants live in the store's conditional writes, not
// in process memory.
type Engine struct {
	store    Store
	logger   *slog.Logger
	offerTTL time.Duration
	now      func() time.Time
}

// NewEngine creates an Engine. A non-positive offerTTL falls back to the
// 24h default.
func NewEngine(store Store, logger *slog.Logger, offerTTL time.Duration) *Engine {
	if offerTTL <= 0 {
		offerTTL = DefaultOfferTTL
	}
	return &Engine{
		store:    store,
		logger:   logger,
		offerTTL: offerTTL,
		now:      time.Now,
	}
}

// Claim gives the router an exclusive hold on an unrouted job. A router may
// hold at most one claimed-but-unrouted job at a time; the count is derived
// from job rows rather than a mutable counter.
func (e *Engine) Claim(ctx context.Context, jobID, routerID string) error {
	held, err := e.store.CountClaimedUnrouted(ctx, routerID)
	if err != nil {
		return fmt.Errorf("failed to check router claims: %w", err)
	}
	if held > 0 {
		e.logger.Info("Claim rejected, router already holds an unrouted job",
			slog.String("job_id", jobID),
			slog.String("router_id", routerID),
			slog.Int("held", held),
		)
		return fmt.Errorf("%w: router holds %d unrouted claim(s)", job.ErrNotEligible, held)
	}

	claimed, err := e.store.ClaimJob(ctx, jobID, routerID, e.now())
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if claimed {
		e.logger.Info("Job claimed",
			slog.String("job_id", jobID),
			slog.String("router_id", routerID),
		)
		return nil
	}

	// Zero rows: re-read to tell the caller why.
	j, err := e.store.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.ClaimedByUserID != nil {
		return job.ErrAlreadyClaimed
	}
	return fmt.Errorf("%w: job is not open for claiming", job.ErrNotEligible)
}

// ApplyRouting fans a claimed job out to 1-5 contractors, one time-boxed
// dispatch each. Earlier pending offers for the job are superseded, never
// deleted. The returned offers carry the only plaintext copy of each token.
func (e *Engine) ApplyRouting(ctx context.Context, jobID, routerID string, contractorIDs []string) ([]Offer, error) {
	if len(contractorIDs) < MinContractors || len(contractorIDs) > MaxContractors {
		return nil, job.NewValidationError("contractor_ids",
			fmt.Sprintf("must contain between %d and %d entries", MinContractors, MaxContractors))
	}
	seen := make(map[string]bool, len(contractorIDs))
	for _, id := range contractorIDs {
		if _, err := uuid.Parse(id); err != nil {
			return nil, job.NewValidationError("contractor_ids", "entries must be valid UUIDs")
		}
		if seen[id] {
			return nil, job.NewValidationError("contractor_ids", "entries must be distinct")
		}
		seen[id] = true
	}

	j, err := e.store.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Archived {
		return nil, job.ErrJobArchived
	}
	if j.RoutingStatus != job.RoutingUnrouted {
		return nil, job.ErrAlreadyAssigned
	}
	if j.ClaimedByUserID == nil || *j.ClaimedByUserID != routerID {
		return nil, fmt.Errorf("%w: job is not claimed by this router", job.ErrNotEligible)
	}
	if j.Status != job.StatusOpenForRouting {
		return nil, fmt.Errorf("%w: job is not open for routing", job.ErrInvalidTransition)
	}

	now := e.now()
	if err := e.store.SupersedePending(ctx, jobID, now); err != nil {
		return nil, fmt.Errorf("failed to supersede pending dispatches: %w", err)
	}

	dispatches := make([]*Dispatch, 0, len(contractorIDs))
	offers := make([]Offer, 0, len(contractorIDs))
	for _, contractorID := range contractorIDs {
		token, err := NewToken()
		if err != nil {
			return nil, err
		}
		d := &Dispatch{
			DispatchID:   uuid.New().String(),
			JobID:        jobID,
			ContractorID: contractorID,
			RouterUserID: routerID,
			Status:       DispatchPending,
			TokenHash:    HashToken(token),
			ExpiresAt:    now.Add(e.offerTTL),
			CreatedAt:    now,
		}
		dispatches = append(dispatches, d)
		offers = append(offers, Offer{
			DispatchID:   d.DispatchID,
			ContractorID: contractorID,
			Token:        token,
			ExpiresAt:    d.ExpiresAt,
		})
	}

	if err := e.store.CreateDispatches(ctx, dispatches); err != nil {
		return nil, fmt.Errorf("failed to create dispatches: %w", err)
	}

	e.logger.Info("Job routed to contractors",
		slog.String("job_id", jobID),
		slog.String("router_id", routerID),
		slog.Int("dispatch_count", len(dispatches)),
	)

	return offers, nil
}

// Respond resolves a contractor's decision on a dispatch token. Acceptance
// is first-accept-wins: the store executes the accept, sibling expiry,
// assignment insert, and job transition in one transaction, and this method
// classifies the losing paths.
func (e *Engine) Respond(ctx context.Context, token string, decision Decision, ecd *time.Time) (*Dispatch, error) {
	if decision != DecisionAccept && decision != DecisionDecline {
		return nil, job.NewValidationError("decision", "must be ACCEPT or DECLINE")
	}

	d, err := e.store.GetDispatchByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}

	now := e.now()

	// Expiry is evaluated against the clock first: a stale token reads
	// EXPIRED even when the job has since been assigned.
	if !now.Before(d.ExpiresAt) {
		if d.Status == DispatchPending {
			if markErr := e.store.MarkExpired(ctx, d.DispatchID, now); markErr != nil {
				e.logger.Warn("Failed to mark dispatch expired",
					slog.String("dispatch_id", d.DispatchID),
					slog.String("error", markErr.Error()),
				)
			}
		}
		return nil, ErrDispatchExpired
	}

	if decision == DecisionDecline {
		ok, err := e.store.DeclineDispatch(ctx, d.DispatchID, now)
		if err != nil {
			return nil, fmt.Errorf("failed to decline dispatch: %w", err)
		}
		if !ok {
			return nil, e.classifyConflict(ctx, d)
		}
		d.Status = DispatchDeclined
		d.RespondedAt = &now
		e.logger.Info("Dispatch declined",
			slog.String("dispatch_id", d.DispatchID),
			slog.String("job_id", d.JobID),
		)
		return d, nil
	}

	ok, err := e.store.AcceptDispatch(ctx, d, ecd, now)
	if err != nil {
		return nil, fmt.Errorf("failed to accept dispatch: %w", err)
	}
	if !ok {
		return nil, e.classifyConflict(ctx, d)
	}

	d.Status = DispatchAccepted
	d.RespondedAt = &now
	d.EstimatedCompletionDate = ecd
	e.logger.Info("Dispatch accepted",
		slog.String("dispatch_id", d.DispatchID),
		slog.String("job_id", d.JobID),
		slog.String("contractor_id", d.ContractorID),
	)
	return d, nil
}

// classifyConflict explains a lost conditional write: an assigned job reads
// ALREADY_ASSIGNED (including the winner retrying); anything else was a
// prior response on this dispatch.
func (e *Engine) classifyConflict(ctx context.Context, d *Dispatch) error {
	assigned, err := e.store.HasAssignment(ctx, d.JobID)
	if err != nil {
		return fmt.Errorf("failed to inspect assignment: %w", err)
	}
	if assigned {
		return job.ErrAlreadyAssigned
	}
	return ErrAlreadyResponded
}

// AdminRoute binds a contractor directly, bypassing the fan-out round. It
// stamps ROUTED_BY_ADMIN attribution and shares the first_routed_at rule
// with router acceptance: set once, never overwritten.
func (e *Engine) AdminRoute(ctx context.Context, jobID, adminID, contractorID string) error {
	if _, err := uuid.Parse(contractorID); err != nil {
		return job.NewValidationError("contractor_id", "must be a valid UUID")
	}

	ok, err := e.store.AdminAssign(ctx, jobID, adminID, contractorID, e.now())
	if err != nil {
		return fmt.Errorf("failed to admin-route job: %w", err)
	}
	if !ok {
		if _, getErr := e.store.GetJobByID(ctx, jobID); getErr != nil {
			return getErr
		}
		return job.ErrAlreadyAssigned
	}

	e.logger.Info("Job routed by admin",
		slog.String("job_id", jobID),
		slog.String("admin_id", adminID),
		slog.String("contractor_id", contractorID),
	)
	return nil
}
