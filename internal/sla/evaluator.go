package sla

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/routedly/marketplace-be/internal/job"
)

// Candidate pairs a job with its assignment (nil when none) for the
// completion rule.
type Candidate struct {
	Job        job.Job
	Assignment *job.Assignment
}

// Store is the read-and-append surface the evaluator drives. InsertEvent is
// an insert-ignore-conflicts write: false means the (job, type) pair already
// existed, which is the designed idempotency, not a failure.
type Store interface {
	ListUnroutedActive(ctx context.Context) ([]job.Job, error)
	ListRoutedMissingEvent(ctx context.Context) ([]job.Job, error)
	ListCompletionCandidates(ctx context.Context) ([]Candidate, error)
	InsertEvent(ctx context.Context, ev *Event) (bool, error)
}

// Publisher pushes freshly emitted events to the notification broker.
// Publishing is best-effort: the events table is the source of truth.
type Publisher interface {
	PublishEvent(ctx context.Context, ev *Event) error
}

// Evaluator is the stateless, repeatable SLA evaluation pass. It only
// appends to the events table; job rows are never mutated here.
type Evaluator struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewEvaluator creates an Evaluator. publisher may be nil when no broker is
// wired (tests, one-shot runs).
func NewEvaluator(store Store, publisher Publisher, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes all four rules and returns the count of newly emitted events
// per type. Re-running over unchanged data emits nothing: every insert is
// deduplicated by the (job_id, event_type) unique constraint.
func (e *Evaluator) Run(ctx context.Context) (map[EventType]int, error) {
	now := e.now()
	counts := make(map[EventType]int, len(EventTypes))
	for _, t := range EventTypes {
		counts[t] = 0
	}

	unrouted, err := e.store.ListUnroutedActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unrouted jobs: %w", err)
	}
	for i := range unrouted {
		j := &unrouted[i]
		if IsApproachingDeadline(j, now) {
			if err := e.emit(ctx, j.JobID, EventApproaching24h, RoleJobPoster, &j.JobPosterUserID, now, counts); err != nil {
				return nil, err
			}
		}
		if IsOverdueUnrouted(j, now) {
			if err := e.emit(ctx, j.JobID, EventOverdueUnrouted, RoleJobPoster, &j.JobPosterUserID, now, counts); err != nil {
				return nil, err
			}
		}
	}

	routed, err := e.store.ListRoutedMissingEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list routed jobs: %w", err)
	}
	for i := range routed {
		j := &routed[i]
		if j.FirstRoutedAt == nil {
			continue
		}
		role, userID := routedAttribution(j)
		if err := e.emit(ctx, j.JobID, EventRouted, role, userID, now, counts); err != nil {
			return nil, err
		}
	}

	candidates, err := e.store.ListCompletionCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list completion candidates: %w", err)
	}
	for i := range candidates {
		c := &candidates[i]
		if !IsCompleted(&c.Job, c.Assignment) {
			continue
		}
		if err := e.emit(ctx, c.Job.JobID, EventCompleted, RoleContractor, c.Job.ContractorUserID, now, counts); err != nil {
			return nil, err
		}
	}

	e.logger.Info("SLA evaluation pass finished",
		slog.Int("approaching", counts[EventApproaching24h]),
		slog.Int("overdue", counts[EventOverdueUnrouted]),
		slog.Int("routed", counts[EventRouted]),
		slog.Int("completed", counts[EventCompleted]),
	)

	return counts, nil
}

func (e *Evaluator) emit(ctx context.Context, jobID string, t EventType, role string, userID *string, now time.Time, counts map[EventType]int) error {
	ev := &Event{
		EventID:   uuid.New().String(),
		JobID:     jobID,
		Type:      t,
		Role:      role,
		UserID:    userID,
		CreatedAt: now,
	}

	inserted, err := e.store.InsertEvent(ctx, ev)
	if err != nil {
		// A transaction-level failure aborts the whole pass; per-row
		// conflicts were already swallowed by the insert itself.
		return fmt.Errorf("failed to insert %s event for job %s: %w", t, jobID, err)
	}
	if !inserted {
		return nil
	}

	counts[t]++
	e.logger.Debug("Monitoring event emitted",
		slog.String("job_id", jobID),
		slog.String("event_type", string(t)),
	)

	if e.publisher != nil {
		if pubErr := e.publisher.PublishEvent(ctx, ev); pubErr != nil {
			e.logger.Warn("Failed to publish monitoring event, continuing",
				slog.String("event_id", ev.EventID),
				slog.String("event_type", string(t)),
				slog.String("error", pubErr.Error()),
			)
		}
	}

	return nil
}
