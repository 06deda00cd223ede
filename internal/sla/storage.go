package sla

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/routedly/marketplace-be/internal/job"
)

// Storage reads job candidates and appends monitoring events. Candidate
// queries pre-filter with NOT EXISTS so steady-state passes stay cheap; the
// unique constraint on insert is what actually guarantees dedup under
// concurrent evaluators.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new sla Storage.
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{db: db, logger: logger}
}

const candidateJobColumns = `
	j.job_id, j.job_poster_user_id, j.title, j.description, j.status,
	j.status_before_dispute, j.routing_status, j.archived, j.posted_at,
	j.routing_due_at, j.first_routed_at, j.routed_at, j.claimed_at,
	j.contractor_completed_at, j.customer_approved_at, j.router_approved_at,
	j.escrow_locked_at, j.disputed_at, j.claimed_by_user_id,
	j.contractor_user_id, j.admin_routed_by_id, j.labor_total_cents,
	j.materials_total_cents, j.transaction_fee_cents, j.router_earnings_cents,
	j.contractor_payout_cents, j.broker_fee_cents, j.created_at, j.updated_at
`

// ListUnroutedActive returns posted, unrouted, unarchived jobs still missing
// at least one of the two time-window events.
func (s *Storage) ListUnroutedActive(ctx context.Context) ([]job.Job, error) {
	query := `
		SELECT ` + candidateJobColumns + `
		FROM jobs j
		WHERE j.routing_status = 'UNROUTED'
		  AND j.archived = FALSE
		  AND j.posted_at IS NOT NULL
		  AND (
			NOT EXISTS (
				SELECT 1 FROM monitoring_events e
				WHERE e.job_id = j.job_id AND e.event_type = 'JOB_APPROACHING_24H'
			)
			OR NOT EXISTS (
				SELECT 1 FROM monitoring_events e
				WHERE e.job_id = j.job_id AND e.event_type = 'JOB_OVERDUE_UNROUTED'
			)
		  )
	`

	var jobs []job.Job
	if err := s.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list unrouted jobs: %w", err)
	}
	return jobs, nil
}

// ListRoutedMissingEvent returns routed jobs without a JOB_ROUTED event yet.
func (s *Storage) ListRoutedMissingEvent(ctx context.Context) ([]job.Job, error) {
	query := `
		SELECT ` + candidateJobColumns + `
		FROM jobs j
		WHERE j.first_routed_at IS NOT NULL
		  AND j.archived = FALSE
		  AND NOT EXISTS (
			SELECT 1 FROM monitoring_events e
			WHERE e.job_id = j.job_id AND e.event_type = 'JOB_ROUTED'
		  )
	`

	var jobs []job.Job
	if err := s.db.SelectContext(ctx, &jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list routed jobs: %w", err)
	}
	return jobs, nil
}

type completionRow struct {
	job.Job
	AContractorID *string    `db:"a_contractor_id"`
	AAssignedAt   *time.Time `db:"a_assigned_at"`
	ACompletedAt  *time.Time `db:"a_completed_at"`
}

// ListCompletionCandidates returns jobs satisfying any completion proxy and
// still missing a JOB_COMPLETED event, with their assignment when present.
func (s *Storage) ListCompletionCandidates(ctx context.Context) ([]Candidate, error) {
	query := `
		SELECT ` + candidateJobColumns + `,
		       a.contractor_id AS a_contractor_id,
		       a.assigned_at   AS a_assigned_at,
		       a.completed_at  AS a_completed_at
		FROM jobs j
		LEFT JOIN assignments a ON a.job_id = j.job_id
		WHERE j.archived = FALSE
		  AND (
			j.status = 'COMPLETED_APPROVED'
			OR j.customer_approved_at IS NOT NULL
			OR a.completed_at IS NOT NULL
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM monitoring_events e
			WHERE e.job_id = j.job_id AND e.event_type = 'JOB_COMPLETED'
		  )
	`

	var rows []completionRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list completion candidates: %w", err)
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, r := range rows {
		c := Candidate{Job: r.Job}
		if r.AContractorID != nil {
			c.Assignment = &job.Assignment{
				JobID:        r.Job.JobID,
				ContractorID: *r.AContractorID,
				CompletedAt:  r.ACompletedAt,
			}
			if r.AAssignedAt != nil {
				c.Assignment.AssignedAt = *r.AAssignedAt
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// InsertEvent appends one event, ignoring the (job_id, event_type) conflict.
// Returns true only when this call inserted the row.
func (s *Storage) InsertEvent(ctx context.Context, ev *Event) (bool, error) {
	query := `
		INSERT INTO monitoring_events (event_id, job_id, event_type, role, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT ON CONSTRAINT uq_monitoring_events_job_type DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		ev.EventID, ev.JobID, ev.Type, ev.Role, ev.UserID, ev.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert monitoring event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// EventFilter narrows the admin event listing.
type EventFilter struct {
	Type          string
	JobID         string
	UnhandledOnly bool
	PageSize      int
	Cursor        *EventCursor
}

// EventCursor is the keyset position for event pagination.
type EventCursor struct {
	CreatedAt time.Time
	EventID   string
}

// EventWithJob is an event joined with a compact job summary for the admin
// listing.
type EventWithJob struct {
	Event
	JobTitle        string     `db:"job_title"`
	JobStatus       job.Status `db:"job_status"`
	JobPosterUserID string     `db:"job_poster_user_id"`
}

// ListEvents pages through events newest-first using a keyset cursor,
// fetching one extra row so the caller can tell whether more remain.
func (s *Storage) ListEvents(ctx context.Context, filter EventFilter) ([]EventWithJob, error) {
	query := `
		SELECT e.event_id, e.job_id, e.event_type, e.role, e.user_id,
		       e.created_at, e.handled_at,
		       j.title  AS job_title,
		       j.status AS job_status,
		       j.job_poster_user_id
		FROM monitoring_events e
		JOIN jobs j ON j.job_id = e.job_id
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Type != "" {
		query += fmt.Sprintf(" AND e.event_type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}

	if filter.JobID != "" {
		query += fmt.Sprintf(" AND e.job_id = $%d", argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}

	if filter.UnhandledOnly {
		query += " AND e.handled_at IS NULL"
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (e.created_at, e.event_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.EventID)
		argIdx += 2
	}

	query += " ORDER BY e.created_at DESC, e.event_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var events []EventWithJob
	if err := s.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list monitoring events: %w", err)
	}
	return events, nil
}
