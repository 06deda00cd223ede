package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrTotalsLocked is returned when a totals edit is attempted after funding.
var ErrTotalsLocked = errors.New("job totals are locked after funding")

// Storage handles durable job and assignment records.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance.
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{db: db, logger: logger}
}

const jobColumns = `
	job_id, job_poster_user_id, title, description, status, status_before_dispute,
	routing_status, archived, posted_at, routing_due_at, first_routed_at, routed_at,
	claimed_at, contractor_completed_at, customer_approved_at, router_approved_at,
	escrow_locked_at, disputed_at, claimed_by_user_id, contractor_user_id,
	admin_routed_by_id, labor_total_cents, materials_total_cents,
	transaction_fee_cents, router_earnings_cents, contractor_payout_cents,
	broker_fee_cents, created_at, updated_at
`

// CreateJob inserts a new DRAFT job.
func (s *Storage) CreateJob(ctx context.Context, j *Job) error {
	query := `
		INSERT INTO jobs (
			job_id, job_poster_user_id, title, description, status, routing_status,
			archived, routing_due_at, labor_total_cents, materials_total_cents,
			router_earnings_cents, contractor_payout_cents, broker_fee_cents,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13,
			$14, $15
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		j.JobID, j.JobPosterUserID, j.Title, j.Description, j.Status, j.RoutingStatus,
		j.Archived, j.RoutingDueAt, j.LaborTotalCents, j.MaterialsTotalCents,
		j.RouterEarningsCents, j.ContractorPayoutCents, j.BrokerFeeCents,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// GetJobByID retrieves a job row by id.
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*Job, error) {
	var j Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`

	err := s.db.GetContext(ctx, &j, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &j, nil
}

// GetAssignment returns the job's assignment, or nil when none exists.
func (s *Storage) GetAssignment(ctx context.Context, jobID string) (*Assignment, error) {
	var a Assignment
	query := `
		SELECT job_id, contractor_id, assigned_at, completed_at
		FROM assignments
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &a, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	return &a, nil
}

// UpdateStatus persists an in-memory transition as a conditional write keyed
// on the prior status. Zero rows means the job moved underneath us and the
// caller gets a conflict, never a partial write.
func (s *Storage) UpdateStatus(ctx context.Context, j *Job, from Status) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    status_before_dispute = $2,
		    posted_at = $3,
		    contractor_completed_at = $4,
		    customer_approved_at = $5,
		    router_approved_at = $6,
		    disputed_at = $7,
		    updated_at = $8
		WHERE job_id = $9
		  AND status = $10
		  AND archived = FALSE
	`

	result, err := s.db.ExecContext(ctx, query,
		j.Status, j.StatusBeforeDispute, j.PostedAt,
		j.ContractorCompletedAt, j.CustomerApprovedAt, j.RouterApprovedAt,
		j.DisputedAt, j.UpdatedAt,
		j.JobID, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		s.logger.Warn("Job status update lost a concurrent race",
			slog.String("job_id", j.JobID),
			slog.String("from", string(from)),
			slog.String("to", string(j.Status)),
		)
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, j.Status)
	}

	return nil
}

// UpdateTotals rewrites labor/materials totals and the derived payout split.
// Totals are frozen once escrow is locked.
func (s *Storage) UpdateTotals(ctx context.Context, jobID string, laborCents, materialsCents int64, now time.Time) error {
	b := ComputePayout(laborCents, materialsCents)

	query := `
		UPDATE jobs
		SET labor_total_cents = $1,
		    materials_total_cents = $2,
		    router_earnings_cents = $3,
		    contractor_payout_cents = $4,
		    broker_fee_cents = $5,
		    updated_at = $6
		WHERE job_id = $7
		  AND archived = FALSE
		  AND escrow_locked_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query,
		laborCents, materialsCents,
		b.RouterEarningsCents, b.ContractorPayoutCents, b.BrokerFeeCents,
		now, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job totals: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.GetJobByID(ctx, jobID); getErr != nil {
			return getErr
		}
		return ErrTotalsLocked
	}

	return nil
}

// Archive soft-deletes a job, removing it from every active-path query.
func (s *Storage) Archive(ctx context.Context, jobID string, now time.Time) error {
	query := `
		UPDATE jobs
		SET archived = TRUE, updated_at = $1
		WHERE job_id = $2 AND archived = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to archive job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.GetJobByID(ctx, jobID); getErr != nil {
			return getErr
		}
		return ErrJobArchived
	}

	return nil
}

// MarkAssignmentCompleted stamps the assignment's completion time once. The
// 1:1 relationship with the job makes job_id the natural key.
func (s *Storage) MarkAssignmentCompleted(ctx context.Context, jobID string, now time.Time) error {
	query := `
		UPDATE assignments
		SET completed_at = $1
		WHERE job_id = $2 AND completed_at IS NULL
	`

	if _, err := s.db.ExecContext(ctx, query, now, jobID); err != nil {
		return fmt.Errorf("failed to mark assignment completed: %w", err)
	}
	return nil
}

// LockEscrow stamps escrow_locked_at exactly once. Returns true when this
// call performed the lock, false when it was already set.
func (s *Storage) LockEscrow(ctx context.Context, jobID string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET escrow_locked_at = $1, updated_at = $1
		WHERE job_id = $2 AND escrow_locked_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, now, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to lock escrow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}
