package routing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/routedly/marketplace-be/internal/job"
)

// Storage is the PostgreSQL implementation of Store. The accept path runs as
// one transaction so a partially applied acceptance is never observable.
type Storage struct {
	db     *sqlx.DB
	jobs   *job.Storage
	logger *slog.Logger
}

// NewStorage creates a routing Storage sharing the job storage for reads.
func NewStorage(db *sqlx.DB, jobs *job.Storage, logger *slog.Logger) *Storage {
	return &Storage{db: db, jobs: jobs, logger: logger}
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*job.Job, error) {
	return s.jobs.GetJobByID(ctx, jobID)
}

// CountClaimedUnrouted derives the router's live claim count from job rows.
func (s *Storage) CountClaimedUnrouted(ctx context.Context, routerID string) (int, error) {
	var count int
	query := `
		SELECT COUNT(*)
		FROM jobs
		WHERE claimed_by_user_id = $1
		  AND routing_status = 'UNROUTED'
		  AND archived = FALSE
	`

	if err := s.db.GetContext(ctx, &count, query, routerID); err != nil {
		return 0, fmt.Errorf("failed to count claimed jobs: %w", err)
	}
	return count, nil
}

// ClaimJob is the single compare-and-swap that prevents two routers racing
// for the same job.
func (s *Storage) ClaimJob(ctx context.Context, jobID, routerID string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs
		SET claimed_by_user_id = $1,
		    claimed_at = $2,
		    updated_at = $2
		WHERE job_id = $3
		  AND claimed_by_user_id IS NULL
		  AND routing_status = 'UNROUTED'
		  AND status = 'OPEN_FOR_ROUTING'
		  AND archived = FALSE
	`

	result, err := s.db.ExecContext(ctx, query, routerID, now, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Storage) CreateDispatches(ctx context.Context, dispatches []*Dispatch) error {
	query := `
		INSERT INTO dispatches (
			dispatch_id, job_id, contractor_id, router_user_id,
			status, token_hash, expires_at, created_at
		) VALUES (
			:dispatch_id, :job_id, :contractor_id, :router_user_id,
			:status, :token_hash, :expires_at, :created_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, dispatches); err != nil {
		return fmt.Errorf("failed to insert dispatches: %w", err)
	}
	return nil
}

// SupersedePending retires an earlier routing round without deleting rows.
func (s *Storage) SupersedePending(ctx context.Context, jobID string, now time.Time) error {
	query := `
		UPDATE dispatches
		SET status = 'SUPERSEDED', responded_at = $1
		WHERE job_id = $2 AND status = 'PENDING'
	`

	if _, err := s.db.ExecContext(ctx, query, now, jobID); err != nil {
		return fmt.Errorf("failed to supersede dispatches: %w", err)
	}
	return nil
}

func (s *Storage) GetDispatchByTokenHash(ctx context.Context, tokenHash string) (*Dispatch, error) {
	var d Dispatch
	query := `
		SELECT dispatch_id, job_id, contractor_id, router_user_id, status,
		       token_hash, estimated_completion_date, expires_at, responded_at, created_at
		FROM dispatches
		WHERE token_hash = $1
	`

	err := s.db.GetContext(ctx, &d, query, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDispatchNotFound
		}
		return nil, fmt.Errorf("failed to get dispatch: %w", err)
	}
	return &d, nil
}

// AcceptDispatch runs the whole first-accept-wins sequence in one
// transaction: flip this dispatch PENDING -> ACCEPTED, create the
// assignment, expire siblings, and move the job to ASSIGNED with its routing
// stamps. Any guarded step hitting zero rows rolls everything back.
func (s *Storage) AcceptDispatch(ctx context.Context, d *Dispatch, ecd *time.Time, now time.Time) (won bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil || !won {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE dispatches
		SET status = 'ACCEPTED', responded_at = $1, estimated_completion_date = $2
		WHERE dispatch_id = $3 AND status = 'PENDING' AND expires_at > $1
	`, now, ecd, d.DispatchID)
	if err != nil {
		return false, fmt.Errorf("failed to accept dispatch: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	result, err = tx.ExecContext(ctx, `
		INSERT INTO assignments (job_id, contractor_id, assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO NOTHING
	`, d.JobID, d.ContractorID, now)
	if err != nil {
		return false, fmt.Errorf("failed to create assignment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE dispatches
		SET status = 'EXPIRED', responded_at = $1
		WHERE job_id = $2 AND status = 'PENDING' AND dispatch_id <> $3
	`, now, d.JobID, d.DispatchID); err != nil {
		return false, fmt.Errorf("failed to expire sibling dispatches: %w", err)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'ASSIGNED',
		    routing_status = 'ROUTED_BY_ROUTER',
		    contractor_user_id = $1,
		    routed_at = $2,
		    first_routed_at = COALESCE(first_routed_at, $2),
		    updated_at = $2
		WHERE job_id = $3
		  AND status = 'OPEN_FOR_ROUTING'
		  AND archived = FALSE
	`, d.ContractorID, now, d.JobID)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit acceptance: %w", err)
	}

	s.logger.Info("Dispatch acceptance committed",
		slog.String("dispatch_id", d.DispatchID),
		slog.String("job_id", d.JobID),
	)
	return true, nil
}

func (s *Storage) DeclineDispatch(ctx context.Context, dispatchID string, now time.Time) (bool, error) {
	query := `
		UPDATE dispatches
		SET status = 'DECLINED', responded_at = $1
		WHERE dispatch_id = $2 AND status = 'PENDING'
	`

	result, err := s.db.ExecContext(ctx, query, now, dispatchID)
	if err != nil {
		return false, fmt.Errorf("failed to decline dispatch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *Storage) MarkExpired(ctx context.Context, dispatchID string, now time.Time) error {
	query := `
		UPDATE dispatches
		SET status = 'EXPIRED', responded_at = $1
		WHERE dispatch_id = $2 AND status = 'PENDING'
	`

	if _, err := s.db.ExecContext(ctx, query, now, dispatchID); err != nil {
		return fmt.Errorf("failed to mark dispatch expired: %w", err)
	}
	return nil
}

func (s *Storage) HasAssignment(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM assignments WHERE job_id = $1)`

	if err := s.db.GetContext(ctx, &exists, query, jobID); err != nil {
		return false, fmt.Errorf("failed to check assignment: %w", err)
	}
	return exists, nil
}

// AdminAssign binds a contractor directly in one transaction, superseding
// any pending offers and stamping admin attribution.
func (s *Storage) AdminAssign(ctx context.Context, jobID, adminID, contractorID string, now time.Time) (done bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil || !done {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO assignments (job_id, contractor_id, assigned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (job_id) DO NOTHING
	`, jobID, contractorID, now)
	if err != nil {
		return false, fmt.Errorf("failed to create assignment: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE dispatches
		SET status = 'SUPERSEDED', responded_at = $1
		WHERE job_id = $2 AND status = 'PENDING'
	`, now, jobID); err != nil {
		return false, fmt.Errorf("failed to supersede dispatches: %w", err)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'ASSIGNED',
		    routing_status = 'ROUTED_BY_ADMIN',
		    contractor_user_id = $1,
		    admin_routed_by_id = $2,
		    routed_at = $3,
		    first_routed_at = COALESCE(first_routed_at, $3),
		    updated_at = $3
		WHERE job_id = $4
		  AND status = 'OPEN_FOR_ROUTING'
		  AND routing_status = 'UNROUTED'
		  AND archived = FALSE
	`, contractorID, adminID, now, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to transition job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit admin routing: %w", err)
	}
	return true, nil
}
