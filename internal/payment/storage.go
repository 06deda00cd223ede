package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Storage is the PostgreSQL implementation of Store. The UNIQUE(job_id)
// primary key is the convergence point for concurrent intent creation.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a payment Storage.
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{db: db, logger: logger}
}

func (s *Storage) GetByJobID(ctx context.Context, jobID string) (*Record, error) {
	var rec Record
	query := `
		SELECT job_id, provider_intent_id, provider_status, idempotency_key,
		       amount_cents, status, refund_amount_cents, created_at, updated_at
		FROM payment_records
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &rec, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment record: %w", err)
	}

	return &rec, nil
}

// Insert adds the record, reporting false when another record already holds
// the job.
func (s *Storage) Insert(ctx context.Context, rec *Record) (bool, error) {
	query := `
		INSERT INTO payment_records (
			job_id, provider_intent_id, provider_status, idempotency_key,
			amount_cents, status, refund_amount_cents, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.JobID, rec.ProviderIntentID, rec.ProviderStatus, rec.IdempotencyKey,
		rec.AmountCents, rec.Status, rec.RefundAmountCents, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert payment record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// Delete removes a stale record, conditional on it still pointing at the
// intent the caller just canceled. A captured record is never deleted.
func (s *Storage) Delete(ctx context.Context, jobID, providerIntentID string) error {
	query := `
		DELETE FROM payment_records
		WHERE job_id = $1
		  AND provider_intent_id = $2
		  AND status <> 'CAPTURED'
	`

	if _, err := s.db.ExecContext(ctx, query, jobID, providerIntentID); err != nil {
		return fmt.Errorf("failed to delete payment record: %w", err)
	}
	return nil
}

// MarkCaptured flips a pending record to CAPTURED, conditional on the intent
// id. Idempotent: a repeat confirmation affects zero rows and reports false.
func (s *Storage) MarkCaptured(ctx context.Context, jobID, providerIntentID, providerStatus string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_records
		SET status = 'CAPTURED', provider_status = $1, updated_at = $2
		WHERE job_id = $3
		  AND provider_intent_id = $4
		  AND status = 'PENDING'
	`

	result, err := s.db.ExecContext(ctx, query, providerStatus, now, jobID, providerIntentID)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment captured: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}
