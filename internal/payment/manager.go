package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/routedly/marketplace-be/internal/job"
)

// Store is the durable payment-record surface. Insert reports false on the
// UNIQUE(job_id) conflict so concurrent creates can converge instead of
// failing.
type Store interface {
	GetByJobID(ctx context.Context, jobID string) (*Record, error)
	Insert(ctx context.Context, rec *Record) (bool, error)
	Delete(ctx context.Context, jobID, providerIntentID string) error
	MarkCaptured(ctx context.Context, jobID, providerIntentID, providerStatus string, now time.Time) (bool, error)
}

// JobStore is the slice of job storage the manager needs: authoritative
// totals and the one-shot escrow lock.
type JobStore interface {
	GetJobByID(ctx context.Context, jobID string) (*job.Job, error)
	LockEscrow(ctx context.Context, jobID string, now time.Time) (bool, error)
}

// Manager owns the payment record lifecycle. The chargeable amount is always
// recomputed from the job row; client input never reaches the provider.
type Manager struct {
	store    Store
	jobs     JobStore
	provider Provider
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a Manager.
func NewManager(store Store, jobs JobStore, provider Provider, currency string, logger *slog.Logger) *Manager {
	return &Manager{
		store:    store,
		jobs:     jobs,
		provider: provider,
		currency: currency,
		logger:   logger,
		now:      time.Now,
	}
}

// IntentResult is what the poster's client needs to complete the charge.
type IntentResult struct {
	ProviderIntentID string
	ClientSecret     string
	AmountCents      int64
}

// CreateIntent creates or returns the payment intent for a job's current
// chargeable amount. Safe to call repeatedly: the same (job, amount) always
// converges on one record and one provider intent, and an amount change
// cancels and replaces the stale pending intent rather than overwriting it.
func (m *Manager) CreateIntent(ctx context.Context, jobID string) (*IntentResult, error) {
	j, err := m.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Funded() {
		return nil, ErrAlreadyFunded
	}

	amount := job.ComputePayout(j.LaborTotalCents, j.MaterialsTotalCents).ChargeAmountCents
	if amount <= 0 {
		return nil, job.NewValidationError("amount", "job has no chargeable total")
	}
	key := IntentIdempotencyKey(jobID, amount)

	rec, err := m.store.GetByJobID(ctx, jobID)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}

	if rec != nil {
		switch {
		case rec.Status == RecordCaptured:
			return nil, ErrAlreadyFunded

		case rec.Status == RecordPending && rec.AmountCents == amount:
			// Same (job, amount): the deterministic key turns the provider
			// create into a read of the existing intent.
			intent, err := m.provider.CreateIntent(ctx, CreateIntentParams{
				AmountCents:    amount,
				Currency:       m.currency,
				IdempotencyKey: key,
				JobID:          jobID,
			})
			if err != nil {
				return nil, err
			}
			return &IntentResult{
				ProviderIntentID: intent.IntentID,
				ClientSecret:     intent.ClientSecret,
				AmountCents:      amount,
			}, nil

		default:
			// The chargeable amount moved while a record was pending (or a
			// prior attempt failed). Cancel the stale intent best-effort and
			// replace the record; an orphaned canceled intent is acceptable,
			// a double charge is not.
			if cancelErr := m.provider.CancelIntent(ctx, rec.ProviderIntentID); cancelErr != nil {
				m.logger.Warn("Best-effort cancel of stale intent failed, continuing",
					slog.String("job_id", jobID),
					slog.String("intent_id", rec.ProviderIntentID),
					slog.String("error", cancelErr.Error()),
				)
			}
			if err := m.store.Delete(ctx, jobID, rec.ProviderIntentID); err != nil {
				return nil, err
			}
			m.logger.Info("Stale payment record replaced",
				slog.String("job_id", jobID),
				slog.Int64("old_amount_cents", rec.AmountCents),
				slog.Int64("new_amount_cents", amount),
			)
		}
	}

	intent, err := m.provider.CreateIntent(ctx, CreateIntentParams{
		AmountCents:    amount,
		Currency:       m.currency,
		IdempotencyKey: key,
		JobID:          jobID,
	})
	if err != nil {
		return nil, err
	}

	now := m.now()
	newRec := &Record{
		JobID:            jobID,
		ProviderIntentID: intent.IntentID,
		ProviderStatus:   intent.Status,
		IdempotencyKey:   key,
		AmountCents:      amount,
		Status:           RecordPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	inserted, err := m.store.Insert(ctx, newRec)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// A concurrent call won the insert. Same amount means the same
		// idempotency key and therefore the same provider intent; just
		// serve whatever is on record.
		existing, err := m.store.GetByJobID(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if existing.Status == RecordCaptured {
			return nil, ErrAlreadyFunded
		}
		return &IntentResult{
			ProviderIntentID: existing.ProviderIntentID,
			ClientSecret:     intent.ClientSecret,
			AmountCents:      existing.AmountCents,
		}, nil
	}

	m.logger.Info("Payment intent created",
		slog.String("job_id", jobID),
		slog.String("intent_id", intent.IntentID),
		slog.Int64("amount_cents", amount),
	)

	return &IntentResult{
		ProviderIntentID: intent.IntentID,
		ClientSecret:     intent.ClientSecret,
		AmountCents:      amount,
	}, nil
}

// Confirm marks the job's payment captured and locks escrow exactly once.
// Invoked by the provider webhook or the poster's client after the charge
// settles.
func (m *Manager) Confirm(ctx context.Context, jobID, providerIntentID string) (*Record, error) {
	rec, err := m.store.GetByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec.ProviderIntentID != providerIntentID {
		return nil, fmt.Errorf("%w: job %s", ErrIntentMismatch, jobID)
	}

	now := m.now()
	captured, err := m.store.MarkCaptured(ctx, jobID, providerIntentID, "succeeded", now)
	if err != nil {
		return nil, err
	}
	if !captured && rec.Status != RecordCaptured {
		return nil, fmt.Errorf("%w: record is %s", ErrIntentMismatch, rec.Status)
	}

	locked, err := m.jobs.LockEscrow(ctx, jobID, now)
	if err != nil {
		return nil, err
	}
	if locked {
		m.logger.Info("Escrow locked",
			slog.String("job_id", jobID),
			slog.String("intent_id", providerIntentID),
			slog.Int64("amount_cents", rec.AmountCents),
		)
	}

	rec.Status = RecordCaptured
	rec.ProviderStatus = "succeeded"
	rec.UpdatedAt = now
	return rec, nil
}
