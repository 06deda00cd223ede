package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// RecordStatus is the closed set of payment record states.
type RecordStatus string

const (
	RecordPending  RecordStatus = "PENDING"
	RecordCaptured RecordStatus = "CAPTURED"
	RecordFailed   RecordStatus = "FAILED"
	RecordRefunded RecordStatus = "REFUNDED"
)

// Record is the 1:1 shadow of a job's chargeable amount at the provider.
// At most one record exists per job.
type Record struct {
	JobID             string       `db:"job_id"`
	ProviderIntentID  string       `db:"provider_intent_id"`
	ProviderStatus    string       `db:"provider_status"`
	IdempotencyKey    string       `db:"idempotency_key"`
	AmountCents       int64        `db:"amount_cents"`
	Status            RecordStatus `db:"status"`
	RefundAmountCents int64        `db:"refund_amount_cents"`
	CreatedAt         time.Time    `db:"created_at"`
	UpdatedAt         time.Time    `db:"updated_at"`
}

var (
	// ErrAlreadyFunded is returned when intent creation targets a job whose
	// escrow is already locked. Funds lock exactly once per job.
	ErrAlreadyFunded = errors.New("job already funded")

	// ErrPaymentNotFound is returned when no payment record exists for a job.
	ErrPaymentNotFound = errors.New("payment record not found")

	// ErrIntentMismatch is returned when a confirmation names a provider
	// intent that is not the job's current one.
	ErrIntentMismatch = errors.New("provider intent does not match payment record")
)

// IntentIdempotencyKey derives the deterministic provider key from the job
// and its current chargeable amount. This exact derivation is what prevents
// duplicate charges; it must never be replaced with a random key.
func IntentIdempotencyKey(jobID string, amountCents int64) string {
	sum := sha256.Sum256([]byte(jobID + ":" + strconv.FormatInt(amountCents, 10)))
	return hex.EncodeToString(sum[:])
}
