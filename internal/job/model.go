package job

import "time"

// RoutingStatus records how (and whether) a job reached a contractor.
type RoutingStatus string

const (
	RoutingUnrouted RoutingStatus = "UNROUTED"
	RoutedByRouter  RoutingStatus = "ROUTED_BY_ROUTER"
	RoutedByAdmin   RoutingStatus = "ROUTED_BY_ADMIN"
)

// Job is the single source of truth for a unit of work. All money fields are
// integer minor-currency units.
type Job struct {
	JobID               string        `db:"job_id"`
	JobPosterUserID     string        `db:"job_poster_user_id"`
	Title               string        `db:"title"`
	Description         string        `db:"description"`
	Status              Status        `db:"status"`
	StatusBeforeDispute *Status       `db:"status_before_dispute"`
	RoutingStatus       RoutingStatus `db:"routing_status"`
	Archived            bool          `db:"archived"`

	PostedAt              *time.Time `db:"posted_at"`
	RoutingDueAt          *time.Time `db:"routing_due_at"`
	FirstRoutedAt         *time.Time `db:"first_routed_at"`
	RoutedAt              *time.Time `db:"routed_at"`
	ClaimedAt             *time.Time `db:"claimed_at"`
	ContractorCompletedAt *time.Time `db:"contractor_completed_at"`
	CustomerApprovedAt    *time.Time `db:"customer_approved_at"`
	RouterApprovedAt      *time.Time `db:"router_approved_at"`
	EscrowLockedAt        *time.Time `db:"escrow_locked_at"`
	DisputedAt            *time.Time `db:"disputed_at"`

	ClaimedByUserID  *string `db:"claimed_by_user_id"`
	ContractorUserID *string `db:"contractor_user_id"`
	AdminRoutedByID  *string `db:"admin_routed_by_id"`

	LaborTotalCents       int64 `db:"labor_total_cents"`
	MaterialsTotalCents   int64 `db:"materials_total_cents"`
	TransactionFeeCents   int64 `db:"transaction_fee_cents"`
	RouterEarningsCents   int64 `db:"router_earnings_cents"`
	ContractorPayoutCents int64 `db:"contractor_payout_cents"`
	BrokerFeeCents        int64 `db:"broker_fee_cents"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Assignment is the realized contractor-to-job binding created when a
// dispatch is accepted. One per job.
type Assignment struct {
	JobID        string     `db:"job_id"`
	ContractorID string     `db:"contractor_id"`
	AssignedAt   time.Time  `db:"assigned_at"`
	CompletedAt  *time.Time `db:"completed_at"`
}

// Funded reports whether the poster's escrow has been locked for this job.
func (j *Job) Funded() bool {
	return j.EscrowLockedAt != nil
}
