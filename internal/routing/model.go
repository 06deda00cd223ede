package routing

import (
	"errors"
	"time"
)

// DispatchStatus is the closed set of offer states.
type DispatchStatus string

const (
	DispatchPending    DispatchStatus = "PENDING"
	DispatchAccepted   DispatchStatus = "ACCEPTED"
	DispatchDeclined   DispatchStatus = "DECLINED"
	DispatchExpired    DispatchStatus = "EXPIRED"
	DispatchSuperseded DispatchStatus = "SUPERSEDED"
)

// Decision is a contractor's response to an offer.
type Decision string

const (
	DecisionAccept  Decision = "ACCEPT"
	DecisionDecline Decision = "DECLINE"
)

// Dispatch is a time-boxed offer of one job to one contractor. The
// acceptance token is stored only as a SHA-256 hash.
type Dispatch struct {
	DispatchID              string         `db:"dispatch_id"`
	JobID                   string         `db:"job_id"`
	ContractorID            string         `db:"contractor_id"`
	RouterUserID            string         `db:"router_user_id"`
	Status                  DispatchStatus `db:"status"`
	TokenHash               string         `db:"token_hash"`
	EstimatedCompletionDate *time.Time     `db:"estimated_completion_date"`
	ExpiresAt               time.Time      `db:"expires_at"`
	RespondedAt             *time.Time     `db:"responded_at"`
	CreatedAt               time.Time      `db:"created_at"`
}

// Offer is the one-time view of a freshly created dispatch, carrying the
// plaintext token that is never persisted.
type Offer struct {
	DispatchID   string
	ContractorID string
	Token        string
	ExpiresAt    time.Time
}

var (
	// ErrDispatchNotFound is returned for an unknown acceptance token.
	ErrDispatchNotFound = errors.New("dispatch not found")

	// ErrDispatchExpired is returned when a token is presented past its
	// expiry. Checked against the clock before any conflict classification.
	ErrDispatchExpired = errors.New("dispatch offer expired")

	// ErrAlreadyResponded is returned when a dispatch was already declined
	// or superseded and its job remains unassigned.
	ErrAlreadyResponded = errors.New("dispatch already responded")
)
