package job

import (
	"fmt"
	"time"
)

// Status is the closed set of job lifecycle states.
type Status string

const (
	StatusDraft               Status = "DRAFT"
	StatusOpenForRouting      Status = "OPEN_FOR_ROUTING"
	StatusAssigned            Status = "ASSIGNED"
	StatusInProgress          Status = "IN_PROGRESS"
	StatusContractorCompleted Status = "CONTRACTOR_COMPLETED"
	StatusCustomerApproved    Status = "CUSTOMER_APPROVED"
	StatusRouterApproved      Status = "ROUTER_APPROVED"
	StatusCompletedApproved   Status = "COMPLETED_APPROVED"
	StatusCustomerRejected    Status = "CUSTOMER_REJECTED"
	StatusCompletionFlagged   Status = "COMPLETION_FLAGGED"
	StatusDisputed            Status = "DISPUTED"
)

// transitions is the closed from-state -> allowed-to-states table. DISPUTED
// appears as a target for every post-funding state; entering it additionally
// requires the escrow to be locked (see guards). DISPUTED itself allows no
// outgoing transition here: the hold is lifted only through ClearDispute.
var transitions = map[Status][]Status{
	StatusDraft:               {StatusOpenForRouting},
	StatusOpenForRouting:      {StatusAssigned},
	StatusAssigned:            {StatusInProgress, StatusDisputed},
	StatusInProgress:          {StatusContractorCompleted, StatusDisputed},
	StatusContractorCompleted: {StatusCustomerApproved, StatusCustomerRejected, StatusCompletionFlagged, StatusDisputed},
	StatusCustomerApproved:    {StatusRouterApproved, StatusCompletedApproved, StatusDisputed},
	StatusRouterApproved:      {StatusCompletedApproved, StatusDisputed},
	StatusCustomerRejected:    {StatusInProgress, StatusDisputed},
	StatusCompletionFlagged:   {StatusContractorCompleted, StatusDisputed},
	StatusCompletedApproved:   {},
	StatusDisputed:            {},
}

// CanTransition reports whether the transition table permits from -> to.
// Guards are not evaluated here.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition checks the table and the preconditions for moving j to
// the target status. It performs no mutation.
func (j *Job) ValidateTransition(to Status) error {
	if j.Archived {
		return fmt.Errorf("%w: %s", ErrJobArchived, j.JobID)
	}
	if !CanTransition(j.Status, to) {
		if j.Status == StatusDisputed {
			return fmt.Errorf("%w: job %s", ErrDisputeHold, j.JobID)
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}

	switch to {
	case StatusAssigned:
		if j.ContractorUserID == nil {
			return fmt.Errorf("%w: ASSIGNED requires an assignment", ErrInvalidTransition)
		}
	case StatusContractorCompleted:
		if j.EscrowLockedAt == nil {
			return fmt.Errorf("%w: CONTRACTOR_COMPLETED requires locked escrow", ErrInvalidTransition)
		}
	case StatusDisputed:
		if j.EscrowLockedAt == nil {
			return fmt.Errorf("%w: DISPUTED requires a funded job", ErrInvalidTransition)
		}
	}

	return nil
}

// Transition validates and applies a status change on the in-memory job,
// stamping the lifecycle timestamp that the target status implies. Callers
// persist the result with a conditional update keyed on the prior status.
func Transition(j *Job, to Status, now time.Time) error {
	if err := j.ValidateTransition(to); err != nil {
		return err
	}

	switch to {
	case StatusOpenForRouting:
		if j.PostedAt == nil {
			j.PostedAt = &now
		}
	case StatusContractorCompleted:
		j.ContractorCompletedAt = &now
	case StatusCustomerApproved:
		j.CustomerApprovedAt = &now
	case StatusRouterApproved:
		j.RouterApprovedAt = &now
	}

	j.Status = to
	j.UpdatedAt = now
	return nil
}

// OpenDispute moves a funded job into the DISPUTED hold, remembering the
// state it came from so the hold can be lifted later.
func OpenDispute(j *Job, now time.Time) error {
	prior := j.Status
	if err := Transition(j, StatusDisputed, now); err != nil {
		return err
	}
	j.StatusBeforeDispute = &prior
	j.DisputedAt = &now
	return nil
}

// ClearDispute lifts the hold and restores the pre-dispute status. Dispute
// resolution itself happens outside this system; this is the surface the
// resolving collaborator flips.
func ClearDispute(j *Job, now time.Time) error {
	if j.Status != StatusDisputed || j.StatusBeforeDispute == nil {
		return fmt.Errorf("%w: job %s is not disputed", ErrInvalidTransition, j.JobID)
	}
	j.Status = *j.StatusBeforeDispute
	j.StatusBeforeDispute = nil
	j.DisputedAt = nil
	j.UpdatedAt = now
	return nil
}
