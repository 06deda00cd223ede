package sla

import (
	"time"

	"github.com/routedly/marketplace-be/internal/job"
)

const (
	// approachingAfter is how long after posting the approaching-deadline
	// window opens.
	approachingAfter = 20 * time.Hour

	// defaultRoutingWindow is the due time derived when a job carries no
	// explicit routing_due_at.
	defaultRoutingWindow = 24 * time.Hour
)

// EffectiveRoutingDueAt is the single site of the +24h default: when a job
// has no explicit due time it is derived from posted_at. Both the
// approaching and overdue rules go through here so the two can never drift.
func EffectiveRoutingDueAt(j *job.Job) (time.Time, bool) {
	if j.PostedAt == nil {
		return time.Time{}, false
	}
	if j.RoutingDueAt != nil {
		return *j.RoutingDueAt, true
	}
	return j.PostedAt.Add(defaultRoutingWindow), true
}

// IsApproachingDeadline reports whether an unrouted job sits inside the
// approaching-24h warning window at the given instant.
func IsApproachingDeadline(j *job.Job, now time.Time) bool {
	if j.Archived || j.RoutingStatus != job.RoutingUnrouted || j.PostedAt == nil {
		return false
	}
	due, ok := EffectiveRoutingDueAt(j)
	if !ok {
		return false
	}
	return !now.Before(j.PostedAt.Add(approachingAfter)) && now.Before(due)
}

// IsOverdueUnrouted reports whether an unrouted job has blown past its
// routing due time. An explicit due time is strictly exceeded; the derived
// default is inclusive of the boundary instant.
func IsOverdueUnrouted(j *job.Job, now time.Time) bool {
	if j.Archived || j.RoutingStatus != job.RoutingUnrouted || j.PostedAt == nil {
		return false
	}
	if j.RoutingDueAt != nil {
		return now.After(*j.RoutingDueAt)
	}
	return !now.Before(j.PostedAt.Add(defaultRoutingWindow))
}

// IsCompleted combines the three completion proxies with OR semantics: the
// approved status, the customer approval stamp, and the assignment's
// completion stamp are all equivalent triggers. No proxy takes precedence.
func IsCompleted(j *job.Job, a *job.Assignment) bool {
	if j.Status == job.StatusCompletedApproved {
		return true
	}
	if j.CustomerApprovedAt != nil {
		return true
	}
	return a != nil && a.CompletedAt != nil
}

// routedAttribution derives the role and user recorded on a JOB_ROUTED
// event from how the job was routed.
func routedAttribution(j *job.Job) (role string, userID *string) {
	switch j.RoutingStatus {
	case job.RoutedByAdmin:
		return RoleAdmin, j.AdminRoutedByID
	case job.RoutedByRouter:
		return RoleRouter, j.ClaimedByUserID
	default:
		return RoleRouter, nil
	}
}
