package sla

import "time"

// EventType is the closed set of monitoring event kinds. The pair
// (job_id, event_type) is unique in storage, which is what makes every
// evaluation pass idempotent.
type EventType string

const (
	EventApproaching24h  EventType = "JOB_APPROACHING_24H"
	EventOverdueUnrouted EventType = "JOB_OVERDUE_UNROUTED"
	EventRouted          EventType = "JOB_ROUTED"
	EventCompleted       EventType = "JOB_COMPLETED"
)

// EventTypes lists all rule outputs in a stable order.
var EventTypes = []EventType{
	EventApproaching24h,
	EventOverdueUnrouted,
	EventRouted,
	EventCompleted,
}

// Actor roles recorded on events for downstream attribution.
const (
	RoleJobPoster  = "job_poster"
	RoleRouter     = "router"
	RoleAdmin      = "admin"
	RoleContractor = "contractor"
)

// Event is an append-only notice derived from job state. Only handled_at is
// ever mutated, and by an external consumer.
type Event struct {
	EventID   string     `db:"event_id"`
	JobID     string     `db:"job_id"`
	Type      EventType  `db:"event_type"`
	Role      string     `db:"role"`
	UserID    *string    `db:"user_id"`
	CreatedAt time.Time  `db:"created_at"`
	HandledAt *time.Time `db:"handled_at"`
}
