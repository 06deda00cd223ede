package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func newTestJob(status Status) *Job {
	now := time.Now()
	return &Job{
		JobID:           "5f1d3f1e-9f0a-4f58-9f1a-0c7a8e1d2b34",
		JobPosterUserID: "poster-1",
		Status:          status,
		RoutingStatus:   RoutingUnrouted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestTransition(t *testing.T) {
	now := time.Now()
	funded := timePtr(now.Add(-time.Hour))

	tests := []struct {
		name    string
		prepare func(j *Job)
		from    Status
		to      Status
		wantErr error
	}{
		{
			name: "draft to open for routing",
			from: StatusDraft,
			to:   StatusOpenForRouting,
		},
		{
			name: "open to assigned with contractor",
			prepare: func(j *Job) {
				j.ContractorUserID = strPtr("contractor-1")
			},
			from: StatusOpenForRouting,
			to:   StatusAssigned,
		},
		{
			name:    "open to assigned without assignment",
			from:    StatusOpenForRouting,
			to:      StatusAssigned,
			wantErr: ErrInvalidTransition,
		},
		{
			name: "in progress to contractor completed requires escrow",
			from: StatusInProgress,
			to:   StatusContractorCompleted,
			// no escrow lock
			wantErr: ErrInvalidTransition,
		},
		{
			name: "in progress to contractor completed with escrow",
			prepare: func(j *Job) {
				j.EscrowLockedAt = funded
			},
			from: StatusInProgress,
			to:   StatusContractorCompleted,
		},
		{
			name:    "draft straight to assigned rejected",
			from:    StatusDraft,
			to:      StatusAssigned,
			wantErr: ErrInvalidTransition,
		},
		{
			name:    "completed approved is terminal",
			from:    StatusCompletedApproved,
			to:      StatusInProgress,
			wantErr: ErrInvalidTransition,
		},
		{
			name: "customer approved skips router approval",
			from: StatusCustomerApproved,
			to:   StatusCompletedApproved,
		},
		{
			name: "customer rejected back to rework",
			from: StatusCustomerRejected,
			to:   StatusInProgress,
		},
		{
			name: "archived job rejects everything",
			prepare: func(j *Job) {
				j.Archived = true
			},
			from:    StatusDraft,
			to:      StatusOpenForRouting,
			wantErr: ErrJobArchived,
		},
		{
			name: "disputed freezes payout transitions",
			prepare: func(j *Job) {
				j.EscrowLockedAt = funded
			},
			from:    StatusDisputed,
			to:      StatusCustomerApproved,
			wantErr: ErrDisputeHold,
		},
		{
			name:    "dispute requires funding",
			from:    StatusInProgress,
			to:      StatusDisputed,
			wantErr: ErrInvalidTransition,
		},
		{
			name: "dispute allowed after funding",
			prepare: func(j *Job) {
				j.EscrowLockedAt = funded
			},
			from: StatusInProgress,
			to:   StatusDisputed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJob(tt.from)
			if tt.prepare != nil {
				tt.prepare(j)
			}

			err := Transition(j, tt.to, now)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, j.Status, "failed transition must not mutate")
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.to, j.Status)
		})
	}
}

func TestTransitionStampsTimestamps(t *testing.T) {
	now := time.Now()

	j := newTestJob(StatusDraft)
	require.NoError(t, Transition(j, StatusOpenForRouting, now))
	require.NotNil(t, j.PostedAt)
	assert.Equal(t, now, *j.PostedAt)

	j = newTestJob(StatusInProgress)
	j.EscrowLockedAt = timePtr(now.Add(-time.Hour))
	require.NoError(t, Transition(j, StatusContractorCompleted, now))
	require.NotNil(t, j.ContractorCompletedAt)

	require.NoError(t, Transition(j, StatusCustomerApproved, now))
	require.NotNil(t, j.CustomerApprovedAt)

	require.NoError(t, Transition(j, StatusRouterApproved, now))
	require.NotNil(t, j.RouterApprovedAt)
}

func TestOpenAndClearDispute(t *testing.T) {
	now := time.Now()

	j := newTestJob(StatusInProgress)
	j.EscrowLockedAt = timePtr(now.Add(-time.Hour))

	require.NoError(t, OpenDispute(j, now))
	assert.Equal(t, StatusDisputed, j.Status)
	require.NotNil(t, j.StatusBeforeDispute)
	assert.Equal(t, StatusInProgress, *j.StatusBeforeDispute)
	require.NotNil(t, j.DisputedAt)

	// double open is a conflict
	require.ErrorIs(t, OpenDispute(j, now), ErrDisputeHold)

	require.NoError(t, ClearDispute(j, now))
	assert.Equal(t, StatusInProgress, j.Status)
	assert.Nil(t, j.StatusBeforeDispute)
	assert.Nil(t, j.DisputedAt)

	// clearing a non-disputed job is a conflict
	require.ErrorIs(t, ClearDispute(j, now), ErrInvalidTransition)
}

func TestDisputeReachableFromAllPostFundingStates(t *testing.T) {
	now := time.Now()
	postFunding := []Status{
		StatusAssigned,
		StatusInProgress,
		StatusContractorCompleted,
		StatusCustomerApproved,
		StatusRouterApproved,
		StatusCustomerRejected,
		StatusCompletionFlagged,
	}

	for _, from := range postFunding {
		j := newTestJob(from)
		j.EscrowLockedAt = timePtr(now.Add(-time.Hour))
		assert.NoError(t, Transition(j, StatusDisputed, now), "from %s", from)
	}
}
