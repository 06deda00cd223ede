package routing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/routedly/marketplace-be/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore mirrors the conditional-write semantics of the SQL storage under
// a mutex, so races can be exercised without a database.
type fakeStore struct {
	mu          sync.Mutex
	jobs        map[string]*job.Job
	dispatches  map[string]*Dispatch
	assignments map[string]*job.Assignment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:        make(map[string]*job.Job),
		dispatches:  make(map[string]*Dispatch),
		assignments: make(map[string]*job.Assignment),
	}
}

func (f *fakeStore) addJob(j *job.Job) { f.jobs[j.JobID] = j }

func (f *fakeStore) GetJobByID(_ context.Context, jobID string) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (f *fakeStore) CountClaimedUnrouted(_ context.Context, routerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, j := range f.jobs {
		if j.ClaimedByUserID != nil && *j.ClaimedByUserID == routerID &&
			j.RoutingStatus == job.RoutingUnrouted && !j.Archived {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) ClaimJob(_ context.Context, jobID, routerID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok || j.ClaimedByUserID != nil || j.RoutingStatus != job.RoutingUnrouted ||
		j.Status != job.StatusOpenForRouting || j.Archived {
		return false, nil
	}
	j.ClaimedByUserID = &routerID
	j.ClaimedAt = &now
	return true, nil
}

func (f *fakeStore) CreateDispatches(_ context.Context, dispatches []*Dispatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range dispatches {
		cp := *d
		f.dispatches[d.DispatchID] = &cp
	}
	return nil
}

func (f *fakeStore) SupersedePending(_ context.Context, jobID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.dispatches {
		if d.JobID == jobID && d.Status == DispatchPending {
			d.Status = DispatchSuperseded
			d.RespondedAt = &now
		}
	}
	return nil
}

func (f *fakeStore) GetDispatchByTokenHash(_ context.Context, tokenHash string) (*Dispatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.dispatches {
		if d.TokenHash == tokenHash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrDispatchNotFound
}

func (f *fakeStore) AcceptDispatch(_ context.Context, d *Dispatch, ecd *time.Time, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.dispatches[d.DispatchID]
	if !ok || stored.Status != DispatchPending || !stored.ExpiresAt.After(now) {
		return false, nil
	}
	if _, exists := f.assignments[d.JobID]; exists {
		return false, nil
	}
	j, ok := f.jobs[d.JobID]
	if !ok || j.Status != job.StatusOpenForRouting || j.Archived {
		return false, nil
	}

	stored.Status = DispatchAccepted
	stored.RespondedAt = &now
	stored.EstimatedCompletionDate = ecd
	f.assignments[d.JobID] = &job.Assignment{
		JobID:        d.JobID,
		ContractorID: d.ContractorID,
		AssignedAt:   now,
	}
	for _, sib := range f.dispatches {
		if sib.JobID == d.JobID && sib.Status == DispatchPending {
			sib.Status = DispatchExpired
			sib.RespondedAt = &now
		}
	}
	j.Status = job.StatusAssigned
	j.RoutingStatus = job.RoutedByRouter
	j.ContractorUserID = &stored.ContractorID
	j.RoutedAt = &now
	if j.FirstRoutedAt == nil {
		j.FirstRoutedAt = &now
	}
	return true, nil
}

func (f *fakeStore) DeclineDispatch(_ context.Context, dispatchID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dispatches[dispatchID]
	if !ok || d.Status != DispatchPending {
		return false, nil
	}
	d.Status = DispatchDeclined
	d.RespondedAt = &now
	return true, nil
}

func (f *fakeStore) MarkExpired(_ context.Context, dispatchID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.dispatches[dispatchID]; ok && d.Status == DispatchPending {
		d.Status = DispatchExpired
		d.RespondedAt = &now
	}
	return nil
}

func (f *fakeStore) HasAssignment(_ context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.assignments[jobID]
	return ok, nil
}

func (f *fakeStore) AdminAssign(_ context.Context, jobID, adminID, contractorID string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.assignments[jobID]; exists {
		return false, nil
	}
	j, ok := f.jobs[jobID]
	if !ok || j.Status != job.StatusOpenForRouting || j.RoutingStatus != job.RoutingUnrouted || j.Archived {
		return false, nil
	}
	f.assignments[jobID] = &job.Assignment{JobID: jobID, ContractorID: contractorID, AssignedAt: now}
	j.Status = job.StatusAssigned
	j.RoutingStatus = job.RoutedByAdmin
	j.ContractorUserID = &contractorID
	j.AdminRoutedByID = &adminID
	j.RoutedAt = &now
	if j.FirstRoutedAt == nil {
		j.FirstRoutedAt = &now
	}
	return true, nil
}

func newTestEngine(store Store) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, logger, DefaultOfferTTL)
}

func openJob(posterID string) *job.Job {
	now := time.Now()
	posted := now.Add(-time.Hour)
	return &job.Job{
		JobID:           uuid.New().String(),
		JobPosterUserID: posterID,
		Status:          job.StatusOpenForRouting,
		RoutingStatus:   job.RoutingUnrouted,
		PostedAt:        &posted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func contractorIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.New().String()
	}
	return ids
}

func TestClaimOneActiveJobPerRouter(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	routerID := uuid.New().String()
	j1 := openJob(uuid.New().String())
	j2 := openJob(uuid.New().String())
	store.addJob(j1)
	store.addJob(j2)

	require.NoError(t, engine.Claim(ctx, j1.JobID, routerID))

	// Holding J1 unrouted blocks claiming J2.
	err := engine.Claim(ctx, j2.JobID, routerID)
	require.ErrorIs(t, err, job.ErrNotEligible)

	// Route J1, then J2 becomes claimable.
	offers, err := engine.ApplyRouting(ctx, j1.JobID, routerID, contractorIDs(1))
	require.NoError(t, err)
	_, err = engine.Respond(ctx, offers[0].Token, DecisionAccept, nil)
	require.NoError(t, err)

	require.NoError(t, engine.Claim(ctx, j2.JobID, routerID))
}

func TestClaimConflicts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	j := openJob(uuid.New().String())
	store.addJob(j)

	require.NoError(t, engine.Claim(ctx, j.JobID, uuid.New().String()))

	err := engine.Claim(ctx, j.JobID, uuid.New().String())
	assert.ErrorIs(t, err, job.ErrAlreadyClaimed)

	err = engine.Claim(ctx, uuid.New().String(), uuid.New().String())
	assert.ErrorIs(t, err, job.ErrJobNotFound)
}

func TestClaimNotEligibleForArchivedOrDraft(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	archived := openJob(uuid.New().String())
	archived.Archived = true
	store.addJob(archived)

	draft := openJob(uuid.New().String())
	draft.Status = job.StatusDraft
	store.addJob(draft)

	assert.ErrorIs(t, engine.Claim(ctx, archived.JobID, uuid.New().String()), job.ErrNotEligible)
	assert.ErrorIs(t, engine.Claim(ctx, draft.JobID, uuid.New().String()), job.ErrNotEligible)
}

func TestApplyRoutingValidation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	routerID := uuid.New().String()
	j := openJob(uuid.New().String())
	store.addJob(j)
	require.NoError(t, engine.Claim(ctx, j.JobID, routerID))

	tests := []struct {
		name string
		ids  []string
	}{
		{name: "empty", ids: nil},
		{name: "too many", ids: contractorIDs(6)},
		{name: "not a uuid", ids: []string{"contractor-a"}},
		{name: "duplicates", ids: func() []string { id := uuid.New().String(); return []string{id, id} }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.ApplyRouting(ctx, j.JobID, routerID, tt.ids)
			assert.True(t, job.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestApplyRoutingRequiresClaimHolder(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	j := openJob(uuid.New().String())
	store.addJob(j)
	require.NoError(t, engine.Claim(ctx, j.JobID, uuid.New().String()))

	_, err := engine.ApplyRouting(ctx, j.JobID, uuid.New().String(), contractorIDs(2))
	assert.ErrorIs(t, err, job.ErrNotEligible)
}

func TestFirstAcceptWins(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	routerID := uuid.New().String()
	j := openJob(uuid.New().String())
	store.addJob(j)
	require.NoError(t, engine.Claim(ctx, j.JobID, routerID))

	offers, err := engine.ApplyRouting(ctx, j.JobID, routerID, contractorIDs(3))
	require.NoError(t, err)
	require.Len(t, offers, 3)

	// B accepts first.
	winner := offers[1]
	d, err := engine.Respond(ctx, winner.Token, DecisionAccept, nil)
	require.NoError(t, err)
	assert.Equal(t, DispatchAccepted, d.Status)
	assert.Equal(t, winner.ContractorID, d.ContractorID)

	updated, err := store.GetJobByID(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusAssigned, updated.Status)
	assert.Equal(t, job.RoutedByRouter, updated.RoutingStatus)
	require.NotNil(t, updated.ContractorUserID)
	assert.Equal(t, winner.ContractorID, *updated.ContractorUserID)
	require.NotNil(t, updated.FirstRoutedAt)
	require.NotNil(t, updated.RoutedAt)

	// Siblings flipped to EXPIRED atomically with the accept.
	for _, o := range []Offer{offers[0], offers[2]} {
		sib := store.dispatches[o.DispatchID]
		assert.Equal(t, DispatchExpired, sib.Status)
	}

	// A losing contractor retrying gets ALREADY_ASSIGNED, not EXPIRED.
	_, err = engine.Respond(ctx, offers[0].Token, DecisionAccept, nil)
	assert.ErrorIs(t, err, job.ErrAlreadyAssigned)

	// The winner retrying gets the same idempotent rejection.
	_, err = engine.Respond(ctx, winner.Token, DecisionAccept, nil)
	assert.ErrorIs(t, err, job.ErrAlreadyAssigned)

	// Exactly one assignment exists.
	assert.Len(t, store.assignments, 1)
}

func TestDeclineLeavesSiblingsPending(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	routerID := uuid.New().String()
	j := openJob(uuid.New().String())
	store.addJob(j)
	require.NoError(t, engine.Claim(ctx, j.JobID, routerID))

	offers, err := engine.ApplyRouting(ctx, j.JobID, routerID, contractorIDs(3))
	require.NoError(t, err)

	d, err := engine.Respond(ctx, offers[0].Token, DecisionDecline, nil)
	require.NoError(t, err)
	assert.Equal(t, DispatchDeclined, d.Status)

	for _, o := range offers[1:] {
		assert.Equal(t, DispatchPending, store.dispatches[o.DispatchID].Status)
	}

	// Accepting after declining, with the job still unassigned, is a plain
	// already-responded conflict.
	_, err = engine.Respond(ctx, offers[0].Token, DecisionAccept, nil)
	assert.ErrorIs(t, err, ErrAlreadyResponded)
}

func TestExpiredTokenBeatsAssignedClassification(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	routerID := uuid.New().String()
	j := openJob(uuid.New().String())
	store.addJob(j)
	require.NoError(t, engine.Claim(ctx, j.JobID, routerID))

	offers, err := engine.ApplyRouting(ctx, j.JobID, routerID, contractorIDs(2))
	require.NoError(t, err)

	_, err = engine.Respond(ctx, offers[0].Token, DecisionAccept, nil)
	require.NoError(t, err)

	// Push the loser's offer past expiry: the stale token reads EXPIRED
	// even though the job is assigned.
	store.mu.Lock()
	store.dispatches[offers[1].DispatchID].ExpiresAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	_, err = engine.Respond(ctx, offers[1].Token, DecisionAccept, nil)
	assert.ErrorIs(t, err, ErrDispatchExpired)
}

func TestRespondUnknownToken(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(newFakeStore())

	_, err := engine.Respond(ctx, "deadbeef", DecisionAccept, nil)
	assert.ErrorIs(t, err, ErrDispatchNotFound)
}

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	routerID := uuid.New().String()
	j := openJob(uuid.New().String())
	store.addJob(j)
	require.NoError(t, engine.Claim(ctx, j.JobID, routerID))

	offers, err := engine.ApplyRouting(ctx, j.JobID, routerID, contractorIDs(5))
	require.NoError(t, err)

	const attemptsPerOffer = 4
	var wg sync.WaitGroup
	results := make(chan error, len(offers)*attemptsPerOffer)

	for _, o := range offers {
		for i := 0; i < attemptsPerOffer; i++ {
			wg.Add(1)
			go func(token string) {
				defer wg.Done()
				_, err := engine.Respond(ctx, token, DecisionAccept, nil)
				results <- err
			}(o.Token)
		}
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, job.ErrAlreadyAssigned)
		}
	}
	assert.Equal(t, 1, wins, "exactly one accept attempt may win")
	assert.Len(t, store.assignments, 1)
}

func TestAdminRoute(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := newTestEngine(store)

	adminID := uuid.New().String()
	contractorID := uuid.New().String()
	j := openJob(uuid.New().String())
	store.addJob(j)

	require.NoError(t, engine.AdminRoute(ctx, j.JobID, adminID, contractorID))

	updated, err := store.GetJobByID(ctx, j.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.RoutedByAdmin, updated.RoutingStatus)
	require.NotNil(t, updated.AdminRoutedByID)
	assert.Equal(t, adminID, *updated.AdminRoutedByID)
	require.NotNil(t, updated.FirstRoutedAt)

	// Second routing attempt conflicts.
	err = engine.AdminRoute(ctx, j.JobID, adminID, uuid.New().String())
	assert.ErrorIs(t, err, job.ErrAlreadyAssigned)
}
