package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routedly/marketplace-be/internal/job"
)

type fakePaymentStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{records: make(map[string]*Record)}
}

func (s *fakePaymentStore) GetByJobID(_ context.Context, jobID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *fakePaymentStore) Insert(_ context.Context, rec *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.JobID]; ok {
		return false, nil
	}
	cp := *rec
	s.records[rec.JobID] = &cp
	return true, nil
}

func (s *fakePaymentStore) Delete(_ context.Context, jobID, providerIntentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if ok && rec.ProviderIntentID == providerIntentID && rec.Status != RecordCaptured {
		delete(s.records, jobID)
	}
	return nil
}

func (s *fakePaymentStore) MarkCaptured(_ context.Context, jobID, providerIntentID, providerStatus string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok || rec.ProviderIntentID != providerIntentID || rec.Status != RecordPending {
		return false, nil
	}
	rec.Status = RecordCaptured
	rec.ProviderStatus = providerStatus
	rec.UpdatedAt = now
	return true, nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*job.Job
}

func newFakeJobStore(jobs ...*job.Job) *fakeJobStore {
	s := &fakeJobStore{jobs: make(map[string]*job.Job)}
	for _, j := range jobs {
		s.jobs[j.JobID] = j
	}
	return s
}

func (s *fakeJobStore) GetJobByID(_ context.Context, jobID string) (*job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *fakeJobStore) LockEscrow(_ context.Context, jobID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok || j.EscrowLockedAt != nil {
		return false, nil
	}
	t := now
	j.EscrowLockedAt = &t
	return true, nil
}

// fakeProvider issues one intent per idempotency key, the way a real
// provider deduplicates creates.
type fakeProvider struct {
	mu        sync.Mutex
	byKey     map[string]*Intent
	creates   int
	canceled  []string
	cancelErr error
	createErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{byKey: make(map[string]*Intent)}
}

func (p *fakeProvider) CreateIntent(_ context.Context, params CreateIntentParams) (*Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.creates++
	if intent, ok := p.byKey[params.IdempotencyKey]; ok {
		cp := *intent
		return &cp, nil
	}
	seq := len(p.byKey) + 1
	intent := &Intent{
		IntentID:     fmt.Sprintf("pi_%d", seq),
		ClientSecret: fmt.Sprintf("secret_%d", seq),
		Status:       "requires_payment_method",
		AmountCents:  params.AmountCents,
	}
	p.byKey[params.IdempotencyKey] = intent
	cp := *intent
	return &cp, nil
}

func (p *fakeProvider) CancelIntent(_ context.Context, intentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelErr != nil {
		return p.cancelErr
	}
	p.canceled = append(p.canceled, intentID)
	return nil
}

func newTestManager(store Store, jobs JobStore, provider Provider) *Manager {
	return NewManager(store, jobs, provider, "usd", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func fundableJob(id string, laborCents, materialsCents int64) *job.Job {
	return &job.Job{
		JobID:               id,
		Status:              job.StatusOpenForRouting,
		LaborTotalCents:     laborCents,
		MaterialsTotalCents: materialsCents,
	}
}

func TestCreateIntentIdempotentRetry(t *testing.T) {
	ctx := context.Background()
	store := newFakePaymentStore()
	jobs := newFakeJobStore(fundableJob("job-1", 30000, 0))
	provider := newFakeProvider()
	mgr := newTestManager(store, jobs, provider)

	first, err := mgr.CreateIntent(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30000), first.AmountCents)

	second, err := mgr.CreateIntent(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, first.ProviderIntentID, second.ProviderIntentID)

	assert.Len(t, store.records, 1)
	assert.Empty(t, provider.canceled)
}

func TestCreateIntentAmountChangeReplacesRecord(t *testing.T) {
	ctx := context.Background()
	store := newFakePaymentStore()
	jobs := newFakeJobStore(fundableJob("job-1", 30000, 0))
	provider := newFakeProvider()
	mgr := newTestManager(store, jobs, provider)

	first, err := mgr.CreateIntent(ctx, "job-1")
	require.NoError(t, err)

	jobs.mu.Lock()
	jobs.jobs["job-1"].LaborTotalCents = 35000
	jobs.mu.Unlock()

	second, err := mgr.CreateIntent(ctx, "job-1")
	require.NoError(t, err)

	assert.NotEqual(t, first.ProviderIntentID, second.ProviderIntentID)
	assert.Equal(t, int64(35000), second.AmountCents)
	assert.Equal(t, []string{first.ProviderIntentID}, provider.canceled)

	require.Len(t, store.records, 1)
	rec := store.records["job-1"]
	assert.Equal(t, int64(35000), rec.AmountCents)
	assert.Equal(t, second.ProviderIntentID, rec.ProviderIntentID)
}

func TestCreateIntentCancelFailureTolerated(t *testing.T) {
	ctx := context.Background()
	store := newFakePaymentStore()
	jobs := newFakeJobStore(fundableJob("job-1", 30000, 0))
	provider := newFakeProvider()
	mgr := newTestManager(store, jobs, provider)

	_, err := mgr.CreateIntent(ctx, "job-1")
	require.NoError(t, err)

	jobs.mu.Lock()
	jobs.jobs["job-1"].LaborTotalCents = 35000
	jobs.mu.Unlock()
	provider.mu.Lock()
	provider.cancelErr = errors.New("provider unavailable")
	provider.mu.Unlock()

	second, err := mgr.CreateIntent(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, int64(35000), second.AmountCents)
	assert.Len(t, store.records, 1)
}

func TestCreateIntentAlreadyFunded(t *testing.T) {
	ctx := context.Background()
	funded := fundableJob("job-1", 30000, 0)
	lockedAt := time.Now()
	funded.EscrowLockedAt = &lockedAt
	mgr := newTestManager(newFakePaymentStore(), newFakeJobStore(funded), newFakeProvider())

	_, err := mgr.CreateIntent(ctx, "job-1")
	assert.ErrorIs(t, err, ErrAlreadyFunded)
}

func TestCreateIntentZeroAmountRejected(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(newFakePaymentStore(), newFakeJobStore(fundableJob("job-1", 0, 0)), newFakeProvider())

	_, err := mgr.CreateIntent(ctx, "job-1")
	assert.True(t, job.IsValidation(err))
}

func TestCreateIntentConcurrentCallsConverge(t *testing.T) {
	ctx := context.Background()
	store := newFakePaymentStore()
	jobs := newFakeJobStore(fundableJob("job-1", 30000, 500))
	provider := newFakeProvider()
	mgr := newTestManager(store, jobs, provider)

	const callers = 8
	results := make([]*IntentResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = mgr.CreateIntent(ctx, "job-1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ProviderIntentID, results[i].ProviderIntentID)
		assert.Equal(t, int64(30500), results[i].AmountCents)
	}
	assert.Len(t, store.records, 1)
	assert.Len(t, provider.byKey, 1)
}

func TestConfirmCapturesAndLocksEscrow(t *testing.T) {
	ctx := context.Background()
	store := newFakePaymentStore()
	j := fundableJob("job-1", 30000, 0)
	jobs := newFakeJobStore(j)
	mgr := newTestManager(store, jobs, newFakeProvider())

	res, err := mgr.CreateIntent(ctx, "job-1")
	require.NoError(t, err)

	rec, err := mgr.Confirm(ctx, "job-1", res.ProviderIntentID)
	require.NoError(t, err)
	assert.Equal(t, RecordCaptured, rec.Status)

	jobs.mu.Lock()
	assert.NotNil(t, jobs.jobs["job-1"].EscrowLockedAt)
	jobs.mu.Unlock()

	// Repeat confirmation is a no-op, not an error.
	again, err := mgr.Confirm(ctx, "job-1", res.ProviderIntentID)
	require.NoError(t, err)
	assert.Equal(t, RecordCaptured, again.Status)
}

func TestConfirmIntentMismatch(t *testing.T) {
	ctx := context.Background()
	store := newFakePaymentStore()
	mgr := newTestManager(store, newFakeJobStore(fundableJob("job-1", 30000, 0)), newFakeProvider())

	_, err := mgr.CreateIntent(ctx, "job-1")
	require.NoError(t, err)

	_, err = mgr.Confirm(ctx, "job-1", "pi_someone_elses")
	assert.ErrorIs(t, err, ErrIntentMismatch)
}

func TestIntentIdempotencyKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, IntentIdempotencyKey("job-1", 30000), IntentIdempotencyKey("job-1", 30000))
	assert.NotEqual(t, IntentIdempotencyKey("job-1", 30000), IntentIdempotencyKey("job-1", 35000))
	assert.NotEqual(t, IntentIdempotencyKey("job-1", 30000), IntentIdempotencyKey("job-2", 30000))
}
