package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

type fakeTiers struct {
	tiers map[uuid.UUID]Tier
}

func (f *fakeTiers) Tier(_ context.Context, userID uuid.UUID) (Tier, error) {
	tier, ok := f.tiers[userID]
	if !ok {
		return "", ErrUserNotFound
	}
	return tier, nil
}

type fakeRepo struct {
	mu        sync.Mutex
	states    map[uuid.UUID]*CreditState
	records   []*UsageRecord
	failSwaps int // artificially fail this many CAS attempts
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{states: make(map[uuid.UUID]*CreditState)}
}

func (r *fakeRepo) GetCreditState(_ context.Context, userID uuid.UUID) (*CreditState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.states[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *state
	return &cp, nil
}

func (r *fakeRepo) CompareAndSwapCredits(_ context.Context, old, next *CreditState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSwaps > 0 {
		r.failSwaps--
		return false, nil
	}
	cur, ok := r.states[old.UserID]
	if !ok {
		return false, nil
	}
	if cur.CreditsUsedToday != old.CreditsUsedToday ||
		cur.CreditsUsedMonth != old.CreditsUsedMonth ||
		!cur.LastCreditReset.Equal(old.LastCreditReset) {
		return false, nil
	}
	cp := *next
	r.states[next.UserID] = &cp
	return true, nil
}

func (r *fakeRepo) CreateUsageRecord(_ context.Context, record *UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRepo) GetUsageStats(_ context.Context, _ uuid.UUID, _, _ time.Time) (*UsageStats, error) {
	return &UsageStats{ByTool: map[string]*ToolUsage{}}, nil
}

func (r *fakeRepo) state(userID uuid.UUID) *CreditState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.states[userID]
	return &cp
}

// --- Helpers ---

var noon = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, tier Tier, state *CreditState, now time.Time) (*Ledger, *fakeRepo, *fakeClock, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	repo := newFakeRepo()
	if state != nil {
		state.UserID = userID
		repo.states[userID] = state
	}
	clk := &fakeClock{now: now}
	tiers := &fakeTiers{tiers: map[uuid.UUID]Tier{userID: tier}}
	ledger := NewLedger(repo, tiers, clk, nil, nil, 5)
	return ledger, repo, clk, userID
}

// --- Tests ---

func TestReserve_ZeroCreditsAlwaysSucceeds(t *testing.T) {
	// Free tools pass 0 and must succeed without touching counters,
	// even for users the ledger has never seen.
	repo := newFakeRepo()
	ledger := NewLedger(repo, &fakeTiers{tiers: map[uuid.UUID]Tier{}}, &fakeClock{now: noon}, nil, nil, 5)

	res, err := ledger.Reserve(context.Background(), uuid.New(), 0)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestReserve_NegativeCredits(t *testing.T) {
	ledger, _, _, userID := newTestLedger(t, TierFree, &CreditState{LastCreditReset: noon}, noon)

	_, err := ledger.Reserve(context.Background(), userID, -1)
	assert.ErrorIs(t, err, ErrInvalidCredits)
}

func TestReserve_UserNotFound(t *testing.T) {
	repo := newFakeRepo()
	ledger := NewLedger(repo, &fakeTiers{tiers: map[uuid.UUID]Tier{}}, &fakeClock{now: noon}, nil, nil, 5)

	_, err := ledger.Reserve(context.Background(), uuid.New(), 1)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestReserve_GrantIncrementsCounters(t *testing.T) {
	ledger, repo, _, userID := newTestLedger(t, TierFree,
		&CreditState{CreditsUsedToday: 5, CreditsUsedMonth: 10, LastCreditReset: noon.Add(-time.Hour)}, noon)

	res, err := ledger.Reserve(context.Background(), userID, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	state := repo.state(userID)
	assert.Equal(t, int64(8), state.CreditsUsedToday)
	assert.Equal(t, int64(13), state.CreditsUsedMonth)
	assert.Equal(t, noon, state.LastCreditReset)
}

func TestReserve_DeniedDailyNamesDailyLimit(t *testing.T) {
	// Free tier daily=25, used 24 today, reserving 3 must be denied with a
	// reason naming the daily limit (25), not the monthly one (50).
	ledger, repo, _, userID := newTestLedger(t, TierFree,
		&CreditState{CreditsUsedToday: 24, CreditsUsedMonth: 24, LastCreditReset: noon.Add(-time.Hour)}, noon)

	res, err := ledger.Reserve(context.Background(), userID, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, LimitDaily, res.Limit)
	assert.Equal(t, int64(25), res.LimitValue)
	assert.Contains(t, res.Reason, "25")
	assert.NotContains(t, res.Reason, "50")

	// Denial must not mutate state.
	state := repo.state(userID)
	assert.Equal(t, int64(24), state.CreditsUsedToday)
	assert.Equal(t, int64(24), state.CreditsUsedMonth)
}

func TestReserve_DeniedMonthlyNamesMonthlyLimit(t *testing.T) {
	ledger, _, _, userID := newTestLedger(t, TierFree,
		&CreditState{CreditsUsedToday: 2, CreditsUsedMonth: 49, LastCreditReset: noon.Add(-time.Hour)}, noon)

	res, err := ledger.Reserve(context.Background(), userID, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, LimitMonthly, res.Limit)
	assert.Equal(t, int64(50), res.LimitValue)
	assert.Contains(t, res.Reason, "50")
}

func TestReserve_DayBoundaryResetsDailyCounter(t *testing.T) {
	// lastCreditReset is yesterday: 20/25 used yesterday, so reserving 10
	// succeeds because the effective daily count is 0.
	yesterday := noon.AddDate(0, 0, -1)
	ledger, repo, _, userID := newTestLedger(t, TierFree,
		&CreditState{CreditsUsedToday: 20, CreditsUsedMonth: 20, LastCreditReset: yesterday}, noon)

	res, err := ledger.Reserve(context.Background(), userID, 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	state := repo.state(userID)
	assert.Equal(t, int64(10), state.CreditsUsedToday)
	// Same calendar month: the monthly counter is preserved and incremented.
	assert.Equal(t, int64(30), state.CreditsUsedMonth)
	assert.Equal(t, noon, state.LastCreditReset)
}

func TestReserve_DayBoundaryDoesNotResetMonthlyCounter(t *testing.T) {
	// Monthly headroom is exhausted; a mid-month day boundary must not
	// erroneously zero the monthly counter.
	yesterday := noon.AddDate(0, 0, -1)
	ledger, _, _, userID := newTestLedger(t, TierFree,
		&CreditState{CreditsUsedToday: 20, CreditsUsedMonth: 50, LastCreditReset: yesterday}, noon)

	res, err := ledger.Reserve(context.Background(), userID, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, LimitMonthly, res.Limit)
}

func TestReserve_MonthBoundaryResetsBothCounters(t *testing.T) {
	lastMonth := time.Date(2025, 5, 20, 9, 0, 0, 0, time.UTC)
	ledger, repo, _, userID := newTestLedger(t, TierFree,
		&CreditState{CreditsUsedToday: 25, CreditsUsedMonth: 50, LastCreditReset: lastMonth}, noon)

	res, err := ledger.Reserve(context.Background(), userID, 10)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	state := repo.state(userID)
	assert.Equal(t, int64(10), state.CreditsUsedToday)
	assert.Equal(t, int64(10), state.CreditsUsedMonth)
}

func TestReserve_UnlimitedTierAccumulatesButNeverRejects(t *testing.T) {
	ledger, repo, _, userID := newTestLedger(t, TierEnterprise,
		&CreditState{LastCreditReset: noon.Add(-time.Hour)}, noon)

	for i := 0; i < 3; i++ {
		res, err := ledger.Reserve(context.Background(), userID, 100000)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	state := repo.state(userID)
	assert.Equal(t, int64(300000), state.CreditsUsedToday)
	assert.Equal(t, int64(300000), state.CreditsUsedMonth)
}

func TestReserve_RetriesOnSwapConflict(t *testing.T) {
	ledger, repo, _, userID := newTestLedger(t, TierFree,
		&CreditState{LastCreditReset: noon.Add(-time.Hour)}, noon)
	repo.failSwaps = 2

	res, err := ledger.Reserve(context.Background(), userID, 5)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestReserve_ConflictRetriesExhausted(t *testing.T) {
	ledger, repo, _, userID := newTestLedger(t, TierFree,
		&CreditState{LastCreditReset: noon.Add(-time.Hour)}, noon)
	repo.failSwaps = 100

	_, err := ledger.Reserve(context.Background(), userID, 5)
	assert.ErrorIs(t, err, ErrReservationConflict)
}

func TestReserve_ConcurrentCallsNeverExceedDailyLimit(t *testing.T) {
	// Ten concurrent reservations of 5 credits against a daily limit of 25:
	// at most five may be granted, whatever the interleaving.
	userID := uuid.New()
	repo := newFakeRepo()
	repo.states[userID] = &CreditState{UserID: userID, LastCreditReset: noon.Add(-time.Hour)}
	tiers := &fakeTiers{tiers: map[uuid.UUID]Tier{userID: TierFree}}
	ledger := NewLedger(repo, tiers, &fakeClock{now: noon}, nil, nil, 100)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Reserve(context.Background(), userID, 5)
			if err == nil && res.Allowed {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, granted, 5)
	state := repo.state(userID)
	assert.LessOrEqual(t, state.CreditsUsedToday, int64(25))
	assert.Equal(t, int64(granted*5), state.CreditsUsedToday)
}

func TestEffectiveAt_LazyResetLeavesPersistedStateStale(t *testing.T) {
	// A user who never reserves after a boundary keeps stale persisted
	// counters; EffectiveAt still computes the correct values.
	state := &CreditState{
		CreditsUsedToday: 25,
		CreditsUsedMonth: 40,
		LastCreditReset:  time.Date(2025, 6, 14, 23, 59, 0, 0, time.UTC),
	}

	daily, monthly := state.EffectiveAt(noon)
	assert.Equal(t, int64(0), daily)
	assert.Equal(t, int64(40), monthly)

	// Persisted values untouched.
	assert.Equal(t, int64(25), state.CreditsUsedToday)
	assert.Equal(t, int64(40), state.CreditsUsedMonth)
}

func TestEffectiveAt_SameDayNoReset(t *testing.T) {
	state := &CreditState{
		CreditsUsedToday: 7,
		CreditsUsedMonth: 12,
		LastCreditReset:  noon.Add(-2 * time.Hour),
	}

	daily, monthly := state.EffectiveAt(noon)
	assert.Equal(t, int64(7), daily)
	assert.Equal(t, int64(12), monthly)
}
