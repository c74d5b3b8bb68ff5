package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	available bool
	acquired  int
	released  int
}

func (l *fakeLock) TryAcquire(_ context.Context) (bool, error) {
	if !l.available {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLock) Release(_ context.Context) error {
	l.released++
	return nil
}

func newTestReaper(t *testing.T, lock Locker) (*Reaper, *Manager, *fakeFileRepo, *fakeStorage, *fakeClock) {
	t.Helper()
	repo := newFakeFileRepo()
	storage := newFakeStorage()
	clk := &fakeClock{now: testNow}
	manager := NewManager(repo, storage, clk, nil, ManagerConfig{DefaultTTL: time.Hour})
	reaper := NewReaper(manager, repo, lock, clk, nil, nil, ReaperConfig{
		Interval:  time.Minute,
		BatchSize: 100,
	})
	return reaper, manager, repo, storage, clk
}

func TestReaper_SweepDeletesExpiredFiles(t *testing.T) {
	reaper, manager, repo, storage, clk := newTestReaper(t, nil)
	ctx := context.Background()

	expired := createTestFile(t, manager)
	require.NoError(t, manager.StartProcessing(ctx, expired.ID))
	require.NoError(t, manager.Complete(ctx, expired.ID, "outputs/out.docx", "out.docx"))
	storage.put("outputs/out.docx")

	fresh, _, err := manager.Create(ctx, CreateInput{OwnerID: expired.OwnerID, Name: "fresh.pdf", TTL: 48 * time.Hour})
	require.NoError(t, err)

	clk.Advance(25 * time.Hour)

	reaped, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	// Expired completed file is gone, record and storage both.
	stored, err := repo.GetByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDeleted, stored.Status)
	assert.False(t, storage.exists(expired.StoragePath))
	assert.False(t, storage.exists("outputs/out.docx"))

	// The unexpired file is untouched.
	kept, err := repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.NotEqual(t, StatusDeleted, kept.Status)
}

func TestReaper_SweepContinuesPastStorageFailure(t *testing.T) {
	reaper, manager, repo, storage, clk := newTestReaper(t, nil)
	ctx := context.Background()

	broken := createTestFile(t, manager)
	healthy := createTestFile(t, manager)
	storage.failKeys[broken.StoragePath] = true

	clk.Advance(2 * time.Hour)

	reaped, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	// The healthy file was reaped despite the earlier failure.
	h, _ := repo.GetByID(ctx, healthy.ID)
	assert.Equal(t, StatusDeleted, h.Status)

	// The broken file stays expired-but-live and is retried next cycle.
	b, _ := repo.GetByID(ctx, broken.ID)
	assert.NotEqual(t, StatusDeleted, b.Status)

	storage.failKeys[broken.StoragePath] = false
	reaped, err = reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	b, _ = repo.GetByID(ctx, broken.ID)
	assert.Equal(t, StatusDeleted, b.Status)
}

func TestReaper_SweepIsIdempotent(t *testing.T) {
	reaper, manager, _, _, clk := newTestReaper(t, nil)
	ctx := context.Background()

	createTestFile(t, manager)
	clk.Advance(2 * time.Hour)

	reaped, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)

	reaped, err = reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)
}

func TestReaper_SweepRacesManualDeleteHarmlessly(t *testing.T) {
	reaper, manager, repo, _, clk := newTestReaper(t, nil)
	ctx := context.Background()

	f := createTestFile(t, manager)
	clk.Advance(2 * time.Hour)

	// Manual delete lands before the sweep; the sweep must treat the
	// already-deleted file as a no-op.
	require.NoError(t, manager.Delete(ctx, f.ID))

	reaped, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)

	stored, _ := repo.GetByID(ctx, f.ID)
	assert.Equal(t, StatusDeleted, stored.Status)
}

func TestReaper_SkipsCycleWhenLockHeldElsewhere(t *testing.T) {
	lock := &fakeLock{available: false}
	reaper, manager, repo, _, clk := newTestReaper(t, lock)
	ctx := context.Background()

	f := createTestFile(t, manager)
	clk.Advance(2 * time.Hour)

	reaped, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reaped)

	stored, _ := repo.GetByID(ctx, f.ID)
	assert.NotEqual(t, StatusDeleted, stored.Status)
}

func TestReaper_AcquiresAndReleasesLock(t *testing.T) {
	lock := &fakeLock{available: true}
	reaper, manager, _, _, clk := newTestReaper(t, lock)
	ctx := context.Background()

	createTestFile(t, manager)
	clk.Advance(2 * time.Hour)

	reaped, err := reaper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reaped)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)
}
