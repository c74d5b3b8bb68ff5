package usage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/convertly/server/internal/module/billing"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	gate    chan struct{} // when set, persist blocks until the gate closes
	records []*billing.UsageRecord
}

func (s *fakeStore) CreateUsageRecord(_ context.Context, record *billing.UsageRecord) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestRecorder_PersistsRecords(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRecorder(store, nil, nil, 10)

	userID := uuid.New()
	recorder.Record(&Record{
		UserID:     userID,
		Tool:       "pdf-to-docx",
		Credits:    3,
		Success:    true,
		DurationMs: 420,
	})
	recorder.Close()

	require.Equal(t, 1, store.count())
	rec := store.records[0]
	assert.Equal(t, userID, rec.UserID)
	assert.Equal(t, "pdf-to-docx", rec.Tool)
	assert.Equal(t, int64(3), rec.Credits)
	assert.True(t, rec.Success)
	assert.Equal(t, 420, rec.DurationMs)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestRecorder_CloseFlushesBuffered(t *testing.T) {
	store := &fakeStore{}
	recorder := NewRecorder(store, nil, nil, 100)

	for i := 0; i < 20; i++ {
		recorder.Record(&Record{UserID: uuid.New(), Tool: "image-resize", Credits: 1, Success: true})
	}
	recorder.Close()

	assert.Equal(t, 20, store.count())
}

func TestRecorder_FullBufferDropsWithoutBlocking(t *testing.T) {
	gate := make(chan struct{})
	store := &fakeStore{gate: gate}
	recorder := NewRecorder(store, nil, nil, 1)

	// First record is picked up by the worker and blocks on the gate,
	// second fills the buffer, the rest must be dropped without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			recorder.Record(&Record{UserID: uuid.New(), Tool: "ocr", Credits: 2, Success: false, Error: "timeout"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}

	close(gate)
	recorder.Close()

	// The blocked record plus at most a buffer's worth survive.
	assert.LessOrEqual(t, store.count(), 3)
	assert.GreaterOrEqual(t, store.count(), 1)
}
