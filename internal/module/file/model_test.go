package file

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_IsValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusDeleted} {
		assert.True(t, s.IsValid(), string(s))
	}
	assert.False(t, Status("archived").IsValid())
	assert.False(t, Status("").IsValid())
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusDeleted.IsTerminal())
	assert.False(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
}

func TestFile_IsExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	f := &File{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, f.IsExpired(now))

	f.ExpiresAt = now.Add(-time.Minute)
	assert.True(t, f.IsExpired(now))

	// Exactly at the boundary the file is not yet expired.
	f.ExpiresAt = now
	assert.False(t, f.IsExpired(now))
}
