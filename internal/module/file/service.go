package file

import (
	"context"
	"fmt"
	"time"

	"github.com/convertly/server/internal/shared/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ObjectStorage is the physical storage collaborator. The manager calls
// delete and hands out presigned upload URLs; it never streams or
// transforms content itself.
type ObjectStorage interface {
	// Delete removes the object at key. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, key string) error
	// PresignPut returns a URL the client can PUT the object bytes to.
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}

// ManagerConfig holds file manager configuration.
type ManagerConfig struct {
	DefaultTTL      time.Duration
	UploadURLExpiry time.Duration
}

// Manager owns file entity state transitions from upload through processed
// output to expiry.
type Manager struct {
	repo    Repository
	storage ObjectStorage
	clock   clock.Clock
	logger  *zap.Logger
	cfg     ManagerConfig
}

// NewManager creates a new file lifecycle manager.
func NewManager(repo Repository, storage ObjectStorage, clk clock.Clock, logger *zap.Logger, cfg ManagerConfig) *Manager {
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 24 * time.Hour
	}
	if cfg.UploadURLExpiry <= 0 {
		cfg.UploadURLExpiry = 15 * time.Minute
	}
	return &Manager{
		repo:    repo,
		storage: storage,
		clock:   clk,
		logger:  logger.Named("file-manager"),
		cfg:     cfg,
	}
}

// CreateInput holds the parameters for registering an upload.
type CreateInput struct {
	OwnerID   uuid.UUID
	Name      string
	MimeType  string
	SizeBytes int64
	TTL       time.Duration // zero means the configured default
}

// Create registers a new upload in pending state and returns the file
// record together with a presigned upload URL for the client to PUT the
// bytes to. ExpiresAt is fixed here and never extended.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*File, string, error) {
	ttl := in.TTL
	if ttl == 0 {
		ttl = m.cfg.DefaultTTL
	}
	if ttl < 0 {
		return nil, "", ErrInvalidTTL
	}

	now := m.clock.Now().UTC()
	id := uuid.New()
	f := &File{
		ID:          id,
		OwnerID:     in.OwnerID,
		Status:      StatusPending,
		Name:        in.Name,
		StoragePath: fmt.Sprintf("uploads/%s/%s/%s", in.OwnerID, id, in.Name),
		MimeType:    in.MimeType,
		SizeBytes:   in.SizeBytes,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.repo.Create(ctx, f); err != nil {
		return nil, "", err
	}

	uploadURL, err := m.storage.PresignPut(ctx, f.StoragePath, in.MimeType, m.cfg.UploadURLExpiry)
	if err != nil {
		return nil, "", fmt.Errorf("presign upload: %w", err)
	}

	return f, uploadURL, nil
}

// Get retrieves a file by ID.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*File, error) {
	return m.repo.GetByID(ctx, id)
}

// ListByOwner lists a user's non-deleted files.
func (m *Manager) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*File, error) {
	return m.repo.ListByOwner(ctx, ownerID, limit, offset)
}

// StartProcessing transitions a file from pending to processing. Any other
// prior state is a contract violation; the conditional update guards
// against double-starts.
func (m *Manager) StartProcessing(ctx context.Context, id uuid.UUID) error {
	return m.transition(ctx, id, []Status{StatusPending}, map[string]interface{}{
		"status":     StatusProcessing,
		"updated_at": m.clock.Now().UTC(),
	})
}

// Complete transitions a file from processing to completed and records the
// derived output location.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID, outputPath, outputName string) error {
	return m.transition(ctx, id, []Status{StatusProcessing}, map[string]interface{}{
		"status":      StatusCompleted,
		"output_path": outputPath,
		"output_name": outputName,
		"updated_at":  m.clock.Now().UTC(),
	})
}

// Fail marks a file as failed. The stored source upload is kept so the
// user can retry without re-uploading.
func (m *Manager) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	return m.transition(ctx, id, []Status{StatusPending, StatusProcessing}, map[string]interface{}{
		"status":      StatusFailed,
		"fail_reason": reason,
		"updated_at":  m.clock.Now().UTC(),
	})
}

// Delete removes the original and any derived output from storage, then
// marks the record deleted. It is idempotent: deleting an already-deleted
// file is a no-op, so the reaper and a manual delete can race harmlessly.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	f, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if f.Status == StatusDeleted {
		return nil
	}

	// Storage objects go first: once the record reads deleted, no backing
	// object may exist. On storage failure the record stays live and the
	// delete is retried (by the caller or the next sweep).
	if err := m.storage.Delete(ctx, f.StoragePath); err != nil {
		return fmt.Errorf("delete source object: %w", err)
	}
	if f.OutputPath != nil && *f.OutputPath != "" {
		if err := m.storage.Delete(ctx, *f.OutputPath); err != nil {
			return fmt.Errorf("delete output object: %w", err)
		}
	}

	ok, err := m.repo.UpdateStatusFrom(ctx, id, liveStatuses, map[string]interface{}{
		"status":     StatusDeleted,
		"updated_at": m.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if !ok {
		// A concurrent delete won the write; object deletes are idempotent
		// so nothing is left behind.
		m.logger.Debug("file already deleted concurrently", zap.String("file_id", id.String()))
	}
	return nil
}

func (m *Manager) transition(ctx context.Context, id uuid.UUID, from []Status, updates map[string]interface{}) error {
	ok, err := m.repo.UpdateStatusFrom(ctx, id, from, updates)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	// Distinguish a missing row from a precondition failure.
	f, err := m.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, updates["status"], f.Status)
}
