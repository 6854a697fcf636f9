package ports

import (
	"context"

	"github.com/systaxiecuador/hive/pkg/domain"
)

// RunStore persists run snapshots, enabling pause/resume across
// process restarts.
type RunStore interface {
	// Save persists the snapshot for its run id.
	Save(ctx context.Context, snap *domain.Snapshot) error

	// Load retrieves the snapshot for a run id.
	// Returns domain.ErrRunNotFound if the run does not exist.
	Load(ctx context.Context, runID string) (*domain.Snapshot, error)

	// Delete removes the snapshot for a run id.
	Delete(ctx context.Context, runID string) error

	// List returns the run ids currently held by the store.
	List(ctx context.Context) ([]string, error)
}
