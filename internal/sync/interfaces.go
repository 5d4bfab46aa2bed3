package sync

import (
	"context"

	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// JobStore is the local job table.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.Job, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// JobCreator posts a job to the remote API.
type JobCreator interface {
	CreateJob(ctx context.Context, userID string, job *models.Job) (*models.Job, error)
}

// Connectivity reports network reachability.
type Connectivity interface {
	// IsOnline performs a live check.
	IsOnline(ctx context.Context) bool

	// Subscribe calls fn on every transition and returns an unsubscribe
	// function.
	Subscribe(fn func(online bool)) func()
}

// SegmentSyncer uploads file segments stored while offline.
type SegmentSyncer interface {
	SyncPending(ctx context.Context) (synced, failed int, err error)
}

// Syncer is the part of Manager driven by the scheduler and the bridges.
type Syncer interface {
	SyncPendingJobs(ctx context.Context) (Result, error)
	ManualSync(ctx context.Context) (Result, error)
	PendingCount() (int, error)
	Running() bool
}

var _ Syncer = (*Manager)(nil)
