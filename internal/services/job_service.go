// Package services holds the write paths the UI calls: creating jobs and
// costs online when possible and offline otherwise.
package services

import (
	"context"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/events"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/metrics"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	"github.com/wahabsharif/premierspaces-app/backend/internal/sync/queue"
	"github.com/wahabsharif/premierspaces-app/backend/internal/uuid"
)

// JobStore is the local job table.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) (string, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	Delete(ctx context.Context, id string) (int64, error)
}

// JobQueue is the offline queue of jobs waiting for sync.
type JobQueue interface {
	Enqueue(jobID, userID string) (bool, error)
	List() ([]queue.Item, error)
	Size() (int, error)
}

// JobCreator posts a job to the remote API.
type JobCreator interface {
	CreateJob(ctx context.Context, userID string, job *models.Job) (*models.Job, error)
}

// Connectivity reports network reachability.
type Connectivity interface {
	IsOnline(ctx context.Context) bool
}

// UserSource returns the logged-in user id.
type UserSource interface {
	UserID() (string, error)
}

// JobService creates jobs.
type JobService struct {
	jobs     JobStore
	queue    JobQueue
	remote   JobCreator
	conn     Connectivity
	sessions UserSource
	bus      *events.Bus
	clock    func() time.Time
	log      *logging.Logger
}

// NewJobService creates a JobService.
func NewJobService(jobs JobStore, q JobQueue, remote JobCreator, conn Connectivity, sessions UserSource, bus *events.Bus) *JobService {
	if bus == nil {
		bus = events.NewBus()
	}
	return &JobService{
		jobs:     jobs,
		queue:    q,
		remote:   remote,
		conn:     conn,
		sessions: sessions,
		bus:      bus,
		clock:    time.Now,
		log:      logging.Component("jobs"),
	}
}

// CreateResult describes where a new job went.
type CreateResult struct {
	Job *models.Job `json:"job"`

	// Queued is true when the job was stored for a later sync.
	Queued bool `json:"queued"`

	// Remote is the record echoed by the server, if any.
	Remote *models.Job `json:"remote,omitempty"`
}

// Create fills in the id, common_id and creation date, then posts the job.
// When offline, or when the POST fails for a network reason, the job is
// stored locally and queued instead.
func (s *JobService) Create(ctx context.Context, job *models.Job) (*CreateResult, error) {
	userID, err := s.sessions.UserID()
	if err != nil {
		return nil, err
	}

	now := s.clock()
	if job.ID == "" {
		job.ID = uuid.New()
	}
	if job.CommonID == "" {
		job.CommonID = models.NewCommonID(now)
	}
	if job.DateCreated == "" {
		job.DateCreated = now.Format(models.DateLayout)
	}
	if err := job.Validate(); err != nil {
		return nil, err
	}

	if s.conn == nil || s.conn.IsOnline(ctx) {
		echoed, err := s.remote.CreateJob(ctx, userID, job)
		switch {
		case err == nil:
			s.log.Info("job created", map[string]interface{}{"common_id": job.CommonID})
			return &CreateResult{Job: job, Remote: echoed}, nil
		case errors.IsSessionExpired(err):
			s.bus.SessionExpired.Publish(events.SessionExpired{Source: "jobs"})
			return nil, err
		case !errors.IsNetwork(err):
			return nil, err
		}
		s.log.Warn("job post failed, storing offline", map[string]interface{}{
			"common_id": job.CommonID, "error": err.Error(),
		})
	}

	return s.storeOffline(ctx, job, userID)
}

func (s *JobService) storeOffline(ctx context.Context, job *models.Job, userID string) (*CreateResult, error) {
	if _, err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if _, err := s.queue.Enqueue(job.ID, userID); err != nil {
		if _, derr := s.jobs.Delete(ctx, job.ID); derr != nil {
			s.log.Error("failed to remove unqueued job", derr, map[string]interface{}{"job_id": job.ID})
		}
		return nil, err
	}

	n, err := s.queue.Size()
	if err == nil {
		metrics.PendingJobs.Set(float64(n))
		s.bus.PendingCountUpdated.Publish(events.PendingCountUpdated{Count: n})
	}
	s.log.Info("job stored offline", map[string]interface{}{"job_id": job.ID, "pending": n})
	return &CreateResult{Job: job, Queued: true}, nil
}

// Pending returns the locally stored jobs waiting for sync, oldest first.
// Queue entries whose record is missing are left out.
func (s *JobService) Pending(ctx context.Context) ([]*models.Job, error) {
	items, err := s.queue.List()
	if err != nil {
		return nil, err
	}
	out := make([]*models.Job, 0, len(items))
	for _, it := range items {
		job, err := s.jobs.Get(ctx, it.JobID)
		if errors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}
