package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/api"
	"github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	"github.com/wahabsharif/premierspaces-app/backend/internal/uuid"
)

// CostStore is the local cost table.
type CostStore interface {
	Create(ctx context.Context, cost *models.Cost) (string, error)
	Where(ctx context.Context, column string, value interface{}) ([]*models.Cost, error)
}

// CostPoster posts a cost to the remote API.
type CostPoster interface {
	CreateCost(ctx context.Context, req api.CostRequest) (json.RawMessage, error)
}

// CostRefresher reloads the cached remote costs of a job.
type CostRefresher interface {
	RefreshCosts(ctx context.Context, userID, jobID string) ([]models.Cost, error)
}

// CostService records costs against jobs.
type CostService struct {
	costs    CostStore
	remote   CostPoster
	refresh  CostRefresher
	conn     Connectivity
	sessions UserSource
	clock    func() time.Time
	log      *logging.Logger
}

// NewCostService creates a CostService. refresh may be nil.
func NewCostService(costs CostStore, remote CostPoster, refresh CostRefresher, conn Connectivity, sessions UserSource) *CostService {
	return &CostService{
		costs:    costs,
		remote:   remote,
		refresh:  refresh,
		conn:     conn,
		sessions: sessions,
		clock:    time.Now,
		log:      logging.Component("costs"),
	}
}

// CostResult describes a recorded cost.
type CostResult struct {
	Cost   *models.Cost    `json:"cost"`
	Posted bool            `json:"posted"`
	Remote json.RawMessage `json:"remote,omitempty"`
}

// Create stores the cost locally and, when online, posts it and refreshes
// the cached cost list of its job. A network failure leaves the local copy
// as the only record and is not an error.
func (s *CostService) Create(ctx context.Context, cost *models.Cost) (*CostResult, error) {
	userID, err := s.sessions.UserID()
	if err != nil {
		return nil, err
	}
	if cost.ID == "" {
		cost.ID = uuid.New()
	}
	if cost.CreatedAt == 0 {
		cost.CreatedAt = s.clock().UnixMilli()
	}
	if err := cost.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.costs.Create(ctx, cost); err != nil {
		return nil, err
	}

	res := &CostResult{Cost: cost}
	if s.conn != nil && !s.conn.IsOnline(ctx) {
		return res, nil
	}

	payload, err := s.remote.CreateCost(ctx, api.NewCostRequest(userID, cost))
	if errors.IsNetwork(err) {
		s.log.Warn("cost post failed, kept locally", map[string]interface{}{
			"cost_id": cost.ID, "error": err.Error(),
		})
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Posted = true
	res.Remote = payload

	if s.refresh != nil {
		jobID := cost.JobID
		if jobID == "" {
			jobID = cost.CommonID
		}
		if _, err := s.refresh.RefreshCosts(ctx, userID, jobID); err != nil {
			s.log.Warn("failed to refresh cached costs", map[string]interface{}{
				"job_id": jobID, "error": err.Error(),
			})
		}
	}
	return res, nil
}

// ForJob returns the locally recorded costs of jobID.
func (s *CostService) ForJob(ctx context.Context, jobID string) ([]*models.Cost, error) {
	return s.costs.Where(ctx, "job_id", jobID)
}
