package api

import (
	"context"
	"encoding/json"
	"net/url"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

func userQuery(userID string, extra ...string) url.Values {
	q := url.Values{"userid": {userID}}
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i+1] != "" {
			q.Set(extra[i], extra[i+1])
		}
	}
	return q
}

func getList[T any](ctx context.Context, c *Client, endpoint string, q url.Values) ([]T, error) {
	env, err := c.get(ctx, endpoint, q)
	if err != nil {
		return nil, err
	}
	return decodeList[T](endpoint, env)
}

// JobTypes fetches the job type list.
func (c *Client) JobTypes(ctx context.Context, userID string) ([]models.JobType, error) {
	return getList[models.JobType](ctx, c, EndpointJobTypes, userQuery(userID))
}

// Jobs fetches jobs, optionally restricted to one property.
func (c *Client) Jobs(ctx context.Context, userID, propertyID string) ([]models.Job, error) {
	return getList[models.Job](ctx, c, EndpointJobs, userQuery(userID, "property_id", propertyID))
}

// Categories fetches upload categories with their subcategories.
func (c *Client) Categories(ctx context.Context, userID string) ([]models.Category, error) {
	return getList[models.Category](ctx, c, EndpointCategories, userQuery(userID))
}

// Files fetches the uploaded file list.
func (c *Client) Files(ctx context.Context, userID string) ([]models.FileRecord, error) {
	return getList[models.FileRecord](ctx, c, EndpointFiles, userQuery(userID))
}

// Costs fetches costs recorded against a job.
func (c *Client) Costs(ctx context.Context, userID, jobID string) ([]models.Cost, error) {
	return getList[models.Cost](ctx, c, EndpointCosts, userQuery(userID, "job_id", jobID))
}

// Contractors fetches the contractor list.
func (c *Client) Contractors(ctx context.Context, userID string) ([]models.Contractor, error) {
	return getList[models.Contractor](ctx, c, EndpointContractors, userQuery(userID))
}

// Properties fetches the properties visible to the user.
func (c *Client) Properties(ctx context.Context, userID string) ([]models.Property, error) {
	return getList[models.Property](ctx, c, EndpointProperties, userQuery(userID))
}

type createJobRequest struct {
	UserID  string      `json:"userid"`
	Payload *models.Job `json:"payload"`
}

// CreateJob posts a job. The job's common_id lets the server recognise a
// replay of the same logical job. The echoed record is returned when the
// server sends one.
func (c *Client) CreateJob(ctx context.Context, userID string, job *models.Job) (*models.Job, error) {
	env, err := c.postJSON(ctx, EndpointNewJob, userQuery(userID), createJobRequest{UserID: userID, Payload: job})
	if err != nil {
		return nil, err
	}

	var echoed models.Job
	if json.Unmarshal(env.Payload, &echoed) == nil && echoed.ID != "" {
		return &echoed, nil
	}
	return nil, nil
}

// CostRequest is the body of a cost creation.
type CostRequest struct {
	UserID       string  `json:"user_id"`
	JobID        string  `json:"job_id"`
	Name         string  `json:"name"`
	Amount       float64 `json:"amount"`
	ContractorID *string `json:"contractor_id"`
	MaterialCost *int64  `json:"material_cost,omitempty"`
}

// NewCostRequest builds the request for cost.
func NewCostRequest(userID string, cost *models.Cost) CostRequest {
	jobID := cost.JobID
	if jobID == "" {
		jobID = cost.CommonID
	}
	return CostRequest{
		UserID:       userID,
		JobID:        jobID,
		Name:         cost.Name,
		Amount:       cost.Amount,
		ContractorID: cost.ContractorID,
		MaterialCost: cost.MaterialCost,
	}
}

// CreateCost posts a cost and returns the server's result payload.
func (c *Client) CreateCost(ctx context.Context, req CostRequest) (json.RawMessage, error) {
	env, err := c.postJSON(ctx, EndpointCosts, nil, req)
	if err != nil {
		return nil, err
	}

	var result struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(env.Payload, &result) == nil && result.Error != "" {
		return nil, apperrors.New(apperrors.ErrRemoteRejected, result.Error)
	}
	return env.Payload, nil
}
