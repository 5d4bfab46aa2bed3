package models

import (
	"encoding/json"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// Cost is an expense recorded against a job.
type Cost struct {
	ID           string
	JobID        string
	CommonID     string
	ContractorID *string
	Name         string
	Amount       float64
	MaterialCost *int64
	CreatedAt    int64
}

// Validate requires a job reference.
func (c *Cost) Validate() error {
	if c.JobID == "" && c.CommonID == "" {
		return apperrors.New(apperrors.ErrValidation, "cost requires job_id or common_id")
	}
	return nil
}

type costJSON struct {
	ID           string  `json:"id,omitempty"`
	JobID        string  `json:"job_id,omitempty"`
	CommonID     string  `json:"common_id,omitempty"`
	ContractorID *string `json:"contractor_id"`
	Name         string  `json:"name"`
	Amount       float64 `json:"amount"`
	MaterialCost *int64  `json:"material_cost,omitempty"`
	CreatedAt    int64   `json:"created_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c Cost) MarshalJSON() ([]byte, error) {
	return json.Marshal(costJSON(c))
}

// UnmarshalJSON accepts amounts and ids as either numbers or strings.
func (c *Cost) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	amount, _ := SafeNumber(m["amount"])
	created, _ := SafeNumber(m["created_at"])
	*c = Cost{
		ID:           SafeString(m["id"]),
		JobID:        SafeString(m["job_id"]),
		CommonID:     SafeString(m["common_id"]),
		ContractorID: stringPtr(m["contractor_id"]),
		Name:         SafeString(m["name"]),
		Amount:       amount,
		MaterialCost: intPtr(m["material_cost"]),
		CreatedAt:    int64(created),
	}
	return nil
}
