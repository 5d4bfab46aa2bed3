package store

import (
	"database/sql"

	"github.com/wahabsharif/premierspaces-app/backend/internal/db"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// CostSchema maps models.Cost onto the costs table. material_cost is kept at
// integer precision.
var CostSchema = Schema[*models.Cost]{
	Table: "costs",
	Columns: []string{
		"id", "job_id", "common_id", "contractor_id", "name", "amount", "material_cost", "created_at",
	},
	KeyColumns: []string{"id"},
	OrderBy:    "created_at, rowid",
	Key:        func(c *models.Cost) string { return c.ID },
	KeyArgs:    singleKey,
	Values: func(c *models.Cost) ([]interface{}, error) {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		amount := c.Amount
		return []interface{}{
			c.ID, NullString(c.JobID), NullString(c.CommonID), NullStringPtr(c.ContractorID),
			NullString(c.Name), NullFloat(&amount), NullInt(c.MaterialCost), c.CreatedAt,
		}, nil
	},
	Scan: func(sc Scanner) (*models.Cost, error) {
		var (
			c                     models.Cost
			jobID, commonID, name sql.NullString
			contractorID          sql.NullString
			amount, materialCost  sql.NullFloat64
		)
		if err := sc.Scan(&c.ID, &jobID, &commonID, &contractorID, &name, &amount, &materialCost, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.JobID = jobID.String
		c.CommonID = commonID.String
		c.ContractorID = StringPtr(contractorID)
		c.Name = name.String
		c.Amount = amount.Float64
		c.MaterialCost = RoundedIntPtr(materialCost)
		return &c, nil
	},
}

// NewCosts creates the costs store.
func NewCosts(stmts *db.StmtCache) *Store[*models.Cost] {
	return New(stmts, CostSchema)
}
