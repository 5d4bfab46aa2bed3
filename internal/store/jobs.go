package store

import (
	"database/sql"
	"fmt"

	"github.com/wahabsharif/premierspaces-app/backend/internal/db"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

var jobColumns = func() []string {
	cols := []string{
		"id", "job_num", "common_id", "date_created", "property_id", "tenant_id",
		"assignto_user_id", "job_type", "status", "invoice_no",
		"image_file_count", "doc_file_count", "video_file_count",
	}
	for n := 1; n <= models.MaxTasks; n++ {
		cols = append(cols, fmt.Sprintf("task%d", n), fmt.Sprintf("task%d_status", n), fmt.Sprintf("task%d_cost", n))
	}
	return cols
}()

// JobSchema maps models.Job onto the jobs table. Tasks are flattened into
// the fixed task slots here and nowhere else.
var JobSchema = Schema[*models.Job]{
	Table:      "jobs",
	Columns:    jobColumns,
	KeyColumns: []string{"id"},
	OrderBy:    "rowid",
	Key:        func(j *models.Job) string { return j.ID },
	KeyArgs:    singleKey,
	Values: func(j *models.Job) ([]interface{}, error) {
		if err := j.Validate(); err != nil {
			return nil, err
		}
		vals := []interface{}{
			j.ID, NullString(j.JobNum), NullString(j.CommonID), NullString(j.DateCreated),
			NullString(j.PropertyID), NullString(j.TenantID), NullString(j.AssignToUserID),
			NullString(j.JobType), int(j.Status), NullString(j.InvoiceNo),
			NullInt(j.ImageFileCount), NullInt(j.DocFileCount), NullInt(j.VideoFileCount),
		}
		for i := 0; i < models.MaxTasks; i++ {
			if i < len(j.Tasks) {
				t := j.Tasks[i]
				vals = append(vals, NullString(t.Description), NullString(t.Status), NullFloat(t.Cost))
			} else {
				vals = append(vals, nil, nil, nil)
			}
		}
		return vals, nil
	},
	Scan: func(sc Scanner) (*models.Job, error) {
		var (
			j                                models.Job
			jobNum, commonID, dateCreated    sql.NullString
			propertyID, tenantID, assignTo   sql.NullString
			jobType, invoiceNo               sql.NullString
			status                           interface{}
			imageCount, docCount, videoCount sql.NullFloat64
			taskDesc, taskStatus             [models.MaxTasks]sql.NullString
			taskCost                         [models.MaxTasks]sql.NullFloat64
		)
		dest := []interface{}{
			&j.ID, &jobNum, &commonID, &dateCreated, &propertyID, &tenantID,
			&assignTo, &jobType, &status, &invoiceNo,
			&imageCount, &docCount, &videoCount,
		}
		for i := 0; i < models.MaxTasks; i++ {
			dest = append(dest, &taskDesc[i], &taskStatus[i], &taskCost[i])
		}
		if err := sc.Scan(dest...); err != nil {
			return nil, err
		}

		st, err := models.ParseJobStatus(status)
		if err != nil {
			return nil, err
		}

		j.JobNum = jobNum.String
		j.CommonID = commonID.String
		j.DateCreated = dateCreated.String
		j.PropertyID = propertyID.String
		j.TenantID = tenantID.String
		j.AssignToUserID = assignTo.String
		j.JobType = jobType.String
		j.Status = st
		j.InvoiceNo = invoiceNo.String
		j.ImageFileCount = RoundedIntPtr(imageCount)
		j.DocFileCount = RoundedIntPtr(docCount)
		j.VideoFileCount = RoundedIntPtr(videoCount)

		tasks := make([]models.Task, models.MaxTasks)
		for i := range tasks {
			tasks[i] = models.Task{
				Description: taskDesc[i].String,
				Status:      taskStatus[i].String,
				Cost:        FloatPtr(taskCost[i]),
			}
		}
		j.Tasks = models.TrimTasks(tasks)
		return &j, nil
	},
}

// NewJobs creates the jobs store.
func NewJobs(stmts *db.StmtCache) *Store[*models.Job] {
	return New(stmts, JobSchema)
}
