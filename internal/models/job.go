package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
)

// MaxTasks is the number of task slots in the remote job schema.
const MaxTasks = 10

// JobStatus is the normalized lifecycle state of a job.
type JobStatus int

const (
	StatusPending JobStatus = iota
	StatusOpen
	StatusCompleted
	StatusClosed
)

var statusNames = map[JobStatus]string{
	StatusPending:   "pending",
	StatusOpen:      "open",
	StatusCompleted: "completed",
	StatusClosed:    "closed",
}

// String returns the status name.
func (s JobStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// ParseJobStatus accepts status names, numbers and numeric strings.
// Nil and the empty string map to StatusPending.
func ParseJobStatus(v interface{}) (JobStatus, error) {
	if v == nil {
		return StatusPending, nil
	}
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "", "pending":
			return StatusPending, nil
		case "open":
			return StatusOpen, nil
		case "completed", "complete":
			return StatusCompleted, nil
		case "closed":
			return StatusClosed, nil
		}
	}
	if f, ok := SafeNumber(v); ok {
		st := JobStatus(int(f))
		if float64(st) == f && st >= StatusPending && st <= StatusClosed {
			return st, nil
		}
	}
	return StatusPending, apperrors.New(apperrors.ErrValidation, fmt.Sprintf("unknown job status %v", v))
}

// MarshalJSON encodes the status as the remote API's digit string.
func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(s)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	st, err := ParseJobStatus(v)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// Task is one work item of a job.
type Task struct {
	Description string
	Status      string
	Cost        *float64
}

// IsEmpty reports whether the task slot holds nothing.
func (t Task) IsEmpty() bool {
	return t.Description == "" && t.Status == "" && t.Cost == nil
}

// TrimTasks drops the empty slots after the last filled one. Empty slots
// between filled ones are kept so Tasks[i] stays slot i+1.
func TrimTasks(tasks []Task) []Task {
	n := len(tasks)
	for n > 0 && tasks[n-1].IsEmpty() {
		n--
	}
	if n == 0 {
		return nil
	}
	return tasks[:n]
}

// Job is a work order. Tasks are kept as an ordered list and flattened to
// task1..task10 only at the storage and API boundary. Tasks[i] is slot i+1.
type Job struct {
	ID             string
	JobNum         string
	CommonID       string
	DateCreated    string
	PropertyID     string
	TenantID       string
	AssignToUserID string
	JobType        string
	Status         JobStatus
	InvoiceNo      string
	ImageFileCount *int64
	DocFileCount   *int64
	VideoFileCount *int64
	Tasks          []Task
}

// NewCommonID returns the idempotency token for a job created at t.
func NewCommonID(t time.Time) string {
	return "job" + t.Format("02012006150405")
}

// DateLayout is the remote API's date_created format.
const DateLayout = "2006-01-02 15:04:05"

// Validate checks the invariants every persisted job must satisfy.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return apperrors.New(apperrors.ErrValidation, "job id is required")
	}
	if len(j.Tasks) > MaxTasks {
		return apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("job has %d tasks, at most %d allowed", len(j.Tasks), MaxTasks))
	}
	return nil
}

// MarshalJSON writes the flat remote schema.
func (j Job) MarshalJSON() ([]byte, error) {
	if len(j.Tasks) > MaxTasks {
		return nil, apperrors.New(apperrors.ErrValidation, "too many tasks")
	}
	m := map[string]interface{}{
		"id":               j.ID,
		"job_num":          j.JobNum,
		"common_id":        j.CommonID,
		"date_created":     j.DateCreated,
		"property_id":      j.PropertyID,
		"tenant_id":        j.TenantID,
		"assignto_user_id": j.AssignToUserID,
		"job_type":         j.JobType,
		"status":           j.Status,
		"invoice_no":       j.InvoiceNo,
	}
	if j.ImageFileCount != nil {
		m["image_file_count"] = *j.ImageFileCount
	}
	if j.DocFileCount != nil {
		m["doc_file_count"] = *j.DocFileCount
	}
	if j.VideoFileCount != nil {
		m["video_file_count"] = *j.VideoFileCount
	}
	for i, t := range j.Tasks {
		n := i + 1
		m[fmt.Sprintf("task%d", n)] = t.Description
		m[fmt.Sprintf("task%d_status", n)] = t.Status
		if t.Cost != nil {
			m[fmt.Sprintf("task%d_cost", n)] = *t.Cost
		} else {
			m[fmt.Sprintf("task%d_cost", n)] = nil
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the flat remote schema, tolerating numbers encoded as
// strings and vice versa.
func (j *Job) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}

	status, err := ParseJobStatus(m["status"])
	if err != nil {
		logging.Warn("unknown job status, treating as pending", map[string]interface{}{
			"job_id": SafeString(m["id"]),
			"status": fmt.Sprint(m["status"]),
		})
	}

	*j = Job{
		ID:             SafeString(m["id"]),
		JobNum:         SafeString(m["job_num"]),
		CommonID:       SafeString(m["common_id"]),
		DateCreated:    SafeString(m["date_created"]),
		PropertyID:     SafeString(m["property_id"]),
		TenantID:       SafeString(m["tenant_id"]),
		AssignToUserID: SafeString(m["assignto_user_id"]),
		JobType:        SafeString(m["job_type"]),
		Status:         status,
		InvoiceNo:      SafeString(m["invoice_no"]),
		ImageFileCount: intPtr(m["image_file_count"]),
		DocFileCount:   intPtr(m["doc_file_count"]),
		VideoFileCount: intPtr(m["video_file_count"]),
	}

	tasks := make([]Task, MaxTasks)
	for n := 1; n <= MaxTasks; n++ {
		tasks[n-1] = Task{
			Description: SafeString(m[fmt.Sprintf("task%d", n)]),
			Status:      SafeString(m[fmt.Sprintf("task%d_status", n)]),
			Cost:        numberPtr(m[fmt.Sprintf("task%d_cost", n)]),
		}
	}
	j.Tasks = TrimTasks(tasks)
	return nil
}
