// Package models tests for data model definitions.
package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// =====================================================
// Coercion Tests
// =====================================================

// TestSafeNumber verifies numeric coercion at the boundary.
func TestSafeNumber(t *testing.T) {
	tests := []struct {
		name   string
		in     interface{}
		want   float64
		wantOK bool
	}{
		{"float", 12.5, 12.5, true},
		{"int", 3, 3, true},
		{"numeric string", "42", 42, true},
		{"padded string", " 7.25 ", 7.25, true},
		{"json number", json.Number("9"), 9, true},
		{"empty string", "", 0, false},
		{"word", "abc", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeNumber(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("SafeNumber(%v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestFlexString verifies ids decode from numbers and strings.
func TestFlexString(t *testing.T) {
	var v struct {
		A FlexString `json:"a"`
		B FlexString `json:"b"`
		C FlexString `json:"c"`
	}
	if err := json.Unmarshal([]byte(`{"a": 15, "b": "x1", "c": null}`), &v); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if v.A != "15" || v.B != "x1" || v.C != "" {
		t.Errorf("got %q %q %q", v.A, v.B, v.C)
	}
}

// =====================================================
// JobStatus Tests
// =====================================================

// TestParseJobStatus verifies every boundary encoding maps to one enum.
func TestParseJobStatus(t *testing.T) {
	tests := []struct {
		in      interface{}
		want    JobStatus
		wantErr bool
	}{
		{nil, StatusPending, false},
		{"", StatusPending, false},
		{"pending", StatusPending, false},
		{"Open", StatusOpen, false},
		{"1", StatusOpen, false},
		{float64(2), StatusCompleted, false},
		{"completed", StatusCompleted, false},
		{"3", StatusClosed, false},
		{3, StatusClosed, false},
		{"9", StatusPending, true},
		{1.5, StatusPending, true},
		{"archived", StatusPending, true},
	}

	for _, tt := range tests {
		got, err := ParseJobStatus(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseJobStatus(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err != nil && !apperrors.Is(err, apperrors.ErrValidation) {
			t.Errorf("ParseJobStatus(%v) error code = %s, want VALIDATION_ERROR", tt.in, apperrors.CodeOf(err))
		}
		if got != tt.want {
			t.Errorf("ParseJobStatus(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// TestJobStatus_JSON verifies statuses are written as digit strings.
func TestJobStatus_JSON(t *testing.T) {
	b, err := json.Marshal(StatusCompleted)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `"2"` {
		t.Errorf("Marshal(StatusCompleted) = %s, want \"2\"", b)
	}

	var s JobStatus
	if err := json.Unmarshal([]byte(`"closed"`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s != StatusClosed {
		t.Errorf("Unmarshal(closed) = %v", s)
	}
	if StatusOpen.String() != "open" {
		t.Errorf("String() = %q, want open", StatusOpen.String())
	}
}

// =====================================================
// Job Tests
// =====================================================

// TestNewCommonID verifies the job<DDMMYYYYHHMMSS> format.
func TestNewCommonID(t *testing.T) {
	ts := time.Date(2024, time.March, 7, 9, 5, 3, 0, time.UTC)
	if got := NewCommonID(ts); got != "job07032024090503" {
		t.Errorf("NewCommonID() = %q, want job07032024090503", got)
	}
}

// TestJob_UnmarshalJSON verifies the flat task schema becomes an ordered list.
func TestJob_UnmarshalJSON(t *testing.T) {
	raw := `{
		"id": 101, "job_num": "J-1", "common_id": "job01012024000000",
		"property_id": "55", "status": 1, "image_file_count": "3",
		"task1": "Fix sink", "task1_status": "done", "task1_cost": "12.50",
		"task2": "Paint wall", "task2_status": "", "task2_cost": null,
		"task3": "", "task3_status": "", "task3_cost": ""
	}`

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if job.ID != "101" {
		t.Errorf("ID = %q, want 101", job.ID)
	}
	if job.Status != StatusOpen {
		t.Errorf("Status = %v, want open", job.Status)
	}
	if job.ImageFileCount == nil || *job.ImageFileCount != 3 {
		t.Errorf("ImageFileCount = %v, want 3", job.ImageFileCount)
	}
	if len(job.Tasks) != 2 {
		t.Fatalf("len(Tasks) = %d, want 2", len(job.Tasks))
	}
	if job.Tasks[0].Description != "Fix sink" || job.Tasks[0].Cost == nil || *job.Tasks[0].Cost != 12.5 {
		t.Errorf("Tasks[0] = %+v", job.Tasks[0])
	}
	if job.Tasks[1].Cost != nil {
		t.Errorf("Tasks[1].Cost = %v, want nil", *job.Tasks[1].Cost)
	}
}

// TestJob_sparseTasks verifies an empty slot between filled ones keeps
// the later task in its own slot across a round trip.
func TestJob_sparseTasks(t *testing.T) {
	raw := `{"id": "5", "task1": "", "task2": "Paint", "task3": "Sand", "task3_cost": 9}`

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(job.Tasks) != 3 {
		t.Fatalf("len(Tasks) = %d, want 3", len(job.Tasks))
	}
	if !job.Tasks[0].IsEmpty() || job.Tasks[2].Description != "Sand" {
		t.Errorf("Tasks = %+v", job.Tasks)
	}

	b, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if m["task1"] != "" || m["task2"] != "Paint" || m["task3"] != "Sand" || m["task3_cost"] != 9.0 {
		t.Errorf("flattened = %v", m)
	}
	if _, ok := m["task4"]; ok {
		t.Error("task4 should not be written")
	}
}

// TestJob_unknownStatus verifies one bad status does not fail a job list.
func TestJob_unknownStatus(t *testing.T) {
	raw := `[{"id": "1", "status": "archived"}, {"id": "2", "status": "2"}]`

	var jobs []Job
	if err := json.Unmarshal([]byte(raw), &jobs); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].Status != StatusPending {
		t.Errorf("jobs[0].Status = %v, want pending", jobs[0].Status)
	}
	if jobs[1].Status != StatusCompleted {
		t.Errorf("jobs[1].Status = %v, want completed", jobs[1].Status)
	}
}

// TestTrimTasks verifies only trailing empty slots are dropped.
func TestTrimTasks(t *testing.T) {
	tasks := []Task{{}, {Description: "a"}, {}, {}}
	if got := TrimTasks(tasks); len(got) != 2 {
		t.Errorf("len(TrimTasks) = %d, want 2", len(got))
	}
	if got := TrimTasks(make([]Task, 3)); got != nil {
		t.Errorf("TrimTasks(all empty) = %v, want nil", got)
	}
}

// TestJob_MarshalJSON verifies tasks are flattened at the boundary.
func TestJob_MarshalJSON(t *testing.T) {
	cost := 40.0
	job := Job{
		ID:       "abc",
		CommonID: "job01012024000000",
		Status:   StatusPending,
		Tasks: []Task{
			{Description: "Replace lock", Status: "open", Cost: &cost},
			{Description: "Check boiler"},
		},
	}

	b, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(b, &m)

	if m["task1"] != "Replace lock" || m["task1_cost"] != 40.0 {
		t.Errorf("task1 fields = %v / %v", m["task1"], m["task1_cost"])
	}
	if m["task2"] != "Check boiler" || m["task2_cost"] != nil {
		t.Errorf("task2 fields = %v / %v", m["task2"], m["task2_cost"])
	}
	if _, ok := m["task3"]; ok {
		t.Error("task3 should not be written")
	}
	if m["status"] != "0" {
		t.Errorf("status = %v, want \"0\"", m["status"])
	}
	if strings.Contains(string(b), "_syncData") {
		t.Error("sync metadata must never reach the wire")
	}
}

// TestJob_Validate verifies id and task limits.
func TestJob_Validate(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{"valid", Job{ID: "a", Tasks: make([]Task, MaxTasks)}, false},
		{"missing id", Job{}, true},
		{"blank id", Job{ID: "  "}, true},
		{"too many tasks", Job{ID: "a", Tasks: make([]Task, MaxTasks+1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.job.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := json.Marshal(Job{ID: "a", Tasks: make([]Task, MaxTasks+1)}); err == nil {
		t.Error("Marshal() with too many tasks should fail")
	}
}

// =====================================================
// Cost Tests
// =====================================================

// TestCost_JSON verifies loose remote encodings decode.
func TestCost_JSON(t *testing.T) {
	var c Cost
	raw := `{"id": 7, "job_id": "12", "name": "Paint", "amount": "19.99", "contractor_id": null, "material_cost": "4.6"}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if c.ID != "7" || c.Amount != 19.99 || c.ContractorID != nil {
		t.Errorf("decoded cost = %+v", c)
	}
	if c.MaterialCost == nil || *c.MaterialCost != 5 {
		t.Errorf("MaterialCost = %v, want rounded 5", c.MaterialCost)
	}

	if err := (&Cost{Name: "x"}).Validate(); err == nil {
		t.Error("Validate() without job reference should fail")
	}
	if err := (&Cost{CommonID: "job1"}).Validate(); err != nil {
		t.Errorf("Validate() with common_id error = %v", err)
	}
}

// =====================================================
// UploadSegment Tests
// =====================================================

// TestSegmentKey verifies composite key round trip.
func TestSegmentKey(t *testing.T) {
	seg := UploadSegment{ID: "aB3xZ", SegmentNumber: 2, TotalSegments: 3}
	if seg.Key() != "aB3xZ:2" {
		t.Errorf("Key() = %q", seg.Key())
	}

	id, n, err := ParseSegmentKey(seg.Key())
	if err != nil || id != "aB3xZ" || n != 2 {
		t.Errorf("ParseSegmentKey() = %q, %d, %v", id, n, err)
	}

	for _, bad := range []string{"", "abc", ":1", "abc:0", "abc:x"} {
		if _, _, err := ParseSegmentKey(bad); err == nil {
			t.Errorf("ParseSegmentKey(%q) should fail", bad)
		}
	}
}

// TestUploadSegment_Validate verifies batch position bounds.
func TestUploadSegment_Validate(t *testing.T) {
	if err := (&UploadSegment{ID: "a", SegmentNumber: 1, TotalSegments: 1}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := (&UploadSegment{ID: "a", SegmentNumber: 2, TotalSegments: 1}).Validate(); err == nil {
		t.Error("Validate() with segment beyond total should fail")
	}
}

// =====================================================
// CacheEntry / Session Tests
// =====================================================

// TestCacheEntry_Expired verifies expiry boundaries.
func TestCacheEntry_Expired(t *testing.T) {
	tests := []struct {
		expiresAt int64
		now       int64
		want      bool
	}{
		{0, 1 << 50, false},
		{100, 99, false},
		{100, 100, false},
		{100, 101, true},
	}
	for _, tt := range tests {
		e := CacheEntry{ExpiresAt: tt.expiresAt}
		if got := e.Expired(tt.now); got != tt.want {
			t.Errorf("Expired(exp=%d, now=%d) = %v, want %v", tt.expiresAt, tt.now, got, tt.want)
		}
	}
}

// TestSession_Valid verifies user id requirement.
func TestSession_Valid(t *testing.T) {
	var nilSession *Session
	if nilSession.Valid() {
		t.Error("nil session should be invalid")
	}
	var s Session
	if err := json.Unmarshal([]byte(`{"userid": 42}`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !s.Valid() || s.UserID != "42" {
		t.Errorf("session = %+v", s)
	}
}

// TestSyncState_Terminal verifies terminal statuses.
func TestSyncState_Terminal(t *testing.T) {
	if (SyncState{Status: SyncInProgress}).Terminal() {
		t.Error("in_progress is not terminal")
	}
	if !(SyncState{Status: SyncError}).Terminal() {
		t.Error("error is terminal")
	}
}
