package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/api"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// startCore initializes the core offline against a fake remote API.
func startCore(t *testing.T) {
	t.Helper()
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/"+api.EndpointNewJob) {
			w.Write([]byte(`{"status":1,"payload":{}}`))
			return
		}
		w.Write([]byte(`{"status":1,"payload":[]}`))
	}))
	t.Cleanup(remote.Close)

	arg, _ := json.Marshal(initRequest{DataDir: t.TempDir(), BaseURL: remote.URL})
	if err := initCore(string(arg)); err != nil {
		t.Fatalf("initCore failed: %v", err)
	}
	t.Cleanup(func() { closeCore() })
}

// TestNotInitialized verifies calls before Init fail cleanly.
func TestNotInitialized(t *testing.T) {
	if _, err := pendingCount(); err != errNotInitialized {
		t.Errorf("expected not initialized, got %v", err)
	}
	if err := setOnline(true); err != errNotInitialized {
		t.Errorf("expected not initialized, got %v", err)
	}
}

// TestInit_badArgument verifies malformed JSON is a validation error.
func TestInit_badArgument(t *testing.T) {
	if err := initCore("{"); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

// TestJobQueuedOffline verifies a job created offline is queued and a
// manual sync is refused until online.
func TestJobQueuedOffline(t *testing.T) {
	startCore(t)

	if err := login(`{"userid":7}`); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	out, err := createJob(`{"property_id":"p1","job_type":"2","task1":"Fix tap"}`)
	if err != nil {
		t.Fatalf("createJob failed: %v", err)
	}
	var res struct {
		Queued bool `json:"queued"`
	}
	json.Unmarshal([]byte(out), &res)
	if !res.Queued {
		t.Errorf("expected queued job, got %s", out)
	}

	if n, _ := pendingCount(); n != 1 {
		t.Fatalf("expected 1 pending, got %d", n)
	}
	if _, err := syncNow(); !apperrors.Is(err, apperrors.ErrOffline) {
		t.Errorf("expected OFFLINE, got %v", err)
	}

	if err := setOnline(true); err != nil {
		t.Fatalf("setOnline failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if n, _ := pendingCount(); n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queue did not drain after going online")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// TestUploadFiles_offline verifies files are stored while offline.
func TestUploadFiles_offline(t *testing.T) {
	startCore(t)

	path := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(path, []byte("jpeg"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	arg, _ := json.Marshal(map[string]interface{}{
		"batch": map[string]string{"job_id": "j1", "user_name": "field"},
		"files": []map[string]string{{"type": "image/jpeg", "path": path}},
	})
	out, err := uploadFiles(string(arg))
	if err != nil {
		t.Fatalf("uploadFiles failed: %v", err)
	}
	var res uploadResponse
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !res.Queued || res.Batch.ID == "" || res.Batch.TotalSegments != 1 {
		t.Errorf("unexpected response %s", out)
	}

	a, _ := current()
	segs, err := a.Segments.List(t.Context())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(segs) != 1 || segs[0].FileName != "photo.jpg" {
		t.Errorf("expected stored segment photo.jpg, got %v", segs)
	}
}

// TestUploadFiles_missingFile verifies unreadable paths are rejected.
func TestUploadFiles_missingFile(t *testing.T) {
	startCore(t)
	arg := `{"batch":{},"files":[{"path":"/nonexistent/file"}]}`
	if _, err := uploadFiles(arg); !apperrors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}
