package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
	syncpkg "github.com/wahabsharif/premierspaces-app/backend/internal/sync"
	"github.com/wahabsharif/premierspaces-app/backend/internal/sync/queue"
	"github.com/wahabsharif/premierspaces-app/backend/internal/sync/scheduler"
)

// SyncState exposes the sync manager's current state.
type SyncState interface {
	State() models.SyncState
	LastSync() (time.Time, syncpkg.Result)
}

// SyncRunner runs manual passes and reports scheduler status.
type SyncRunner interface {
	SyncNow(ctx context.Context) (syncpkg.Result, error)
	GetStatus() scheduler.SchedulerStatus
}

// PendingLister lists the offline queue.
type PendingLister interface {
	List() ([]queue.Item, error)
}

// OnlineSetter records connectivity reported by the UI shell.
type OnlineSetter interface {
	SetOnline(online bool)
	Online() bool
}

// SyncHandler handles sync status and operations.
type SyncHandler struct {
	state   SyncState
	runner  SyncRunner
	pending PendingLister
	conn    OnlineSetter
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(state SyncState, runner SyncRunner, pending PendingLister, conn OnlineSetter) *SyncHandler {
	return &SyncHandler{state: state, runner: runner, pending: pending, conn: conn}
}

type statusResponse struct {
	State      models.SyncState          `json:"state"`
	Scheduler  scheduler.SchedulerStatus `json:"scheduler"`
	LastSync   *time.Time                `json:"last_sync,omitempty"`
	LastResult *syncpkg.Result           `json:"last_result,omitempty"`
}

// Status handles GET /sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:     h.state.State(),
		Scheduler: h.runner.GetStatus(),
	}
	if at, res := h.state.LastSync(); !at.IsZero() {
		resp.LastSync = &at
		resp.LastResult = &res
	}
	writeJSON(w, http.StatusOK, resp)
}

// Trigger handles POST /sync
// It runs a manual pass and returns its result. A pass already running
// yields 409, no connection 503.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pending handles GET /sync/pending
func (h *SyncHandler) Pending(w http.ResponseWriter, r *http.Request) {
	items, err := h.pending.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

// SetConnectivity handles POST /connectivity
// The UI shell reports the platform's network state here.
func (h *SyncHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Online *bool `json:"online"`
	}
	if !decode(w, r, &request) {
		return
	}
	if request.Online == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "VALIDATION_ERROR", Message: "online is required"})
		return
	}
	h.conn.SetOnline(*request.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": h.conn.Online()})
}
