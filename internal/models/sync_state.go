package models

// SyncStatus is the sync manager state.
type SyncStatus string

const (
	SyncIdle       SyncStatus = "idle"
	SyncSyncing    SyncStatus = "syncing"
	SyncInProgress SyncStatus = "in_progress"
	SyncComplete   SyncStatus = "complete"
	SyncError      SyncStatus = "error"
)

// SyncState is broadcast to sync listeners. It is never persisted.
type SyncState struct {
	Status      SyncStatus `json:"status"`
	Message     string     `json:"message,omitempty"`
	Progress    float64    `json:"progress,omitempty"`
	SyncedCount int        `json:"syncedCount"`
	FailedCount int        `json:"failedCount"`
}

// Terminal reports whether the state ends a sync run.
func (s SyncState) Terminal() bool {
	return s.Status == SyncComplete || s.Status == SyncError
}
