// Package queue keeps the list of jobs created offline that still need to
// reach the remote API. The list survives restarts in the key/value store.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/kvstore"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
)

// Item is one pending job.
type Item struct {
	JobID     string `json:"job_id"`
	UserID    string `json:"user_id"`
	CreatedAt int64  `json:"created_at"`

	// Synced is set once the remote API accepted the job. An item that is
	// synced but still queued only needs its local cleanup finished.
	Synced bool `json:"synced,omitempty"`

	Attempts  int    `json:"attempts,omitempty"`
	LastError string `json:"last_error,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

// Stats summarizes the queue.
type Stats struct {
	Total  int `json:"total"`
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Queue is the persisted pending-job list, oldest first.
type Queue struct {
	kv    *kvstore.Store
	key   string
	clock func() time.Time
	log   *logging.Logger
}

// New creates a queue stored under kvstore.KeyPendingJobs.
func New(kv *kvstore.Store) *Queue {
	return &Queue{
		kv:    kv,
		key:   kvstore.KeyPendingJobs,
		clock: time.Now,
		log:   logging.Component("queue"),
	}
}

func (q *Queue) now() int64 {
	return q.clock().UnixMilli()
}

func decode(raw json.RawMessage) ([]Item, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var items []Item
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "corrupt pending job list", err)
	}
	return items, nil
}

// encode returns nil for an empty list so the key is removed.
func encode(items []Item) interface{} {
	if len(items) == 0 {
		return nil
	}
	return items
}

// Enqueue appends a job. Enqueuing a job id that is already queued leaves
// the existing entry untouched and reports false.
func (q *Queue) Enqueue(jobID, userID string) (bool, error) {
	if jobID == "" {
		return false, apperrors.New(apperrors.ErrValidation, "job id is required")
	}

	added := false
	err := q.kv.Update(q.key, func(raw json.RawMessage) (interface{}, error) {
		items, err := decode(raw)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.JobID == jobID {
				return items, nil
			}
		}
		now := q.now()
		added = true
		return append(items, Item{JobID: jobID, UserID: userID, CreatedAt: now, UpdatedAt: now}), nil
	})
	if err != nil {
		return false, err
	}
	if added {
		q.log.Debug("job queued", map[string]interface{}{"job_id": jobID})
	}
	return added, nil
}

// List returns a copy of every queued item in insertion order.
func (q *Queue) List() ([]Item, error) {
	var items []Item
	if _, err := q.kv.Get(q.key, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// Get returns the item for jobID.
func (q *Queue) Get(jobID string) (*Item, error) {
	items, err := q.List()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].JobID == jobID {
			return &items[i], nil
		}
	}
	return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("job %s not queued", jobID))
}

// mutate applies fn to the item for jobID.
func (q *Queue) mutate(jobID string, fn func(*Item)) error {
	return q.kv.Update(q.key, func(raw json.RawMessage) (interface{}, error) {
		items, err := decode(raw)
		if err != nil {
			return nil, err
		}
		for i := range items {
			if items[i].JobID == jobID {
				fn(&items[i])
				items[i].UpdatedAt = q.now()
				return items, nil
			}
		}
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("job %s not queued", jobID))
	})
}

// MarkSynced records that the remote API accepted the job.
func (q *Queue) MarkSynced(jobID string) error {
	return q.mutate(jobID, func(it *Item) {
		it.Synced = true
		it.LastError = ""
	})
}

// Failed records a failed attempt. The item stays queued for the next run.
func (q *Queue) Failed(jobID string, cause error) error {
	return q.mutate(jobID, func(it *Item) {
		it.Attempts++
		if cause != nil {
			it.LastError = cause.Error()
		}
	})
}

// Remove drops the item for jobID. Removing an unknown id is not an error.
func (q *Queue) Remove(jobID string) error {
	return q.kv.Update(q.key, func(raw json.RawMessage) (interface{}, error) {
		items, err := decode(raw)
		if err != nil {
			return nil, err
		}
		kept := items[:0]
		for _, it := range items {
			if it.JobID != jobID {
				kept = append(kept, it)
			}
		}
		return encode(kept), nil
	})
}

// Size returns the number of queued items.
func (q *Queue) Size() (int, error) {
	items, err := q.List()
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

// Stats counts queued items by state.
func (q *Queue) Stats() (Stats, error) {
	items, err := q.List()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(items)}
	for _, it := range items {
		if it.Synced {
			st.Synced++
		}
		if it.Attempts > 0 && !it.Synced {
			st.Failed++
		}
	}
	return st, nil
}

// Clear removes every item.
func (q *Queue) Clear() error {
	if err := q.kv.Delete(q.key); err != nil {
		return err
	}
	q.log.Info("pending job list cleared")
	return nil
}
