package models

import "encoding/json"

// CacheEntry is one row of the key/value cache. Value holds the unwrapped
// payload; the storage envelope is handled by the cache layer.
type CacheEntry struct {
	ID        int64           `json:"id"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt int64           `json:"created_at"` // epoch ms
	UpdatedAt int64           `json:"updated_at"` // epoch ms
	ExpiresAt int64           `json:"expires_at"` // epoch ms, 0 = never
}

// Expired reports whether the entry is past its expiry at nowMs.
func (e *CacheEntry) Expired(nowMs int64) bool {
	return e.ExpiresAt > 0 && nowMs > e.ExpiresAt
}

// Decode unmarshals the payload into v.
func (e *CacheEntry) Decode(v interface{}) error {
	return json.Unmarshal(e.Value, v)
}
