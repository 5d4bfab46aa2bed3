// Package cache provides the persistent key/value cache with TTL expiry used
// for read-mostly reference data. Rows live in the cache_entries table; a
// small in-memory LRU sits in front of it for hot keys.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wahabsharif/premierspaces-app/backend/internal/db"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
	"github.com/wahabsharif/premierspaces-app/backend/internal/logging"
	"github.com/wahabsharif/premierspaces-app/backend/internal/metrics"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// Defaults
const (
	DefaultTTL        = 24 * time.Hour
	DefaultChunkSize  = 50
	DefaultMemorySize = 256
	DefaultMemoryTTL  = 5 * time.Minute
)

// Notifier receives storage failures before they are returned to the caller.
type Notifier interface {
	NotifyStorageError(op string, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(op string, err error)

// NotifyStorageError implements Notifier.
func (f NotifierFunc) NotifyStorageError(op string, err error) {
	f(op, err)
}

// Options configures a Cache.
type Options struct {
	DefaultTTL time.Duration
	ChunkSize  int
	MemorySize int
	MemoryTTL  time.Duration
	Clock      func() time.Time
	Notifier   Notifier
}

// Cache is the TTL key/value cache.
type Cache struct {
	db    *db.DB
	stmts *db.StmtCache
	opts  Options
	mem   *expirable.LRU[string, *models.CacheEntry]
	log   *logging.Logger
}

// Entry is one item of a batch write.
type Entry struct {
	Key   string
	Value interface{}
}

// envelope is the stored shape of every payload.
type envelope struct {
	Value json.RawMessage `json:"value"`
}

// New creates a cache over database. Zero option fields take defaults.
func New(database *db.DB, stmts *db.StmtCache, opts Options) *Cache {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MemorySize <= 0 {
		opts.MemorySize = DefaultMemorySize
	}
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = DefaultMemoryTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Cache{
		db:    database,
		stmts: stmts,
		opts:  opts,
		mem:   expirable.NewLRU[string, *models.CacheEntry](opts.MemorySize, nil, opts.MemoryTTL),
		log:   logging.Component("cache"),
	}
}

func (c *Cache) nowMs() int64 {
	return c.opts.Clock().UnixMilli()
}

// fail logs and notifies a storage failure and returns it as STORAGE_ERROR.
func (c *Cache) fail(op string, err error) error {
	metrics.CacheOperations.WithLabelValues(op, "error").Inc()
	c.log.ErrorWithCode("cache operation failed", string(apperrors.ErrStorage), err, map[string]interface{}{"op": op})
	if c.opts.Notifier != nil {
		c.opts.Notifier.NotifyStorageError(op, err)
	}
	return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("cache %s failed", op), err)
}

func (c *Cache) ok(op string) {
	metrics.CacheOperations.WithLabelValues(op, "ok").Inc()
}

// =====================================================
// Writes
// =====================================================

const upsertQuery = `
	INSERT INTO cache_entries (key, value, created_at, updated_at, expires_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at,
		expires_at = excluded.expires_at
	RETURNING id`

func encode(v interface{}) (string, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrValidation, "cache value is not JSON serializable", err)
	}
	out, err := json.Marshal(envelope{Value: inner})
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrValidation, "cache value is not JSON serializable", err)
	}
	return string(out), nil
}

// Set upserts value under key and returns the row id. Updating an existing
// key keeps its created_at.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, opts ...SetOption) (int64, error) {
	if key == "" {
		return 0, apperrors.New(apperrors.ErrValidation, "cache key is required")
	}
	payload, err := encode(value)
	if err != nil {
		return 0, err
	}

	now := c.nowMs()
	expiresAt := c.expiry(now, opts)

	if _, err := c.stmts.Prepare(ctx, upsertQuery); err != nil {
		return 0, c.fail("set", err)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, c.fail("set", err)
	}
	defer tx.Rollback()

	stmt, err := c.stmts.Tx(ctx, tx, upsertQuery)
	if err != nil {
		return 0, c.fail("set", err)
	}
	var id int64
	if err := stmt.QueryRowContext(ctx, key, payload, now, now, expiresAt).Scan(&id); err != nil {
		return 0, c.fail("set", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, c.fail("set", err)
	}

	c.mem.Remove(key)
	c.ok("set")
	return id, nil
}

// SetBatch upserts all entries in one transaction, processed in chunks. If
// any entry fails nothing from the call is persisted.
func (c *Cache) SetBatch(ctx context.Context, entries []Entry, opts ...SetOption) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	now := c.nowMs()
	expiresAt := c.expiry(now, opts)

	if _, err := c.stmts.Prepare(ctx, upsertQuery); err != nil {
		return 0, c.fail("set_batch", err)
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, c.fail("set_batch", err)
	}
	defer tx.Rollback()

	stmt, err := c.stmts.Tx(ctx, tx, upsertQuery)
	if err != nil {
		return 0, c.fail("set_batch", err)
	}

	count := 0
	for start := 0; start < len(entries); start += c.opts.ChunkSize {
		end := start + c.opts.ChunkSize
		if end > len(entries) {
			end = len(entries)
		}
		for _, e := range entries[start:end] {
			if e.Key == "" {
				return 0, apperrors.New(apperrors.ErrValidation, fmt.Sprintf("batch entry %d has no key", count))
			}
			payload, err := encode(e.Value)
			if err != nil {
				return 0, apperrors.Wrap(apperrors.ErrValidation, fmt.Sprintf("batch entry %q", e.Key), err)
			}
			var id int64
			if err := stmt.QueryRowContext(ctx, e.Key, payload, now, now, expiresAt).Scan(&id); err != nil {
				return 0, c.fail("set_batch", err)
			}
			count++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, c.fail("set_batch", err)
	}

	for _, e := range entries {
		c.mem.Remove(e.Key)
	}
	c.ok("set_batch")
	return count, nil
}

// =====================================================
// Reads
// =====================================================

const selectColumns = `SELECT id, key, value, created_at, updated_at, expires_at FROM cache_entries`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (*models.CacheEntry, error) {
	var e models.CacheEntry
	var raw string
	if err := s.Scan(&e.ID, &e.Key, &raw, &e.CreatedAt, &e.UpdatedAt, &e.ExpiresAt); err != nil {
		return nil, err
	}
	value, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	e.Value = value
	return &e, nil
}

// unwrap extracts the payload from the stored envelope. Rows written by
// older clients used a "payload" key instead of "value".
func unwrap(raw string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("corrupt cache envelope: %w", err)
	}
	if v, ok := fields["value"]; ok {
		return v, nil
	}
	if v, ok := fields["payload"]; ok {
		return v, nil
	}
	return json.RawMessage("null"), nil
}

// Get returns the entry for key, or nil when it is missing or expired.
func (c *Cache) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	now := c.nowMs()

	if e, ok := c.mem.Get(key); ok {
		if !e.Expired(now) {
			metrics.CacheLookups.WithLabelValues("memory_hit").Inc()
			return copyEntry(e), nil
		}
		c.mem.Remove(key)
	}

	stmt, err := c.stmts.Prepare(ctx, selectColumns+` WHERE key = ?`)
	if err != nil {
		return nil, c.fail("get", err)
	}
	e, err := scanEntry(stmt.QueryRowContext(ctx, key))
	if stderrors.Is(err, sql.ErrNoRows) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, c.fail("get", err)
	}
	if e.Expired(now) {
		metrics.CacheLookups.WithLabelValues("expired").Inc()
		return nil, nil
	}

	metrics.CacheLookups.WithLabelValues("db_hit").Inc()
	c.mem.Add(key, e)
	return copyEntry(e), nil
}

func copyEntry(e *models.CacheEntry) *models.CacheEntry {
	cp := *e
	cp.Value = append(json.RawMessage(nil), e.Value...)
	return &cp
}

// GetAll returns every non-expired entry.
func (c *Cache) GetAll(ctx context.Context) ([]*models.CacheEntry, error) {
	return c.query(ctx, "get_all",
		selectColumns+` WHERE expires_at = 0 OR expires_at >= ? ORDER BY key`, c.nowMs())
}

// GetByPrefix returns non-expired entries whose key starts with prefix.
func (c *Cache) GetByPrefix(ctx context.Context, prefix string) ([]*models.CacheEntry, error) {
	return c.query(ctx, "get_by_prefix",
		selectColumns+` WHERE substr(key, 1, length(?)) = ? AND (expires_at = 0 OR expires_at >= ?) ORDER BY key`,
		prefix, prefix, c.nowMs())
}

func (c *Cache) query(ctx context.Context, op, q string, args ...interface{}) ([]*models.CacheEntry, error) {
	stmt, err := c.stmts.Prepare(ctx, q)
	if err != nil {
		return nil, c.fail(op, err)
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, c.fail(op, err)
	}
	defer rows.Close()

	var out []*models.CacheEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, c.fail(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail(op, err)
	}
	return out, nil
}

// Keys returns every stored key starting with prefix, expired ones included.
func (c *Cache) Keys(ctx context.Context, prefix string) ([]string, error) {
	stmt, err := c.stmts.Prepare(ctx, `SELECT key FROM cache_entries WHERE substr(key, 1, length(?)) = ? ORDER BY key`)
	if err != nil {
		return nil, c.fail("keys", err)
	}
	rows, err := stmt.QueryContext(ctx, prefix, prefix)
	if err != nil {
		return nil, c.fail("keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, c.fail("keys", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail("keys", err)
	}
	return keys, nil
}

// =====================================================
// Deletes
// =====================================================

// Delete removes key and returns the number of rows removed.
func (c *Cache) Delete(ctx context.Context, key string) (int64, error) {
	stmt, err := c.stmts.Prepare(ctx, `DELETE FROM cache_entries WHERE key = ?`)
	if err != nil {
		return 0, c.fail("delete", err)
	}
	res, err := stmt.ExecContext(ctx, key)
	if err != nil {
		return 0, c.fail("delete", err)
	}
	c.mem.Remove(key)
	c.ok("delete")
	return res.RowsAffected()
}

// DeleteBatch removes keys in one transaction and returns the number of
// rows removed.
func (c *Cache) DeleteBatch(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, c.fail("delete_batch", err)
	}
	defer tx.Rollback()

	var total int64
	for start := 0; start < len(keys); start += c.opts.ChunkSize {
		end := start + c.opts.ChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		args := make([]interface{}, len(chunk))
		for i, k := range chunk {
			args[i] = k
		}
		q := `DELETE FROM cache_entries WHERE key IN (` +
			strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ") + `)`
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, c.fail("delete_batch", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, c.fail("delete_batch", err)
	}
	for _, k := range keys {
		c.mem.Remove(k)
	}
	c.ok("delete_batch")
	return total, nil
}

// DeleteByPrefix resolves every key starting with prefix and deletes them
// as a batch.
func (c *Cache) DeleteByPrefix(ctx context.Context, prefix string) (int64, error) {
	keys, err := c.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return c.DeleteBatch(ctx, keys)
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return c.fail("clear", err)
	}
	c.mem.Purge()
	c.ok("clear")
	return nil
}

// CleanExpired deletes rows with 0 < expires_at < now and returns how many
// were removed. It is a no-op while the database is not ready, so it is safe
// to call from a timer during startup or shutdown.
func (c *Cache) CleanExpired(ctx context.Context) (int64, error) {
	if !c.db.Ready(ctx) {
		return 0, nil
	}

	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at < ?`, c.nowMs())
	if err != nil {
		return 0, c.fail("clean_expired", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		c.mem.Purge()
		metrics.CacheExpired.Add(float64(n))
		c.log.Debug("expired cache entries removed", map[string]interface{}{"count": n})
	}
	c.ok("clean_expired")
	return n, nil
}
