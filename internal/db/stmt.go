package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// StmtCache prepares statements on first use and reuses them afterwards.
// It is shared by the cache layer and the entity stores.
type StmtCache struct {
	db *sql.DB

	stmts sync.Map // map[string]*sql.Stmt
}

// NewStmtCache creates a statement cache over db.
func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{db: db}
}

// DB returns the underlying connection pool.
func (c *StmtCache) DB() *sql.DB {
	return c.db
}

// Prepare gets or creates a prepared statement keyed by its query text.
func (c *StmtCache) Prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := c.stmts.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	// If another goroutine already stored this query, close our duplicate
	actual, loaded := c.stmts.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Tx returns the cached statement bound to tx. Uncached queries are
// prepared on the transaction itself: the pool has a single connection and
// tx already holds it.
func (c *StmtCache) Tx(ctx context.Context, tx *sql.Tx, query string) (*sql.Stmt, error) {
	if stmt, ok := c.stmts.Load(query); ok {
		return tx.StmtContext(ctx, stmt.(*sql.Stmt)), nil
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	return stmt, nil
}

// Len returns the number of cached statements.
func (c *StmtCache) Len() int {
	n := 0
	c.stmts.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Close closes all cached prepared statements.
func (c *StmtCache) Close() error {
	var firstErr error
	c.stmts.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.stmts.Delete(key)
		return true
	})
	return firstErr
}
