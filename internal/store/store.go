// Package store provides durable table-per-entity storage for jobs, costs
// and upload segments. Tables are independent; no cross-table constraint is
// enforced.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/wahabsharif/premierspaces-app/backend/internal/db"
	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// ErrNotFound is returned when no row matches a key.
var ErrNotFound = apperrors.New(apperrors.ErrNotFound, "record not found")

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Schema describes how T maps onto a fixed column list.
type Schema[T any] struct {
	Table string
	// Columns lists every column, key columns included, in the order
	// Values returns them and Scan reads them.
	Columns    []string
	KeyColumns []string
	OrderBy    string

	Values  func(T) ([]interface{}, error)
	Scan    func(Scanner) (T, error)
	Key     func(T) string
	KeyArgs func(key string) ([]interface{}, error)
}

// Store provides CRUD operations for one entity table.
type Store[T any] struct {
	stmts  *db.StmtCache
	schema Schema[T]

	keyIdx   map[int]bool
	columns  map[string]bool
	insertQ  string
	selectQ  string
	getQ     string
	updateQ  string
	deleteQ  string
	countQ   string
	keyWhere string
}

// New creates a store for schema.
func New[T any](stmts *db.StmtCache, schema Schema[T]) *Store[T] {
	s := &Store[T]{
		stmts:   stmts,
		schema:  schema,
		keyIdx:  make(map[int]bool),
		columns: make(map[string]bool),
	}

	keys := make(map[string]bool, len(schema.KeyColumns))
	for _, k := range schema.KeyColumns {
		keys[k] = true
	}

	var sets, conds []string
	for i, c := range schema.Columns {
		s.columns[c] = true
		if keys[c] {
			s.keyIdx[i] = true
		} else {
			sets = append(sets, c+" = ?")
		}
	}
	for _, k := range schema.KeyColumns {
		conds = append(conds, k+" = ?")
	}

	cols := strings.Join(schema.Columns, ", ")
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(schema.Columns)), ", ")
	order := ""
	if schema.OrderBy != "" {
		order = " ORDER BY " + schema.OrderBy
	}

	s.keyWhere = strings.Join(conds, " AND ")
	s.insertQ = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", schema.Table, cols, placeholders)
	s.selectQ = fmt.Sprintf("SELECT %s FROM %s", cols, schema.Table)
	s.getQ = fmt.Sprintf("%s WHERE %s", s.selectQ, s.keyWhere)
	s.updateQ = fmt.Sprintf("UPDATE %s SET %s WHERE %s", schema.Table, strings.Join(sets, ", "), s.keyWhere)
	s.deleteQ = fmt.Sprintf("DELETE FROM %s WHERE %s", schema.Table, s.keyWhere)
	s.countQ = fmt.Sprintf("SELECT COUNT(*) FROM %s", schema.Table)
	s.selectQ += order
	return s
}

// Table returns the backing table name.
func (s *Store[T]) Table() string {
	return s.schema.Table
}

func (s *Store[T]) storageErr(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrStorage, fmt.Sprintf("%s %s failed", s.schema.Table, op), err)
}

// Create inserts a full row and returns its key.
func (s *Store[T]) Create(ctx context.Context, v T) (string, error) {
	values, err := s.schema.Values(v)
	if err != nil {
		return "", err
	}

	stmt, err := s.stmts.Prepare(ctx, s.insertQ)
	if err != nil {
		return "", s.storageErr("insert", err)
	}
	if _, err := stmt.ExecContext(ctx, values...); err != nil {
		return "", s.storageErr("insert", err)
	}
	return s.schema.Key(v), nil
}

// Get returns the row stored under key or ErrNotFound.
func (s *Store[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T

	args, err := s.schema.KeyArgs(key)
	if err != nil {
		return zero, err
	}
	stmt, err := s.stmts.Prepare(ctx, s.getQ)
	if err != nil {
		return zero, s.storageErr("get", err)
	}

	v, err := s.schema.Scan(stmt.QueryRowContext(ctx, args...))
	if stderrors.Is(err, sql.ErrNoRows) {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, s.storageErr("get", err)
	}
	return v, nil
}

// List returns every row.
func (s *Store[T]) List(ctx context.Context) ([]T, error) {
	stmt, err := s.stmts.Prepare(ctx, s.selectQ)
	if err != nil {
		return nil, s.storageErr("list", err)
	}
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, s.storageErr("list", err)
	}
	return s.collect(rows)
}

// Where returns rows whose column equals value. column must be one of the
// schema's columns.
func (s *Store[T]) Where(ctx context.Context, column string, value interface{}) ([]T, error) {
	if !s.columns[column] {
		return nil, apperrors.New(apperrors.ErrValidation, fmt.Sprintf("unknown column %q for %s", column, s.schema.Table))
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", strings.Join(s.schema.Columns, ", "), s.schema.Table, column)
	if s.schema.OrderBy != "" {
		q += " ORDER BY " + s.schema.OrderBy
	}
	stmt, err := s.stmts.Prepare(ctx, q)
	if err != nil {
		return nil, s.storageErr("query", err)
	}
	rows, err := stmt.QueryContext(ctx, value)
	if err != nil {
		return nil, s.storageErr("query", err)
	}
	return s.collect(rows)
}

func (s *Store[T]) collect(rows *sql.Rows) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := s.schema.Scan(rows)
		if err != nil {
			return nil, s.storageErr("scan", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storageErr("scan", err)
	}
	return out, nil
}

// Update replaces the full row keyed by v's key and returns the number of
// affected rows.
func (s *Store[T]) Update(ctx context.Context, v T) (int64, error) {
	values, err := s.schema.Values(v)
	if err != nil {
		return 0, err
	}

	var sets, keys []interface{}
	for i, val := range values {
		if s.keyIdx[i] {
			keys = append(keys, val)
		} else {
			sets = append(sets, val)
		}
	}

	stmt, err := s.stmts.Prepare(ctx, s.updateQ)
	if err != nil {
		return 0, s.storageErr("update", err)
	}
	res, err := stmt.ExecContext(ctx, append(sets, keys...)...)
	if err != nil {
		return 0, s.storageErr("update", err)
	}
	return res.RowsAffected()
}

// Delete removes the row stored under key and returns the number of
// affected rows.
func (s *Store[T]) Delete(ctx context.Context, key string) (int64, error) {
	args, err := s.schema.KeyArgs(key)
	if err != nil {
		return 0, err
	}
	stmt, err := s.stmts.Prepare(ctx, s.deleteQ)
	if err != nil {
		return 0, s.storageErr("delete", err)
	}
	res, err := stmt.ExecContext(ctx, args...)
	if err != nil {
		return 0, s.storageErr("delete", err)
	}
	return res.RowsAffected()
}

// Count returns the number of rows.
func (s *Store[T]) Count(ctx context.Context) (int, error) {
	stmt, err := s.stmts.Prepare(ctx, s.countQ)
	if err != nil {
		return 0, s.storageErr("count", err)
	}
	var n int
	if err := stmt.QueryRowContext(ctx).Scan(&n); err != nil {
		return 0, s.storageErr("count", err)
	}
	return n, nil
}

func singleKey(key string) ([]interface{}, error) {
	if key == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "empty key")
	}
	return []interface{}{key}, nil
}
