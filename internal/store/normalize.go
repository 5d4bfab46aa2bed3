package store

import (
	"database/sql"
	"math"
)

// NullString stores empty strings as NULL.
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// NullStringPtr stores nil and empty strings as NULL.
func NullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return NullString(*s)
}

// NullFloat stores nil as NULL.
func NullFloat(f *float64) sql.NullFloat64 {
	if f == nil || math.IsNaN(*f) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// NullInt stores nil as NULL.
func NullInt(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

// StringPtr converts a nullable column back to *string.
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

// FloatPtr converts a nullable column back to *float64.
func FloatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

// RoundedIntPtr reads a numeric column with integer precision. Columns
// written by older clients may hold fractional values or numeric text.
func RoundedIntPtr(nf sql.NullFloat64) *int64 {
	if !nf.Valid {
		return nil
	}
	n := int64(math.Round(nf.Float64))
	return &n
}
