// Package uuid provides identifier generation and validation utilities.
package uuid

import (
	"regexp"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// BatchIDLength is the length of an upload batch token.
const BatchIDLength = 5

const batchAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// v4 with variant bits 8, 9, a or b.
var uuidV4Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

var batchIDRegex = regexp.MustCompile(`^[a-zA-Z0-9]{5}$`)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// NewBatchID generates the short alphanumeric token shared by all segments
// of one upload batch.
func NewBatchID() string {
	return gonanoid.MustGenerate(batchAlphabet, BatchIDLength)
}

// IsBatchID checks if a string looks like a batch token.
func IsBatchID(s string) bool {
	return batchIDRegex.MatchString(s)
}

// IsValid reports whether s is a dashed UUID v4.
func IsValid(s string) bool {
	return uuidV4Regex.MatchString(s)
}
