package models

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/wahabsharif/premierspaces-app/backend/internal/errors"
)

// UploadSegment is one file of a multi-file upload batch. Segments of a batch
// share ID and differ by SegmentNumber (1-indexed).
type UploadSegment struct {
	ID             string `json:"id"`
	TotalSegments  int    `json:"total_segments"`
	SegmentNumber  int    `json:"segment_number"`
	MainCategory   string `json:"main_category"`
	CategoryLevel1 string `json:"category_level_1"`
	PropertyID     string `json:"property_id"`
	JobID          string `json:"job_id"`
	FileName       string `json:"file_name"`
	FileType       string `json:"file_type"`
	FileSize       int64  `json:"file_size"`
	UserName       string `json:"user_name"`
	Content        []byte `json:"-"`
	CreatedAt      int64  `json:"created_at"`
}

// Key returns the composite store key "<id>:<segment_number>".
func (s UploadSegment) Key() string {
	return SegmentKey(s.ID, s.SegmentNumber)
}

// SegmentKey builds a composite segment key.
func SegmentKey(id string, segment int) string {
	return fmt.Sprintf("%s:%d", id, segment)
}

// ParseSegmentKey splits a composite segment key.
func ParseSegmentKey(key string) (string, int, error) {
	i := strings.LastIndex(key, ":")
	if i <= 0 {
		return "", 0, apperrors.New(apperrors.ErrValidation, fmt.Sprintf("invalid segment key %q", key))
	}
	n, err := strconv.Atoi(key[i+1:])
	if err != nil || n < 1 {
		return "", 0, apperrors.New(apperrors.ErrValidation, fmt.Sprintf("invalid segment number in %q", key))
	}
	return key[:i], n, nil
}

// Validate checks batch position fields.
func (s *UploadSegment) Validate() error {
	if s.ID == "" {
		return apperrors.New(apperrors.ErrValidation, "segment id is required")
	}
	if s.SegmentNumber < 1 || s.SegmentNumber > s.TotalSegments {
		return apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("segment %d out of range 1..%d", s.SegmentNumber, s.TotalSegments))
	}
	return nil
}
