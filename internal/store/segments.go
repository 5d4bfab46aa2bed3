package store

import (
	"database/sql"

	"github.com/wahabsharif/premierspaces-app/backend/internal/db"
	"github.com/wahabsharif/premierspaces-app/backend/internal/models"
)

// SegmentSchema maps models.UploadSegment onto upload_segments. Its key is
// the composite "<id>:<segment_number>".
var SegmentSchema = Schema[*models.UploadSegment]{
	Table: "upload_segments",
	Columns: []string{
		"id", "segment_number", "total_segments", "main_category", "category_level_1",
		"property_id", "job_id", "file_name", "file_type", "file_size", "user_name",
		"content", "created_at",
	},
	KeyColumns: []string{"id", "segment_number"},
	OrderBy:    "created_at, id, segment_number",
	Key:        func(s *models.UploadSegment) string { return s.Key() },
	KeyArgs: func(key string) ([]interface{}, error) {
		id, n, err := models.ParseSegmentKey(key)
		if err != nil {
			return nil, err
		}
		return []interface{}{id, n}, nil
	},
	Values: func(s *models.UploadSegment) ([]interface{}, error) {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return []interface{}{
			s.ID, s.SegmentNumber, s.TotalSegments, NullString(s.MainCategory),
			NullString(s.CategoryLevel1), NullString(s.PropertyID), NullString(s.JobID),
			NullString(s.FileName), NullString(s.FileType), s.FileSize, NullString(s.UserName),
			s.Content, s.CreatedAt,
		}, nil
	},
	Scan: func(sc Scanner) (*models.UploadSegment, error) {
		var (
			s                                models.UploadSegment
			mainCat, cat1, propertyID, jobID sql.NullString
			fileName, fileType, userName     sql.NullString
			fileSize                         sql.NullInt64
		)
		err := sc.Scan(&s.ID, &s.SegmentNumber, &s.TotalSegments, &mainCat, &cat1, &propertyID,
			&jobID, &fileName, &fileType, &fileSize, &userName, &s.Content, &s.CreatedAt)
		if err != nil {
			return nil, err
		}
		s.MainCategory = mainCat.String
		s.CategoryLevel1 = cat1.String
		s.PropertyID = propertyID.String
		s.JobID = jobID.String
		s.FileName = fileName.String
		s.FileType = fileType.String
		s.FileSize = fileSize.Int64
		s.UserName = userName.String
		return &s, nil
	},
}

// NewSegments creates the upload segment store.
func NewSegments(stmts *db.StmtCache) *Store[*models.UploadSegment] {
	return New(stmts, SegmentSchema)
}
