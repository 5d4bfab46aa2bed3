package models

// JobType is a remote job classification.
type JobType struct {
	ID   FlexString `json:"id"`
	Name string     `json:"job_type"`
}

// SubCategory is a second-level upload category.
type SubCategory struct {
	ID   FlexString `json:"id"`
	Name string     `json:"sub_category"`
}

// Category is a top-level upload category.
type Category struct {
	ID            FlexString    `json:"id"`
	Name          string        `json:"category"`
	SubCategories []SubCategory `json:"sub_categories,omitempty"`
}

// FileRecord describes an uploaded file known to the server.
type FileRecord struct {
	ID             FlexString `json:"id"`
	FileName       string     `json:"file_name"`
	FileType       string     `json:"file_type,omitempty"`
	JobID          FlexString `json:"job_id,omitempty"`
	PropertyID     FlexString `json:"property_id,omitempty"`
	MainCategory   FlexString `json:"main_category,omitempty"`
	CategoryLevel1 FlexString `json:"category_level_1,omitempty"`
	Path           string     `json:"path,omitempty"`
}

// Contractor is an external party costs can be attributed to.
type Contractor struct {
	ID   FlexString `json:"id"`
	Name string     `json:"name"`
}

// Property is a managed address jobs belong to.
type Property struct {
	ID       FlexString `json:"id"`
	Address  string     `json:"address"`
	Postcode string     `json:"postcode,omitempty"`
}
