package model

import "time"

// UploadStatus is the state of one file's upload attempt.
type UploadStatus string

// Upload status constants.
const (
	UploadUploading UploadStatus = "uploading"
	UploadSuccess   UploadStatus = "success"
	UploadError     UploadStatus = "error"
)

// UploadRequest is the fully formed multipart upload payload for one file.
type UploadRequest struct {
	FreshnessDate        *time.Time
	UniverseID           *int
	CategoryID           *int
	ProductID            *int
	File                 File
	MaterialType         MaterialType
	Audience             Audience
	UniverseName         string
	CategoryName         string
	ProductName          string
	OtherTypeDescription string
	ReplaceExisting      bool
}

// WithReplace returns a copy of the request with the replace flag set.
func (r UploadRequest) WithReplace() UploadRequest {
	r.ReplaceExisting = true
	return r
}

// NewUploadRequest builds the upload payload for a file from its suggestion.
func NewUploadRequest(file File, s FileSuggestion) UploadRequest {
	req := UploadRequest{
		File:         file,
		MaterialType: s.MaterialType,
		Audience:     s.Audience,
		UniverseID:   s.UniverseID,
		CategoryID:   s.CategoryID,
		ProductID:    s.ProductID,
		UniverseName: s.UniverseName,
		CategoryName: s.CategoryName,
		ProductName:  s.ProductName,
	}
	if s.MaterialType == MaterialOther {
		req.OtherTypeDescription = s.OtherTypeDescription
	}
	return req
}

// UploadProgressEntry tracks one file's upload attempt.
type UploadProgressEntry struct {
	Filename string       `json:"filename"`
	Status   UploadStatus `json:"status"`
	Error    string       `json:"error,omitempty"`
	Progress int          `json:"progress"`
}

// FileOutcome is one line of a batch report.
type FileOutcome struct {
	Filename string `json:"filename"`
	Detail   string `json:"detail"`
}

// BatchResult aggregates a batch upload run.
// SuccessCount + FailureCount equals the number of files submitted.
type BatchResult struct {
	Successes    []FileOutcome `json:"successes"`
	Failures     []FileOutcome `json:"failures"`
	SuccessCount int           `json:"success_count"`
	FailureCount int           `json:"failure_count"`
}

// AddSuccess records a successful file.
func (r *BatchResult) AddSuccess(filename, detail string) {
	r.Successes = append(r.Successes, FileOutcome{Filename: filename, Detail: detail})
	r.SuccessCount++
}

// AddFailure records a failed file.
func (r *BatchResult) AddFailure(filename, detail string) {
	r.Failures = append(r.Failures, FileOutcome{Filename: filename, Detail: detail})
	r.FailureCount++
}

// Total returns the number of files accounted for.
func (r BatchResult) Total() int {
	return r.SuccessCount + r.FailureCount
}
