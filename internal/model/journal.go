package model

import "time"

// Journal statuses.
const (
	JournalUploaded = "uploaded"
	JournalReplaced = "replaced"
	JournalSkipped  = "skipped"
	JournalFailed   = "failed"
)

// JournalEntry is one file outcome persisted to the local upload journal.
type JournalEntry struct {
	CreatedAt    time.Time    `json:"created_at"`
	MaterialID   *int         `json:"material_id,omitempty"`
	BatchID      string       `json:"batch_id"`
	Filename     string       `json:"filename"`
	ProductName  string       `json:"product_name,omitempty"`
	MaterialType MaterialType `json:"material_type,omitempty"`
	Status       string       `json:"status"`
	Detail       string       `json:"detail,omitempty"`
	ID           int64        `json:"id"`
}

// BatchSummary is the stored record of one upload run.
type BatchSummary struct {
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ID           string     `json:"id"`
	FileCount    int        `json:"file_count"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
}
