package tui

import "github.com/Veraticus/matflow/internal/model"

// progressMsg carries one tracker change.
type progressMsg struct {
	entry model.UploadProgressEntry
}

// doneMsg is sent when the upload run returns.
type doneMsg struct {
	err    error
	result model.BatchResult
}
