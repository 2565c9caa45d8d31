package upload

import (
	"sync"

	"github.com/Veraticus/matflow/internal/model"
)

// Tracker holds one progress entry per file. Writers only ever touch the
// entry for their own filename; readers get copies.
type Tracker struct {
	entries   map[string]*model.UploadProgressEntry
	listeners []func(model.UploadProgressEntry)
	order     []string
	mu        sync.RWMutex
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*model.UploadProgressEntry)}
}

// Subscribe registers fn to receive every entry change.
func (t *Tracker) Subscribe(fn func(model.UploadProgressEntry)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Start begins a new attempt for filename, replacing any previous entry.
func (t *Tracker) Start(filename string) {
	t.apply(filename, func(e *model.UploadProgressEntry) bool {
		*e = model.UploadProgressEntry{Filename: filename, Status: model.UploadUploading}
		return true
	})
}

// Update raises the attempt's progress to percent. Lower values and
// updates to finished entries are ignored.
func (t *Tracker) Update(filename string, percent int) {
	percent = min(max(percent, 0), 100)
	t.apply(filename, func(e *model.UploadProgressEntry) bool {
		if e.Status != model.UploadUploading || percent <= e.Progress {
			return false
		}
		e.Progress = percent
		return true
	})
}

// Succeed marks filename as uploaded.
func (t *Tracker) Succeed(filename string) {
	t.apply(filename, func(e *model.UploadProgressEntry) bool {
		e.Filename = filename
		e.Status = model.UploadSuccess
		e.Progress = 100
		e.Error = ""
		return true
	})
}

// Fail marks filename as failed with message.
func (t *Tracker) Fail(filename, message string) {
	t.apply(filename, func(e *model.UploadProgressEntry) bool {
		e.Filename = filename
		e.Status = model.UploadError
		e.Error = message
		return true
	})
}

// Reject records filename as failed without an upload attempt. Any entry
// left from an earlier run is replaced, so no stale progress survives.
func (t *Tracker) Reject(filename, message string) {
	t.apply(filename, func(e *model.UploadProgressEntry) bool {
		*e = model.UploadProgressEntry{Filename: filename, Status: model.UploadError, Error: message}
		return true
	})
}

// Get returns the entry for filename.
func (t *Tracker) Get(filename string) (model.UploadProgressEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[filename]
	if !ok {
		return model.UploadProgressEntry{}, false
	}
	return *e, true
}

// Entries returns every entry in first-seen order.
func (t *Tracker) Entries() []model.UploadProgressEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.UploadProgressEntry, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.entries[name])
	}
	return out
}

// Reset drops every entry. Listeners are kept.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*model.UploadProgressEntry)
	t.order = nil
}

func (t *Tracker) apply(filename string, fn func(*model.UploadProgressEntry) bool) {
	t.mu.Lock()
	e, ok := t.entries[filename]
	if !ok {
		e = &model.UploadProgressEntry{Filename: filename, Status: model.UploadUploading}
		t.entries[filename] = e
		t.order = append(t.order, filename)
	}
	changed := fn(e)
	snapshot := *e
	listeners := t.listeners
	t.mu.Unlock()

	if changed {
		for _, l := range listeners {
			l(snapshot)
		}
	}
}

// percentOf converts a byte count into a whole percentage.
func percentOf(sent, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(sent * 100 / total)
}
