package upload

import (
	"sync"
	"testing"

	"github.com/Veraticus/matflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerProgressIsMonotone(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("a.pdf")
	tracker.Update("a.pdf", 40)
	tracker.Update("a.pdf", 20)
	tracker.Update("a.pdf", 150)

	e, ok := tracker.Get("a.pdf")
	require.True(t, ok)
	assert.Equal(t, 100, e.Progress)
	assert.Equal(t, model.UploadUploading, e.Status)
}

func TestTrackerEntriesAreIndependent(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("a.pdf")
	tracker.Start("b.pdf")
	tracker.Update("a.pdf", 70)
	tracker.Fail("b.pdf", "boom")

	a, _ := tracker.Get("a.pdf")
	b, _ := tracker.Get("b.pdf")
	assert.Equal(t, 70, a.Progress)
	assert.Equal(t, model.UploadUploading, a.Status)
	assert.Empty(t, a.Error)
	assert.Zero(t, b.Progress)
	assert.Equal(t, model.UploadError, b.Status)
	assert.Equal(t, "boom", b.Error)

	names := []string{}
	for _, e := range tracker.Entries() {
		names = append(names, e.Filename)
	}
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, names)
}

func TestTrackerRetryOverwritesEntry(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("a.pdf")
	tracker.Update("a.pdf", 80)
	tracker.Fail("a.pdf", "network")

	tracker.Start("a.pdf")
	e, _ := tracker.Get("a.pdf")
	assert.Zero(t, e.Progress)
	assert.Equal(t, model.UploadUploading, e.Status)
	assert.Empty(t, e.Error)

	tracker.Update("a.pdf", 10)
	tracker.Succeed("a.pdf")
	tracker.Update("a.pdf", 50)
	e, _ = tracker.Get("a.pdf")
	assert.Equal(t, 100, e.Progress)
	assert.Equal(t, model.UploadSuccess, e.Status)
	assert.Len(t, tracker.Entries(), 1)
}

func TestTrackerNotifiesSubscribers(t *testing.T) {
	tracker := NewTracker()
	var (
		mu   sync.Mutex
		seen []model.UploadProgressEntry
	)
	tracker.Subscribe(func(e model.UploadProgressEntry) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e)
	})

	tracker.Start("a.pdf")
	tracker.Update("a.pdf", 50)
	tracker.Update("a.pdf", 50)
	tracker.Succeed("a.pdf")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, 50, seen[1].Progress)
	assert.Equal(t, model.UploadSuccess, seen[2].Status)
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("a.pdf")
	tracker.Reset()
	_, ok := tracker.Get("a.pdf")
	assert.False(t, ok)
	assert.Empty(t, tracker.Entries())
}

func TestPercentOf(t *testing.T) {
	assert.Equal(t, 0, percentOf(10, 0))
	assert.Equal(t, 50, percentOf(5, 10))
	assert.Equal(t, 100, percentOf(10, 10))
}

func TestTrackerRejectClearsStaleProgress(t *testing.T) {
	tracker := NewTracker()
	tracker.Start("a.pdf")
	tracker.Update("a.pdf", 60)
	tracker.Succeed("a.pdf")

	tracker.Reject("a.pdf", "Missing required fields: product_id")

	e, ok := tracker.Get("a.pdf")
	require.True(t, ok)
	assert.Equal(t, model.UploadError, e.Status)
	assert.Zero(t, e.Progress)
	assert.Equal(t, "Missing required fields: product_id", e.Error)
	assert.Len(t, tracker.Entries(), 1)
}
