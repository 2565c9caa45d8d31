package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := NewPipelineMetrics()

	m.ObserveClassification("analyzed", 2*time.Second)
	m.ObserveClassification("analyzed", time.Second)
	m.ObserveClassification("too_large", 0)
	m.ObserveUpload("uploaded", 1024, time.Second)
	m.ObserveUpload("failed", 0, time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.classifyTotal.WithLabelValues("analyzed")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.classifyTotal.WithLabelValues("too_large")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.uploadTotal.WithLabelValues("uploaded")), 1e-9)
	assert.InDelta(t, 1024, testutil.ToFloat64(m.uploadBytes.WithLabelValues("uploaded")), 1e-9)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestWriteTextfile(t *testing.T) {
	m := NewPipelineMetrics()
	m.ObserveUpload("replaced", 10, time.Second)

	path := filepath.Join(t.TempDir(), "textfile", "matflow.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `matflow_upload_files_total{outcome="replaced"} 1`)

	require.NoError(t, m.WriteTextfile(""))
}
