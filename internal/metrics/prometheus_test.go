package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Independent(t *testing.T) {
	// private registries must not collide
	a := NewMetrics()
	b := NewMetrics()

	a.RecordRunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.RunsStarted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RunsStarted))
}

func TestMetrics_RunLifecycle(t *testing.T) {
	m := NewMetrics()

	m.RecordRunStarted()
	m.RecordRunStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveRuns))

	m.RecordRunFinished("completed", 3*time.Second)
	m.RecordRunFinished("failed", time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsFinished.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestMetrics_Timeline(t *testing.T) {
	m := NewMetrics()

	m.RecordTimeline(5, 8, 4)
	m.RecordSectionRendered()
	m.RecordSectionRendered()

	assert.Equal(t, 5.0, testutil.ToFloat64(m.SegmentsPlanned))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.InputSeconds))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.OutputSeconds))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SectionsRendered))
}

func TestMetrics_ObserveTool(t *testing.T) {
	m := NewMetrics()

	m.ObserveTool("render", 2*time.Second, nil)
	m.ObserveTool("render", time.Second, errors.New("exit status 1"))
	m.ObserveTool("probe", 10*time.Millisecond, nil)

	assert.Equal(t, 3, testutil.CollectAndCount(m.ToolDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest(http.MethodPost, "/jobs", "202", 5*time.Millisecond)
	m.ObserveTool("concat", time.Second, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `jumpcutter_http_requests_total{endpoint="/jobs",method="POST",status_code="202"} 1`)
	assert.Contains(t, string(body), `jumpcutter_tool_duration_seconds_count{op="concat",status="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
