package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesDoNotCollide(t *testing.T) {
	a := New("ulpan", nil)
	b := New("ulpan", nil)

	a.Stages.WithLabelValues("transcribing").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Stages.WithLabelValues("transcribing")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Stages.WithLabelValues("transcribing")))
}

func TestObserveAdapterCountsErrorsOnly(t *testing.T) {
	m := New("ulpan", nil)
	m.ObserveAdapter("stt", time.Second, "")
	m.ObserveAdapter("stt", time.Second, "transcription")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AdapterErrors.WithLabelValues("stt", "transcription")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.AdapterErrors))
}

func TestHandlerExposesSessions(t *testing.T) {
	m := New("ulpan", func() int { return 3 })
	m.ObserveRun("done", "", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "ulpan_sessions 3")
	assert.Contains(t, string(body), `ulpan_runs_total{failed_at="",final="done"} 1`)
}
