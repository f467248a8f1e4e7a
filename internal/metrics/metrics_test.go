package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.GenerationAttempt("fs", "accepted")
	m.GenerationAttempt("fs", "empty")
	m.GenerationAttempt("fs", "empty")
	m.CandidatesAccepted("fs", 5)
	m.CandidatesAccepted("fs", 0)
	m.Verification("verified", 200*time.Millisecond)
	m.RecordSkipped("verify", "malformed")
	m.ExampleFormatted("chat")
	m.JobSubmitted("ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.generationAttempts.WithLabelValues("fs", "accepted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.generationAttempts.WithLabelValues("fs", "empty")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.candidatesAccepted.WithLabelValues("fs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.recordsSkipped.WithLabelValues("verify", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.examplesFormatted.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsSubmitted.WithLabelValues("ok")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.verifyDuration))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.GenerationAttempt("fs", "accepted")
		m.CandidatesAccepted("fs", 1)
		m.Verification("failed", time.Second)
		m.RecordSkipped("format", "unverified")
		m.ExampleFormatted("instruction")
		m.JobSubmitted("error")
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.JobSubmitted("ok")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agenix_queue_jobs_total{result="ok"} 1`)
}
