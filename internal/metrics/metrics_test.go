package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.ObserveRecalculation(PathPersisted, time.Millisecond)
	r.ObserveRecalculation(PathPersisted, time.Millisecond)
	r.ObserveRecalculation(PathPreview, time.Millisecond)
	r.ApprovalTransition("approve", "ok")
	r.ApprovalTransition("approve", "PREVIOUS_STEP_PENDING")
	r.NumberAllocated("QUOTE")
	r.SinkDropped("audit")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.recalculations.WithLabelValues(PathPersisted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.recalculations.WithLabelValues(PathPreview)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.approvalTransitions.WithLabelValues("approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.numberAllocations.WithLabelValues("QUOTE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sinkDropped.WithLabelValues("audit")))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveRecalculation(PathPreview, time.Millisecond)
		r.ApprovalTransition("reject", "ok")
		r.NumberAllocated("QUOTE")
		r.SinkDropped("notification")
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.NumberAllocated("QUOTE")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `crm_numbering_allocations_total{doc_type="QUOTE"} 1`)
}
