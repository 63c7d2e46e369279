package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.ObserveTask("scan", time.Now(), nil)
		r.TaskPanic("scan")
		r.SetCandidates(3)
		r.Opportunity("HIGH")
		r.SourceError("yahoo")
		r.HaltCache(true)
		r.ExitSignal("CRITICAL")
		r.SetPositionsAtRisk(1)
		r.SetMarketOpen(true)
		r.StoreError("opportunity")
	})
}

func TestRegistryRecords(t *testing.T) {
	r := New()
	r.ObserveTask("scan", time.Now(), nil)
	r.ObserveTask("scan", time.Now(), errors.New("x"))
	r.Opportunity("HIGH")
	r.Opportunity("HIGH")
	r.SetMarketOpen(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.TaskRuns.WithLabelValues("scan", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.TaskRuns.WithLabelValues("scan", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Opportunities.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.MarketOpen))
}

func TestHandlerServesExposition(t *testing.T) {
	r := New()
	r.SetCandidates(42)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "sentinel_scan_candidates 42")
}
