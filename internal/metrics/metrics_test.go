package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.MessageProcessed("whatsapp")
	m.MessageProcessed("whatsapp")
	m.MessageSkipped("email", "duplicate")
	m.Escalated("instagram", "Sheila")
	m.SideEffectFailed("ticket")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("whatsapp")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues("email", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations.WithLabelValues("instagram", "Sheila")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sideEffectFails.WithLabelValues("ticket")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageProcessed("whatsapp")
		m.Classified("email", "HOT")
		m.DeliveryFailed("instagram")
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Classified("whatsapp", "HOT")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `leadrouter_classifications_total{category="HOT",channel="whatsapp"} 1`)
}
