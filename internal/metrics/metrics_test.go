package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(EventsDroppedTotal.WithLabelValues("device_found"))
	IncEventDropped("device_found")
	assert.Equal(t, before+1, testutil.ToFloat64(EventsDroppedTotal.WithLabelValues("device_found")))

	before = testutil.ToFloat64(ScansTotal.WithLabelValues("unknown"))
	IncScan("")
	assert.Equal(t, before+1, testutil.ToFloat64(ScansTotal.WithLabelValues("unknown")), "empty label MUST map to unknown")
}

func TestHandlerExposesCounters(t *testing.T) {
	IncConnectionState("connected")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bletower_connection_state_transitions_total"),
		"metrics output MUST include the connection state counter")
}
