package observability

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Independent_Registries(t *testing.T) {
	req := require.New(t)

	// Given two gateways in the same process
	first := NewMetrics()
	second := NewMetrics()

	first.FramesReceived.WithLabelValues(FrameMalformed).Inc()

	req.Equal(1.0, testutil.ToFloat64(first.FramesReceived.WithLabelValues(FrameMalformed)))
	req.Equal(0.0, testutil.ToFloat64(second.FramesReceived.WithLabelValues(FrameMalformed)))
}

func TestMetrics_Handler_Exposes_Collectors(t *testing.T) {
	req := require.New(t)
	m := NewMetrics()
	m.DeliveryFailures.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	req.NoError(err)
	req.Contains(string(body), "chat_gateway_delivery_failures_total 3")
}
