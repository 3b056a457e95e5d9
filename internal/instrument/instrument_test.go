package instrument

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_SpanRecordsStatus(t *testing.T) {
	m := NewMetrics()

	_, span := m.StartSpan(context.Background(), "import", "run")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InFlight.WithLabelValues("import")))
	span.SetStatus("error")
	span.End()
	span.End()

	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight.WithLabelValues("import")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("import", "run", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("import", "run", "ok")))
}

func TestMetrics_CountNodes(t *testing.T) {
	m := NewMetrics()
	m.CountNodes("created", 3)
	m.CountNodes("created", 0)
	m.CountNodes("deleted", 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.NodesTotal.WithLabelValues("created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NodesTotal.WithLabelValues("deleted")))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.CountNodes("updated", 1)

	app := fiber.New()
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `configtree_nodes_total{op="updated"} 1`)
}

func TestNoop(t *testing.T) {
	var inst Instrumenter = &NoopInstrumenter{}
	_, span := inst.StartSpan(context.Background(), "export", "all")
	span.SetStatus("ok")
	span.End()
	inst.CountNodes("created", 5)
}
