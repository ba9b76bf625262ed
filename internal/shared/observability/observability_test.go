package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestServer_ServesMetrics(t *testing.T) {
	DefectsFound.WithLabelValues("high").Inc()

	s := NewServer("127.0.0.1:0")
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `pyscan_defects_total{severity="high"}`))

	health, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}

func TestServer_BadAddress(t *testing.T) {
	assert.Error(t, NewServer("not-an-address").Start())
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(SolverQueries.WithLabelValues("sat"))
	SolverQueries.WithLabelValues("sat").Add(2)
	assert.Equal(t, before+2, testutil.ToFloat64(SolverQueries.WithLabelValues("sat")))
}

func TestSetupTracing(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TracingOptions{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, err = SetupTracing(context.Background(), TracingOptions{Exporter: "zipkin"})
	assert.Error(t, err)

	shutdown, err = SetupTracing(context.Background(), TracingOptions{Exporter: "stdout", ServiceName: "pyscan-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTracerRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := Tracer
	otel.SetTracerProvider(tp)
	Tracer = tp.Tracer("pyscan")
	t.Cleanup(func() {
		Tracer = prev
		_ = tp.Shutdown(context.Background())
	})

	_, span := Tracer.Start(context.Background(), "analyze.file")
	span.End()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "analyze.file", spans[0].Name)
}
