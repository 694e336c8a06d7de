package persistence_test

import (
	"context"
	"testing"
	"time"

	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"
	"canvas-backend/internal/persistence/memory"
	"canvas-backend/internal/persistence/persistencetest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInstrumentedGatewayRecordsMetricsAndSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	metrics := observability.NewCollector("test")
	gw := persistence.NewInstrumentedGateway(memory.New(), metrics, provider.Tracer("test"), nil)

	p := persistencetest.NewProject(t, gw, "P")
	_, err := gw.FetchProject(context.Background(), p.ID)
	require.NoError(t, err)
	_, err = gw.FetchProject(context.Background(), "missing")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GatewayOps.WithLabelValues(persistence.OpCreateProject, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GatewayOps.WithLabelValues(persistence.OpFetchProject, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.GatewayOps.WithLabelValues(persistence.OpFetchProject, "error")))

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "persistence."+persistence.OpCreateProject, spans[0].Name())
	assert.Equal(t, "persistence."+persistence.OpFetchProject, spans[2].Name())
	assert.NotEmpty(t, spans[2].Events(), "failed call records the error")
}

func TestInstrumentedGatewayPassesThroughContract(t *testing.T) {
	persistencetest.RunGatewaySuite(t, func(*testing.T) persistence.Gateway {
		return persistence.NewInstrumentedGateway(memory.New(), nil, nil, nil)
	}, persistencetest.SuiteOptions{ScopedEndpoints: true})
}

func TestInstrumentedGatewayBoundsCalls(t *testing.T) {
	rec := persistencetest.NewRecorder(memory.New())
	rec.SetHook(persistence.OpListTemplates, func(ctx context.Context, _ persistencetest.Call) error {
		<-ctx.Done()
		return ctx.Err()
	})
	gw := persistence.NewInstrumentedGateway(rec, nil, nil, nil).WithTimeout(10 * time.Millisecond)

	_, err := gw.ListTemplates(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
