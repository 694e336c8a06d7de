package observability

import (
	"context"
	"testing"

	"canvas-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.Production, "warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1), "debug must be disabled at warn level")

	_, err = NewLogger(config.Development, "loud")
	assert.Error(t, err)
}

func TestDisabledTracingIsNoop(t *testing.T) {
	tr, err := NewTracing(context.Background(), config.Tracing{ServiceName: "test"}, config.Development)
	require.NoError(t, err)

	_, span := tr.Tracer().Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.NoError(t, tr.Shutdown(context.Background()))

	var nilTracing *Tracing
	assert.NotNil(t, nilTracing.Tracer())
}
