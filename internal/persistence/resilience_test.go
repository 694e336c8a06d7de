package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"canvas-backend/internal/config"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"
	"canvas-backend/internal/persistence/memory"
	"canvas-backend/internal/persistence/persistencetest"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errTransient = errors.New("connection reset by peer")

func fastRetry() config.Retry {
	return config.Retry{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		JitterFactor:  0.1,
	}
}

func disabledBreaker() config.Breaker {
	b := config.Default().Breaker
	b.Enabled = false
	return b
}

func TestResilientGatewayRetriesReads(t *testing.T) {
	base := memory.New()
	p := persistencetest.NewProject(t, base, "P")
	rec := persistencetest.NewRecorder(base)
	metrics := observability.NewCollector("test")
	gw := persistence.NewResilientGateway(rec, disabledBreaker(), fastRetry(), metrics, zap.NewNop())

	rec.FailTimes(persistence.OpFetchProject, 2, errTransient)

	got, err := gw.FetchProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, 3, rec.Count(persistence.OpFetchProject))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.GatewayRetries.WithLabelValues(persistence.OpFetchProject)))
}

func TestResilientGatewayGivesUpAfterBudget(t *testing.T) {
	base := memory.New()
	p := persistencetest.NewProject(t, base, "P")
	n := persistencetest.NewNode(t, base, p.ID, node.VariantNote, shared.Origin)
	rec := persistencetest.NewRecorder(base)
	gw := persistence.NewResilientGateway(rec, disabledBreaker(), fastRetry(), nil, nil)

	rec.FailTimes(persistence.OpUpdateNode, 10, errTransient)

	pos := shared.Position{X: 1, Y: 1}
	_, err := gw.UpdateNode(context.Background(), n.ID, persistence.NodePatch{Position: &pos})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, rec.Count(persistence.OpUpdateNode))
}

func TestResilientGatewayNeverRetriesCreatesOrDeletes(t *testing.T) {
	base := memory.New()
	p := persistencetest.NewProject(t, base, "P")
	rec := persistencetest.NewRecorder(base)
	gw := persistence.NewResilientGateway(rec, disabledBreaker(), fastRetry(), nil, nil)

	rec.FailTimes(persistence.OpCreateNode, 1, errTransient)
	rec.FailTimes(persistence.OpDeleteNode, 1, errTransient)
	rec.FailTimes(persistence.OpInstantiateTemplate, 1, errTransient)

	_, err := gw.CreateNode(context.Background(), persistence.NodeDraft{
		ProjectID: p.ID, Variant: node.VariantNote, Payload: node.NotePayload{}, CreatedBy: "owner-1",
	})
	require.Error(t, err)
	require.Error(t, gw.DeleteNode(context.Background(), "n1"))
	_, err = gw.InstantiateTemplate(context.Background(), persistence.InstantiateRequest{TemplateID: "t"})
	require.Error(t, err)

	assert.Equal(t, 1, rec.Count(persistence.OpCreateNode))
	assert.Equal(t, 1, rec.Count(persistence.OpDeleteNode))
	assert.Equal(t, 1, rec.Count(persistence.OpInstantiateTemplate))
}

func TestResilientGatewaySkipsPermanentErrors(t *testing.T) {
	rec := persistencetest.NewRecorder(memory.New())
	gw := persistence.NewResilientGateway(rec, disabledBreaker(), fastRetry(), nil, nil)

	_, err := gw.FetchProject(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrRecordNotFound)
	assert.Equal(t, 1, rec.Count(persistence.OpFetchProject))
}

func TestResilientGatewayStopsOnCancel(t *testing.T) {
	rec := persistencetest.NewRecorder(memory.New())
	retry := fastRetry()
	retry.InitialDelay = time.Hour
	retry.MaxDelay = time.Hour
	gw := persistence.NewResilientGateway(rec, disabledBreaker(), retry, nil, nil)
	rec.FailTimes(persistence.OpListProjects, 10, errTransient)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := gw.ListProjects(ctx, "u1")
	require.Error(t, err)
	assert.Equal(t, 1, rec.Count(persistence.OpListProjects))
}

func TestResilientGatewayBreakerOpens(t *testing.T) {
	rec := persistencetest.NewRecorder(memory.New())
	breaker := config.Breaker{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 0.5,
		MinRequests:      2,
	}
	retry := fastRetry()
	retry.MaxRetries = 0
	metrics := observability.NewCollector("test")
	gw := persistence.NewResilientGateway(rec, breaker, retry, metrics, nil)

	rec.FailTimes(persistence.OpFetchNodes, 100, errTransient)

	for i := 0; i < 2; i++ {
		_, err := gw.FetchNodes(context.Background(), "p")
		require.ErrorIs(t, err, errTransient)
	}

	_, err := gw.FetchNodes(context.Background(), "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, cerrors.ErrCircuitOpen)
	assert.Equal(t, 2, rec.Count(persistence.OpFetchNodes))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BreakerState.WithLabelValues("persistence")))
}

func TestResilientGatewayBreakerIgnoresCallerErrors(t *testing.T) {
	rec := persistencetest.NewRecorder(memory.New())
	breaker := config.Breaker{
		Enabled: true, MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute,
		FailureThreshold: 0.5, MinRequests: 2,
	}
	gw := persistence.NewResilientGateway(rec, breaker, fastRetry(), nil, nil)

	for i := 0; i < 5; i++ {
		_, err := gw.FetchProject(context.Background(), "missing")
		require.ErrorIs(t, err, cerrors.ErrRecordNotFound)
	}
	assert.Equal(t, 5, rec.Count(persistence.OpFetchProject))
}
