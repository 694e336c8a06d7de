package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorRecordsGatewayCalls(t *testing.T) {
	c := NewCollector("test")

	c.ObserveGatewayCall("createNode", 10*time.Millisecond, nil)
	c.ObserveGatewayCall("createNode", 5*time.Millisecond, errors.New("boom"))
	c.ObserveRetry("updateNode")
	c.Inc(func(c *Collector) prometheus.Counter { return c.NodesCreated })
	c.AddOutbox(3)
	c.AddOutbox(-1)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.GatewayOps.WithLabelValues("createNode", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.GatewayOps.WithLabelValues("createNode", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.GatewayRetries.WithLabelValues("updateNode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NodesCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.OutboxDepth))

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveGatewayCall("x", time.Second, nil)
		c.ObserveRetry("x")
		c.Inc(func(c *Collector) prometheus.Counter { return c.NodesCreated })
		c.AddOutbox(1)
		c.SessionOpened()
		c.SessionClosed()
		c.PersistenceFailed("x")
		c.TemplateInstantiated("client", 2)
		c.SetBreakerState("gw", 1)
	})
	assert.Nil(t, c.Registry())
}
