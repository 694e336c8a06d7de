package viewport

import (
	"math"
	"testing"

	"canvas-backend/internal/config"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticNodes []*node.Node

func (s staticNodes) Nodes() []*node.Node { return s }

func (s staticNodes) Node(id string) (*node.Node, bool) {
	for _, n := range s {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

func testConfig() config.Viewport {
	return config.Viewport{
		ZoomStep:   2,
		MinZoom:    0.25,
		MaxZoom:    4,
		FitPadding: 0.1,
		Screen:     config.Size{Width: 1000, Height: 800},
	}
}

func box(id string, x, y, w, h float64) *node.Node {
	return &node.Node{ID: id, Variant: node.VariantNote, Position: shared.Position{X: x, Y: y}, Size: &shared.Size{Width: w, Height: h}}
}

func TestDefaultViewportCentersOrigin(t *testing.T) {
	c := New(staticNodes(nil), testConfig())
	assert.Equal(t, Viewport{Zoom: 1, Pan: shared.Position{X: 500, Y: 400}}, c.Current())
}

func TestFitViewWithZeroNodes(t *testing.T) {
	c := New(staticNodes(nil), testConfig())
	c.ZoomIn()
	c.Pan(33, -12)

	v := c.FitView()
	assert.Equal(t, 1.0, v.Zoom)
	assert.Equal(t, shared.Position{X: 500, Y: 400}, v.Pan)
	assert.False(t, math.IsNaN(v.Pan.X) || math.IsNaN(v.Pan.Y))
}

func TestFitViewFramesAllNodes(t *testing.T) {
	nodes := staticNodes{box("a", 0, 0, 100, 100), box("b", 300, 100, 100, 100)}
	c := New(nodes, testConfig())

	v := c.FitView()
	// bounds 400x200; usable screen 800x640 -> zoom min(2, 3.2) = 2
	assert.InDelta(t, 2.0, v.Zoom, 1e-9)
	// bounds centre (200,100) lands on the screen centre
	center := c.ToCanvas(shared.Position{X: 500, Y: 400})
	assert.InDelta(t, 200, center.X, 1e-9)
	assert.InDelta(t, 100, center.Y, 1e-9)
}

func TestFitViewClampsZoom(t *testing.T) {
	c := New(staticNodes{box("tiny", 10, 10, 1, 1)}, testConfig())
	assert.Equal(t, 4.0, c.FitView().Zoom)

	c = New(staticNodes{box("huge", 0, 0, 100000, 100000)}, testConfig())
	assert.Equal(t, 0.25, c.FitView().Zoom)
}

func TestZoomIsClampedAndAnchoredAtCenter(t *testing.T) {
	c := New(staticNodes(nil), testConfig())
	c.Pan(100, 50)
	before := c.ToCanvas(shared.Position{X: 500, Y: 400})

	c.ZoomIn()
	assert.Equal(t, 2.0, c.Current().Zoom)
	after := c.ToCanvas(shared.Position{X: 500, Y: 400})
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)

	for i := 0; i < 5; i++ {
		c.ZoomIn()
	}
	assert.Equal(t, 4.0, c.Current().Zoom)
	for i := 0; i < 10; i++ {
		c.ZoomOut()
	}
	assert.Equal(t, 0.25, c.Current().Zoom)
}

func TestCenterOn(t *testing.T) {
	nodes := staticNodes{box("a", 100, 100, 200, 100)}
	c := New(nodes, testConfig())
	c.ZoomIn()

	require.True(t, c.CenterOn("a"))
	assert.Equal(t, 2.0, c.Current().Zoom)
	center := c.ToCanvas(shared.Position{X: 500, Y: 400})
	assert.InDelta(t, 200, center.X, 1e-9)
	assert.InDelta(t, 150, center.Y, 1e-9)

	before := c.Current()
	assert.False(t, c.CenterOn(""))
	assert.False(t, c.CenterOn("ghost"))
	assert.Equal(t, before, c.Current())
}

func TestSavedViews(t *testing.T) {
	c := New(staticNodes(nil), testConfig())

	require.NoError(t, c.SaveView("overview"))
	c.ZoomIn()
	c.Pan(10, 10)
	zoomed := c.Current()
	require.NoError(t, c.SaveView("detail"))

	require.True(t, c.LoadView("overview"))
	assert.Equal(t, 1.0, c.Current().Zoom)
	assert.Equal(t, "overview", c.Current().Name)

	assert.False(t, c.LoadView("missing"))
	assert.Equal(t, "overview", c.Current().Name)

	require.True(t, c.LoadView("detail"))
	assert.Equal(t, zoomed.Pan, c.Current().Pan)
	assert.Equal(t, zoomed.Zoom, c.Current().Zoom)

	// last write wins
	c.ZoomOut()
	require.NoError(t, c.SaveView("detail"))
	views := c.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "detail", views[0].Name)
	assert.Equal(t, 1.0, views[0].Zoom)

	c.DeleteView("detail")
	assert.Len(t, c.Views(), 1)
	assert.Error(t, c.SaveView(""))
}

func TestSetScreenKeepsFocus(t *testing.T) {
	c := New(staticNodes(nil), testConfig())
	c.Pan(-200, 0)
	before := c.ToCanvas(shared.Position{X: 500, Y: 400})

	require.NoError(t, c.SetScreen(600, 400))
	after := c.ToCanvas(shared.Position{X: 300, Y: 200})
	assert.InDelta(t, before.X, after.X, 1e-9)
	assert.InDelta(t, before.Y, after.Y, 1e-9)

	assert.Error(t, c.SetScreen(0, 100))
	assert.Error(t, c.SetScreen(math.NaN(), 100))
}

func TestSubscribe(t *testing.T) {
	c := New(staticNodes(nil), testConfig())
	var got []float64
	cancel := c.Subscribe(func(v Viewport) { got = append(got, v.Zoom) })

	c.ZoomIn()
	c.FitView()
	cancel()
	c.ZoomIn()

	assert.Equal(t, []float64{2, 1}, got)
}
