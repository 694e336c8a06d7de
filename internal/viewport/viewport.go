// Package viewport implements navigation over the canvas of an open project:
// zoom, pan, fit, centring on a node and named saved views.
//
// Screen coordinates relate to canvas coordinates as
//
//	screen = canvas*Zoom + Pan
//
// The controller never touches graph content or the persistence gateway.
// Saved views live as long as the controller; they are not persisted.
package viewport

import (
	"math"
	"sort"
	"sync"

	"canvas-backend/internal/config"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
)

// Viewport is the visible part of the canvas.
type Viewport struct {
	Pan  shared.Position `json:"pan"`
	Zoom float64         `json:"zoom"`
	Name string          `json:"name,omitempty"`
}

// NodeSource is the read-only view of the graph the controller frames.
// *session.Controller satisfies it.
type NodeSource interface {
	Nodes() []*node.Node
	Node(id string) (*node.Node, bool)
}

// Controller holds the viewport and saved views of one open project.
type Controller struct {
	cfg    config.Viewport
	source NodeSource

	mu      sync.Mutex
	screen  shared.Size
	current Viewport
	views   map[string]Viewport

	lmu       sync.Mutex
	listeners map[int]func(Viewport)
	nextID    int
}

// New creates a controller showing the default viewport.
func New(source NodeSource, cfg config.Viewport) *Controller {
	c := &Controller{
		cfg:       cfg,
		source:    source,
		screen:    shared.Size{Width: cfg.Screen.Width, Height: cfg.Screen.Height},
		views:     make(map[string]Viewport),
		listeners: make(map[int]func(Viewport)),
	}
	c.current = c.defaultLocked()
	return c
}

// Current returns the current viewport.
func (c *Controller) Current() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Screen returns the size of the visible area in screen units.
func (c *Controller) Screen() shared.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// SetScreen changes the visible area. The canvas point at the screen centre
// stays there.
func (c *Controller) SetScreen(width, height float64) error {
	size := shared.Size{Width: width, Height: height}
	if !size.Valid() || width == 0 || height == 0 {
		return cerrors.Validation(cerrors.CodeValidationFailed, "screen size must be positive").Build()
	}
	c.update(func() {
		focus := c.toCanvasLocked(c.centerLocked())
		c.screen = size
		c.current.Pan = c.panForLocked(focus, c.current.Zoom)
	})
	return nil
}

// ZoomIn multiplies the zoom by the configured step.
func (c *Controller) ZoomIn() { c.zoomBy(c.cfg.ZoomStep) }

// ZoomOut divides the zoom by the configured step.
func (c *Controller) ZoomOut() { c.zoomBy(1 / c.cfg.ZoomStep) }

// zoomBy scales the zoom, clamped to the configured range, keeping the
// canvas point under the screen centre fixed.
func (c *Controller) zoomBy(factor float64) {
	c.update(func() {
		focus := c.toCanvasLocked(c.centerLocked())
		c.current.Zoom = c.clamp(c.current.Zoom * factor)
		c.current.Pan = c.panForLocked(focus, c.current.Zoom)
		c.current.Name = ""
	})
}

// Pan moves the viewport by dx, dy screen units.
func (c *Controller) Pan(dx, dy float64) {
	if math.IsNaN(dx) || math.IsNaN(dy) || math.IsInf(dx, 0) || math.IsInf(dy, 0) {
		return
	}
	c.update(func() {
		c.current.Pan = c.current.Pan.Translate(dx, dy)
		c.current.Name = ""
	})
}

// FitView frames every node rectangle, leaving FitPadding of the screen on
// each side. Without nodes it resets to the default viewport: zoom 1 with
// the canvas origin at the screen centre.
func (c *Controller) FitView() Viewport {
	nodes := c.source.Nodes()

	c.mu.Lock()
	if len(nodes) == 0 {
		c.current = c.defaultLocked()
	} else {
		bounds := nodes[0].Bounds()
		for _, n := range nodes[1:] {
			bounds = bounds.Union(n.Bounds())
		}
		c.current = c.frameLocked(bounds)
	}
	out := c.current
	c.mu.Unlock()

	c.publish(out)
	return out
}

func (c *Controller) frameLocked(b shared.Bounds) Viewport {
	usable := 1 - 2*c.cfg.FitPadding
	availW, availH := c.screen.Width*usable, c.screen.Height*usable

	zoom := 1.0
	switch {
	case b.Width > 0 && b.Height > 0:
		zoom = math.Min(availW/b.Width, availH/b.Height)
	case b.Width > 0:
		zoom = availW / b.Width
	case b.Height > 0:
		zoom = availH / b.Height
	}
	zoom = c.clamp(zoom)
	return Viewport{Zoom: zoom, Pan: c.panForLocked(b.Center(), zoom)}
}

// CenterOn pans so the centre of the node is at the screen centre, keeping
// the zoom. Empty or unknown identifiers are ignored.
func (c *Controller) CenterOn(nodeID string) bool {
	if nodeID == "" {
		return false
	}
	n, ok := c.source.Node(nodeID)
	if !ok {
		return false
	}
	c.update(func() {
		c.current.Pan = c.panForLocked(n.Center(), c.current.Zoom)
		c.current.Name = ""
	})
	return true
}

// SaveView stores the current viewport under name, replacing any view with
// the same name.
func (c *Controller) SaveView(name string) error {
	if name == "" {
		return cerrors.Validation(cerrors.CodeValidationFailed, "view name is required").Build()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.current
	v.Name = name
	c.views[name] = v
	return nil
}

// LoadView restores a saved view verbatim. It reports false, changing
// nothing, when no view has that name.
func (c *Controller) LoadView(name string) bool {
	c.mu.Lock()
	v, ok := c.views[name]
	if ok {
		c.current = v
	}
	c.mu.Unlock()
	if ok {
		c.publish(v)
	}
	return ok
}

// DeleteView forgets a saved view.
func (c *Controller) DeleteView(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.views, name)
}

// Views returns the saved views ordered by name.
func (c *Controller) Views() []Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Viewport, 0, len(c.views))
	for _, v := range c.views {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ToCanvas converts a screen point to canvas coordinates.
func (c *Controller) ToCanvas(screen shared.Position) shared.Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.toCanvasLocked(screen)
}

// Subscribe registers fn to receive every new viewport.
func (c *Controller) Subscribe(fn func(Viewport)) (cancel func()) {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.lmu.Unlock()
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Controller) update(fn func()) {
	c.mu.Lock()
	fn()
	v := c.current
	c.mu.Unlock()
	c.publish(v)
}

func (c *Controller) publish(v Viewport) {
	c.lmu.Lock()
	fns := make([]func(Viewport), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (c *Controller) defaultLocked() Viewport {
	return Viewport{Zoom: 1, Pan: c.centerLocked()}
}

func (c *Controller) centerLocked() shared.Position {
	return shared.Position{X: c.screen.Width / 2, Y: c.screen.Height / 2}
}

func (c *Controller) toCanvasLocked(p shared.Position) shared.Position {
	return shared.Position{
		X: (p.X - c.current.Pan.X) / c.current.Zoom,
		Y: (p.Y - c.current.Pan.Y) / c.current.Zoom,
	}
}

// panForLocked returns the pan that puts canvas point focus at the screen
// centre for zoom.
func (c *Controller) panForLocked(focus shared.Position, zoom float64) shared.Position {
	center := c.centerLocked()
	return shared.Position{X: center.X - focus.X*zoom, Y: center.Y - focus.Y*zoom}
}

func (c *Controller) clamp(z float64) float64 {
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 1
	}
	return math.Max(c.cfg.MinZoom, math.Min(c.cfg.MaxZoom, z))
}
