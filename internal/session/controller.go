// Package session implements the editing session of one open project.
//
// A Controller owns the project's graph.Store. Every intent mutates the
// store synchronously and only then talks to the persistence gateway:
// creates wait for the gateway because identifiers are assigned remotely,
// field edits are applied optimistically and coalesced per entity in an
// outbox that is flushed after a quiet period or by Save.
//
// Field updates are not retried here. Sessions are handed the resilient
// gateway, which retries Update* with bounded backoff.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"canvas-backend/internal/config"
	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/graph"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/project"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/identity"
	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"

	"go.uber.org/zap"
)

// Controller is the single entry point for editing one project. It is safe
// for concurrent use.
type Controller struct {
	gw      persistence.GraphGateway
	ids     identity.Provider
	cfg     config.Session
	logger  *zap.Logger
	metrics *observability.Collector

	mu       sync.Mutex
	state    State
	gen      uint64
	saving   int
	project  *project.Project
	store    *graph.Store
	selected string
	stagger  int
	outbox   *outbox
	timer    *time.Timer
	// pairs whose CreateEdge is in flight
	pendingPairs map[edge.Pair]bool
	// remote deletes that failed and are re-attempted by Save
	failedDeletes map[entityKey]bool
	inflight      int
	idle          chan struct{}

	// flushMu serializes outbox flushes so the persisted order of writes to
	// one entity follows the local order.
	flushMu sync.Mutex

	lmu       sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *observability.Collector) Option {
	return func(c *Controller) { c.metrics = m }
}

// New creates an unloaded Controller.
func New(gw persistence.GraphGateway, ids identity.Provider, cfg config.Session, opts ...Option) *Controller {
	c := &Controller{
		gw:            gw,
		ids:           ids,
		cfg:           cfg,
		logger:        zap.NewNop(),
		outbox:        newOutbox(),
		pendingPairs:  make(map[edge.Pair]bool),
		failedDeletes: make(map[entityKey]bool),
		listeners:     make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("session")
	return c
}

// AddNodeOptions controls where and how AddNode places a node.
type AddNodeOptions struct {
	// Position places the node explicitly.
	Position *shared.Position
	// Bounds places the node centred in a container when Position is nil.
	Bounds *shared.Bounds
	// Title overrides the variant's default title.
	Title string
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Load fetches the project and its graph. Any failure returns the session to
// Unloaded and is reported as a *errors.ProjectLoadError. Remote edges whose
// endpoints are missing are dropped with a warning. Stagger placement resumes
// at the first slot no loaded node occupies.
func (c *Controller) Load(ctx context.Context, projectID string) error {
	c.mu.Lock()
	if c.state != Unloaded {
		state := c.state
		c.mu.Unlock()
		return cerrors.NewError(cerrors.ErrorTypeState, cerrors.CodeSessionNotReady, "session already open").
			WithDetails(fmt.Sprintf("state %s", state)).Build()
	}
	c.gen++
	gen := c.gen
	c.state = Loading
	c.mu.Unlock()
	c.publish(Event{Kind: EventStateChanged, State: Loading})

	p, nodes, edges, err := c.fetch(ctx, projectID)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = Unloaded
		}
		c.mu.Unlock()
		c.publish(Event{Kind: EventStateChanged, State: Unloaded})
		c.logger.Warn("Project load failed", zap.String("project_id", projectID), zap.Error(err))
		return &cerrors.ProjectLoadError{ProjectID: projectID, Cause: err}
	}

	store := graph.NewStore(projectID)
	for _, e := range store.Load(nodes, edges) {
		c.logger.Warn("Dropping edge with missing endpoint",
			zap.String("project_id", projectID),
			zap.String("edge_id", e.ID),
			zap.String("source_id", e.SourceID),
			zap.String("target_id", e.TargetID))
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return &cerrors.ProjectLoadError{ProjectID: projectID, Cause: cerrors.ErrSessionNotReady}
	}
	c.project = p
	c.store = store
	c.stagger = c.firstFreeSlot(nodes)
	c.state = Ready
	c.mu.Unlock()

	c.metrics.SessionOpened()
	c.logger.Info("Project loaded",
		zap.String("project_id", projectID),
		zap.Int("nodes", store.NodeCount()),
		zap.Int("edges", store.EdgeCount()))
	c.publish(Event{Kind: EventStateChanged, State: Ready})
	return nil
}

func (c *Controller) fetch(ctx context.Context, projectID string) (*project.Project, []*node.Node, []*edge.Edge, error) {
	p, err := c.gw.FetchProject(ctx, projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	nodes, err := c.gw.FetchNodes(ctx, projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	edges, err := c.gw.FetchEdges(ctx, projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	return p, nodes, edges, nil
}

// Close returns the session to Unloaded. In-flight calls are not canceled;
// their results are discarded. Writes still waiting in the outbox are sent
// in the background.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == Unloaded {
		c.mu.Unlock()
		return
	}
	wasOpen := c.state.acceptsIntents()
	c.gen++
	c.state = Unloaded
	c.stopTimerLocked()
	batch := c.outbox.drain()
	c.metrics.AddOutbox(-len(batch))
	c.project = nil
	c.store = nil
	c.selected = ""
	c.stagger = 0
	c.pendingPairs = make(map[edge.Pair]bool)
	c.failedDeletes = make(map[entityKey]bool)
	c.mu.Unlock()

	if wasOpen {
		c.metrics.SessionClosed()
	}
	c.publish(Event{Kind: EventStateChanged, State: Unloaded})

	if len(batch) > 0 {
		go c.flushDetached(batch)
	}
}

func (c *Controller) flushDetached(batch []pending) {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	for _, p := range batch {
		if err := c.send(context.Background(), p); err != nil {
			c.logger.Warn("Write after close failed", zap.String("entity_id", p.key.id), zap.Error(err))
		}
	}
}

// ---------------------------------------------------------------------------
// Read side
// ---------------------------------------------------------------------------

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ProjectID returns the open project, or "" when none is loaded.
func (c *Controller) ProjectID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project == nil {
		return ""
	}
	return c.project.ID
}

// Project returns a copy of the open project.
func (c *Controller) Project() (*project.Project, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project == nil {
		return nil, false
	}
	return c.project.Clone(), true
}

// Graph returns a deep copy of the current graph.
func (c *Controller) Graph() graph.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return graph.Snapshot{}
	}
	return c.store.Snapshot()
}

// Node returns a copy of one node.
func (c *Controller) Node(id string) (*node.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil, false
	}
	return c.store.Node(id)
}

// Nodes returns copies of all nodes ordered by identifier.
func (c *Controller) Nodes() []*node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	return c.store.Nodes()
}

// Edges returns copies of all edges ordered by identifier.
func (c *Controller) Edges() []*edge.Edge {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	return c.store.Edges()
}

// Selected returns the selected node identifier, or "".
func (c *Controller) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Dirty reports whether some local change has not been confirmed remotely:
// queued writes, failed deletes or calls still in flight.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outbox.len() > 0 || len(c.failedDeletes) > 0 || c.inflight > 0
}

// Subscribe registers fn for change notifications. Listeners run
// synchronously on the goroutine that made the change and must not call
// back into the Controller's mutating methods. The returned func removes
// the listener.
func (c *Controller) Subscribe(fn func(Event)) (cancel func()) {
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

func (c *Controller) publish(events ...Event) {
	c.lmu.Lock()
	fns := make([]func(Event), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.lmu.Unlock()
	for _, ev := range events {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers shared by the intents
// ---------------------------------------------------------------------------

// readyLocked fails unless intents are accepted. c.mu must be held.
func (c *Controller) readyLocked() error {
	if !c.state.acceptsIntents() {
		return cerrors.ErrSessionNotReady
	}
	return nil
}

func (c *Controller) beginLocked() {
	if c.inflight == 0 {
		c.idle = make(chan struct{})
	}
	c.inflight++
}

func (c *Controller) endLocked() {
	c.inflight--
	if c.inflight == 0 {
		close(c.idle)
	}
}

func (c *Controller) end() {
	c.mu.Lock()
	c.endLocked()
	c.mu.Unlock()
}

// waitIdle blocks until no call started by an intent is in flight.
func (c *Controller) waitIdle(ctx context.Context) error {
	c.mu.Lock()
	if c.inflight == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validation(msg string) error {
	return cerrors.Validation(cerrors.CodeValidationFailed, msg).Build()
}
