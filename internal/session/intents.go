package session

import (
	"context"
	"fmt"
	"time"

	"canvas-backend/internal/domain/edge"
	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
	"canvas-backend/internal/observability"
	"canvas-backend/internal/persistence"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// AddNode creates a node of variant v. The gateway assigns the identifier,
// so the node is inserted locally only after the create call succeeds. A
// failed create is never retried.
func (c *Controller) AddNode(ctx context.Context, v node.Variant, opts AddNodeOptions) (*node.Node, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %q", cerrors.ErrUnknownVariant, v)
	}
	if opts.Position != nil && !opts.Position.Valid() {
		return nil, validation("node position must be finite")
	}

	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	gen := c.gen
	projectID := c.project.ID
	pos := c.placeLocked(opts)
	c.beginLocked()
	c.mu.Unlock()
	defer c.end()

	userID, err := c.ids.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}

	title := opts.Title
	if title == "" {
		title = v.DefaultTitle()
	}
	n, err := c.gw.CreateNode(ctx, persistence.NodeDraft{
		ProjectID: projectID,
		Variant:   v,
		Title:     title,
		Position:  pos,
		Payload:   node.DefaultPayload(v),
		CreatedBy: userID,
	})
	if err != nil {
		c.metrics.PersistenceFailed(persistence.OpCreateNode)
		return nil, err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug("Discarding node created after close", zap.String("node_id", n.ID))
		return nil, cerrors.ErrSessionNotReady
	}
	if err := c.store.UpsertNode(n); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	c.metrics.Inc(func(m *observability.Collector) prometheus.Counter { return m.NodesCreated })
	c.publish(Event{Kind: EventNodeAdded, NodeID: n.ID})
	return n.Clone(), nil
}

// placeLocked picks the position of a new node: the explicit position, the
// centre of the container bounds, or the origin plus a stagger that grows
// with every such placement.
func (c *Controller) placeLocked(opts AddNodeOptions) shared.Position {
	if opts.Position != nil {
		return *opts.Position
	}
	size := shared.Size{Width: c.cfg.DefaultNodeSize.Width, Height: c.cfg.DefaultNodeSize.Height}
	if size.Width <= 0 || size.Height <= 0 {
		size = node.DefaultSize
	}
	if opts.Bounds != nil {
		return opts.Bounds.Center().Translate(-size.Width/2, -size.Height/2)
	}
	pos := c.staggerSlot(c.stagger)
	c.stagger++
	return pos
}

func (c *Controller) staggerSlot(k int) shared.Position {
	step := 0
	if c.cfg.StaggerWrap > 0 {
		step = k % c.cfg.StaggerWrap
	}
	offset := float64(step) * c.cfg.StaggerStep
	return shared.Origin.Translate(offset, offset)
}

// firstFreeSlot returns the first stagger slot no node sits on exactly, or
// the node count when every slot is taken.
func (c *Controller) firstFreeSlot(nodes []*node.Node) int {
	taken := make(map[shared.Position]bool, len(nodes))
	for _, n := range nodes {
		taken[n.Position] = true
	}
	for k := 0; k < max(c.cfg.StaggerWrap, 1); k++ {
		if !taken[c.staggerSlot(k)] {
			return k
		}
	}
	return len(nodes)
}

// MoveNode sets the node position locally and queues the write.
func (c *Controller) MoveNode(id string, pos shared.Position) error {
	if !pos.Valid() {
		return validation("node position must be finite")
	}
	return c.editNode(id, func(*node.Node) (persistence.NodePatch, error) {
		return persistence.NodePatch{Position: &pos}, nil
	})
}

// RenameNode sets the node title.
func (c *Controller) RenameNode(id, title string) error {
	return c.editNode(id, func(*node.Node) (persistence.NodePatch, error) {
		return persistence.NodePatch{Title: &title}, nil
	})
}

// SetNodeContent sets the free text body of the node.
func (c *Controller) SetNodeContent(id, content string) error {
	return c.editNode(id, func(*node.Node) (persistence.NodePatch, error) {
		return persistence.NodePatch{Content: &content}, nil
	})
}

// ResizeNode sets the node rectangle size.
func (c *Controller) ResizeNode(id string, size shared.Size) error {
	if !size.Valid() {
		return validation("node size must be finite and non-negative")
	}
	return c.editNode(id, func(*node.Node) (persistence.NodePatch, error) {
		return persistence.NodePatch{Size: &size}, nil
	})
}

// SetNodeMetadata replaces the variant payload. The payload must belong to
// the node's variant; unknown metadata keys are kept.
func (c *Controller) SetNodeMetadata(id string, payload node.Payload) error {
	return c.editNode(id, func(n *node.Node) (persistence.NodePatch, error) {
		if payload == nil || !payload.Accepts(n.Variant) {
			return persistence.NodePatch{}, validation(fmt.Sprintf("payload %T does not apply to %s nodes", payload, n.Variant))
		}
		return persistence.NodePatch{Payload: payload, Extra: shared.CloneMap(n.Extra)}, nil
	})
}

func (c *Controller) editNode(id string, build func(*node.Node) (persistence.NodePatch, error)) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	n, ok := c.store.Node(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", cerrors.ErrNodeNotFound, id)
	}
	patch, err := build(n)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	patch.Apply(n)
	if err := c.store.UpsertNode(n); err != nil {
		c.mu.Unlock()
		return err
	}
	c.queueLocked(pending{key: entityKey{nodeEntity, id}, node: patch})
	c.mu.Unlock()

	c.publish(Event{Kind: EventNodeUpdated, NodeID: id})
	return nil
}

// SetEdgeLabel sets the edge label locally and queues the write.
func (c *Controller) SetEdgeLabel(id, label string) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	e, ok := c.store.Edge(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", cerrors.ErrEdgeNotFound, id)
	}
	patch := persistence.EdgePatch{Label: &label}
	patch.Apply(e)
	if err := c.store.UpsertEdge(e); err != nil {
		c.mu.Unlock()
		return err
	}
	c.queueLocked(pending{key: entityKey{edgeEntity, id}, edge: patch})
	c.mu.Unlock()

	c.publish(Event{Kind: EventEdgeUpdated, EdgeID: id})
	return nil
}

// SelectNode selects one node; an empty id clears the selection. Selection
// is never persisted.
func (c *Controller) SelectNode(id string) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if id != "" && !c.store.HasNode(id) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", cerrors.ErrNodeNotFound, id)
	}
	changed := c.selected != id
	c.selected = id
	c.mu.Unlock()

	if changed {
		c.publish(Event{Kind: EventSelectionChanged, NodeID: id})
	}
	return nil
}

// ConnectNodes creates an edge from sourceID to targetID. Self connections,
// duplicates of an existing or in-flight pair and unknown endpoints are
// rejected before any gateway call.
func (c *Controller) ConnectNodes(ctx context.Context, sourceID, targetID string) (*edge.Edge, error) {
	if sourceID == targetID {
		return nil, &cerrors.SelfConnectionError{NodeID: sourceID}
	}

	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	var missing []string
	for _, id := range []string{sourceID, targetID} {
		if !c.store.HasNode(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		c.mu.Unlock()
		return nil, &cerrors.DanglingReferenceError{Missing: missing}
	}
	pair := edge.Pair{SourceID: sourceID, TargetID: targetID}
	if c.store.HasConnection(sourceID, targetID) || c.pendingPairs[pair] {
		c.mu.Unlock()
		return nil, &cerrors.DuplicateConnectionError{SourceID: sourceID, TargetID: targetID}
	}
	c.pendingPairs[pair] = true
	gen := c.gen
	projectID := c.project.ID
	c.beginLocked()
	c.mu.Unlock()

	e, err := c.createEdge(ctx, projectID, pair)

	c.mu.Lock()
	c.endLocked()
	if c.gen != gen {
		c.mu.Unlock()
		if err == nil {
			c.logger.Debug("Discarding edge created after close", zap.String("edge_id", e.ID))
		}
		return nil, cerrors.ErrSessionNotReady
	}
	delete(c.pendingPairs, pair)
	if err != nil {
		c.mu.Unlock()
		c.metrics.PersistenceFailed(persistence.OpCreateEdge)
		return nil, err
	}
	if err := c.store.UpsertEdge(e); err != nil {
		c.mu.Unlock()
		// An endpoint was deleted while the create was in flight.
		c.logger.Warn("Created edge lost an endpoint", zap.String("edge_id", e.ID), zap.Error(err))
		return nil, err
	}
	c.mu.Unlock()

	c.metrics.Inc(func(m *observability.Collector) prometheus.Counter { return m.EdgesCreated })
	c.publish(Event{Kind: EventEdgeAdded, EdgeID: e.ID})
	return e.Clone(), nil
}

func (c *Controller) createEdge(ctx context.Context, projectID string, pair edge.Pair) (*edge.Edge, error) {
	userID, err := c.ids.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	return c.gw.CreateEdge(ctx, persistence.EdgeDraft{
		ProjectID: projectID,
		SourceID:  pair.SourceID,
		TargetID:  pair.TargetID,
		CreatedBy: userID,
	})
}

// DeleteNode removes the node and its incident edges locally, then deletes
// it remotely. A failed remote delete is not rolled back: the error is
// returned, the session stays dirty and Save re-attempts the delete.
func (c *Controller) DeleteNode(ctx context.Context, id string) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.store.HasNode(id) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", cerrors.ErrNodeNotFound, id)
	}
	removed := c.store.RemoveNode(id)
	keys := []entityKey{{nodeEntity, id}}
	events := []Event{{Kind: EventNodeRemoved, NodeID: id}}
	for _, e := range removed {
		keys = append(keys, entityKey{edgeEntity, e.ID})
		events = append(events, Event{Kind: EventEdgeRemoved, EdgeID: e.ID})
		// the remote cascade removes it too
		delete(c.failedDeletes, entityKey{edgeEntity, e.ID})
	}
	c.metrics.AddOutbox(-c.outbox.forget(keys...))
	if c.selected == id {
		c.selected = ""
		events = append(events, Event{Kind: EventSelectionChanged})
	}
	c.mu.Unlock()
	c.publish(events...)

	return c.deleteRemote(ctx, entityKey{nodeEntity, id})
}

// DeleteEdge removes the edge locally, then remotely, with the same failure
// handling as DeleteNode.
func (c *Controller) DeleteEdge(ctx context.Context, id string) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.store.RemoveEdge(id) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", cerrors.ErrEdgeNotFound, id)
	}
	c.metrics.AddOutbox(-c.outbox.forget(entityKey{edgeEntity, id}))
	c.mu.Unlock()
	c.publish(Event{Kind: EventEdgeRemoved, EdgeID: id})

	return c.deleteRemote(ctx, entityKey{edgeEntity, id})
}

func (c *Controller) deleteRemote(ctx context.Context, key entityKey) error {
	c.mu.Lock()
	gen := c.gen
	c.beginLocked()
	c.mu.Unlock()

	op, err := c.sendDelete(ctx, key)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.endLocked()
	if err != nil {
		if c.gen == gen {
			c.failedDeletes[key] = true
		}
		c.metrics.PersistenceFailed(op)
		c.logger.Warn("Remote delete failed", zap.String("entity_id", key.id), zap.Error(err))
		return err
	}
	delete(c.failedDeletes, key)
	if key.kind == nodeEntity {
		c.metrics.Inc(func(m *observability.Collector) prometheus.Counter { return m.NodesDeleted })
	} else {
		c.metrics.Inc(func(m *observability.Collector) prometheus.Counter { return m.EdgesDeleted })
	}
	return nil
}

func (c *Controller) sendDelete(ctx context.Context, key entityKey) (string, error) {
	if key.kind == nodeEntity {
		return persistence.OpDeleteNode, c.gw.DeleteNode(ctx, key.id)
	}
	return persistence.OpDeleteEdge, c.gw.DeleteEdge(ctx, key.id)
}

// ---------------------------------------------------------------------------
// Outbox
// ---------------------------------------------------------------------------

// queueLocked adds p to the outbox and restarts the quiet period timer.
func (c *Controller) queueLocked(p pending) {
	if c.outbox.put(p) {
		c.metrics.Inc(func(m *observability.Collector) prometheus.Counter { return m.CoalescedWrites })
	} else {
		c.metrics.AddOutbox(1)
	}
	c.stopTimerLocked()
	gen := c.gen
	c.timer = time.AfterFunc(c.cfg.QuietPeriod, func() { c.debounced(gen) })
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// debounced runs when the quiet period elapses.
func (c *Controller) debounced(gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.beginLocked()
	c.mu.Unlock()
	defer c.end()

	if err := c.flush(context.Background(), gen); err != nil {
		c.logger.Warn("Background flush failed", zap.Error(err))
		c.publish(Event{Kind: EventPersistFailed, Err: err})
	}
}

// flush sends every queued write. A failed write goes back into the outbox,
// under any newer edit of the same entity, so the next Save tries again.
func (c *Controller) flush(ctx context.Context, gen uint64) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.stopTimerLocked()
	batch := c.outbox.drain()
	c.metrics.AddOutbox(-len(batch))
	c.mu.Unlock()

	var errs []error
	for _, p := range batch {
		err := c.send(ctx, p)
		if err == nil {
			continue
		}
		if cerrors.Is(err, cerrors.ErrRecordNotFound) {
			c.logger.Warn("Dropping write for entity missing remotely", zap.String("entity_id", p.key.id))
			continue
		}
		errs = append(errs, err)

		c.mu.Lock()
		if c.gen == gen && c.hasLocked(p.key) {
			if _, queued := c.outbox.entries[p.key]; !queued {
				c.metrics.AddOutbox(1)
			}
			c.outbox.requeue(p)
		}
		c.mu.Unlock()
	}
	return cerrors.Join(errs...)
}

func (c *Controller) hasLocked(k entityKey) bool {
	if c.store == nil {
		return false
	}
	if k.kind == nodeEntity {
		return c.store.HasNode(k.id)
	}
	_, ok := c.store.Edge(k.id)
	return ok
}

func (c *Controller) send(ctx context.Context, p pending) error {
	var (
		op  string
		err error
	)
	if p.key.kind == nodeEntity {
		op = persistence.OpUpdateNode
		_, err = c.gw.UpdateNode(ctx, p.key.id, p.node)
	} else {
		op = persistence.OpUpdateEdge
		_, err = c.gw.UpdateEdge(ctx, p.key.id, p.edge)
	}
	if err != nil {
		c.metrics.PersistenceFailed(op)
	}
	return err
}

// Save flushes the outbox now, re-attempts failed deletes and waits until
// every in-flight call of the session has settled. The failures of this
// round are joined into the returned error.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	gen := c.gen
	c.saving++
	c.state = Saving
	c.mu.Unlock()
	c.publish(Event{Kind: EventStateChanged, State: Saving})

	defer func() {
		c.mu.Lock()
		c.saving--
		settled := c.saving == 0 && c.gen == gen
		if settled {
			c.state = Ready
		}
		c.mu.Unlock()
		if settled {
			c.publish(Event{Kind: EventStateChanged, State: Ready})
		}
	}()

	var errs []error
	if err := c.flush(ctx, gen); err != nil {
		errs = append(errs, err)
	}

	c.mu.Lock()
	retry := make([]entityKey, 0, len(c.failedDeletes))
	for k := range c.failedDeletes {
		retry = append(retry, k)
	}
	c.mu.Unlock()
	for _, k := range retry {
		if err := c.deleteRemote(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.waitIdle(ctx); err != nil {
		errs = append(errs, err)
	}
	return cerrors.Join(errs...)
}
