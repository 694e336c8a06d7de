package session

import (
	"canvas-backend/internal/persistence"
)

type entityKind uint8

const (
	nodeEntity entityKind = iota
	edgeEntity
)

type entityKey struct {
	kind entityKind
	id   string
}

// pending is one coalesced write waiting in the outbox.
type pending struct {
	key  entityKey
	node persistence.NodePatch
	edge persistence.EdgePatch
}

// merge overrides p field by field with newer.
func (p pending) merge(newer pending) pending {
	if p.key.kind == nodeEntity {
		p.node = p.node.Merge(newer.node)
	} else {
		p.edge = p.edge.Merge(newer.edge)
	}
	return p
}

// outbox holds at most one pending write per entity, in first-queued order.
type outbox struct {
	entries map[entityKey]pending
	order   []entityKey
}

func newOutbox() *outbox {
	return &outbox{entries: make(map[entityKey]pending)}
}

func (o *outbox) len() int { return len(o.entries) }

// put queues p, merging it into an existing entry for the same entity. It
// reports whether a merge happened.
func (o *outbox) put(p pending) bool {
	if cur, ok := o.entries[p.key]; ok {
		o.entries[p.key] = cur.merge(p)
		return true
	}
	o.entries[p.key] = p
	o.order = append(o.order, p.key)
	return false
}

// requeue puts back a write that failed. Anything queued for the entity
// since the write was drained is newer and wins.
func (o *outbox) requeue(p pending) {
	if cur, ok := o.entries[p.key]; ok {
		o.entries[p.key] = p.merge(cur)
		return
	}
	o.entries[p.key] = p
	o.order = append([]entityKey{p.key}, o.order...)
}

// forget drops the entries of the given entities.
func (o *outbox) forget(keys ...entityKey) int {
	n := 0
	for _, k := range keys {
		if _, ok := o.entries[k]; ok {
			delete(o.entries, k)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	kept := o.order[:0]
	for _, k := range o.order {
		if _, ok := o.entries[k]; ok {
			kept = append(kept, k)
		}
	}
	o.order = kept
	return n
}

// drain removes and returns every entry in queue order.
func (o *outbox) drain() []pending {
	if len(o.entries) == 0 {
		return nil
	}
	out := make([]pending, 0, len(o.order))
	for _, k := range o.order {
		out = append(out, o.entries[k])
	}
	o.entries = make(map[entityKey]pending)
	o.order = nil
	return out
}
