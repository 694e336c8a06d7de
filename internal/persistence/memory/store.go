// Package memory implements persistence.Gateway in process. Rows are kept
// as JSON documents so every call goes through the record codec exactly like
// a remote store would.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"

	cerrors "canvas-backend/internal/errors"
)

type row struct {
	seq  uint64
	data []byte
}

// table is an insertion ordered set of JSON rows keyed by identifier.
type table struct {
	name string
	rows map[string]row
}

func newTable(name string) *table {
	return &table{name: name, rows: make(map[string]row)}
}

func notFound(table, id string) error {
	return fmt.Errorf("%w: %s %q", cerrors.ErrRecordNotFound, table, id)
}

func put[R any](t *table, seq uint64, id string, rec R) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s row: %w", t.name, err)
	}
	if existing, ok := t.rows[id]; ok {
		seq = existing.seq
	}
	t.rows[id] = row{seq: seq, data: data}
	return nil
}

func get[R any](t *table, id string) (R, error) {
	var rec R
	r, ok := t.rows[id]
	if !ok {
		return rec, notFound(t.name, id)
	}
	if err := json.Unmarshal(r.data, &rec); err != nil {
		return rec, fmt.Errorf("%w: %s %q: %v", cerrors.ErrMalformedRecord, t.name, id, err)
	}
	return rec, nil
}

// scan decodes every row, in insertion order, accepted by keep.
func scan[R any](t *table, keep func(R) bool) ([]R, error) {
	ordered := make([]row, 0, len(t.rows))
	for _, r := range t.rows {
		ordered = append(ordered, r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	var out []R
	for _, r := range ordered {
		var rec R
		if err := json.Unmarshal(r.data, &rec); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", cerrors.ErrMalformedRecord, t.name, err)
		}
		if keep == nil || keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// removeWhere deletes every row accepted by match.
func removeWhere[R any](t *table, match func(R) bool) error {
	for id, r := range t.rows {
		var rec R
		if err := json.Unmarshal(r.data, &rec); err != nil {
			return fmt.Errorf("%w: %s %q: %v", cerrors.ErrMalformedRecord, t.name, id, err)
		}
		if match(rec) {
			delete(t.rows, id)
		}
	}
	return nil
}

func (t *table) has(id string) bool {
	_, ok := t.rows[id]
	return ok
}

func (t *table) remove(id string) bool {
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	return true
}

// putRaw stores an already encoded document. Tests use it to plant rows a
// well behaved writer would never produce.
func (t *table) putRaw(seq uint64, id string, data []byte) {
	t.rows[id] = row{seq: seq, data: data}
}
