package node

import (
	"fmt"
	"time"

	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
)

// Payload is the variant specific part of a node. The concrete types form a
// closed set: TaskPayload, MilestonePayload, NotePayload, GoalPayload,
// GroupPayload and AssetPayload.
type Payload interface {
	// Accepts reports whether the payload belongs on a node of variant v.
	Accepts(v Variant) bool
	// keys lists the metadata keys the payload owns.
	keys() []string
	encode(into map[string]any)
}

// TaskPayload carries the planning fields of a task node.
type TaskPayload struct {
	Priority shared.TaskPriority
	Status   shared.TaskStatus
	DueDate  *time.Time
}

// MilestonePayload carries the milestone date.
type MilestonePayload struct {
	Date *time.Time
}

// NotePayload is empty: a note carries nothing beyond its content.
type NotePayload struct{}

// GoalPayload carries the target date of a goal.
type GoalPayload struct {
	TargetDate *time.Time
}

// GroupPayload carries the presentation state of a group container.
type GroupPayload struct {
	Collapsed bool
}

// AssetPayload references the file shown by an image or document node.
type AssetPayload struct {
	URL      string
	MimeType string
}

const (
	keyPriority   = "priority"
	keyStatus     = "status"
	keyDueDate    = "due_date"
	keyDate       = "date"
	keyTargetDate = "target_date"
	keyCollapsed  = "collapsed"
	keyURL        = "url"
	keyMimeType   = "mime_type"
)

func (TaskPayload) Accepts(v Variant) bool      { return v == VariantTask }
func (MilestonePayload) Accepts(v Variant) bool { return v == VariantMilestone }
func (NotePayload) Accepts(v Variant) bool      { return v == VariantNote }
func (GoalPayload) Accepts(v Variant) bool      { return v == VariantGoal }
func (GroupPayload) Accepts(v Variant) bool     { return v == VariantGroup }
func (AssetPayload) Accepts(v Variant) bool {
	return v == VariantImage || v == VariantDocument
}

func (TaskPayload) keys() []string      { return []string{keyPriority, keyStatus, keyDueDate} }
func (MilestonePayload) keys() []string { return []string{keyDate} }
func (NotePayload) keys() []string      { return nil }
func (GoalPayload) keys() []string      { return []string{keyTargetDate} }
func (GroupPayload) keys() []string     { return []string{keyCollapsed} }
func (AssetPayload) keys() []string     { return []string{keyURL, keyMimeType} }

func (p TaskPayload) encode(m map[string]any) {
	putString(m, keyPriority, string(p.Priority))
	putString(m, keyStatus, string(p.Status))
	putTime(m, keyDueDate, p.DueDate)
}

func (p MilestonePayload) encode(m map[string]any) { putTime(m, keyDate, p.Date) }
func (NotePayload) encode(map[string]any)          {}
func (p GoalPayload) encode(m map[string]any)      { putTime(m, keyTargetDate, p.TargetDate) }

func (p GroupPayload) encode(m map[string]any) {
	if p.Collapsed {
		m[keyCollapsed] = true
	}
}

func (p AssetPayload) encode(m map[string]any) {
	putString(m, keyURL, p.URL)
	putString(m, keyMimeType, p.MimeType)
}

// DefaultPayload returns the payload a freshly added node of variant v gets.
func DefaultPayload(v Variant) Payload {
	switch v {
	case VariantTask:
		return TaskPayload{Priority: shared.PriorityMedium, Status: shared.TaskPending}
	case VariantMilestone:
		return MilestonePayload{}
	case VariantNote:
		return NotePayload{}
	case VariantGoal:
		return GoalPayload{}
	case VariantGroup:
		return GroupPayload{}
	case VariantImage, VariantDocument:
		return AssetPayload{}
	}
	return nil
}

// ClonePayload deep copies a payload value.
func ClonePayload(p Payload) Payload {
	switch t := p.(type) {
	case TaskPayload:
		t.DueDate = cloneTime(t.DueDate)
		return t
	case MilestonePayload:
		t.Date = cloneTime(t.Date)
		return t
	case GoalPayload:
		t.TargetDate = cloneTime(t.TargetDate)
		return t
	}
	return p
}

// EncodeMetadata flattens a payload plus the extra keys into the metadata map
// stored by the persistence layer. Payload keys win over extra keys. The
// result is nil when there is nothing to store.
func EncodeMetadata(p Payload, extra map[string]any) map[string]any {
	m := shared.CloneMap(extra)
	if m == nil {
		m = make(map[string]any)
	}
	if p != nil {
		for _, k := range p.keys() {
			delete(m, k)
		}
		p.encode(m)
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// DecodeMetadata splits a persisted metadata map into the variant payload and
// the keys the payload does not own. Unknown variants and ill-typed payload
// fields are reported as malformed records.
func DecodeMetadata(v Variant, meta map[string]any) (Payload, map[string]any, error) {
	extra := shared.CloneMap(meta)
	var (
		p   Payload
		err error
	)
	switch v {
	case VariantTask:
		var tp TaskPayload
		var prio, status string
		if prio, err = takeString(extra, keyPriority); err != nil {
			break
		}
		if status, err = takeString(extra, keyStatus); err != nil {
			break
		}
		tp.Priority = shared.TaskPriority(prio)
		tp.Status = shared.TaskStatus(status)
		if tp.Priority != "" && !tp.Priority.Valid() {
			err = fmt.Errorf("unknown priority %q", prio)
			break
		}
		if tp.Status != "" && !tp.Status.Valid() {
			err = fmt.Errorf("unknown status %q", status)
			break
		}
		tp.DueDate, err = takeTime(extra, keyDueDate)
		p = tp
	case VariantMilestone:
		var mp MilestonePayload
		mp.Date, err = takeTime(extra, keyDate)
		p = mp
	case VariantNote:
		p = NotePayload{}
	case VariantGoal:
		var gp GoalPayload
		gp.TargetDate, err = takeTime(extra, keyTargetDate)
		p = gp
	case VariantGroup:
		var gp GroupPayload
		gp.Collapsed, err = takeBool(extra, keyCollapsed)
		p = gp
	case VariantImage, VariantDocument:
		var ap AssetPayload
		if ap.URL, err = takeString(extra, keyURL); err != nil {
			break
		}
		ap.MimeType, err = takeString(extra, keyMimeType)
		p = ap
	default:
		return nil, nil, fmt.Errorf("%w: %w: %q", cerrors.ErrMalformedRecord, cerrors.ErrUnknownVariant, v)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s metadata: %v", cerrors.ErrMalformedRecord, v, err)
	}
	if len(extra) == 0 {
		extra = nil
	}
	return p, extra, nil
}

func putString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}

func putTime(m map[string]any, key string, t *time.Time) {
	if t != nil {
		m[key] = t.UTC().Format(time.RFC3339Nano)
	}
}

func takeString(m map[string]any, key string) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		delete(m, key)
		return "", nil
	}
	delete(m, key)
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s: expected string, got %T", key, raw)
	}
	return s, nil
}

func takeBool(m map[string]any, key string) (bool, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		delete(m, key)
		return false, nil
	}
	delete(m, key)
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("%s: expected bool, got %T", key, raw)
	}
	return b, nil
}

func takeTime(m map[string]any, key string) (*time.Time, error) {
	s, err := takeString(m, key)
	if err != nil || s == "" {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	t = t.UTC()
	return &t, nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
