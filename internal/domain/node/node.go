// Package node defines the canvas element: one visual and semantic unit of a
// project graph.
//
// A node carries a Variant discriminant and a variant specific Payload. The
// payload replaces an untyped metadata bag: task, milestone, goal, group and
// asset nodes each get their own payload type, and decoding a persisted
// record switches exhaustively over the variant (see payload.go).
package node

import (
	"fmt"
	"time"

	"canvas-backend/internal/domain/shared"
	cerrors "canvas-backend/internal/errors"
)

// Variant is the node kind.
type Variant string

const (
	VariantTask      Variant = "task"
	VariantMilestone Variant = "milestone"
	VariantNote      Variant = "note"
	VariantGoal      Variant = "goal"
	VariantGroup     Variant = "group"
	VariantImage     Variant = "image"
	VariantDocument  Variant = "document"
)

// Variants lists every known variant in a stable order.
var Variants = []Variant{
	VariantTask, VariantMilestone, VariantNote, VariantGoal,
	VariantGroup, VariantImage, VariantDocument,
}

// ParseVariant converts a raw tag into a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", cerrors.ErrUnknownVariant, s)
	}
	return v, nil
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case VariantTask, VariantMilestone, VariantNote, VariantGoal,
		VariantGroup, VariantImage, VariantDocument:
		return true
	}
	return false
}

// DefaultTitle is the title given to a node added without one.
func (v Variant) DefaultTitle() string {
	switch v {
	case VariantTask:
		return "New Task"
	case VariantMilestone:
		return "New Milestone"
	case VariantNote:
		return "New Note"
	case VariantGoal:
		return "New Goal"
	case VariantGroup:
		return "New Group"
	case VariantImage:
		return "Image"
	case VariantDocument:
		return "Document"
	}
	return "Untitled"
}

// DefaultSize is the rectangle size assumed for a node without an explicit size.
var DefaultSize = shared.Size{Width: 200, Height: 100}

// Node is one canvas element.
type Node struct {
	ID        string
	ProjectID string
	Variant   Variant
	Title     string
	Content   *string
	Position  shared.Position
	Size      *shared.Size
	Style     map[string]any
	Payload   Payload
	// Extra keeps metadata keys the payload does not own so they survive a
	// round trip through persistence unchanged.
	Extra     map[string]any
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Content != nil {
		c := *n.Content
		cp.Content = &c
	}
	if n.Size != nil {
		s := *n.Size
		cp.Size = &s
	}
	cp.Style = shared.CloneMap(n.Style)
	cp.Extra = shared.CloneMap(n.Extra)
	cp.Payload = ClonePayload(n.Payload)
	return &cp
}

// EffectiveSize returns the node size, falling back to DefaultSize.
func (n *Node) EffectiveSize() shared.Size {
	if n.Size != nil {
		return *n.Size
	}
	return DefaultSize
}

// Bounds returns the node rectangle in canvas coordinates.
func (n *Node) Bounds() shared.Bounds {
	return shared.BoundsAt(n.Position, n.EffectiveSize())
}

// Center returns the visual centre of the node.
func (n *Node) Center() shared.Position {
	return n.Bounds().Center()
}

// Validate checks the structural invariants of a node.
func (n *Node) Validate() error {
	if !n.Variant.Valid() {
		return fmt.Errorf("%w: %q", cerrors.ErrUnknownVariant, n.Variant)
	}
	if !n.Position.Valid() {
		return cerrors.Validation(cerrors.CodeValidationFailed, "node position must be finite").Build()
	}
	if n.Size != nil && !n.Size.Valid() {
		return cerrors.Validation(cerrors.CodeValidationFailed, "node size must be finite and non-negative").Build()
	}
	if n.Payload != nil && !n.Payload.Accepts(n.Variant) {
		return cerrors.Validation(cerrors.CodeValidationFailed,
			fmt.Sprintf("payload %T does not apply to %s nodes", n.Payload, n.Variant)).Build()
	}
	return nil
}
