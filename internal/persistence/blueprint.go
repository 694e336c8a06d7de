package persistence

import (
	"fmt"

	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/template"
	cerrors "canvas-backend/internal/errors"
)

// ElementPlan is the node draft of one template element.
type ElementPlan struct {
	LocalID string
	Draft   NodeDraft
}

// ConnectionPlan is the edge draft of one template connection. Its endpoints
// are still local element identifiers.
type ConnectionPlan struct {
	LocalID string
	Source  string
	Target  string
	Draft   EdgeDraft
}

func (c ConnectionPlan) warning(templateID, reason string) *cerrors.TemplateIntegrityWarning {
	return &cerrors.TemplateIntegrityWarning{
		TemplateID:   templateID,
		ConnectionID: c.LocalID,
		SourceLocal:  c.Source,
		TargetLocal:  c.Target,
		Reason:       reason,
	}
}

// Reasons a template connection is skipped.
const (
	ReasonUnresolved = "endpoint not found in template elements"
	ReasonSelf       = "connection from an element to itself"
	ReasonDuplicate  = "duplicate connection"
)

// ResolvedEdge is a connection whose endpoints are global node identifiers.
type ResolvedEdge struct {
	LocalID string
	Draft   EdgeDraft
}

// TemplatePlan lists the drafts that instantiate a template into a project.
// Nodes always precede edges.
type TemplatePlan struct {
	Nodes []ElementPlan
	Edges []ConnectionPlan
}

// Locals maps every element local identifier to itself. Resolving through
// it reports the warnings an instantiation will produce before any node
// exists.
func (p TemplatePlan) Locals() map[string]string {
	locals := make(map[string]string, len(p.Nodes))
	for _, el := range p.Nodes {
		locals[el.LocalID] = el.LocalID
	}
	return locals
}

// Resolve maps the connection endpoints through locals, in template order.
// A connection with an endpoint missing from locals, one from a node to
// itself, or one repeating an earlier (source, target) pair is left out
// and reported as a warning.
func (p TemplatePlan) Resolve(templateID string, locals map[string]string) ([]ResolvedEdge, []*cerrors.TemplateIntegrityWarning) {
	var (
		edges    = make([]ResolvedEdge, 0, len(p.Edges))
		warnings []*cerrors.TemplateIntegrityWarning
		seen     = make(map[[2]string]bool, len(p.Edges))
	)
	for _, c := range p.Edges {
		src, okSrc := locals[c.Source]
		tgt, okTgt := locals[c.Target]
		switch {
		case !okSrc || !okTgt:
			warnings = append(warnings, c.warning(templateID, ReasonUnresolved))
			continue
		case src == tgt:
			warnings = append(warnings, c.warning(templateID, ReasonSelf))
			continue
		case seen[[2]string{src, tgt}]:
			warnings = append(warnings, c.warning(templateID, ReasonDuplicate))
			continue
		}
		seen[[2]string{src, tgt}] = true
		d := c.Draft
		d.SourceID, d.TargetID = src, tgt
		edges = append(edges, ResolvedEdge{LocalID: c.LocalID, Draft: d})
	}
	return edges, warnings
}

// PlanTemplate expands t into drafts for projectID, created by ownerID.
// Elements without metadata get the variant default payload and elements
// without a title get the variant default title.
func PlanTemplate(t *template.Template, projectID, ownerID string) (TemplatePlan, error) {
	plan := TemplatePlan{
		Nodes: make([]ElementPlan, 0, len(t.Elements)),
		Edges: make([]ConnectionPlan, 0, len(t.Connections)),
	}
	for _, el := range t.Elements {
		if !el.Variant.Valid() {
			return TemplatePlan{}, fmt.Errorf("%w: template %q element %q: %w",
				cerrors.ErrMalformedRecord, t.ID, el.LocalID, cerrors.ErrUnknownVariant)
		}
		payload, extra := node.DefaultPayload(el.Variant), map[string]any(nil)
		if el.Metadata != nil {
			var err error
			if payload, extra, err = node.DecodeMetadata(el.Variant, el.Metadata); err != nil {
				return TemplatePlan{}, fmt.Errorf("template %q element %q: %w", t.ID, el.LocalID, err)
			}
		}
		title := el.Title
		if title == "" {
			title = el.Variant.DefaultTitle()
		}
		plan.Nodes = append(plan.Nodes, ElementPlan{
			LocalID: el.LocalID,
			Draft: NodeDraft{
				ProjectID: projectID,
				Variant:   el.Variant,
				Title:     title,
				Content:   el.Content,
				Position:  el.Position,
				Size:      el.Size,
				Style:     el.Style,
				Payload:   payload,
				Extra:     extra,
				CreatedBy: ownerID,
			},
		})
	}
	for _, c := range t.Connections {
		plan.Edges = append(plan.Edges, ConnectionPlan{
			LocalID: c.LocalID,
			Source:  c.Source,
			Target:  c.Target,
			Draft: EdgeDraft{
				ProjectID: projectID,
				Label:     c.Label,
				Style:     c.Style,
				Metadata:  c.Metadata,
				CreatedBy: ownerID,
			},
		})
	}
	return plan, nil
}
