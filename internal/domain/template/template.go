// Package template defines reusable graph blueprints. Elements and
// connections carry local identifiers that only become global node and edge
// identifiers when the template is instantiated into a project.
package template

import (
	"time"

	"canvas-backend/internal/domain/node"
	"canvas-backend/internal/domain/shared"
)

// Template is a blueprint of elements and connections.
type Template struct {
	ID           string
	Title        string
	Description  string
	Category     string
	IsOfficial   bool
	IsPublic     bool
	Elements     []Element
	Connections  []Connection
	ThumbnailURL string
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Element is the blueprint of one node.
type Element struct {
	LocalID  string          `json:"id"`
	Variant  node.Variant    `json:"type"`
	Title    string          `json:"title"`
	Content  *string         `json:"content,omitempty"`
	Position shared.Position `json:"position"`
	Size     *shared.Size    `json:"size,omitempty"`
	Style    map[string]any  `json:"style,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// Connection is the blueprint of one edge, referencing element local IDs.
type Connection struct {
	LocalID  string         `json:"id"`
	Source   string         `json:"source"`
	Target   string         `json:"target"`
	Label    *string        `json:"label,omitempty"`
	Style    map[string]any `json:"style,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ElementIndex maps local element identifiers to their position in Elements.
func (t *Template) ElementIndex() map[string]int {
	idx := make(map[string]int, len(t.Elements))
	for i, el := range t.Elements {
		idx[el.LocalID] = i
	}
	return idx
}
