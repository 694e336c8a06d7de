// Package shared holds the value objects shared by the canvas domain
// packages: positions, sizes and rectangular bounds in canvas coordinates.
package shared

import "math"

// Position is a point in canvas coordinate space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Origin is the default position of a freshly created node.
var Origin = Position{}

// Valid reports whether both coordinates are finite numbers.
func (p Position) Valid() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

// Translate returns p moved by dx, dy.
func (p Position) Translate(dx, dy float64) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Equals compares two positions with a small tolerance.
func (p Position) Equals(other Position) bool {
	const epsilon = 1e-9
	return math.Abs(p.X-other.X) < epsilon && math.Abs(p.Y-other.Y) < epsilon
}

// Size is the width and height of a node rectangle.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the size is finite and non-negative.
func (s Size) Valid() bool {
	return isFinite(s.Width) && isFinite(s.Height) && s.Width >= 0 && s.Height >= 0
}

// Bounds is an axis aligned rectangle anchored at its top-left corner.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the visual centre of the rectangle.
func (b Bounds) Center() Position {
	return Position{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Right returns the x coordinate of the right edge.
func (b Bounds) Right() float64 { return b.X + b.Width }

// Bottom returns the y coordinate of the bottom edge.
func (b Bounds) Bottom() float64 { return b.Y + b.Height }

// Union returns the smallest rectangle containing both b and o.
func (b Bounds) Union(o Bounds) Bounds {
	minX := math.Min(b.X, o.X)
	minY := math.Min(b.Y, o.Y)
	maxX := math.Max(b.Right(), o.Right())
	maxY := math.Max(b.Bottom(), o.Bottom())
	return Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// BoundsAt builds the rectangle of a node at p with size s.
func BoundsAt(p Position, s Size) Bounds {
	return Bounds{X: p.X, Y: p.Y, Width: s.Width, Height: s.Height}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CloneMap deep copies a JSON-shaped map. Nested maps and slices are copied;
// scalar values are shared. A nil map stays nil.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// CloneStrings copies a string slice, keeping nil as nil.
func CloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
