package shared

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionValid(t *testing.T) {
	tests := []struct {
		name string
		pos  Position
		want bool
	}{
		{"origin", Origin, true},
		{"negative", Position{X: -10, Y: -3.5}, true},
		{"nan", Position{X: math.NaN(), Y: 0}, false},
		{"inf", Position{X: 0, Y: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pos.Valid())
		})
	}
}

func TestBoundsCenterAndUnion(t *testing.T) {
	a := Bounds{X: 0, Y: 0, Width: 100, Height: 50}
	b := Bounds{X: 200, Y: -50, Width: 20, Height: 20}

	assert.Equal(t, Position{X: 50, Y: 25}, a.Center())

	u := a.Union(b)
	assert.Equal(t, Bounds{X: 0, Y: -50, Width: 220, Height: 100}, u)
}

func TestPositionTranslate(t *testing.T) {
	p := Position{X: 1, Y: 2}.Translate(3, -4)
	assert.True(t, p.Equals(Position{X: 4, Y: -2}))
}

func TestCloneMapIsDeep(t *testing.T) {
	src := map[string]any{
		"color":  "red",
		"nested": map[string]any{"w": 2.0},
		"list":   []any{"a", map[string]any{"b": true}},
	}
	cp := CloneMap(src)
	cp["nested"].(map[string]any)["w"] = 3.0
	cp["list"].([]any)[1].(map[string]any)["b"] = false

	assert.Equal(t, 2.0, src["nested"].(map[string]any)["w"])
	assert.Equal(t, true, src["list"].([]any)[1].(map[string]any)["b"])
	assert.Nil(t, CloneMap(nil))
}
