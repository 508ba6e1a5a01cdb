package layout

import (
	"math"

	"github.com/pitabwire/reportbuilder/model"
)

// Grid size bounds.
const (
	MinGridSize     = 5
	MaxGridSize     = 50
	DefaultGridSize = 20
)

// Grid snaps committed coordinates to multiples of Size when Enabled.
type Grid struct {
	Enabled bool
	Size    int
}

// NewGrid returns a grid with the size clamped to [MinGridSize, MaxGridSize].
// A zero size selects DefaultGridSize.
func NewGrid(enabled bool, size int) Grid {
	return Grid{Enabled: enabled, Size: ClampGridSize(size)}
}

// ClampGridSize bounds a grid size. Zero or negative sizes select the
// default.
func ClampGridSize(size int) int {
	if size <= 0 {
		return DefaultGridSize
	}
	return min(max(size, MinGridSize), MaxGridSize)
}

// Snap rounds v to the nearest grid line. It returns v unchanged when the
// grid is disabled.
func (g Grid) Snap(v float64) float64 {
	if !g.Enabled {
		return v
	}
	size := float64(ClampGridSize(g.Size))
	return math.Round(v/size) * size
}

// Move places a rectangle at (x, y), clamped to the canvas origin and snapped
// to the grid. The size is unchanged.
func Move(r model.Rect, x, y float64, g Grid) model.Rect {
	r.X = g.Snap(max(x, 0))
	r.Y = g.Snap(max(y, 0))
	return r
}

// Resize sets a rectangle's size, snapped to the grid and clamped to the
// minimum visualization size. The origin is unchanged.
func Resize(r model.Rect, width, height float64, g Grid) model.Rect {
	r.Width = max(g.Snap(width), model.MinVisualizationWidth)
	r.Height = max(g.Snap(height), model.MinVisualizationHeight)
	return r
}
