package layout

import (
	"fmt"
	"sort"

	"github.com/pitabwire/reportbuilder/model"
)

// Edge is an alignment target.
type Edge string

// Alignment edges.
const (
	EdgeLeft   Edge = "left"
	EdgeCenter Edge = "center"
	EdgeRight  Edge = "right"
	EdgeTop    Edge = "top"
	EdgeMiddle Edge = "middle"
	EdgeBottom Edge = "bottom"
)

// Valid reports whether e is a known edge.
func (e Edge) Valid() bool {
	switch e {
	case EdgeLeft, EdgeCenter, EdgeRight, EdgeTop, EdgeMiddle, EdgeBottom:
		return true
	}
	return false
}

// Axis is a distribution direction.
type Axis string

// Distribution axes.
const (
	AxisHorizontal Axis = "horizontal"
	AxisVertical   Axis = "vertical"
)

// Valid reports whether a is a known axis.
func (a Axis) Valid() bool {
	return a == AxisHorizontal || a == AxisVertical
}

// Minimum member counts for alignment and distribution.
const (
	MinAlignCount      = 2
	MinDistributeCount = 3
)

// AlignTargets picks the visualizations an align or distribute command acts
// on. When the report has exactly two visualizations and one is selected,
// both are targeted; otherwise the multi-selection is used as given.
func AlignTargets(selectedID string, selection, all []string) []string {
	if selectedID != "" && len(all) == 2 {
		return append([]string{}, all...)
	}
	return append([]string{}, selection...)
}

// Align lines rectangles up on an edge. Fewer than two rectangles are
// returned unchanged. The input slice is not modified.
func Align(rects []model.Rect, edge Edge) ([]model.Rect, error) {
	if !edge.Valid() {
		return nil, model.NewBadRequestError(fmt.Sprintf("alignment %q is not supported", edge))
	}
	out := append([]model.Rect{}, rects...)
	if len(out) < MinAlignCount {
		return out, nil
	}

	switch edge {
	case EdgeLeft:
		minX := out[0].X
		for _, r := range out[1:] {
			minX = min(minX, r.X)
		}
		for i := range out {
			out[i].X = minX
		}
	case EdgeRight:
		maxRight := out[0].X + out[0].Width
		for _, r := range out[1:] {
			maxRight = max(maxRight, r.X+r.Width)
		}
		for i := range out {
			out[i].X = maxRight - out[i].Width
		}
	case EdgeCenter:
		var sum float64
		for _, r := range out {
			sum += r.X + r.Width/2
		}
		mean := sum / float64(len(out))
		for i := range out {
			out[i].X = mean - out[i].Width/2
		}
	case EdgeTop:
		minY := out[0].Y
		for _, r := range out[1:] {
			minY = min(minY, r.Y)
		}
		for i := range out {
			out[i].Y = minY
		}
	case EdgeBottom:
		maxBottom := out[0].Y + out[0].Height
		for _, r := range out[1:] {
			maxBottom = max(maxBottom, r.Y+r.Height)
		}
		for i := range out {
			out[i].Y = maxBottom - out[i].Height
		}
	case EdgeMiddle:
		var sum float64
		for _, r := range out {
			sum += r.Y + r.Height/2
		}
		mean := sum / float64(len(out))
		for i := range out {
			out[i].Y = mean - out[i].Height/2
		}
	}
	return out, nil
}

// Distribute spaces rectangles evenly along an axis. The rectangles with the
// smallest and largest leading coordinate stay where they are; the others
// are placed so every gap is equal. Fewer than three rectangles are returned
// unchanged. The result keeps the input order.
func Distribute(rects []model.Rect, axis Axis) ([]model.Rect, error) {
	if !axis.Valid() {
		return nil, model.NewBadRequestError(fmt.Sprintf("distribution %q is not supported", axis))
	}
	out := append([]model.Rect{}, rects...)
	n := len(out)
	if n < MinDistributeCount {
		return out, nil
	}

	lead := func(r model.Rect) float64 { return r.X }
	size := func(r model.Rect) float64 { return r.Width }
	set := func(r *model.Rect, v float64) { r.X = v }
	if axis == AxisVertical {
		lead = func(r model.Rect) float64 { return r.Y }
		size = func(r model.Rect) float64 { return r.Height }
		set = func(r *model.Rect, v float64) { r.Y = v }
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return lead(out[order[a]]) < lead(out[order[b]]) })

	first, last := out[order[0]], out[order[n-1]]
	span := lead(last) + size(last) - lead(first)
	var total float64
	for _, r := range out {
		total += size(r)
	}
	gap := (span - total) / float64(n-1)

	for k := 1; k < n-1; k++ {
		prev := out[order[k-1]]
		set(&out[order[k]], lead(prev)+size(prev)+gap)
	}
	return out, nil
}
