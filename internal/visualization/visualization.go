// Package visualization edits single visualization configurations. Every
// function returns a new value and leaves its input untouched.
package visualization

import (
	"fmt"
	"slices"

	"github.com/pitabwire/reportbuilder/model"
)

// DefaultRect is the rectangle given to a visualization created without one.
var DefaultRect = model.Rect{X: 0, Y: 0, Width: 400, Height: 300}

var defaultTitles = map[model.VisualizationType]string{
	model.VisualizationTable:  "New table",
	model.VisualizationChart:  "New chart",
	model.VisualizationMetric: "New metric",
	model.VisualizationText:   "New text",
}

// New creates a visualization of the given type. Charts default to bar. The
// rectangle is clamped to the minimum size and to non-negative coordinates.
func New(id string, t model.VisualizationType, rect model.Rect) (model.VisualizationConfig, error) {
	if !t.Valid() {
		return model.VisualizationConfig{}, model.NewBadRequestError(fmt.Sprintf("visualization type %q is not supported", t))
	}
	v := model.VisualizationConfig{
		ID:         id,
		Title:      defaultTitles[t],
		Type:       t,
		Dimensions: []string{},
		Measures:   []string{},
		Styling:    DefaultStyling(),
		Position:   ClampRect(rect),
	}
	if t == model.VisualizationChart {
		v.ChartType = model.ChartBar
	}
	return v, nil
}

// ClampRect enforces the minimum visualization size and keeps the origin on
// the canvas.
func ClampRect(r model.Rect) model.Rect {
	r.X = max(r.X, 0)
	r.Y = max(r.Y, 0)
	r.Width = max(r.Width, model.MinVisualizationWidth)
	r.Height = max(r.Height, model.MinVisualizationHeight)
	return r
}

// SetType changes the visualization kind. Leaving chart clears the chart
// type; entering chart without one selects bar.
func SetType(v model.VisualizationConfig, t model.VisualizationType) (model.VisualizationConfig, error) {
	if !t.Valid() {
		return v, model.NewBadRequestError(fmt.Sprintf("visualization type %q is not supported", t))
	}
	v = clone(v)
	v.Type = t
	switch {
	case t != model.VisualizationChart:
		v.ChartType = ""
	case v.ChartType == "":
		v.ChartType = model.ChartBar
	}
	return v, nil
}

// SetChartType changes the chart subtype. It does nothing unless the
// visualization is a chart.
func SetChartType(v model.VisualizationConfig, c model.ChartType) (model.VisualizationConfig, error) {
	if !c.Valid() {
		return v, model.NewBadRequestError(fmt.Sprintf("chart type %q is not supported", c))
	}
	if v.Type != model.VisualizationChart {
		return v, nil
	}
	v = clone(v)
	v.ChartType = c
	return v, nil
}

// AddDimension appends a field reference to the dimensions unless already
// present.
func AddDimension(v model.VisualizationConfig, ref string) model.VisualizationConfig {
	if slices.Contains(v.Dimensions, ref) {
		return v
	}
	v = clone(v)
	v.Dimensions = append(v.Dimensions, ref)
	return v
}

// AddMeasure appends a field reference to the measures. Fields that are not
// aggregatable are not added.
func AddMeasure(v model.VisualizationConfig, ref string, field model.FieldDefinition) model.VisualizationConfig {
	if !field.Aggregatable || slices.Contains(v.Measures, ref) {
		return v
	}
	v = clone(v)
	v.Measures = append(v.Measures, ref)
	return v
}

// RemoveDimension drops a field reference from the dimensions.
func RemoveDimension(v model.VisualizationConfig, ref string) model.VisualizationConfig {
	v = clone(v)
	v.Dimensions = slices.DeleteFunc(v.Dimensions, func(d string) bool { return d == ref })
	return v
}

// RemoveMeasure drops a field reference from the measures.
func RemoveMeasure(v model.VisualizationConfig, ref string) model.VisualizationConfig {
	v = clone(v)
	v.Measures = slices.DeleteFunc(v.Measures, func(m string) bool { return m == ref })
	return v
}

// Patch is a partial update of a visualization. Nil fields are left as they
// are.
type Patch struct {
	Title     *string                  `json:"title,omitempty"`
	Type      *model.VisualizationType `json:"type,omitempty"`
	ChartType *model.ChartType         `json:"chartType,omitempty"`
	Styling   *StylingPatch            `json:"styling,omitempty"`
}

// Apply applies a patch. Type is applied before ChartType so that a patch
// switching to chart can also pick the subtype.
func Apply(v model.VisualizationConfig, p Patch) (model.VisualizationConfig, error) {
	var err error
	v = clone(v)
	if p.Title != nil {
		v.Title = *p.Title
	}
	if p.Type != nil {
		if v, err = SetType(v, *p.Type); err != nil {
			return v, err
		}
	}
	if p.ChartType != nil {
		if v, err = SetChartType(v, *p.ChartType); err != nil {
			return v, err
		}
	}
	if p.Styling != nil {
		v = UpdateStyling(v, *p.Styling)
	}
	return v, nil
}

func clone(v model.VisualizationConfig) model.VisualizationConfig {
	v.Dimensions = slices.Clone(v.Dimensions)
	v.Measures = slices.Clone(v.Measures)
	v.Styling.Colors = slices.Clone(v.Styling.Colors)
	if v.Dimensions == nil {
		v.Dimensions = []string{}
	}
	if v.Measures == nil {
		v.Measures = []string{}
	}
	return v
}
