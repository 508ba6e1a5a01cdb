// Package layout implements the geometric operations over visualization
// rectangles: templates, alignment, distribution, grid snapping, and the
// drag/resize interaction.
package layout

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/reportbuilder/model"
)

// Default canvas size.
const (
	DefaultCanvasWidth  = 1200
	DefaultCanvasHeight = 800
)

// Template is a canvas size plus an ordered list of slots.
type Template struct {
	ID     string       `yaml:"id"     json:"id"`
	Name   string       `yaml:"name"   json:"name"`
	Width  float64      `yaml:"width"  json:"width"`
	Height float64      `yaml:"height" json:"height"`
	Slots  []model.Rect `yaml:"slots"  json:"slots"`
}

// BuiltinTemplates returns the templates that are always available.
func BuiltinTemplates() []Template {
	return []Template{
		{
			ID: "single", Name: "Single", Width: DefaultCanvasWidth, Height: DefaultCanvasHeight,
			Slots: []model.Rect{{X: 0, Y: 0, Width: 1200, Height: 800}},
		},
		{
			ID: "two-column", Name: "Two columns", Width: DefaultCanvasWidth, Height: DefaultCanvasHeight,
			Slots: []model.Rect{
				{X: 0, Y: 0, Width: 590, Height: 800},
				{X: 610, Y: 0, Width: 590, Height: 800},
			},
		},
		{
			ID: "dashboard-2x2", Name: "Dashboard 2x2", Width: DefaultCanvasWidth, Height: DefaultCanvasHeight,
			Slots: []model.Rect{
				{X: 0, Y: 0, Width: 590, Height: 390},
				{X: 610, Y: 0, Width: 590, Height: 390},
				{X: 0, Y: 410, Width: 590, Height: 390},
				{X: 610, Y: 410, Width: 590, Height: 390},
			},
		},
		{
			ID: "hero-plus-three", Name: "Hero plus three", Width: DefaultCanvasWidth, Height: DefaultCanvasHeight,
			Slots: []model.Rect{
				{X: 0, Y: 0, Width: 1200, Height: 380},
				{X: 0, Y: 400, Width: 380, Height: 400},
				{X: 410, Y: 400, Width: 380, Height: 400},
				{X: 820, Y: 400, Width: 380, Height: 400},
			},
		},
	}
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplates reads additional templates from a YAML file.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("layout: reading templates %s: %w", path, err)
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("layout: parsing templates %s: %w", path, err)
	}
	for i, t := range f.Templates {
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("layout: templates[%d]: %w", i, err)
		}
	}
	return f.Templates, nil
}

// Validate checks that the template has an id, a canvas, and slots of at
// least the minimum visualization size.
func (t Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("template %q: canvas size must be positive", t.ID)
	}
	if len(t.Slots) == 0 {
		return fmt.Errorf("template %q: at least one slot is required", t.ID)
	}
	for i, s := range t.Slots {
		if s.X < 0 || s.Y < 0 {
			return fmt.Errorf("template %q: slot %d is off canvas", t.ID, i)
		}
		if s.Width < model.MinVisualizationWidth || s.Height < model.MinVisualizationHeight {
			return fmt.Errorf("template %q: slot %d is smaller than %dx%d", t.ID, i,
				model.MinVisualizationWidth, model.MinVisualizationHeight)
		}
	}
	return nil
}

// TemplateSet indexes templates by id. Later templates replace earlier ones
// with the same id.
type TemplateSet struct {
	byID map[string]Template
}

// NewTemplateSet builds a set from the built-ins plus any extra templates.
func NewTemplateSet(extra ...Template) *TemplateSet {
	s := &TemplateSet{byID: make(map[string]Template)}
	for _, t := range append(BuiltinTemplates(), extra...) {
		s.byID[t.ID] = t
	}
	return s
}

// Get returns the template with the given id.
func (s *TemplateSet) Get(id string) (Template, bool) {
	t, ok := s.byID[id]
	return t, ok
}

// All returns every template sorted by id.
func (s *TemplateSet) All() []Template {
	out := make([]Template, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyTemplate assigns Slots[i] to vis[i] for every i below both lengths.
// Visualizations beyond the slot count keep their position. The input slice
// is not modified.
func ApplyTemplate(t Template, vis []model.VisualizationConfig) []model.VisualizationConfig {
	out := make([]model.VisualizationConfig, len(vis))
	copy(out, vis)
	for i := 0; i < len(out) && i < len(t.Slots); i++ {
		out[i].Position = t.Slots[i]
	}
	return out
}
