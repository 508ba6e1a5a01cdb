package visualization

import (
	"fmt"
	"slices"
	"sort"

	"github.com/pitabwire/reportbuilder/model"
)

// DefaultPalette names the palette new visualizations start with.
const DefaultPalette = "default"

var palettes = map[string][]string{
	DefaultPalette: {"#3B82F6", "#10B981", "#F59E0B", "#EF4444", "#8B5CF6", "#EC4899"},
	"gold":         {"#D4AF37", "#B8860B", "#FFD700", "#CFB53B", "#996515"},
	"ocean":        {"#0EA5E9", "#06B6D4", "#14B8A6", "#0284C7", "#0891B2"},
	"sunset":       {"#F97316", "#FB923C", "#F43F5E", "#E11D48", "#FBBF24"},
	"monochrome":   {"#111827", "#374151", "#6B7280", "#9CA3AF", "#D1D5DB"},
}

// DefaultStyling returns the styling of a new visualization: legend and grid
// shown, labels hidden, the default palette, 12px text, and a 1px border.
// Font family and background are left empty so the report styling applies.
func DefaultStyling() model.VisualizationStyling {
	return model.VisualizationStyling{
		ShowLegend:  true,
		ShowGrid:    true,
		ShowLabels:  false,
		Colors:      slices.Clone(palettes[DefaultPalette]),
		FontSize:    12,
		BorderColor: "#E5E7EB",
		BorderWidth: 1,
	}
}

// Palettes returns the names of the available palettes, sorted.
func Palettes() []string {
	names := make([]string, 0, len(palettes))
	for name := range palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Palette returns a copy of the named palette.
func Palette(name string) ([]string, bool) {
	colors, ok := palettes[name]
	return slices.Clone(colors), ok
}

// StylingPatch is a partial styling update. Nil fields keep their prior
// value. Colors, when set, replaces the whole list.
type StylingPatch struct {
	Title           *string   `json:"title,omitempty"`
	ShowLegend      *bool     `json:"showLegend,omitempty"`
	ShowGrid        *bool     `json:"showGrid,omitempty"`
	ShowLabels      *bool     `json:"showLabels,omitempty"`
	Colors          *[]string `json:"colors,omitempty"`
	FontSize        *int      `json:"fontSize,omitempty"`
	FontFamily      *string   `json:"fontFamily,omitempty"`
	BackgroundColor *string   `json:"backgroundColor,omitempty"`
	BorderColor     *string   `json:"borderColor,omitempty"`
	BorderWidth     *int      `json:"borderWidth,omitempty"`
}

// UpdateStyling merges a patch into the visualization's styling.
func UpdateStyling(v model.VisualizationConfig, p StylingPatch) model.VisualizationConfig {
	v = clone(v)
	s := &v.Styling
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.ShowLegend != nil {
		s.ShowLegend = *p.ShowLegend
	}
	if p.ShowGrid != nil {
		s.ShowGrid = *p.ShowGrid
	}
	if p.ShowLabels != nil {
		s.ShowLabels = *p.ShowLabels
	}
	if p.Colors != nil && len(*p.Colors) > 0 {
		s.Colors = slices.Clone(*p.Colors)
	}
	if p.FontSize != nil {
		s.FontSize = *p.FontSize
	}
	if p.FontFamily != nil {
		s.FontFamily = *p.FontFamily
	}
	if p.BackgroundColor != nil {
		s.BackgroundColor = *p.BackgroundColor
	}
	if p.BorderColor != nil {
		s.BorderColor = *p.BorderColor
	}
	if p.BorderWidth != nil {
		s.BorderWidth = *p.BorderWidth
	}
	return v
}

// SelectPalette replaces the colors with the named palette.
func SelectPalette(v model.VisualizationConfig, name string) (model.VisualizationConfig, error) {
	colors, ok := Palette(name)
	if !ok {
		return v, model.NewNotFoundError(fmt.Sprintf("palette %q not found", name))
	}
	v = clone(v)
	v.Styling.Colors = colors
	return v, nil
}

// SetColor replaces the swatch at index i.
func SetColor(v model.VisualizationConfig, i int, color string) (model.VisualizationConfig, error) {
	if i < 0 || i >= len(v.Styling.Colors) {
		return v, model.NewBadRequestError(fmt.Sprintf("color index %d out of range", i))
	}
	v = clone(v)
	v.Styling.Colors[i] = color
	return v, nil
}

// AddColor appends a swatch.
func AddColor(v model.VisualizationConfig, color string) model.VisualizationConfig {
	v = clone(v)
	v.Styling.Colors = append(v.Styling.Colors, color)
	return v
}

// RemoveColor removes the swatch at index i. It reports false, leaving the
// colors unchanged, when i is out of range or only one swatch remains.
func RemoveColor(v model.VisualizationConfig, i int) (model.VisualizationConfig, bool) {
	if len(v.Styling.Colors) <= 1 || i < 0 || i >= len(v.Styling.Colors) {
		return v, false
	}
	v = clone(v)
	v.Styling.Colors = slices.Delete(v.Styling.Colors, i, i+1)
	return v, true
}

// ResolveStyling fills the visualization's unset styling from the report
// defaults. The visualization's own values always win.
func ResolveStyling(s model.VisualizationStyling, r model.ReportStyling) model.VisualizationStyling {
	s.Colors = slices.Clone(s.Colors)
	if s.FontFamily == "" {
		s.FontFamily = r.FontFamily
	}
	if s.FontSize == 0 {
		s.FontSize = r.FontSize
	}
	if s.BackgroundColor == "" {
		s.BackgroundColor = r.BackgroundColor
	}
	if len(s.Colors) == 0 && r.PrimaryColor != "" {
		s.Colors = []string{r.PrimaryColor}
	}
	return s
}
