package model

import "time"

// VisualizationType is the kind of a visual element on the report canvas.
type VisualizationType string

// Visualization types.
const (
	VisualizationTable  VisualizationType = "table"
	VisualizationChart  VisualizationType = "chart"
	VisualizationMetric VisualizationType = "metric"
	VisualizationText   VisualizationType = "text"
)

// Valid reports whether t is a known visualization type.
func (t VisualizationType) Valid() bool {
	switch t {
	case VisualizationTable, VisualizationChart, VisualizationMetric, VisualizationText:
		return true
	}
	return false
}

// ChartType is the chart subtype, meaningful only for chart visualizations.
type ChartType string

// Chart subtypes.
const (
	ChartBar     ChartType = "bar"
	ChartLine    ChartType = "line"
	ChartPie     ChartType = "pie"
	ChartScatter ChartType = "scatter"
	ChartArea    ChartType = "area"
	ChartHeatmap ChartType = "heatmap"
)

// Valid reports whether c is a known chart subtype.
func (c ChartType) Valid() bool {
	switch c {
	case ChartBar, ChartLine, ChartPie, ChartScatter, ChartArea, ChartHeatmap:
		return true
	}
	return false
}

// Combinator joins the filters of a group.
type Combinator string

// Filter group combinators.
const (
	CombinatorAnd Combinator = "AND"
	CombinatorOr  Combinator = "OR"
)

// Minimum visualization size on the canvas.
const (
	MinVisualizationWidth  = 200
	MinVisualizationHeight = 150
)

// Rect is a visualization's position and size on the canvas.
type Rect struct {
	X      float64 `yaml:"x"      json:"x"`
	Y      float64 `yaml:"y"      json:"y"`
	Width  float64 `yaml:"width"  json:"width"`
	Height float64 `yaml:"height" json:"height"`
}

// FilterConfiguration is a predicate over one field.
type FilterConfiguration struct {
	ID       string      `yaml:"id"        json:"id"`
	Field    string      `yaml:"field"     json:"field"`
	Operator string      `yaml:"operator"  json:"operator"`
	Value    FilterValue `yaml:"value"     json:"value"`
	DataType DataType    `yaml:"data_type" json:"dataType"`
}

// FilterGroup is an ordered list of filters joined by one combinator.
type FilterGroup struct {
	ID         string                `yaml:"id"         json:"id"`
	Name       string                `yaml:"name"       json:"name"`
	Combinator Combinator            `yaml:"combinator" json:"combinator"`
	Filters    []FilterConfiguration `yaml:"filters"    json:"filters"`
}

// VisualizationStyling holds the per-visualization styling. Empty values
// fall back to the report-wide ReportStyling when resolved.
type VisualizationStyling struct {
	Title           string   `yaml:"title"            json:"title,omitempty"`
	ShowLegend      bool     `yaml:"show_legend"      json:"showLegend"`
	ShowGrid        bool     `yaml:"show_grid"        json:"showGrid"`
	ShowLabels      bool     `yaml:"show_labels"      json:"showLabels"`
	Colors          []string `yaml:"colors"           json:"colors"`
	FontSize        int      `yaml:"font_size"        json:"fontSize,omitempty"`
	FontFamily      string   `yaml:"font_family"      json:"fontFamily,omitempty"`
	BackgroundColor string   `yaml:"background_color" json:"backgroundColor,omitempty"`
	BorderColor     string   `yaml:"border_color"     json:"borderColor,omitempty"`
	BorderWidth     int      `yaml:"border_width"     json:"borderWidth"`
}

// VisualizationConfig is a single chart, table, metric, or text element.
type VisualizationConfig struct {
	ID         string               `yaml:"id"         json:"id"`
	Title      string               `yaml:"title"      json:"title"`
	Type       VisualizationType    `yaml:"type"       json:"type"`
	ChartType  ChartType            `yaml:"chart_type" json:"chartType,omitempty"`
	Dimensions []string             `yaml:"dimensions" json:"dimensions"`
	Measures   []string             `yaml:"measures"   json:"measures"`
	Styling    VisualizationStyling `yaml:"styling"    json:"styling"`
	Position   Rect                 `yaml:"position"   json:"position"`
}

// References reports whether any binding of the visualization is scoped
// under dataSourceID.
func (v VisualizationConfig) References(dataSourceID string) bool {
	for _, d := range v.Dimensions {
		if RefInSource(d, dataSourceID) {
			return true
		}
	}
	for _, m := range v.Measures {
		if RefInSource(m, dataSourceID) {
			return true
		}
	}
	return false
}

// ReportLayout is the canvas plus a mirror of the visualization list.
type ReportLayout struct {
	Width      float64               `yaml:"width"        json:"width"`
	Height     float64               `yaml:"height"       json:"height"`
	GridSize   int                   `yaml:"grid_size"    json:"gridSize"`
	SnapToGrid bool                  `yaml:"snap_to_grid" json:"snapToGrid"`
	Components []VisualizationConfig `yaml:"components"   json:"components"`
}

// ReportStyling holds report-wide styling defaults.
type ReportStyling struct {
	Theme           string `yaml:"theme"            json:"theme"`
	PrimaryColor    string `yaml:"primary_color"    json:"primaryColor"`
	BackgroundColor string `yaml:"background_color" json:"backgroundColor"`
	FontFamily      string `yaml:"font_family"      json:"fontFamily"`
	FontSize        int    `yaml:"font_size"        json:"fontSize"`
}

// ReportConfiguration is the persisted report record.
type ReportConfiguration struct {
	ID             string                `json:"id,omitempty"`
	TenantID       string                `json:"tenantId,omitempty"`
	OwnerID        string                `json:"ownerId,omitempty"`
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	DataSources    []DataSource          `json:"dataSources"`
	Filters        []FilterGroup         `json:"filters"`
	Visualizations []VisualizationConfig `json:"visualizations"`
	Layout         ReportLayout          `json:"layout"`
	Styling        ReportStyling         `json:"styling"`
	Version        int                   `json:"version"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

// DataSource returns the present data source with the given id.
func (r *ReportConfiguration) DataSource(id string) (DataSource, bool) {
	for _, ds := range r.DataSources {
		if ds.ID == id {
			return ds, true
		}
	}
	return DataSource{}, false
}

// ResolveField resolves a composite reference against the present sources.
func (r *ReportConfiguration) ResolveField(ref string) (FieldDefinition, bool) {
	dsID, fieldID, ok := ParseFieldRef(ref)
	if !ok {
		return FieldDefinition{}, false
	}
	ds, ok := r.DataSource(dsID)
	if !ok {
		return FieldDefinition{}, false
	}
	return ds.Field(fieldID)
}
