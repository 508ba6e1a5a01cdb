// Package report owns the report configuration aggregate and the editing
// sessions built on it. Every mutation goes through a named command on the
// Aggregate, which keeps dependent state consistent before returning.
package report

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/reportbuilder/internal/filter"
	"github.com/pitabwire/reportbuilder/internal/layout"
	"github.com/pitabwire/reportbuilder/internal/visualization"
	"github.com/pitabwire/reportbuilder/model"
)

// Catalog supplies the data sources a report may select.
type Catalog interface {
	DataSource(id string) (model.DataSource, bool)
}

// Option configures an Aggregate.
type Option func(*Aggregate)

// WithClock sets the clock used for filter date defaults.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregate) { a.now = now }
}

// WithIDGenerator sets the generator for visualization, group and filter ids.
func WithIDGenerator(gen func() string) Option {
	return func(a *Aggregate) { a.newID = gen }
}

// WithTemplates sets the layout templates ApplyTemplate can use.
func WithTemplates(ts *layout.TemplateSet) Option {
	return func(a *Aggregate) { a.templates = ts }
}

// Cascade reports what RemoveDataSource took with it.
type Cascade struct {
	DataSourceID   string   `json:"dataSourceId"`
	Visualizations []string `json:"visualizations"`
	Filters        int      `json:"filters"`
	Relationships  int      `json:"relationships"`
}

// Total returns the number of dependents removed.
func (c Cascade) Total() int {
	return len(c.Visualizations) + c.Filters + c.Relationships
}

// LayoutPatch is a partial canvas update. Nil fields are left as they are.
type LayoutPatch struct {
	Width      *float64 `json:"width,omitempty"`
	Height     *float64 `json:"height,omitempty"`
	GridSize   *int     `json:"gridSize,omitempty"`
	SnapToGrid *bool    `json:"snapToGrid,omitempty"`
}

// StylingPatch is a partial update of the report-wide styling.
type StylingPatch struct {
	Theme           *string `json:"theme,omitempty"`
	PrimaryColor    *string `json:"primaryColor,omitempty"`
	BackgroundColor *string `json:"backgroundColor,omitempty"`
	FontFamily      *string `json:"fontFamily,omitempty"`
	FontSize        *int    `json:"fontSize,omitempty"`
}

// DefaultStyling is the report-wide styling of a new report.
func DefaultStyling() model.ReportStyling {
	return model.ReportStyling{
		Theme:           "light",
		PrimaryColor:    "#3B82F6",
		BackgroundColor: "#FFFFFF",
		FontFamily:      "Inter",
		FontSize:        14,
	}
}

// Aggregate is the owning root of one report configuration. After every
// command the filter groups and the layout components mirror the builder
// and the visualization list. An Aggregate is not safe for concurrent use.
type Aggregate struct {
	report      model.ReportConfiguration
	catalog     Catalog
	filters     *filter.Builder
	templates   *layout.TemplateSet
	selection   []string
	interaction layout.Interaction
	now         func() time.Time
	newID       func() string
}

// New wraps an existing or blank configuration. Missing canvas, grid and
// styling settings are filled with defaults.
func New(r model.ReportConfiguration, cat Catalog, opts ...Option) *Aggregate {
	a := &Aggregate{
		report:  cloneReport(r),
		catalog: cat,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.templates == nil {
		a.templates = layout.NewTemplateSet()
	}
	a.filters = filter.NewBuilder(a.report.Filters,
		filter.WithClock(a.now),
		filter.WithIDGenerator(a.newID),
	)

	l := &a.report.Layout
	if l.Width <= 0 {
		l.Width = layout.DefaultCanvasWidth
	}
	if l.Height <= 0 {
		l.Height = layout.DefaultCanvasHeight
	}
	l.GridSize = layout.ClampGridSize(l.GridSize)
	if a.report.Styling == (model.ReportStyling{}) {
		a.report.Styling = DefaultStyling()
	}
	a.sync()
	return a
}

// --- Data sources ---

// SelectDataSource adds a catalog data source to the report. Catalog
// relationships whose endpoints are both present are linked. Selecting a
// present source does nothing.
func (a *Aggregate) SelectDataSource(id string) error {
	defer a.sync()
	if _, ok := a.report.DataSource(id); ok {
		return nil
	}
	ds, ok := a.catalog.DataSource(id)
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("data source %q not found", id))
	}
	ds.Relationships = nil
	a.report.DataSources = append(a.report.DataSources, cloneDataSource(ds))
	a.linkCatalogRelationships()
	return nil
}

func (a *Aggregate) linkCatalogRelationships() {
	for i := range a.report.DataSources {
		src, ok := a.catalog.DataSource(a.report.DataSources[i].ID)
		if !ok {
			continue
		}
		for _, rel := range src.Relationships {
			if !a.endpointsPresent(rel) || slices.Contains(a.report.DataSources[i].Relationships, rel) {
				continue
			}
			a.report.DataSources[i].Relationships = append(a.report.DataSources[i].Relationships, rel)
		}
	}
}

func (a *Aggregate) endpointsPresent(rel model.Relationship) bool {
	_, ok1 := a.report.DataSource(rel.SourceTable)
	_, ok2 := a.report.DataSource(rel.TargetTable)
	return ok1 && ok2
}

// RemoveDataSource removes a data source together with every visualization
// bound to one of its fields, every filter on one of its fields and every
// relationship touching it.
func (a *Aggregate) RemoveDataSource(id string) (Cascade, error) {
	defer a.sync()
	idx := slices.IndexFunc(a.report.DataSources, func(ds model.DataSource) bool { return ds.ID == id })
	if idx < 0 {
		return Cascade{}, model.NewNotFoundError(fmt.Sprintf("data source %q is not part of the report", id))
	}

	c := Cascade{DataSourceID: id, Visualizations: []string{}}
	a.report.Visualizations = slices.DeleteFunc(a.report.Visualizations, func(v model.VisualizationConfig) bool {
		if v.References(id) {
			c.Visualizations = append(c.Visualizations, v.ID)
			return true
		}
		return false
	})
	c.Filters = a.filters.RemoveFiltersForSource(id)

	a.report.DataSources = slices.Delete(a.report.DataSources, idx, idx+1)
	for i := range a.report.DataSources {
		rels := a.report.DataSources[i].Relationships
		before := len(rels)
		a.report.DataSources[i].Relationships = slices.DeleteFunc(rels, func(r model.Relationship) bool { return r.Touches(id) })
		c.Relationships += before - len(a.report.DataSources[i].Relationships)
	}

	for _, visID := range c.Visualizations {
		a.forgetVisualization(visID)
	}
	return c, nil
}

// --- Relationships ---

// AddRelationship links two fields of present data sources. Adding an
// existing relationship does nothing.
func (a *Aggregate) AddRelationship(rel model.Relationship) error {
	defer a.sync()
	switch rel.Cardinality {
	case model.OneToOne, model.OneToMany, model.ManyToMany:
	default:
		return model.NewBadRequestError(fmt.Sprintf("cardinality %q must be one-to-one, one-to-many or many-to-many", rel.Cardinality))
	}
	if _, ok := a.report.ResolveField(model.FieldRef(rel.SourceTable, rel.SourceField)); !ok {
		return model.NewUnknownFieldError(model.FieldRef(rel.SourceTable, rel.SourceField))
	}
	if _, ok := a.report.ResolveField(model.FieldRef(rel.TargetTable, rel.TargetField)); !ok {
		return model.NewUnknownFieldError(model.FieldRef(rel.TargetTable, rel.TargetField))
	}
	idx := a.dataSourceIndex(rel.SourceTable)
	if slices.Contains(a.report.DataSources[idx].Relationships, rel) {
		return nil
	}
	a.report.DataSources[idx].Relationships = append(a.report.DataSources[idx].Relationships, rel)
	return nil
}

// RemoveRelationship unlinks a relationship.
func (a *Aggregate) RemoveRelationship(rel model.Relationship) error {
	defer a.sync()
	idx := a.dataSourceIndex(rel.SourceTable)
	if idx >= 0 {
		rels := a.report.DataSources[idx].Relationships
		if i := slices.Index(rels, rel); i >= 0 {
			a.report.DataSources[idx].Relationships = slices.Delete(rels, i, i+1)
			return nil
		}
	}
	return model.NewNotFoundError(fmt.Sprintf("relationship %s.%s -> %s.%s not found",
		rel.SourceTable, rel.SourceField, rel.TargetTable, rel.TargetField))
}

// --- Filters ---

// AddFilterGroup appends an empty AND group.
func (a *Aggregate) AddFilterGroup(name string) model.FilterGroup {
	defer a.sync()
	return a.filters.AddGroup(name)
}

// RemoveFilterGroup removes a group and its filters.
func (a *Aggregate) RemoveFilterGroup(groupID string) error {
	defer a.sync()
	return a.filters.RemoveGroup(groupID)
}

// RenameFilterGroup renames a group.
func (a *Aggregate) RenameFilterGroup(groupID, name string) error {
	defer a.sync()
	return a.filters.RenameGroup(groupID, name)
}

// SetFilterCombinator changes how a group joins its filters.
func (a *Aggregate) SetFilterCombinator(groupID string, c model.Combinator) error {
	defer a.sync()
	return a.filters.SetCombinator(groupID, c)
}

// CreateFilter adds a filter on a filterable field of a present data source.
func (a *Aggregate) CreateFilter(groupID, ref string) (model.FilterConfiguration, error) {
	defer a.sync()
	field, err := a.filterableField(ref)
	if err != nil {
		return model.FilterConfiguration{}, err
	}
	return a.filters.CreateFilter(groupID, ref, field)
}

// UpdateFilterField rebinds a filter, regenerating its operator and value.
func (a *Aggregate) UpdateFilterField(filterID, ref string) (model.FilterConfiguration, error) {
	defer a.sync()
	field, err := a.filterableField(ref)
	if err != nil {
		return model.FilterConfiguration{}, err
	}
	return a.filters.UpdateFilterField(filterID, ref, field)
}

// UpdateFilterOperator switches a filter's operator and resets its value.
func (a *Aggregate) UpdateFilterOperator(filterID, op string) (model.FilterConfiguration, error) {
	defer a.sync()
	return a.filters.UpdateFilterOperator(filterID, op)
}

// UpdateFilterValue stores a new operand of the operator's shape.
func (a *Aggregate) UpdateFilterValue(filterID string, v model.FilterValue) (model.FilterConfiguration, error) {
	defer a.sync()
	return a.filters.UpdateFilterValue(filterID, v)
}

// RemoveFilter deletes a filter.
func (a *Aggregate) RemoveFilter(filterID string) error {
	defer a.sync()
	return a.filters.RemoveFilter(filterID)
}

func (a *Aggregate) filterableField(ref string) (model.FieldDefinition, error) {
	field, ok := a.report.ResolveField(ref)
	if !ok {
		return model.FieldDefinition{}, model.NewUnknownFieldError(ref)
	}
	if !field.Filterable {
		return model.FieldDefinition{}, model.NewBadRequestError(fmt.Sprintf("field %q is not filterable", ref))
	}
	return field, nil
}

// FilterSummaries renders every group using the fields' display names.
func (a *Aggregate) FilterSummaries() []model.FilterSummary {
	groups := a.filters.Groups()
	out := make([]model.FilterSummary, len(groups))
	for i, g := range groups {
		out[i] = filter.Summarize(g, a.fieldLabel)
	}
	return out
}

func (a *Aggregate) fieldLabel(ref string) string {
	if f, ok := a.report.ResolveField(ref); ok {
		return f.Label()
	}
	return ref
}

// --- Visualizations ---

// CreateVisualization appends a visualization and selects it. A nil rect
// places it below the previous one.
func (a *Aggregate) CreateVisualization(t model.VisualizationType, rect *model.Rect) (model.VisualizationConfig, error) {
	defer a.sync()
	r := visualization.DefaultRect
	if rect != nil {
		r = *rect
	} else if n := len(a.report.Visualizations); n > 0 {
		last := a.report.Visualizations[n-1].Position
		r.Y = last.Y + last.Height + float64(layout.ClampGridSize(a.report.Layout.GridSize))
	}
	v, err := visualization.New(a.newID(), t, r)
	if err != nil {
		return model.VisualizationConfig{}, err
	}
	a.report.Visualizations = append(a.report.Visualizations, v)
	a.selection = []string{v.ID}
	return v, nil
}

// UpdateVisualization applies a partial update.
func (a *Aggregate) UpdateVisualization(id string, p visualization.Patch) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		return visualization.Apply(v, p)
	})
}

// RemoveVisualization deletes a visualization.
func (a *Aggregate) RemoveVisualization(id string) error {
	defer a.sync()
	idx := a.visualizationIndex(id)
	if idx < 0 {
		return visualizationNotFound(id)
	}
	a.report.Visualizations = slices.Delete(a.report.Visualizations, idx, idx+1)
	a.forgetVisualization(id)
	return nil
}

// BindDimension adds a field of a present data source to the dimensions.
func (a *Aggregate) BindDimension(id, ref string) error {
	if _, ok := a.report.ResolveField(ref); !ok {
		return model.NewUnknownFieldError(ref)
	}
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		return visualization.AddDimension(v, ref), nil
	})
}

// BindMeasure adds a field to the measures. Fields that are not aggregatable
// are left out without error.
func (a *Aggregate) BindMeasure(id, ref string) error {
	field, ok := a.report.ResolveField(ref)
	if !ok {
		return model.NewUnknownFieldError(ref)
	}
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		return visualization.AddMeasure(v, ref, field), nil
	})
}

// UnbindDimension removes a field from the dimensions.
func (a *Aggregate) UnbindDimension(id, ref string) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		return visualization.RemoveDimension(v, ref), nil
	})
}

// UnbindMeasure removes a field from the measures.
func (a *Aggregate) UnbindMeasure(id, ref string) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		return visualization.RemoveMeasure(v, ref), nil
	})
}

// SelectPalette replaces a visualization's colors with a named palette.
func (a *Aggregate) SelectPalette(id, palette string) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		return visualization.SelectPalette(v, palette)
	})
}

// SetColor replaces one swatch.
func (a *Aggregate) SetColor(id string, index int, color string) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		return visualization.SetColor(v, index, color)
	})
}

// AddColor appends a swatch.
func (a *Aggregate) AddColor(id, color string) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		return visualization.AddColor(v, color), nil
	})
}

// RemoveColor drops a swatch. The last swatch is kept.
func (a *Aggregate) RemoveColor(id string, index int) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		out, _ := visualization.RemoveColor(v, index)
		return out, nil
	})
}

func (a *Aggregate) editVisualization(id string, edit func(model.VisualizationConfig) (model.VisualizationConfig, error)) error {
	defer a.sync()
	idx := a.visualizationIndex(id)
	if idx < 0 {
		return visualizationNotFound(id)
	}
	v, err := edit(a.report.Visualizations[idx])
	if err != nil {
		return err
	}
	a.report.Visualizations[idx] = v
	return nil
}

// forgetVisualization drops a removed visualization from the selection and
// releases an interaction targeting it.
func (a *Aggregate) forgetVisualization(id string) {
	a.selection = slices.DeleteFunc(a.selection, func(s string) bool { return s == id })
	if a.interaction.TargetID() == id {
		a.interaction.Cancel()
	}
}

// --- Layout and styling ---

// UpdateLayout changes the canvas size and grid settings. Grid sizes are
// clamped to the supported range.
func (a *Aggregate) UpdateLayout(p LayoutPatch) error {
	defer a.sync()
	if (p.Width != nil && *p.Width <= 0) || (p.Height != nil && *p.Height <= 0) {
		return model.NewBadRequestError("canvas width and height must be positive")
	}
	l := &a.report.Layout
	if p.Width != nil {
		l.Width = *p.Width
	}
	if p.Height != nil {
		l.Height = *p.Height
	}
	if p.GridSize != nil {
		l.GridSize = layout.ClampGridSize(*p.GridSize)
	}
	if p.SnapToGrid != nil {
		l.SnapToGrid = *p.SnapToGrid
	}
	return nil
}

// UpdateStyling merges a patch into the report-wide styling.
func (a *Aggregate) UpdateStyling(p StylingPatch) error {
	defer a.sync()
	if p.FontSize != nil && *p.FontSize <= 0 {
		return model.NewBadRequestError("font size must be positive")
	}
	s := &a.report.Styling
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.PrimaryColor != nil {
		s.PrimaryColor = *p.PrimaryColor
	}
	if p.BackgroundColor != nil {
		s.BackgroundColor = *p.BackgroundColor
	}
	if p.FontFamily != nil {
		s.FontFamily = *p.FontFamily
	}
	if p.FontSize != nil {
		s.FontSize = *p.FontSize
	}
	return nil
}

// Rename sets the report name.
func (a *Aggregate) Rename(name string) {
	a.report.Name = name
}

// Describe sets the report description.
func (a *Aggregate) Describe(description string) {
	a.report.Description = description
}

// ApplyTemplate sets the canvas size from a template and assigns its slots
// to the visualizations in order.
func (a *Aggregate) ApplyTemplate(templateID string) error {
	defer a.sync()
	t, ok := a.templates.Get(templateID)
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("layout template %q not found", templateID))
	}
	a.report.Layout.Width = t.Width
	a.report.Layout.Height = t.Height
	a.report.Visualizations = layout.ApplyTemplate(t, a.report.Visualizations)
	return nil
}

// Align lines the targeted visualizations up on an edge. Fewer than two
// targets leave the layout unchanged.
func (a *Aggregate) Align(edge layout.Edge) error {
	defer a.sync()
	idx, rects := a.targetRects()
	out, err := layout.Align(rects, edge)
	if err != nil {
		return err
	}
	a.placeRects(idx, out)
	return nil
}

// Distribute spaces the targeted visualizations evenly. Fewer than three
// targets leave the layout unchanged.
func (a *Aggregate) Distribute(axis layout.Axis) error {
	defer a.sync()
	idx, rects := a.targetRects()
	out, err := layout.Distribute(rects, axis)
	if err != nil {
		return err
	}
	a.placeRects(idx, out)
	return nil
}

func (a *Aggregate) targetRects() ([]int, []model.Rect) {
	all := make([]string, len(a.report.Visualizations))
	for i, v := range a.report.Visualizations {
		all[i] = v.ID
	}
	var selected string
	if len(a.selection) > 0 {
		selected = a.selection[0]
	}
	targets := layout.AlignTargets(selected, a.selection, all)

	idx := make([]int, 0, len(targets))
	rects := make([]model.Rect, 0, len(targets))
	for _, id := range targets {
		if i := a.visualizationIndex(id); i >= 0 {
			idx = append(idx, i)
			rects = append(rects, a.report.Visualizations[i].Position)
		}
	}
	return idx, rects
}

func (a *Aggregate) placeRects(idx []int, rects []model.Rect) {
	for k, i := range idx {
		a.report.Visualizations[i].Position = rects[k]
	}
}

// Move places a visualization at (x, y), clamped to the canvas origin and
// snapped when the grid is on.
func (a *Aggregate) Move(id string, x, y float64) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		v.Position = layout.Move(v.Position, x, y, a.grid())
		return v, nil
	})
}

// Resize changes a visualization's size, snapped when the grid is on and
// clamped to the minimum size.
func (a *Aggregate) Resize(id string, width, height float64) error {
	return a.editVisualization(id, func(v model.VisualizationConfig) (model.VisualizationConfig, error) {
		v.Position = layout.Resize(v.Position, width, height, a.grid())
		return v, nil
	})
}

func (a *Aggregate) grid() layout.Grid {
	return layout.NewGrid(a.report.Layout.SnapToGrid, a.report.Layout.GridSize)
}

// --- Interaction ---

// BeginInteraction starts dragging or resizing a visualization.
func (a *Aggregate) BeginInteraction(mode layout.Mode, id string, at layout.Point) error {
	idx := a.visualizationIndex(id)
	if idx < 0 {
		return visualizationNotFound(id)
	}
	return a.interaction.Press(mode, id, a.report.Visualizations[idx].Position, at)
}

// UpdateInteraction moves the pointer. The target shows the provisional,
// unsnapped rectangle.
func (a *Aggregate) UpdateInteraction(at layout.Point) error {
	defer a.sync()
	rect, ok := a.interaction.Motion(at)
	if !ok {
		return model.NewBadRequestError("no interaction in progress")
	}
	a.setPosition(a.interaction.TargetID(), rect)
	return nil
}

// EndInteraction commits the interaction at the pointer position, snapping
// to the grid when it is on.
func (a *Aggregate) EndInteraction(at layout.Point) error {
	defer a.sync()
	id, rect, ok := a.interaction.Release(at, a.grid())
	if !ok {
		return model.NewBadRequestError("no interaction in progress")
	}
	a.setPosition(id, rect)
	return nil
}

// CancelInteraction abandons an interaction and restores the target's
// starting rectangle. It does nothing when idle.
func (a *Aggregate) CancelInteraction() {
	defer a.sync()
	if id, start, ok := a.interaction.Cancel(); ok {
		a.setPosition(id, start)
	}
}

func (a *Aggregate) setPosition(id string, r model.Rect) {
	if i := a.visualizationIndex(id); i >= 0 {
		a.report.Visualizations[i].Position = r
	}
}

// SetSelection replaces the selection. The first id is the primary
// selection used by alignment.
func (a *Aggregate) SetSelection(ids []string) error {
	sel := make([]string, 0, len(ids))
	for _, id := range ids {
		if a.visualizationIndex(id) < 0 {
			return visualizationNotFound(id)
		}
		if !slices.Contains(sel, id) {
			sel = append(sel, id)
		}
	}
	a.selection = sel
	return nil
}

// --- Queries ---

// CanSave reports whether the report has a name and at least one data
// source.
func (a *Aggregate) CanSave() bool {
	return a.blockReason(ActionSave) == ""
}

// CanPreview reports whether the report has at least one data source.
func (a *Aggregate) CanPreview() bool {
	return a.blockReason(ActionPreview) == ""
}

// Gated actions.
const (
	ActionSave    = "save"
	ActionPreview = "preview"
)

// Gate returns an ACTION_BLOCKED error when the action is not available.
func (a *Aggregate) Gate(action string) error {
	if reason := a.blockReason(action); reason != "" {
		return model.NewActionBlockedError(action, reason)
	}
	return nil
}

func (a *Aggregate) blockReason(action string) string {
	switch {
	case action == ActionSave && strings.TrimSpace(a.report.Name) == "":
		return "the report needs a name"
	case len(a.report.DataSources) == 0:
		return "the report needs at least one data source"
	}
	return ""
}

// Validate checks that every filter, binding and relationship resolves
// against the present data sources. A catalog reload can leave a saved
// report with references its sources no longer carry.
func (a *Aggregate) Validate() []model.FieldError {
	var errs []model.FieldError
	for gi, g := range a.report.Filters {
		for fi, f := range g.Filters {
			if _, ok := a.report.ResolveField(f.Field); !ok {
				errs = append(errs, unknownField(fmt.Sprintf("filters[%d].filters[%d].field", gi, fi), f.Field))
			}
		}
	}
	for vi, v := range a.report.Visualizations {
		for di, ref := range v.Dimensions {
			if _, ok := a.report.ResolveField(ref); !ok {
				errs = append(errs, unknownField(fmt.Sprintf("visualizations[%d].dimensions[%d]", vi, di), ref))
			}
		}
		for mi, ref := range v.Measures {
			if _, ok := a.report.ResolveField(ref); !ok {
				errs = append(errs, unknownField(fmt.Sprintf("visualizations[%d].measures[%d]", vi, mi), ref))
			}
		}
	}
	for di, ds := range a.report.DataSources {
		for ri, rel := range ds.Relationships {
			prefix := fmt.Sprintf("dataSources[%d].relationships[%d]", di, ri)
			if ref := model.FieldRef(rel.SourceTable, rel.SourceField); !a.resolves(ref) {
				errs = append(errs, unknownField(prefix+".source", ref))
			}
			if ref := model.FieldRef(rel.TargetTable, rel.TargetField); !a.resolves(ref) {
				errs = append(errs, unknownField(prefix+".target", ref))
			}
		}
	}
	return errs
}

func (a *Aggregate) resolves(ref string) bool {
	_, ok := a.report.ResolveField(ref)
	return ok
}

func unknownField(path, ref string) model.FieldError {
	return model.FieldError{
		Field:   path,
		Code:    model.ErrUnknownField,
		Message: fmt.Sprintf("%q does not resolve to a field of a present data source", ref),
	}
}

// Report returns a copy of the configuration.
func (a *Aggregate) Report() model.ReportConfiguration {
	return cloneReport(a.report)
}

// Selection returns a copy of the selected visualization ids.
func (a *Aggregate) Selection() []string {
	return append([]string{}, a.selection...)
}

// Actions returns the gated action state.
func (a *Aggregate) Actions() model.ActionState {
	return model.ActionState{CanSave: a.CanSave(), CanPreview: a.CanPreview()}
}

// Snapshot returns the read-only view of the aggregate.
func (a *Aggregate) Snapshot(sessionID string) model.ReportSnapshot {
	return model.ReportSnapshot{
		SessionID:   sessionID,
		Report:      a.Report(),
		Selection:   a.Selection(),
		Actions:     a.Actions(),
		Interaction: a.interaction.Descriptor(),
	}
}

// MarkSaved copies the store-managed identity, version and timestamps of a
// saved record into the aggregate.
func (a *Aggregate) MarkSaved(saved model.ReportConfiguration) {
	a.report.ID = saved.ID
	a.report.TenantID = saved.TenantID
	a.report.OwnerID = saved.OwnerID
	a.report.Version = saved.Version
	a.report.CreatedAt = saved.CreatedAt
	a.report.UpdatedAt = saved.UpdatedAt
}

// sync mirrors the filter builder and the visualization list into the
// configuration.
func (a *Aggregate) sync() {
	a.report.Filters = a.filters.Groups()
	a.report.Layout.Components = cloneVisualizations(a.report.Visualizations)
}

func (a *Aggregate) dataSourceIndex(id string) int {
	return slices.IndexFunc(a.report.DataSources, func(ds model.DataSource) bool { return ds.ID == id })
}

func (a *Aggregate) visualizationIndex(id string) int {
	return slices.IndexFunc(a.report.Visualizations, func(v model.VisualizationConfig) bool { return v.ID == id })
}

func visualizationNotFound(id string) error {
	return model.NewNotFoundError(fmt.Sprintf("visualization %q not found", id))
}

func cloneReport(r model.ReportConfiguration) model.ReportConfiguration {
	out := r
	out.DataSources = make([]model.DataSource, len(r.DataSources))
	for i, ds := range r.DataSources {
		out.DataSources[i] = cloneDataSource(ds)
	}
	out.Filters = make([]model.FilterGroup, len(r.Filters))
	for i, g := range r.Filters {
		out.Filters[i] = g
		out.Filters[i].Filters = slices.Clone(g.Filters)
		if out.Filters[i].Filters == nil {
			out.Filters[i].Filters = []model.FilterConfiguration{}
		}
	}
	out.Visualizations = cloneVisualizations(r.Visualizations)
	out.Layout.Components = cloneVisualizations(r.Layout.Components)
	return out
}

func cloneDataSource(ds model.DataSource) model.DataSource {
	ds.Fields = slices.Clone(ds.Fields)
	ds.Relationships = slices.Clone(ds.Relationships)
	if ds.Relationships == nil {
		ds.Relationships = []model.Relationship{}
	}
	return ds
}

func cloneVisualizations(vis []model.VisualizationConfig) []model.VisualizationConfig {
	out := make([]model.VisualizationConfig, len(vis))
	for i, v := range vis {
		out[i] = v
		out[i].Dimensions = slices.Clone(v.Dimensions)
		out[i].Measures = slices.Clone(v.Measures)
		out[i].Styling.Colors = slices.Clone(v.Styling.Colors)
	}
	return out
}
