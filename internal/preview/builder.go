// Package preview turns a report configuration into the payload handed to
// the rendering collaborator, and caches built payloads.
package preview

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/pitabwire/reportbuilder/internal/filter"
	"github.com/pitabwire/reportbuilder/internal/visualization"
	"github.com/pitabwire/reportbuilder/model"
)

// Build resolves a report for rendering. Each visualization gets the report
// styling applied and its bindings resolved to field metadata. When rows are
// given, only those matching every filter group are kept.
func Build(r model.ReportConfiguration, rows []map[string]any, now time.Time) (model.PreviewPayload, error) {
	p := model.PreviewPayload{
		ReportID:       r.ID,
		Name:           r.Name,
		Canvas:         model.Rect{Width: r.Layout.Width, Height: r.Layout.Height},
		Visualizations: make([]model.PreviewVisualization, len(r.Visualizations)),
		Filters:        make([]model.FilterSummary, len(r.Filters)),
	}

	for i, v := range r.Visualizations {
		v.Styling = visualization.ResolveStyling(v.Styling, r.Styling)
		p.Visualizations[i] = model.PreviewVisualization{
			VisualizationConfig: v,
			DimensionFields:     resolveFields(r, v.Dimensions),
			MeasureFields:       resolveFields(r, v.Measures),
		}
	}

	label := func(ref string) string {
		if f, ok := r.ResolveField(ref); ok {
			return f.Label()
		}
		return ref
	}
	programs := make([]*filter.Program, len(r.Filters))
	for i, g := range r.Filters {
		p.Filters[i] = filter.Summarize(g, label)
		prog, err := filter.Compile(g, now)
		if err != nil {
			return model.PreviewPayload{}, err
		}
		programs[i] = prog
	}

	matched, err := Match(programs, rows)
	if err != nil {
		return model.PreviewPayload{}, err
	}
	p.Rows = matched
	p.MatchedRows = len(matched)
	return p, nil
}

// Match keeps the rows that satisfy every program.
func Match(programs []*filter.Program, rows []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		keep := true
		for _, prog := range programs {
			ok, err := prog.Match(row)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

func resolveFields(r model.ReportConfiguration, refs []string) []model.FieldDefinition {
	out := make([]model.FieldDefinition, 0, len(refs))
	for _, ref := range refs {
		if f, ok := r.ResolveField(ref); ok {
			out = append(out, f)
		}
	}
	return out
}

// keyInput is everything a payload depends on. Version and timestamps are
// left out so a resave without changes keeps its cache entry.
type keyInput struct {
	Name           string                      `json:"n"`
	ReportID       string                      `json:"id"`
	DataSources    []model.DataSource          `json:"ds"`
	Filters        []model.FilterGroup         `json:"f"`
	Visualizations []model.VisualizationConfig `json:"v"`
	Width          float64                     `json:"w"`
	Height         float64                     `json:"h"`
	Styling        model.ReportStyling         `json:"s"`
	Rows           []map[string]any            `json:"r"`
	Day            string                      `json:"d"`
}

// Key derives the cache key of a preview. Relative date filters depend on
// the current day, so the day is part of the key.
func Key(tenantID string, r model.ReportConfiguration, rows []map[string]any, now time.Time) (string, error) {
	data, err := json.Marshal(keyInput{
		Name:           r.Name,
		ReportID:       r.ID,
		DataSources:    r.DataSources,
		Filters:        r.Filters,
		Visualizations: r.Visualizations,
		Width:          r.Layout.Width,
		Height:         r.Layout.Height,
		Styling:        r.Styling,
		Rows:           rows,
		Day:            now.UTC().Format(filter.DateLayout),
	})
	if err != nil {
		return "", fmt.Errorf("preview: hashing report: %w", err)
	}
	return fmt.Sprintf("preview:%s:%016x", tenantID, xxhash.Sum64(data)), nil
}
