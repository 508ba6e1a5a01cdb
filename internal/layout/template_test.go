package layout

import (
	"fmt"
	"testing"

	"github.com/pitabwire/reportbuilder/model"
)

func visualizations(n int) []model.VisualizationConfig {
	out := make([]model.VisualizationConfig, n)
	for i := range out {
		out[i] = model.VisualizationConfig{
			ID:       fmt.Sprintf("v%d", i),
			Position: model.Rect{X: float64(i * 7), Y: float64(i * 11), Width: 250, Height: 200},
		}
	}
	return out
}

func TestBuiltinTemplates_valid(t *testing.T) {
	for _, tpl := range BuiltinTemplates() {
		if err := tpl.Validate(); err != nil {
			t.Errorf("built-in %s: %v", tpl.ID, err)
		}
	}
}

func TestApplyTemplate_roundTrip(t *testing.T) {
	tpl, _ := NewTemplateSet().Get("dashboard-2x2")
	for _, m := range []int{4, 6} {
		vis := visualizations(m)
		got := ApplyTemplate(tpl, vis)
		if len(got) != m {
			t.Fatalf("len = %d, want %d", len(got), m)
		}
		for i := range got {
			switch {
			case i < len(tpl.Slots):
				if got[i].Position != tpl.Slots[i] {
					t.Errorf("m=%d vis[%d] = %+v, want slot %+v", m, i, got[i].Position, tpl.Slots[i])
				}
			default:
				if got[i].Position != vis[i].Position {
					t.Errorf("m=%d vis[%d] moved to %+v", m, i, got[i].Position)
				}
			}
			if got[i].ID != vis[i].ID {
				t.Errorf("order changed at %d", i)
			}
		}
	}
}

func TestApplyTemplate_fewerVisualizations(t *testing.T) {
	tpl, _ := NewTemplateSet().Get("hero-plus-three")
	vis := visualizations(2)
	got := ApplyTemplate(tpl, vis)
	if got[0].Position != tpl.Slots[0] || got[1].Position != tpl.Slots[1] {
		t.Errorf("got %+v", got)
	}
	if vis[0].Position == tpl.Slots[0] {
		t.Error("input slice was modified")
	}
}

func TestLoadTemplates(t *testing.T) {
	extra, err := LoadTemplates("testdata/templates.yaml")
	if err != nil {
		t.Fatalf("LoadTemplates() error = %v", err)
	}
	if len(extra) != 2 {
		t.Fatalf("len = %d, want 2", len(extra))
	}

	set := NewTemplateSet(extra...)
	if _, ok := set.Get("kpi-strip"); !ok {
		t.Error("kpi-strip not registered")
	}
	single, _ := set.Get("single")
	if single.Width != 1600 {
		t.Errorf("single.Width = %v, loaded template should replace built-in", single.Width)
	}
	if got := len(set.All()); got != 5 {
		t.Errorf("All() = %d templates, want 5", got)
	}
}

func TestLoadTemplates_errors(t *testing.T) {
	if _, err := LoadTemplates("testdata/missing.yaml"); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := LoadTemplates("testdata/bad_slot.yaml"); err == nil {
		t.Error("undersized slot should fail")
	}
}

func TestTemplate_Validate(t *testing.T) {
	tests := []struct {
		name string
		tpl  Template
	}{
		{"no id", Template{Width: 10, Height: 10, Slots: []model.Rect{{Width: 200, Height: 150}}}},
		{"no canvas", Template{ID: "x", Slots: []model.Rect{{Width: 200, Height: 150}}}},
		{"no slots", Template{ID: "x", Width: 10, Height: 10}},
		{"negative slot", Template{ID: "x", Width: 10, Height: 10, Slots: []model.Rect{{X: -1, Width: 200, Height: 150}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.tpl.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}
