package report

import (
	"encoding/json"
	"testing"

	"github.com/pitabwire/reportbuilder/model"
)

func decodeCommand(t *testing.T, raw string) Command {
	t.Helper()
	var cmd Command
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return cmd
}

func TestExecute_wireFlow(t *testing.T) {
	a := newTestAggregate(t)

	steps := []string{
		`{"type":"select_data_source","dataSourceId":"sales"}`,
		`{"type":"rename","name":"Gold sales"}`,
		`{"type":"create_visualization","visualizationType":"chart"}`,
	}
	var created string
	for _, raw := range steps {
		eff, err := a.Execute(decodeCommand(t, raw))
		if err != nil {
			t.Fatalf("Execute(%s) error: %v", raw, err)
		}
		if eff.CreatedID != "" {
			created = eff.CreatedID
		}
	}
	if created == "" {
		t.Fatal("create_visualization returned no id")
	}

	bind := Command{Type: CmdBindMeasure, VisualizationID: created, Field: "sales.revenue"}
	if _, err := a.Execute(bind); err != nil {
		t.Fatalf("bind_measure error: %v", err)
	}
	if !a.CanSave() {
		t.Error("CanSave() = false after rename and select")
	}

	eff, err := a.Execute(decodeCommand(t, `{"type":"remove_data_source","dataSourceId":"sales"}`))
	if err != nil {
		t.Fatalf("remove_data_source error: %v", err)
	}
	if eff.Cascade == nil || len(eff.Cascade.Visualizations) != 1 || eff.Cascade.Visualizations[0] != created {
		t.Errorf("Cascade = %+v, want the chart removed", eff.Cascade)
	}
	if eff.Cascade.Total() != 1 {
		t.Errorf("Cascade.Total() = %d, want 1", eff.Cascade.Total())
	}
}

func TestExecute_filterValueFromWire(t *testing.T) {
	a := newTestAggregate(t, "sales")
	eff, err := a.Execute(Command{Type: CmdCreateFilter, Field: "sales.revenue"})
	if err != nil {
		t.Fatalf("create_filter error: %v", err)
	}
	id := eff.CreatedID

	if _, err := a.Execute(Command{Type: CmdUpdateFilterOperator, FilterID: id, Operator: "between"}); err != nil {
		t.Fatalf("update_filter_operator error: %v", err)
	}
	cmd := decodeCommand(t, `{"type":"update_filter_value","filterId":"`+id+`","value":[10,20]}`)
	if _, err := a.Execute(cmd); err != nil {
		t.Fatalf("update_filter_value error: %v", err)
	}
	f := a.Report().Filters[0].Filters[0]
	if f.Value.Shape != model.ShapePair || f.Value.Pair[0] != 10.0 || f.Value.Pair[1] != 20.0 {
		t.Errorf("Value = %+v, want pair 10..20", f.Value)
	}

	bad := decodeCommand(t, `{"type":"update_filter_value","filterId":"`+id+`","value":"ten"}`)
	if _, err := a.Execute(bad); errCode(err) != model.ErrValueShape {
		t.Errorf("scalar for between code = %q, want %q", errCode(err), model.ErrValueShape)
	}
}

func TestExecute_errors(t *testing.T) {
	a := newTestAggregate(t)
	tests := []struct {
		name string
		cmd  Command
		code string
	}{
		{"unknown type", Command{Type: "explode"}, model.ErrUnknownCommand},
		{"missing data source", Command{Type: CmdSelectDataSource}, model.ErrBadRequest},
		{"missing patch", Command{Type: CmdUpdateVisualization, VisualizationID: "v"}, model.ErrBadRequest},
		{"missing point", Command{Type: CmdEndInteraction}, model.ErrBadRequest},
		{"unknown visualization", Command{Type: CmdRemoveVisualization, VisualizationID: "v"}, model.ErrNotFound},
		{"bad combinator", Command{Type: CmdSetFilterCombinator, GroupID: "g", Combinator: "XOR"}, model.ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Execute(tt.cmd); errCode(err) != tt.code {
				t.Errorf("code = %q, want %q (err %v)", errCode(err), tt.code, err)
			}
		})
	}
}

func TestExecute_cancelInteractionIdle(t *testing.T) {
	a := newTestAggregate(t)
	if _, err := a.Execute(Command{Type: CmdCancelInteraction}); err != nil {
		t.Errorf("cancel_interaction when idle error: %v", err)
	}
}
