package filter

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pitabwire/reportbuilder/model"
)

var (
	revenueField = model.FieldDefinition{ID: "revenue", DisplayName: "Revenue", DataType: model.DataTypeNumber, Aggregatable: true, Filterable: true}
	regionField  = model.FieldDefinition{ID: "region", DisplayName: "Region", DataType: model.DataTypeString, Filterable: true}
	soldAtField  = model.FieldDefinition{ID: "sold_at", DisplayName: "Sold At", DataType: model.DataTypeDate, Filterable: true}
	stockField   = model.FieldDefinition{ID: "in_stock", DisplayName: "In Stock", DataType: model.DataTypeBoolean, Filterable: true}
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestBuilder() *Builder {
	return NewBuilder(nil, WithClock(func() time.Time { return fixedNow }), WithIDGenerator(sequentialIDs()))
}

func errCode(err error) string {
	var env *model.ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ""
}

func TestNewBuilder_defaultGroup(t *testing.T) {
	b := newTestBuilder()
	groups := b.Groups()
	if len(groups) != 1 {
		t.Fatalf("len(Groups) = %d, want 1", len(groups))
	}
	if groups[0].Combinator != model.CombinatorAnd || groups[0].Name != DefaultGroupName {
		t.Errorf("default group = %+v", groups[0])
	}
}

func TestBuilder_CreateFilter_numberDefaults(t *testing.T) {
	b := newTestBuilder()
	f, err := b.CreateFilter("", "sales.revenue", revenueField)
	if err != nil {
		t.Fatalf("CreateFilter() error = %v", err)
	}
	if f.Operator != OpEquals {
		t.Errorf("Operator = %q, want equals", f.Operator)
	}
	if f.Value.Raw() != 0 {
		t.Errorf("Value = %#v, want 0", f.Value.Raw())
	}
	if f.DataType != model.DataTypeNumber || f.Field != "sales.revenue" || f.ID == "" {
		t.Errorf("filter = %+v", f)
	}
}

func TestBuilder_CreateFilter_perTypeDefaults(t *testing.T) {
	tests := []struct {
		field model.FieldDefinition
		want  any
	}{
		{regionField, ""},
		{soldAtField, "2026-03-14"},
		{stockField, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.field.DataType), func(t *testing.T) {
			f, err := newTestBuilder().CreateFilter("", "sales."+tt.field.ID, tt.field)
			if err != nil {
				t.Fatalf("CreateFilter() error = %v", err)
			}
			if f.Operator != Operators(tt.field.DataType)[0].Symbol {
				t.Errorf("Operator = %q", f.Operator)
			}
			if f.Value.Raw() != tt.want {
				t.Errorf("Value = %#v, want %#v", f.Value.Raw(), tt.want)
			}
		})
	}
}

func TestBuilder_CreateFilter_unknownGroup(t *testing.T) {
	_, err := newTestBuilder().CreateFilter("missing", "sales.revenue", revenueField)
	if errCode(err) != model.ErrNotFound {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
}

func TestBuilder_CreateFilter_unsupportedType(t *testing.T) {
	_, err := newTestBuilder().CreateFilter("", "sales.geo", model.FieldDefinition{ID: "geo", DataType: "point"})
	if errCode(err) != model.ErrBadRequest {
		t.Errorf("error = %v, want BAD_REQUEST", err)
	}
}

func TestBuilder_UpdateFilterField_resets(t *testing.T) {
	b := newTestBuilder()
	f, _ := b.CreateFilter("", "sales.revenue", revenueField)
	if _, err := b.UpdateFilterOperator(f.ID, OpBetween); err != nil {
		t.Fatalf("UpdateFilterOperator() error = %v", err)
	}

	got, err := b.UpdateFilterField(f.ID, "sales.region", regionField)
	if err != nil {
		t.Fatalf("UpdateFilterField() error = %v", err)
	}
	if got.DataType != model.DataTypeString || got.Operator != OpEquals || got.Value.Raw() != "" {
		t.Errorf("after field switch = %+v", got)
	}
}

func TestBuilder_UpdateFilterField_sameFieldIsIdempotentReset(t *testing.T) {
	b := newTestBuilder()
	f, _ := b.CreateFilter("", "sales.revenue", revenueField)
	b.UpdateFilterOperator(f.ID, OpGreaterThan)
	b.UpdateFilterValue(f.ID, model.ScalarValue(500))

	first, _ := b.UpdateFilterField(f.ID, "sales.revenue", revenueField)
	second, _ := b.UpdateFilterField(f.ID, "sales.revenue", revenueField)
	if first.Operator != OpEquals || first.Value.Raw() != 0 {
		t.Errorf("reselect = %+v, want equals/0", first)
	}
	if first.Operator != second.Operator || first.Value.Raw() != second.Value.Raw() {
		t.Errorf("reselecting twice differs: %+v vs %+v", first, second)
	}
}

func TestBuilder_UpdateFilterOperator(t *testing.T) {
	b := newTestBuilder()
	f, _ := b.CreateFilter("", "sales.sold_at", soldAtField)

	got, err := b.UpdateFilterOperator(f.ID, OpLastNDays)
	if err != nil {
		t.Fatalf("UpdateFilterOperator() error = %v", err)
	}
	if got.Value.Shape != model.ShapeRelative || got.Value.Count != DefaultRelativeDays {
		t.Errorf("Value = %+v, want relative 7", got.Value)
	}

	got, _ = b.UpdateFilterOperator(f.ID, OpThisMonth)
	if got.Value.Shape != model.ShapeNone {
		t.Errorf("Value = %+v, want none", got.Value)
	}

	got, _ = b.UpdateFilterOperator(f.ID, OpBetween)
	if got.Value.Shape != model.ShapePair || got.Value.Pair[0] != "2026-03-14" {
		t.Errorf("Value = %+v, want pair of today", got.Value)
	}
}

func TestBuilder_UpdateFilterOperator_invalidForType(t *testing.T) {
	b := newTestBuilder()
	f, _ := b.CreateFilter("", "inventory.in_stock", stockField)
	_, err := b.UpdateFilterOperator(f.ID, OpContains)
	if errCode(err) != model.ErrInvalidOperator {
		t.Errorf("error = %v, want INVALID_OPERATOR", err)
	}
	kept, _ := b.Filter(f.ID)
	if kept.Operator != OpEquals {
		t.Errorf("Operator changed to %q after rejected update", kept.Operator)
	}
}

func TestBuilder_UpdateFilterValue(t *testing.T) {
	b := newTestBuilder()
	f, _ := b.CreateFilter("", "sales.revenue", revenueField)
	b.UpdateFilterOperator(f.ID, OpBetween)

	if _, err := b.UpdateFilterValue(f.ID, model.ScalarValue(3)); errCode(err) != model.ErrValueShape {
		t.Errorf("scalar for between: error = %v, want VALUE_SHAPE_MISMATCH", err)
	}
	got, err := b.UpdateFilterValue(f.ID, model.ListValue(100, 900))
	if err != nil {
		t.Fatalf("UpdateFilterValue() error = %v", err)
	}
	if got.Value.Shape != model.ShapePair || got.Value.Pair[1] != 900 {
		t.Errorf("Value = %+v", got.Value)
	}
}

func TestBuilder_UpdateFilterValue_dataType(t *testing.T) {
	b := newTestBuilder()
	revenue, _ := b.CreateFilter("", "sales.revenue", revenueField)
	stock, _ := b.CreateFilter("", "stock.in_stock", stockField)

	if _, err := b.UpdateFilterValue(revenue.ID, model.ScalarValue("not-a-number")); errCode(err) != model.ErrValueShape {
		t.Errorf("word on number field: code = %q, want %q", errCode(err), model.ErrValueShape)
	}
	if _, err := b.UpdateFilterValue(stock.ID, model.ScalarValue(42)); errCode(err) != model.ErrValueShape {
		t.Errorf("number on boolean field: code = %q, want %q", errCode(err), model.ErrValueShape)
	}
	kept, _ := b.Filter(revenue.ID)
	if kept.Value.Raw() != 0 {
		t.Errorf("Value = %#v after rejected update, want 0", kept.Value.Raw())
	}
}

func TestNewBuilder_restoresDecodedValues(t *testing.T) {
	groups := []model.FilterGroup{{
		ID: "g1", Name: "Filters", Combinator: model.CombinatorAnd,
		Filters: []model.FilterConfiguration{
			{ID: "f1", Field: "sales.revenue", DataType: model.DataTypeNumber, Operator: OpBetween, Value: model.ListValue(100.0, 500.0)},
			{ID: "f2", Field: "sales.sold_at", DataType: model.DataTypeDate, Operator: OpLastNDays, Value: model.ScalarValue(30.0)},
			{ID: "f3", Field: "sales.region", DataType: model.DataTypeString, Operator: OpIn, Value: model.ListValue("North", "South")},
			{ID: "f4", Field: "sales.region", DataType: model.DataTypeString, Operator: OpIsEmpty, Value: model.NoValue()},
			{ID: "f5", Field: "sales.revenue", DataType: model.DataTypeNumber, Operator: OpBetween, Value: model.ScalarValue("ten")},
			{ID: "f6", Field: "sales.revenue", DataType: model.DataTypeNumber, Operator: OpContains, Value: model.ScalarValue("1")},
		},
	}}
	b := NewBuilder(groups, WithClock(func() time.Time { return fixedNow }))

	tests := []struct {
		id       string
		operator string
		shape    model.ValueShape
		raw      string
	}{
		{"f1", OpBetween, model.ShapePair, "100 and 500"},
		{"f2", OpLastNDays, model.ShapeRelative, "30 days"},
		{"f3", OpIn, model.ShapeList, "(North, South)"},
		{"f4", OpIsEmpty, model.ShapeNone, ""},
		{"f5", OpBetween, model.ShapePair, "0 and 0"},
		{"f6", OpEquals, model.ShapeScalar, "0"},
	}
	for _, tt := range tests {
		f, ok := b.Filter(tt.id)
		if !ok {
			t.Fatalf("filter %s missing", tt.id)
		}
		if f.Operator != tt.operator || f.Value.Shape != tt.shape || f.Value.String() != tt.raw {
			t.Errorf("%s = %s %s %q, want %s %s %q", tt.id, f.Operator, f.Value.Shape, f.Value.String(), tt.operator, tt.shape, tt.raw)
		}
	}
	if groups[0].Filters[0].Value.Shape != model.ShapeList {
		t.Error("NewBuilder modified the caller's groups")
	}
}

func TestBuilder_RemoveFilter(t *testing.T) {
	b := newTestBuilder()
	f, _ := b.CreateFilter("", "sales.revenue", revenueField)
	if err := b.RemoveFilter(f.ID); err != nil {
		t.Fatalf("RemoveFilter() error = %v", err)
	}
	if _, ok := b.Filter(f.ID); ok {
		t.Error("filter still present after RemoveFilter")
	}
	if err := b.RemoveFilter(f.ID); errCode(err) != model.ErrNotFound {
		t.Errorf("second RemoveFilter error = %v, want NOT_FOUND", err)
	}
}

func TestBuilder_RemoveFiltersForSource(t *testing.T) {
	b := newTestBuilder()
	g := b.AddGroup("Stock")
	b.CreateFilter("", "sales.revenue", revenueField)
	b.CreateFilter(g.ID, "sales.region", regionField)
	b.CreateFilter(g.ID, "salesreps.region", regionField)
	b.CreateFilter(g.ID, "inventory.in_stock", stockField)

	if n := b.RemoveFiltersForSource("sales"); n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	for _, grp := range b.Groups() {
		for _, f := range grp.Filters {
			if model.RefInSource(f.Field, "sales") {
				t.Errorf("filter %s on removed source survived", f.Field)
			}
		}
	}
	if got := len(b.Groups()[1].Filters); got != 2 {
		t.Errorf("second group filters = %d, want 2", got)
	}
}

func TestBuilder_Groups(t *testing.T) {
	b := newTestBuilder()
	g := b.AddGroup("")
	if g.Name != "Group 2" {
		t.Errorf("Name = %q, want Group 2", g.Name)
	}
	if err := b.RenameGroup(g.ID, "Stock"); err != nil {
		t.Fatalf("RenameGroup() error = %v", err)
	}
	if err := b.SetCombinator(g.ID, model.CombinatorOr); err != nil {
		t.Fatalf("SetCombinator() error = %v", err)
	}
	if err := b.SetCombinator(g.ID, "XOR"); errCode(err) != model.ErrBadRequest {
		t.Errorf("SetCombinator(XOR) error = %v", err)
	}
	got := b.Groups()[1]
	if got.Name != "Stock" || got.Combinator != model.CombinatorOr {
		t.Errorf("group = %+v", got)
	}

	if err := b.RemoveGroup(g.ID); err != nil {
		t.Fatalf("RemoveGroup() error = %v", err)
	}
	last := b.Groups()[0].ID
	if err := b.RemoveGroup(last); errCode(err) != model.ErrBadRequest {
		t.Errorf("removing last group error = %v, want BAD_REQUEST", err)
	}
}

func TestBuilder_Groups_returnsCopy(t *testing.T) {
	b := newTestBuilder()
	b.CreateFilter("", "sales.revenue", revenueField)
	groups := b.Groups()
	groups[0].Filters[0].Operator = "mutated"
	if f := b.Groups()[0].Filters[0]; f.Operator != OpEquals {
		t.Error("mutating Groups() result changed builder state")
	}
}

func TestBuilder_Summary(t *testing.T) {
	b := newTestBuilder()
	groupID := b.Groups()[0].ID
	f1, _ := b.CreateFilter("", "sales.revenue", revenueField)
	b.UpdateFilterOperator(f1.ID, OpGreaterThan)
	b.UpdateFilterValue(f1.ID, model.ScalarValue(1000))
	f2, _ := b.CreateFilter("", "sales.region", regionField)
	b.UpdateFilterOperator(f2.ID, OpIn)
	b.UpdateFilterValue(f2.ID, model.ListValue("North", "South"))
	f3, _ := b.CreateFilter("", "sales.region", regionField)
	b.UpdateFilterOperator(f3.ID, OpIsNotEmpty)

	labels := map[string]string{"sales.revenue": "Revenue", "sales.region": "Region"}
	got, err := b.Summary(groupID, func(ref string) string { return labels[ref] })
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	want := "Revenue greater_than 1000 AND Region in (North, South) AND Region is_not_empty"
	if got.Text != want {
		t.Errorf("Summary = %q, want %q", got.Text, want)
	}

	b.SetCombinator(groupID, model.CombinatorOr)
	got, _ = b.Summary(groupID, nil)
	want = "sales.revenue greater_than 1000 OR sales.region in (North, South) OR sales.region is_not_empty"
	if got.Text != want {
		t.Errorf("Summary = %q, want %q", got.Text, want)
	}
}

func TestBuilder_Summary_empty(t *testing.T) {
	b := newTestBuilder()
	got, err := b.Summary(b.Groups()[0].ID, nil)
	if err != nil || got.Text != "" {
		t.Errorf("Summary = %+v, %v", got, err)
	}
	if _, err := b.Summary("missing", nil); errCode(err) != model.ErrNotFound {
		t.Errorf("Summary(missing) error = %v", err)
	}
}
