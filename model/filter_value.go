package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValueShape is the structural class of a filter value, determined entirely
// by the filter operator.
type ValueShape string

// Value shapes.
const (
	ShapeNone     ValueShape = "none"
	ShapeScalar   ValueShape = "scalar"
	ShapePair     ValueShape = "pair"
	ShapeList     ValueShape = "list"
	ShapeRelative ValueShape = "relative"
)

// FilterValue is the value of a filter. Exactly one payload field is
// meaningful, selected by Shape.
type FilterValue struct {
	Shape  ValueShape
	Scalar any
	Pair   [2]any
	List   []any
	Count  int
}

// NoValue returns the value used by operators that take no operand.
func NoValue() FilterValue { return FilterValue{Shape: ShapeNone} }

// ScalarValue wraps a single operand.
func ScalarValue(v any) FilterValue { return FilterValue{Shape: ShapeScalar, Scalar: v} }

// PairValue wraps an ordered [from, to] operand.
func PairValue(from, to any) FilterValue {
	return FilterValue{Shape: ShapePair, Pair: [2]any{from, to}}
}

// ListValue wraps an ordered list operand. Duplicates are kept.
func ListValue(items ...any) FilterValue {
	if items == nil {
		items = []any{}
	}
	return FilterValue{Shape: ShapeList, List: items}
}

// RelativeValue wraps a day count for relative date operators.
func RelativeValue(days int) FilterValue { return FilterValue{Shape: ShapeRelative, Count: days} }

// Raw returns the bare value as it appears on the wire.
func (v FilterValue) Raw() any {
	switch v.Shape {
	case ShapeScalar:
		return v.Scalar
	case ShapePair:
		return []any{v.Pair[0], v.Pair[1]}
	case ShapeList:
		if v.List == nil {
			return []any{}
		}
		return v.List
	case ShapeRelative:
		return v.Count
	}
	return nil
}

// String renders the value for filter summaries.
func (v FilterValue) String() string {
	switch v.Shape {
	case ShapeScalar:
		return fmt.Sprint(v.Scalar)
	case ShapePair:
		return fmt.Sprintf("%v and %v", v.Pair[0], v.Pair[1])
	case ShapeList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = fmt.Sprint(item)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case ShapeRelative:
		return fmt.Sprintf("%d days", v.Count)
	}
	return ""
}

// MarshalJSON encodes the bare value.
func (v FilterValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

// UnmarshalJSON decodes a bare value and infers a provisional shape. The
// owning filter re-checks the shape against its operator.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = InferValue(raw)
	return nil
}

// MarshalYAML encodes the bare value.
func (v FilterValue) MarshalYAML() (any, error) {
	return v.Raw(), nil
}

// UnmarshalYAML decodes a bare value and infers a provisional shape.
func (v *FilterValue) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*v = InferValue(raw)
	return nil
}

// InferValue builds a FilterValue from a decoded wire value. Arrays become
// lists; callers that know the operator use Reshape to settle pair vs list.
func InferValue(raw any) FilterValue {
	switch t := raw.(type) {
	case nil:
		return NoValue()
	case []any:
		return ListValue(t...)
	}
	return ScalarValue(raw)
}

// Reshape reinterprets a provisionally decoded value for the given shape.
// It returns false when the payload cannot take that shape.
func (v FilterValue) Reshape(shape ValueShape) (FilterValue, bool) {
	if v.Shape == shape {
		return v, true
	}
	switch shape {
	case ShapeNone:
		return NoValue(), v.Shape == ShapeNone
	case ShapePair:
		if v.Shape == ShapeList && len(v.List) == 2 {
			return PairValue(v.List[0], v.List[1]), true
		}
	case ShapeRelative:
		if v.Shape == ShapeScalar {
			switch n := v.Scalar.(type) {
			case int:
				return RelativeValue(n), n > 0
			case float64:
				if n == float64(int(n)) && n > 0 {
					return RelativeValue(int(n)), true
				}
			}
		}
	}
	return v, false
}
