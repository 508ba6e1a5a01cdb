// Package filter implements the type-aware operator model and the filter
// builder that manages filter groups over catalog fields.
package filter

import (
	"time"

	"github.com/pitabwire/reportbuilder/model"
)

// Operator symbols.
const (
	OpEquals             = "equals"
	OpNotEquals          = "not_equals"
	OpContains           = "contains"
	OpNotContains        = "not_contains"
	OpStartsWith         = "starts_with"
	OpEndsWith           = "ends_with"
	OpIn                 = "in"
	OpNotIn              = "not_in"
	OpIsEmpty            = "is_empty"
	OpIsNotEmpty         = "is_not_empty"
	OpGreaterThan        = "greater_than"
	OpGreaterThanOrEqual = "greater_than_or_equal"
	OpLessThan           = "less_than"
	OpLessThanOrEqual    = "less_than_or_equal"
	OpBetween            = "between"
	OpNotBetween         = "not_between"
	OpLastNDays          = "last_n_days"
	OpNextNDays          = "next_n_days"
	OpThisWeek           = "this_week"
	OpThisMonth          = "this_month"
	OpThisYear           = "this_year"
)

// DefaultRelativeDays is the default operand of last_n_days and next_n_days.
const DefaultRelativeDays = 7

// DateLayout is the wire format of date operands.
const DateLayout = "2006-01-02"

// Operator is one entry of a data type's operator table.
type Operator struct {
	Symbol string
	Label  string
}

var stringOperators = []Operator{
	{OpEquals, "Equals"},
	{OpNotEquals, "Not equals"},
	{OpContains, "Contains"},
	{OpNotContains, "Does not contain"},
	{OpStartsWith, "Starts with"},
	{OpEndsWith, "Ends with"},
	{OpIn, "Is one of"},
	{OpNotIn, "Is not one of"},
	{OpIsEmpty, "Is empty"},
	{OpIsNotEmpty, "Is not empty"},
}

var numberOperators = []Operator{
	{OpEquals, "="},
	{OpNotEquals, "≠"},
	{OpGreaterThan, ">"},
	{OpGreaterThanOrEqual, "≥"},
	{OpLessThan, "<"},
	{OpLessThanOrEqual, "≤"},
	{OpBetween, "Between"},
	{OpNotBetween, "Not between"},
	{OpIn, "Is one of"},
	{OpNotIn, "Is not one of"},
}

var dateOperators = []Operator{
	{OpEquals, "On"},
	{OpNotEquals, "Not on"},
	{OpGreaterThan, "After"},
	{OpGreaterThanOrEqual, "On or after"},
	{OpLessThan, "Before"},
	{OpLessThanOrEqual, "On or before"},
	{OpBetween, "Between"},
	{OpLastNDays, "In the last N days"},
	{OpNextNDays, "In the next N days"},
	{OpThisWeek, "This week"},
	{OpThisMonth, "This month"},
	{OpThisYear, "This year"},
}

var booleanOperators = []Operator{
	{OpEquals, "Is"},
	{OpNotEquals, "Is not"},
}

// Operators returns the fixed, ordered operator table for a data type. The
// first entry is the default. Decimal fields share the number table. The
// returned slice is a copy.
func Operators(dataType model.DataType) []Operator {
	var table []Operator
	switch dataType {
	case model.DataTypeString:
		table = stringOperators
	case model.DataTypeNumber, model.DataTypeDecimal:
		table = numberOperators
	case model.DataTypeDate:
		table = dateOperators
	case model.DataTypeBoolean:
		table = booleanOperators
	default:
		return nil
	}
	out := make([]Operator, len(table))
	copy(out, table)
	return out
}

// DefaultOperator returns the first operator of the data type's table, or ""
// when the data type is unknown.
func DefaultOperator(dataType model.DataType) string {
	ops := Operators(dataType)
	if len(ops) == 0 {
		return ""
	}
	return ops[0].Symbol
}

// IsValidOperator reports whether op belongs to the data type's table.
func IsValidOperator(dataType model.DataType, op string) bool {
	for _, o := range Operators(dataType) {
		if o.Symbol == op {
			return true
		}
	}
	return false
}

// ShapeOf returns the value shape an operator requires.
func ShapeOf(op string) model.ValueShape {
	switch op {
	case OpIsEmpty, OpIsNotEmpty, OpThisWeek, OpThisMonth, OpThisYear:
		return model.ShapeNone
	case OpBetween, OpNotBetween:
		return model.ShapePair
	case OpIn, OpNotIn:
		return model.ShapeList
	case OpLastNDays, OpNextNDays:
		return model.ShapeRelative
	}
	return model.ShapeScalar
}

// ScalarDefault returns the scalar default for a data type: "" for strings,
// 0 for numbers, today's date for dates, and true for booleans.
func ScalarDefault(dataType model.DataType, now time.Time) any {
	switch dataType {
	case model.DataTypeNumber, model.DataTypeDecimal:
		return 0
	case model.DataTypeDate:
		return now.Format(DateLayout)
	case model.DataTypeBoolean:
		return true
	}
	return ""
}

// DefaultValue returns the class default for an operator applied to a field
// of the given data type.
func DefaultValue(dataType model.DataType, op string, now time.Time) model.FilterValue {
	switch ShapeOf(op) {
	case model.ShapeNone:
		return model.NoValue()
	case model.ShapePair:
		d := ScalarDefault(dataType, now)
		return model.PairValue(d, d)
	case model.ShapeList:
		return model.ListValue()
	case model.ShapeRelative:
		return model.RelativeValue(DefaultRelativeDays)
	}
	return model.ScalarValue(ScalarDefault(dataType, now))
}

// Describe returns the operator table of a data type with value shapes, as
// offered to the frontend.
func Describe(dataType model.DataType) []model.OperatorDescriptor {
	ops := Operators(dataType)
	out := make([]model.OperatorDescriptor, len(ops))
	for i, o := range ops {
		out[i] = model.OperatorDescriptor{Symbol: o.Symbol, Label: o.Label, Shape: ShapeOf(o.Symbol)}
	}
	return out
}

// CheckValue verifies that a value may be stored for an operator on a field
// of the given data type. Values decoded from the wire are reshaped when their
// payload allows it, and every operand must be readable as the data type.
func CheckValue(dataType model.DataType, op string, v model.FilterValue) (model.FilterValue, error) {
	want := ShapeOf(op)
	reshaped, ok := v.Reshape(want)
	if !ok {
		return v, model.NewValueShapeError(op, want)
	}
	var operands []any
	switch want {
	case model.ShapeRelative:
		if reshaped.Count <= 0 {
			return v, model.NewValueShapeError(op, want)
		}
	case model.ShapeScalar:
		operands = []any{reshaped.Scalar}
	case model.ShapePair:
		operands = reshaped.Pair[:]
	case model.ShapeList:
		operands = reshaped.List
	}
	for _, operand := range operands {
		if !readableAs(dataType, operand) {
			return v, model.NewValueTypeError(op, dataType, operand)
		}
	}
	return reshaped, nil
}

// readableAs reports whether an operand can be compared as the data type,
// using the same conversions as Evaluate.
func readableAs(dataType model.DataType, v any) bool {
	switch dataType {
	case model.DataTypeNumber, model.DataTypeDecimal:
		_, ok := toFloat(v)
		return ok
	case model.DataTypeDate:
		_, ok := toDate(v)
		return ok
	case model.DataTypeBoolean:
		_, ok := toBool(v)
		return ok
	case model.DataTypeString:
		_, ok := v.(string)
		return ok
	}
	return false
}
