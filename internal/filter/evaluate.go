package filter

import (
	"cmp"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/pitabwire/reportbuilder/model"
)

// Program is a compiled filter group that can be evaluated against rows keyed
// by composite field reference.
type Program struct {
	source  string
	program *vm.Program
}

// Source returns the generated expression, for logging.
func (p *Program) Source() string {
	return p.source
}

// Match evaluates the group against one row. Missing fields evaluate as
// empty.
func (p *Program) Match(row map[string]any) (bool, error) {
	out, err := expr.Run(p.program, map[string]any{"row": row})
	if err != nil {
		return false, fmt.Errorf("filter: evaluating %q: %w", p.source, err)
	}
	matched, _ := out.(bool)
	return matched, nil
}

// Compile turns a filter group into an expression program. Each filter
// becomes a call to a predicate bound to that filter; the calls are joined by
// the group's combinator. An empty group matches every row. Contradictory
// filters compile normally and never match.
func Compile(g model.FilterGroup, now time.Time) (*Program, error) {
	filters := append([]model.FilterConfiguration{}, g.Filters...)

	join := " && "
	if g.Combinator == model.CombinatorOr {
		join = " || "
	}

	terms := make([]string, len(filters))
	for i, f := range filters {
		terms[i] = fmt.Sprintf("test(%d, row[%s])", i, strconv.Quote(f.Field))
	}
	source := "true"
	if len(terms) > 0 {
		source = strings.Join(terms, join)
	}

	test := func(params ...any) (any, error) {
		idx, ok := params[0].(int)
		if !ok || idx < 0 || idx >= len(filters) {
			return nil, fmt.Errorf("filter index %v out of range", params[0])
		}
		return Evaluate(filters[idx], params[1], now), nil
	}

	program, err := expr.Compile(source,
		expr.Env(map[string]any{"row": map[string]any{}}),
		expr.Function("test", test, new(func(int, any) bool)),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("filter: compiling group %s: %w", g.ID, err)
	}
	return &Program{source: source, program: program}, nil
}

// Evaluate applies one filter to a field value.
func Evaluate(f model.FilterConfiguration, v any, now time.Time) bool {
	switch f.Operator {
	case OpIsEmpty:
		return isEmpty(v)
	case OpIsNotEmpty:
		return !isEmpty(v)
	}
	if isEmpty(v) {
		return f.Operator == OpNotEquals || f.Operator == OpNotContains || f.Operator == OpNotIn
	}

	switch f.Operator {
	case OpEquals:
		c, ok := compare(f.DataType, v, f.Value.Scalar)
		return ok && c == 0
	case OpNotEquals:
		c, ok := compare(f.DataType, v, f.Value.Scalar)
		return !ok || c != 0
	case OpGreaterThan:
		c, ok := compare(f.DataType, v, f.Value.Scalar)
		return ok && c > 0
	case OpGreaterThanOrEqual:
		c, ok := compare(f.DataType, v, f.Value.Scalar)
		return ok && c >= 0
	case OpLessThan:
		c, ok := compare(f.DataType, v, f.Value.Scalar)
		return ok && c < 0
	case OpLessThanOrEqual:
		c, ok := compare(f.DataType, v, f.Value.Scalar)
		return ok && c <= 0
	case OpBetween:
		return between(f.DataType, v, f.Value.Pair)
	case OpNotBetween:
		return !between(f.DataType, v, f.Value.Pair)
	case OpIn:
		return inList(f.DataType, v, f.Value.List)
	case OpNotIn:
		return !inList(f.DataType, v, f.Value.List)
	case OpContains:
		return strings.Contains(lower(v), lower(f.Value.Scalar))
	case OpNotContains:
		return !strings.Contains(lower(v), lower(f.Value.Scalar))
	case OpStartsWith:
		return strings.HasPrefix(lower(v), lower(f.Value.Scalar))
	case OpEndsWith:
		return strings.HasSuffix(lower(v), lower(f.Value.Scalar))
	case OpLastNDays, OpNextNDays, OpThisWeek, OpThisMonth, OpThisYear:
		d, ok := toDate(v)
		if !ok {
			return false
		}
		return inRelativeRange(f.Operator, f.Value.Count, d, now)
	}
	return false
}

// compare orders a against b as the data type. ok is false when either
// operand cannot be read as that type.
func compare(dataType model.DataType, a, b any) (c int, ok bool) {
	switch dataType {
	case model.DataTypeNumber, model.DataTypeDecimal:
		x, ok1 := toFloat(a)
		y, ok2 := toFloat(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		return cmp.Compare(x, y), true
	case model.DataTypeDate:
		x, ok1 := toDate(a)
		y, ok2 := toDate(b)
		if !ok1 || !ok2 {
			return 0, false
		}
		return x.Compare(y), true
	case model.DataTypeBoolean:
		x, ok1 := toBool(a)
		y, ok2 := toBool(b)
		if !ok1 || !ok2 || x != y {
			return 1, ok1 && ok2
		}
		return 0, true
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func between(dataType model.DataType, v any, pair [2]any) bool {
	lo, ok1 := compare(dataType, v, pair[0])
	hi, ok2 := compare(dataType, v, pair[1])
	return ok1 && ok2 && lo >= 0 && hi <= 0
}

func inList(dataType model.DataType, v any, list []any) bool {
	for _, item := range list {
		if c, ok := compare(dataType, v, item); ok && c == 0 {
			return true
		}
	}
	return false
}

func inRelativeRange(op string, days int, d, now time.Time) bool {
	today := truncateDay(now)
	d = truncateDay(d)
	switch op {
	case OpLastNDays:
		return !d.Before(today.AddDate(0, 0, -days)) && !d.After(today)
	case OpNextNDays:
		return !d.Before(today) && !d.After(today.AddDate(0, 0, days))
	case OpThisWeek:
		y1, w1 := d.ISOWeek()
		y2, w2 := today.ISOWeek()
		return y1 == y2 && w1 == w2
	case OpThisMonth:
		return d.Year() == today.Year() && d.Month() == today.Month()
	case OpThisYear:
		return d.Year() == today.Year()
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func lower(v any) string {
	if v == nil {
		return ""
	}
	return strings.ToLower(fmt.Sprint(v))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	}
	return false, false
}

func toDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return truncateDay(t), true
	case string:
		if d, err := time.Parse(DateLayout, t); err == nil {
			return d, true
		}
		if d, err := time.Parse(time.RFC3339, t); err == nil {
			return truncateDay(d), true
		}
	}
	return time.Time{}, false
}
