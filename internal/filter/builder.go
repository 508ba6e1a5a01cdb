package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/reportbuilder/model"
)

// DefaultGroupName names the group a builder starts with.
const DefaultGroupName = "Filters"

// Option configures a Builder.
type Option func(*Builder)

// WithClock sets the clock used for date defaults.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator sets the generator used for group and filter ids.
func WithIDGenerator(gen func() string) Option {
	return func(b *Builder) { b.newID = gen }
}

// Builder manages ordered filter groups. Every filter it holds has an
// operator valid for its data type and a value of the operator's shape.
// A Builder is not safe for concurrent use.
type Builder struct {
	groups []model.FilterGroup
	now    func() time.Time
	newID  func() string
}

// NewBuilder creates a Builder over existing groups. When groups is empty a
// single AND group is created.
func NewBuilder(groups []model.FilterGroup, opts ...Option) *Builder {
	b := &Builder{
		groups: cloneGroups(groups),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.groups) == 0 {
		b.groups = []model.FilterGroup{b.emptyGroup(DefaultGroupName)}
	}
	for gi := range b.groups {
		for fi := range b.groups[gi].Filters {
			b.restore(&b.groups[gi].Filters[fi])
		}
	}
	return b
}

// restore settles a loaded filter. Encoded values carry no shape, so the
// value is reshaped for its operator; an operator outside the data type's
// table or a value that cannot take the operator's shape is reset to the
// default, as a field change would.
func (b *Builder) restore(f *model.FilterConfiguration) {
	if !IsValidOperator(f.DataType, f.Operator) {
		op := DefaultOperator(f.DataType)
		if op == "" {
			return
		}
		f.Operator = op
		f.Value = DefaultValue(f.DataType, op, b.now())
		return
	}
	checked, err := CheckValue(f.DataType, f.Operator, f.Value)
	if err != nil {
		f.Value = DefaultValue(f.DataType, f.Operator, b.now())
		return
	}
	f.Value = checked
}

func (b *Builder) emptyGroup(name string) model.FilterGroup {
	return model.FilterGroup{
		ID:         b.newID(),
		Name:       name,
		Combinator: model.CombinatorAnd,
		Filters:    []model.FilterConfiguration{},
	}
}

// Groups returns a copy of the current groups.
func (b *Builder) Groups() []model.FilterGroup {
	return cloneGroups(b.groups)
}

// AddGroup appends an empty AND group.
func (b *Builder) AddGroup(name string) model.FilterGroup {
	if name == "" {
		name = fmt.Sprintf("Group %d", len(b.groups)+1)
	}
	g := b.emptyGroup(name)
	b.groups = append(b.groups, g)
	return g
}

// RemoveGroup removes a group and its filters. The last group cannot be
// removed.
func (b *Builder) RemoveGroup(groupID string) error {
	idx := b.groupIndex(groupID)
	if idx < 0 {
		return model.NewNotFoundError(fmt.Sprintf("filter group %q not found", groupID))
	}
	if len(b.groups) == 1 {
		return model.NewBadRequestError("at least one filter group is required")
	}
	b.groups = append(b.groups[:idx], b.groups[idx+1:]...)
	return nil
}

// RenameGroup changes a group's name.
func (b *Builder) RenameGroup(groupID, name string) error {
	idx := b.groupIndex(groupID)
	if idx < 0 {
		return model.NewNotFoundError(fmt.Sprintf("filter group %q not found", groupID))
	}
	b.groups[idx].Name = name
	return nil
}

// SetCombinator changes how a group joins its filters.
func (b *Builder) SetCombinator(groupID string, c model.Combinator) error {
	if c != model.CombinatorAnd && c != model.CombinatorOr {
		return model.NewBadRequestError(fmt.Sprintf("combinator %q must be AND or OR", c))
	}
	idx := b.groupIndex(groupID)
	if idx < 0 {
		return model.NewNotFoundError(fmt.Sprintf("filter group %q not found", groupID))
	}
	b.groups[idx].Combinator = c
	return nil
}

// CreateFilter appends a filter on field to a group. An empty groupID selects
// the first group. The operator is the data type's default and the value is
// that operator's default.
func (b *Builder) CreateFilter(groupID, ref string, field model.FieldDefinition) (model.FilterConfiguration, error) {
	idx := 0
	if groupID != "" {
		idx = b.groupIndex(groupID)
		if idx < 0 {
			return model.FilterConfiguration{}, model.NewNotFoundError(fmt.Sprintf("filter group %q not found", groupID))
		}
	}
	f := model.FilterConfiguration{ID: b.newID()}
	if err := b.bind(&f, ref, field); err != nil {
		return model.FilterConfiguration{}, err
	}
	b.groups[idx].Filters = append(b.groups[idx].Filters, f)
	return f, nil
}

// UpdateFilterField rebinds a filter to another field and regenerates its
// operator and value, even when the field is unchanged.
func (b *Builder) UpdateFilterField(filterID, ref string, field model.FieldDefinition) (model.FilterConfiguration, error) {
	f, err := b.lookup(filterID)
	if err != nil {
		return model.FilterConfiguration{}, err
	}
	if err := b.bind(f, ref, field); err != nil {
		return model.FilterConfiguration{}, err
	}
	return *f, nil
}

// UpdateFilterOperator switches a filter's operator and resets its value to
// the new operator's default.
func (b *Builder) UpdateFilterOperator(filterID, op string) (model.FilterConfiguration, error) {
	f, err := b.lookup(filterID)
	if err != nil {
		return model.FilterConfiguration{}, err
	}
	if !IsValidOperator(f.DataType, op) {
		return model.FilterConfiguration{}, model.NewInvalidOperatorError(op, f.DataType)
	}
	f.Operator = op
	f.Value = DefaultValue(f.DataType, op, b.now())
	return *f, nil
}

// UpdateFilterValue stores a new operand. The value must take the shape the
// filter's operator requires and every operand must read as the field's data
// type.
func (b *Builder) UpdateFilterValue(filterID string, v model.FilterValue) (model.FilterConfiguration, error) {
	f, err := b.lookup(filterID)
	if err != nil {
		return model.FilterConfiguration{}, err
	}
	checked, err := CheckValue(f.DataType, f.Operator, v)
	if err != nil {
		return model.FilterConfiguration{}, err
	}
	f.Value = checked
	return *f, nil
}

// RemoveFilter deletes a filter from whichever group holds it.
func (b *Builder) RemoveFilter(filterID string) error {
	for gi := range b.groups {
		filters := b.groups[gi].Filters
		for fi := range filters {
			if filters[fi].ID == filterID {
				b.groups[gi].Filters = append(filters[:fi], filters[fi+1:]...)
				return nil
			}
		}
	}
	return model.NewNotFoundError(fmt.Sprintf("filter %q not found", filterID))
}

// RemoveFiltersForSource drops every filter whose field is scoped under the
// data source and returns how many were removed.
func (b *Builder) RemoveFiltersForSource(dataSourceID string) int {
	removed := 0
	for gi := range b.groups {
		kept := b.groups[gi].Filters[:0]
		for _, f := range b.groups[gi].Filters {
			if model.RefInSource(f.Field, dataSourceID) {
				removed++
				continue
			}
			kept = append(kept, f)
		}
		b.groups[gi].Filters = kept
	}
	return removed
}

// Filter returns the filter with the given id.
func (b *Builder) Filter(filterID string) (model.FilterConfiguration, bool) {
	f, err := b.lookup(filterID)
	if err != nil {
		return model.FilterConfiguration{}, false
	}
	return *f, true
}

// Summary renders a group as "label operator value" per filter joined by the
// group's combinator. label maps a field reference to its display name; nil
// uses the raw reference.
func (b *Builder) Summary(groupID string, label func(ref string) string) (model.FilterSummary, error) {
	idx := b.groupIndex(groupID)
	if idx < 0 {
		return model.FilterSummary{}, model.NewNotFoundError(fmt.Sprintf("filter group %q not found", groupID))
	}
	return Summarize(b.groups[idx], label), nil
}

// Summarize renders a filter group for display.
func Summarize(g model.FilterGroup, label func(ref string) string) model.FilterSummary {
	parts := make([]string, 0, len(g.Filters))
	for _, f := range g.Filters {
		name := f.Field
		if label != nil {
			name = label(f.Field)
		}
		parts = append(parts, strings.TrimSpace(name+" "+f.Operator+" "+f.Value.String()))
	}
	return model.FilterSummary{
		GroupID: g.ID,
		Text:    strings.Join(parts, " "+string(g.Combinator)+" "),
	}
}

func (b *Builder) bind(f *model.FilterConfiguration, ref string, field model.FieldDefinition) error {
	op := DefaultOperator(field.DataType)
	if op == "" {
		return model.NewBadRequestError(fmt.Sprintf("field %q has unsupported data type %q", ref, field.DataType))
	}
	f.Field = ref
	f.DataType = field.DataType
	f.Operator = op
	f.Value = DefaultValue(field.DataType, op, b.now())
	return nil
}

func (b *Builder) lookup(filterID string) (*model.FilterConfiguration, error) {
	for gi := range b.groups {
		for fi := range b.groups[gi].Filters {
			if b.groups[gi].Filters[fi].ID == filterID {
				return &b.groups[gi].Filters[fi], nil
			}
		}
	}
	return nil, model.NewNotFoundError(fmt.Sprintf("filter %q not found", filterID))
}

func (b *Builder) groupIndex(groupID string) int {
	for i, g := range b.groups {
		if g.ID == groupID {
			return i
		}
	}
	return -1
}

func cloneGroups(groups []model.FilterGroup) []model.FilterGroup {
	out := make([]model.FilterGroup, len(groups))
	for i, g := range groups {
		out[i] = g
		out[i].Filters = append([]model.FilterConfiguration{}, g.Filters...)
	}
	return out
}
