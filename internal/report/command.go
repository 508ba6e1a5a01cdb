package report

import (
	"fmt"

	"github.com/pitabwire/reportbuilder/internal/layout"
	"github.com/pitabwire/reportbuilder/internal/visualization"
	"github.com/pitabwire/reportbuilder/model"
)

// CommandType names an aggregate command on the wire.
type CommandType string

// Command types.
const (
	CmdSelectDataSource     CommandType = "select_data_source"
	CmdRemoveDataSource     CommandType = "remove_data_source"
	CmdAddRelationship      CommandType = "add_relationship"
	CmdRemoveRelationship   CommandType = "remove_relationship"
	CmdAddFilterGroup       CommandType = "add_filter_group"
	CmdRemoveFilterGroup    CommandType = "remove_filter_group"
	CmdRenameFilterGroup    CommandType = "rename_filter_group"
	CmdSetFilterCombinator  CommandType = "set_filter_combinator"
	CmdCreateFilter         CommandType = "create_filter"
	CmdUpdateFilterField    CommandType = "update_filter_field"
	CmdUpdateFilterOperator CommandType = "update_filter_operator"
	CmdUpdateFilterValue    CommandType = "update_filter_value"
	CmdRemoveFilter         CommandType = "remove_filter"
	CmdCreateVisualization  CommandType = "create_visualization"
	CmdUpdateVisualization  CommandType = "update_visualization"
	CmdRemoveVisualization  CommandType = "remove_visualization"
	CmdBindDimension        CommandType = "bind_dimension"
	CmdBindMeasure          CommandType = "bind_measure"
	CmdUnbindDimension      CommandType = "unbind_dimension"
	CmdUnbindMeasure        CommandType = "unbind_measure"
	CmdSelectPalette        CommandType = "select_palette"
	CmdSetColor             CommandType = "set_color"
	CmdAddColor             CommandType = "add_color"
	CmdRemoveColor          CommandType = "remove_color"
	CmdUpdateLayout         CommandType = "update_layout"
	CmdUpdateStyling        CommandType = "update_styling"
	CmdRename               CommandType = "rename"
	CmdDescribe             CommandType = "describe"
	CmdApplyTemplate        CommandType = "apply_template"
	CmdAlign                CommandType = "align"
	CmdDistribute           CommandType = "distribute"
	CmdMove                 CommandType = "move"
	CmdResize               CommandType = "resize"
	CmdBeginInteraction     CommandType = "begin_interaction"
	CmdUpdateInteraction    CommandType = "update_interaction"
	CmdEndInteraction       CommandType = "end_interaction"
	CmdCancelInteraction    CommandType = "cancel_interaction"
	CmdSetSelection         CommandType = "set_selection"
)

// Command is the wire envelope for an aggregate command. Only the fields the
// command type uses are read.
type Command struct {
	Type CommandType `json:"type"`

	DataSourceID string              `json:"dataSourceId,omitempty"`
	Relationship *model.Relationship `json:"relationship,omitempty"`

	GroupID    string             `json:"groupId,omitempty"`
	FilterID   string             `json:"filterId,omitempty"`
	Field      string             `json:"field,omitempty"`
	Operator   string             `json:"operator,omitempty"`
	Value      *model.FilterValue `json:"value,omitempty"`
	Combinator model.Combinator   `json:"combinator,omitempty"`

	VisualizationID   string                  `json:"visualizationId,omitempty"`
	VisualizationType model.VisualizationType `json:"visualizationType,omitempty"`
	Rect              *model.Rect             `json:"rect,omitempty"`
	Patch             *visualization.Patch    `json:"patch,omitempty"`
	Palette           string                  `json:"palette,omitempty"`
	ColorIndex        *int                    `json:"colorIndex,omitempty"`
	Color             string                  `json:"color,omitempty"`

	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	Layout      *LayoutPatch  `json:"layout,omitempty"`
	Styling     *StylingPatch `json:"styling,omitempty"`
	TemplateID  string        `json:"templateId,omitempty"`
	Edge        layout.Edge   `json:"edge,omitempty"`
	Axis        layout.Axis   `json:"axis,omitempty"`

	Mode      layout.Mode   `json:"mode,omitempty"`
	Point     *layout.Point `json:"point,omitempty"`
	Selection []string      `json:"selection,omitempty"`
}

// Effect describes what a command did beyond the snapshot change.
type Effect struct {
	CreatedID string   `json:"createdId,omitempty"`
	Cascade   *Cascade `json:"cascade,omitempty"`
}

// Execute dispatches a wire command to the matching aggregate method.
func (a *Aggregate) Execute(cmd Command) (Effect, error) {
	switch cmd.Type {
	case CmdSelectDataSource:
		if err := require(cmd.DataSourceID != "", "dataSourceId"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.SelectDataSource(cmd.DataSourceID)
	case CmdRemoveDataSource:
		if err := require(cmd.DataSourceID != "", "dataSourceId"); err != nil {
			return Effect{}, err
		}
		c, err := a.RemoveDataSource(cmd.DataSourceID)
		if err != nil {
			return Effect{}, err
		}
		return Effect{Cascade: &c}, nil
	case CmdAddRelationship, CmdRemoveRelationship:
		if err := require(cmd.Relationship != nil, "relationship"); err != nil {
			return Effect{}, err
		}
		if cmd.Type == CmdAddRelationship {
			return Effect{}, a.AddRelationship(*cmd.Relationship)
		}
		return Effect{}, a.RemoveRelationship(*cmd.Relationship)

	case CmdAddFilterGroup:
		g := a.AddFilterGroup(deref(cmd.Name))
		return Effect{CreatedID: g.ID}, nil
	case CmdRemoveFilterGroup:
		if err := require(cmd.GroupID != "", "groupId"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.RemoveFilterGroup(cmd.GroupID)
	case CmdRenameFilterGroup:
		if err := require(cmd.GroupID != "" && cmd.Name != nil, "groupId, name"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.RenameFilterGroup(cmd.GroupID, *cmd.Name)
	case CmdSetFilterCombinator:
		if err := require(cmd.GroupID != "", "groupId"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.SetFilterCombinator(cmd.GroupID, cmd.Combinator)
	case CmdCreateFilter:
		if err := require(cmd.Field != "", "field"); err != nil {
			return Effect{}, err
		}
		f, err := a.CreateFilter(cmd.GroupID, cmd.Field)
		if err != nil {
			return Effect{}, err
		}
		return Effect{CreatedID: f.ID}, nil
	case CmdUpdateFilterField:
		if err := require(cmd.FilterID != "" && cmd.Field != "", "filterId, field"); err != nil {
			return Effect{}, err
		}
		_, err := a.UpdateFilterField(cmd.FilterID, cmd.Field)
		return Effect{}, err
	case CmdUpdateFilterOperator:
		if err := require(cmd.FilterID != "" && cmd.Operator != "", "filterId, operator"); err != nil {
			return Effect{}, err
		}
		_, err := a.UpdateFilterOperator(cmd.FilterID, cmd.Operator)
		return Effect{}, err
	case CmdUpdateFilterValue:
		if err := require(cmd.FilterID != "", "filterId"); err != nil {
			return Effect{}, err
		}
		v := model.NoValue()
		if cmd.Value != nil {
			v = *cmd.Value
		}
		_, err := a.UpdateFilterValue(cmd.FilterID, v)
		return Effect{}, err
	case CmdRemoveFilter:
		if err := require(cmd.FilterID != "", "filterId"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.RemoveFilter(cmd.FilterID)

	case CmdCreateVisualization:
		if err := require(cmd.VisualizationType != "", "visualizationType"); err != nil {
			return Effect{}, err
		}
		v, err := a.CreateVisualization(cmd.VisualizationType, cmd.Rect)
		if err != nil {
			return Effect{}, err
		}
		return Effect{CreatedID: v.ID}, nil
	case CmdUpdateVisualization:
		if err := require(cmd.VisualizationID != "" && cmd.Patch != nil, "visualizationId, patch"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.UpdateVisualization(cmd.VisualizationID, *cmd.Patch)
	case CmdRemoveVisualization:
		if err := require(cmd.VisualizationID != "", "visualizationId"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.RemoveVisualization(cmd.VisualizationID)
	case CmdBindDimension, CmdBindMeasure, CmdUnbindDimension, CmdUnbindMeasure:
		if err := require(cmd.VisualizationID != "" && cmd.Field != "", "visualizationId, field"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.bind(cmd.Type, cmd.VisualizationID, cmd.Field)
	case CmdSelectPalette:
		if err := require(cmd.VisualizationID != "" && cmd.Palette != "", "visualizationId, palette"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.SelectPalette(cmd.VisualizationID, cmd.Palette)
	case CmdSetColor:
		if err := require(cmd.VisualizationID != "" && cmd.ColorIndex != nil && cmd.Color != "", "visualizationId, colorIndex, color"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.SetColor(cmd.VisualizationID, *cmd.ColorIndex, cmd.Color)
	case CmdAddColor:
		if err := require(cmd.VisualizationID != "" && cmd.Color != "", "visualizationId, color"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.AddColor(cmd.VisualizationID, cmd.Color)
	case CmdRemoveColor:
		if err := require(cmd.VisualizationID != "" && cmd.ColorIndex != nil, "visualizationId, colorIndex"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.RemoveColor(cmd.VisualizationID, *cmd.ColorIndex)

	case CmdUpdateLayout:
		if err := require(cmd.Layout != nil, "layout"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.UpdateLayout(*cmd.Layout)
	case CmdUpdateStyling:
		if err := require(cmd.Styling != nil, "styling"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.UpdateStyling(*cmd.Styling)
	case CmdRename:
		if err := require(cmd.Name != nil, "name"); err != nil {
			return Effect{}, err
		}
		a.Rename(*cmd.Name)
		return Effect{}, nil
	case CmdDescribe:
		if err := require(cmd.Description != nil, "description"); err != nil {
			return Effect{}, err
		}
		a.Describe(*cmd.Description)
		return Effect{}, nil
	case CmdApplyTemplate:
		if err := require(cmd.TemplateID != "", "templateId"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.ApplyTemplate(cmd.TemplateID)
	case CmdAlign:
		return Effect{}, a.Align(cmd.Edge)
	case CmdDistribute:
		return Effect{}, a.Distribute(cmd.Axis)
	case CmdMove:
		if err := require(cmd.VisualizationID != "" && cmd.Point != nil, "visualizationId, point"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.Move(cmd.VisualizationID, cmd.Point.X, cmd.Point.Y)
	case CmdResize:
		if err := require(cmd.VisualizationID != "" && cmd.Rect != nil, "visualizationId, rect"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.Resize(cmd.VisualizationID, cmd.Rect.Width, cmd.Rect.Height)

	case CmdBeginInteraction:
		if err := require(cmd.VisualizationID != "" && cmd.Point != nil, "visualizationId, point"); err != nil {
			return Effect{}, err
		}
		return Effect{}, a.BeginInteraction(cmd.Mode, cmd.VisualizationID, *cmd.Point)
	case CmdUpdateInteraction, CmdEndInteraction:
		if err := require(cmd.Point != nil, "point"); err != nil {
			return Effect{}, err
		}
		if cmd.Type == CmdUpdateInteraction {
			return Effect{}, a.UpdateInteraction(*cmd.Point)
		}
		return Effect{}, a.EndInteraction(*cmd.Point)
	case CmdCancelInteraction:
		a.CancelInteraction()
		return Effect{}, nil
	case CmdSetSelection:
		return Effect{}, a.SetSelection(cmd.Selection)
	}
	return Effect{}, &model.ErrorEnvelope{
		Code:    model.ErrUnknownCommand,
		Message: fmt.Sprintf("command %q is not supported", cmd.Type),
	}
}

func (a *Aggregate) bind(t CommandType, visID, ref string) error {
	switch t {
	case CmdBindDimension:
		return a.BindDimension(visID, ref)
	case CmdBindMeasure:
		return a.BindMeasure(visID, ref)
	case CmdUnbindDimension:
		return a.UnbindDimension(visID, ref)
	}
	return a.UnbindMeasure(visID, ref)
}

func require(ok bool, fields string) error {
	if ok {
		return nil
	}
	return model.NewBadRequestError(fmt.Sprintf("missing required command fields: %s", fields))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
