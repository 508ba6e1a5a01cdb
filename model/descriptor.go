package model

// OperatorDescriptor is a filter operator as offered to the frontend.
type OperatorDescriptor struct {
	Symbol string     `json:"symbol"`
	Label  string     `json:"label"`
	Shape  ValueShape `json:"shape"`
}

// ActionState tells the frontend which gated actions are enabled.
type ActionState struct {
	CanSave    bool `json:"canSave"`
	CanPreview bool `json:"canPreview"`
}

// InteractionDescriptor describes an in-flight drag or resize.
type InteractionDescriptor struct {
	Mode     string `json:"mode"`
	TargetID string `json:"targetId,omitempty"`
}

// ReportSnapshot is the read-only view of an editing session.
type ReportSnapshot struct {
	SessionID   string                `json:"sessionId"`
	Report      ReportConfiguration   `json:"report"`
	Selection   []string              `json:"selection"`
	Actions     ActionState           `json:"actions"`
	Interaction InteractionDescriptor `json:"interaction"`
}

// FilterSummary is the human-readable rendering of a filter group.
type FilterSummary struct {
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

// PreviewVisualization is a visualization with report styling applied and
// bindings resolved to field metadata.
type PreviewVisualization struct {
	VisualizationConfig
	DimensionFields []FieldDefinition `json:"dimensionFields"`
	MeasureFields   []FieldDefinition `json:"measureFields"`
}

// PreviewPayload is handed to the rendering collaborator.
type PreviewPayload struct {
	ReportID       string                 `json:"reportId,omitempty"`
	Name           string                 `json:"name"`
	Canvas         Rect                   `json:"canvas"`
	Visualizations []PreviewVisualization `json:"visualizations"`
	Filters        []FilterSummary        `json:"filters"`
	Rows           []map[string]any       `json:"rows,omitempty"`
	MatchedRows    int                    `json:"matchedRows"`
	CacheKey       string                 `json:"cacheKey"`
}
