package report

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pitabwire/reportbuilder/internal/filter"
	"github.com/pitabwire/reportbuilder/internal/layout"
	"github.com/pitabwire/reportbuilder/internal/observability"
	"github.com/pitabwire/reportbuilder/internal/preview"
	"github.com/pitabwire/reportbuilder/internal/store"
	"github.com/pitabwire/reportbuilder/model"
)

type serviceFixture struct {
	svc     *Service
	store   *store.MemoryReportStore
	cache   *preview.MemoryCache
	metrics *observability.Metrics
	now     *time.Time
}

func newTestService(t *testing.T, opts ...ServiceOption) serviceFixture {
	t.Helper()
	now := fixedNow
	f := serviceFixture{
		store:   store.NewMemoryReportStore(),
		cache:   preview.NewMemoryCache(),
		metrics: observability.InitMetrics(prometheus.NewRegistry()),
		now:     &now,
	}
	base := []ServiceOption{
		WithPreviewCache(f.cache, time.Minute),
		WithRecorder(f.metrics),
		WithServiceClock(func() time.Time { return *f.now }),
		WithServiceIDGenerator(seqIDs()),
		WithIdleTimeout(30 * time.Minute),
	}
	f.svc = NewService(f.store, testCatalog(), append(base, opts...)...)
	return f
}

func analyst() *model.RequestContext {
	return &model.RequestContext{SubjectID: "ana", TenantID: "acme", Roles: []string{"analyst"}}
}

func mustExecute(t *testing.T, svc *Service, rctx *model.RequestContext, sid string, cmd Command) (model.ReportSnapshot, Effect) {
	t.Helper()
	snap, eff, err := svc.Execute(context.Background(), rctx, sid, cmd)
	if err != nil {
		t.Fatalf("Execute(%s) error: %v", cmd.Type, err)
	}
	return snap, eff
}

func openNamed(t *testing.T, f serviceFixture, name string) string {
	t.Helper()
	snap, err := f.svc.Open(context.Background(), analyst(), "")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	mustExecute(t, f.svc, analyst(), snap.SessionID, Command{Type: CmdSelectDataSource, DataSourceID: "sales"})
	mustExecute(t, f.svc, analyst(), snap.SessionID, Command{Type: CmdRename, Name: &name})
	return snap.SessionID
}

func TestService_OpenBlank(t *testing.T) {
	f := newTestService(t, WithCanvasDefaults(model.ReportLayout{Width: 1600, Height: 900, GridSize: 10, SnapToGrid: true}))
	snap, err := f.svc.Open(context.Background(), analyst(), "")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}

	if snap.SessionID == "" {
		t.Fatal("SessionID is empty")
	}
	if snap.Report.OwnerID != "ana" || snap.Report.TenantID != "acme" {
		t.Errorf("owner/tenant = %q/%q, want ana/acme", snap.Report.OwnerID, snap.Report.TenantID)
	}
	if snap.Report.Layout.Width != 1600 || snap.Report.Layout.GridSize != 10 || !snap.Report.Layout.SnapToGrid {
		t.Errorf("Layout = %+v, want canvas defaults applied", snap.Report.Layout)
	}
	if snap.Actions.CanSave || snap.Actions.CanPreview {
		t.Errorf("Actions = %+v, want both blocked", snap.Actions)
	}
	if f.svc.Sessions() != 1 {
		t.Errorf("Sessions() = %d, want 1", f.svc.Sessions())
	}
	if got := testutil.ToFloat64(f.metrics.ActiveSessions); got != 1 {
		t.Errorf("active sessions gauge = %v, want 1", got)
	}
}

func TestService_SaveCreatesThenUpdates(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()

	snap, err := f.svc.Open(ctx, analyst(), "")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	sid := snap.SessionID

	if _, err := f.svc.Save(ctx, analyst(), sid); errCode(err) != model.ErrActionBlocked {
		t.Fatalf("Save on blank report code = %q, want %q", errCode(err), model.ErrActionBlocked)
	}
	if got := testutil.ToFloat64(f.metrics.BlockedActionsTotal.WithLabelValues(ActionSave)); got != 1 {
		t.Errorf("blocked saves = %v, want 1", got)
	}

	name := "Gold sales"
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdSelectDataSource, DataSourceID: "sales"})
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdRename, Name: &name})

	saved, err := f.svc.Save(ctx, analyst(), sid)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if saved.Report.ID == "" || saved.Report.Version != 1 {
		t.Fatalf("saved report = id %q version %d, want an id at version 1", saved.Report.ID, saved.Report.Version)
	}
	if f.store.Len() != 1 {
		t.Errorf("store.Len() = %d, want 1", f.store.Len())
	}

	renamed := "Gold sales by region"
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdRename, Name: &renamed})
	again, err := f.svc.Save(ctx, analyst(), sid)
	if err != nil {
		t.Fatalf("second Save error: %v", err)
	}
	if again.Report.ID != saved.Report.ID || again.Report.Version != 2 {
		t.Errorf("second save = id %q version %d, want same id at version 2", again.Report.ID, again.Report.Version)
	}

	stored, err := f.store.Get(ctx, "acme", saved.Report.ID)
	if err != nil {
		t.Fatalf("store.Get error: %v", err)
	}
	if stored.Name != renamed {
		t.Errorf("stored Name = %q, want %q", stored.Name, renamed)
	}
	if got := testutil.ToFloat64(f.metrics.SavesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("successful saves = %v, want 2", got)
	}
}

func TestService_OpenExisting(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()

	sid := openNamed(t, f, "Inventory audit")
	saved, err := f.svc.Save(ctx, analyst(), sid)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}

	colleague := &model.RequestContext{SubjectID: "ben", TenantID: "acme"}
	snap, err := f.svc.Open(ctx, colleague, saved.Report.ID)
	if err != nil {
		t.Fatalf("Open existing error: %v", err)
	}
	if snap.Report.Name != "Inventory audit" || snap.Report.OwnerID != "ana" {
		t.Errorf("opened report = %q owned by %q, want Inventory audit owned by ana", snap.Report.Name, snap.Report.OwnerID)
	}
	if !snap.Actions.CanSave {
		t.Error("CanSave = false for a saved report")
	}

	other := &model.RequestContext{SubjectID: "eve", TenantID: "globex"}
	if _, err := f.svc.Open(ctx, other, saved.Report.ID); errCode(err) != model.ErrNotFound {
		t.Errorf("Open from another tenant code = %q, want %q", errCode(err), model.ErrNotFound)
	}
}

func TestService_sessionOwnership(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()
	sid := openNamed(t, f, "Mine")

	tests := []struct {
		name string
		rctx *model.RequestContext
	}{
		{"other subject", &model.RequestContext{SubjectID: "ben", TenantID: "acme"}},
		{"other tenant", &model.RequestContext{SubjectID: "ana", TenantID: "globex"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Snapshot(ctx, tt.rctx, sid); errCode(err) != model.ErrSessionNotFound {
				t.Errorf("Snapshot code = %q, want %q", errCode(err), model.ErrSessionNotFound)
			}
			if _, _, err := f.svc.Execute(ctx, tt.rctx, sid, Command{Type: CmdAddFilterGroup}); errCode(err) != model.ErrSessionNotFound {
				t.Errorf("Execute code = %q, want %q", errCode(err), model.ErrSessionNotFound)
			}
		})
	}

	if _, err := f.svc.Snapshot(ctx, analyst(), "missing"); errCode(err) != model.ErrSessionNotFound {
		t.Errorf("unknown session code = %q, want %q", errCode(err), model.ErrSessionNotFound)
	}
}

func TestService_SaveConflict(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()

	sid := openNamed(t, f, "Shared")
	saved, err := f.svc.Save(ctx, analyst(), sid)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}

	second, err := f.svc.Open(ctx, analyst(), saved.Report.ID)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if _, err := f.svc.Save(ctx, analyst(), second.SessionID); err != nil {
		t.Fatalf("Save from second session error: %v", err)
	}

	if _, err := f.svc.Save(ctx, analyst(), sid); errCode(err) != model.ErrConflict {
		t.Errorf("stale Save code = %q, want %q", errCode(err), model.ErrConflict)
	}
	if got := testutil.ToFloat64(f.metrics.SavesTotal.WithLabelValues("conflict")); got != 1 {
		t.Errorf("conflict saves = %v, want 1", got)
	}
}

func TestService_SaveRejectsDanglingReferences(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()

	sales, _ := testCatalog().DataSource("sales")
	sales.Relationships = nil
	stale := model.ReportConfiguration{
		ID: "r-stale", TenantID: "acme", OwnerID: "ana", Name: "Stale",
		DataSources: []model.DataSource{sales},
		Filters: []model.FilterGroup{{
			ID: "g1", Name: "Filters", Combinator: model.CombinatorAnd,
			Filters: []model.FilterConfiguration{{
				ID: "f1", Field: "sales.discount", Operator: "equals",
				DataType: model.DataTypeNumber, Value: model.ScalarValue(0.0),
			}},
		}},
	}
	if _, err := f.store.Create(ctx, stale); err != nil {
		t.Fatalf("store.Create error: %v", err)
	}

	snap, err := f.svc.Open(ctx, analyst(), "r-stale")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	_, err = f.svc.Save(ctx, analyst(), snap.SessionID)
	if errCode(err) != model.ErrValidationError {
		t.Fatalf("Save code = %q, want %q", errCode(err), model.ErrValidationError)
	}
	env := err.(*model.ErrorEnvelope)
	if len(env.Details) != 1 || env.Details[0].Field != "filters[0].filters[0].field" {
		t.Errorf("Details = %+v, want the dangling filter field", env.Details)
	}
}

func TestService_ExecuteRecordsCascade(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()
	sid := openNamed(t, f, "Cascade")

	_, eff := mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdCreateVisualization, VisualizationType: model.VisualizationChart})
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdBindMeasure, VisualizationID: eff.CreatedID, Field: "sales.revenue"})
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdCreateFilter, Field: "sales.region"})

	snap, eff, err := f.svc.Execute(ctx, analyst(), sid, Command{Type: CmdRemoveDataSource, DataSourceID: "sales"})
	if err != nil {
		t.Fatalf("remove_data_source error: %v", err)
	}
	if eff.Cascade == nil || eff.Cascade.Total() != 2 {
		t.Fatalf("Cascade = %+v, want one visualization and one filter", eff.Cascade)
	}
	if len(snap.Report.Visualizations) != 0 || len(snap.Report.Layout.Components) != 0 {
		t.Errorf("snapshot still holds visualizations: %d / %d", len(snap.Report.Visualizations), len(snap.Report.Layout.Components))
	}
	if got := testutil.ToFloat64(f.metrics.CascadeRemovalsTotal.WithLabelValues("visualization")); got != 1 {
		t.Errorf("cascaded visualizations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(f.metrics.CommandsTotal.WithLabelValues(string(CmdRemoveDataSource), "success")); got != 1 {
		t.Errorf("remove_data_source successes = %v, want 1", got)
	}

	if _, _, err := f.svc.Execute(ctx, analyst(), sid, Command{Type: "explode"}); errCode(err) != model.ErrUnknownCommand {
		t.Errorf("unknown command code = %q, want %q", errCode(err), model.ErrUnknownCommand)
	}
	if got := testutil.ToFloat64(f.metrics.CommandsTotal.WithLabelValues("explode", "failure")); got != 1 {
		t.Errorf("failed commands = %v, want 1", got)
	}
}

func TestService_PreviewCaches(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()
	sid := openNamed(t, f, "Preview")

	_, eff := mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdCreateFilter, Field: "sales.revenue"})
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdUpdateFilterOperator, FilterID: eff.CreatedID, Operator: "greater_than"})
	v := model.ScalarValue(100.0)
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdUpdateFilterValue, FilterID: eff.CreatedID, Value: &v})

	rows := []map[string]any{
		{"sales.region": "north", "sales.revenue": 250.0},
		{"sales.region": "south", "sales.revenue": 50.0},
		{"sales.region": "east", "sales.revenue": 900.0},
	}

	first, err := f.svc.Preview(ctx, analyst(), sid, rows)
	if err != nil {
		t.Fatalf("Preview error: %v", err)
	}
	if first.MatchedRows != 2 {
		t.Errorf("MatchedRows = %d, want 2", first.MatchedRows)
	}
	if first.CacheKey == "" || f.cache.Len() != 1 {
		t.Errorf("CacheKey = %q with %d entries, want one cached payload", first.CacheKey, f.cache.Len())
	}

	second, err := f.svc.Preview(ctx, analyst(), sid, rows)
	if err != nil {
		t.Fatalf("second Preview error: %v", err)
	}
	if second.CacheKey != first.CacheKey {
		t.Errorf("second CacheKey = %q, want %q", second.CacheKey, first.CacheKey)
	}
	if hits := testutil.ToFloat64(f.metrics.PreviewCacheHitsTotal); hits != 1 {
		t.Errorf("cache hits = %v, want 1", hits)
	}
	if misses := testutil.ToFloat64(f.metrics.PreviewCacheMissesTotal); misses != 1 {
		t.Errorf("cache misses = %v, want 1", misses)
	}

	// Any edit changes the key.
	title := "Preview v2"
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdRename, Name: &title})
	third, err := f.svc.Preview(ctx, analyst(), sid, rows)
	if err != nil {
		t.Fatalf("third Preview error: %v", err)
	}
	if third.CacheKey == first.CacheKey {
		t.Error("CacheKey unchanged after rename")
	}
}

func TestService_PreviewGating(t *testing.T) {
	f := newTestService(t, WithMaxPreviewRows(1))
	ctx := context.Background()

	snap, err := f.svc.Open(ctx, analyst(), "")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if _, err := f.svc.Preview(ctx, analyst(), snap.SessionID, nil); errCode(err) != model.ErrActionBlocked {
		t.Errorf("Preview without data source code = %q, want %q", errCode(err), model.ErrActionBlocked)
	}

	// Preview needs a data source but no name.
	mustExecute(t, f.svc, analyst(), snap.SessionID, Command{Type: CmdSelectDataSource, DataSourceID: "sales"})
	if _, err := f.svc.Preview(ctx, analyst(), snap.SessionID, nil); err != nil {
		t.Errorf("Preview of unnamed report error: %v", err)
	}

	rows := []map[string]any{{"sales.revenue": 1.0}, {"sales.revenue": 2.0}}
	if _, err := f.svc.Preview(ctx, analyst(), snap.SessionID, rows); errCode(err) != model.ErrBadRequest {
		t.Errorf("Preview over the row cap code = %q, want %q", errCode(err), model.ErrBadRequest)
	}
}

func TestService_Close(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()
	sid := openNamed(t, f, "Closing")

	_, eff := mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdCreateVisualization, VisualizationType: model.VisualizationTable})
	mustExecute(t, f.svc, analyst(), sid, Command{Type: CmdBeginInteraction, Mode: layout.ModeDragging, VisualizationID: eff.CreatedID, Point: &layout.Point{X: 10, Y: 10}})

	if err := f.svc.Close(ctx, analyst(), sid); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if f.svc.Sessions() != 0 {
		t.Errorf("Sessions() = %d, want 0", f.svc.Sessions())
	}
	if err := f.svc.Close(ctx, analyst(), sid); errCode(err) != model.ErrSessionNotFound {
		t.Errorf("second Close code = %q, want %q", errCode(err), model.ErrSessionNotFound)
	}
}

func TestService_Sweep(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()

	idle := openNamed(t, f, "Idle")
	*f.now = f.now.Add(20 * time.Minute)
	busy := openNamed(t, f, "Busy")

	*f.now = f.now.Add(15 * time.Minute)
	if n := f.svc.Sweep(*f.now); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if _, err := f.svc.Snapshot(ctx, analyst(), idle); errCode(err) != model.ErrSessionNotFound {
		t.Errorf("swept session code = %q, want %q", errCode(err), model.ErrSessionNotFound)
	}
	if _, err := f.svc.Snapshot(ctx, analyst(), busy); err != nil {
		t.Errorf("busy session error: %v", err)
	}
	if got := testutil.ToFloat64(f.metrics.ActiveSessions); got != 1 {
		t.Errorf("active sessions gauge = %v, want 1", got)
	}
}

func TestService_ListAndDelete(t *testing.T) {
	f := newTestService(t)
	ctx := context.Background()

	sid := openNamed(t, f, "Disposable")
	saved, err := f.svc.Save(ctx, analyst(), sid)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}

	list, err := f.svc.List(ctx, analyst(), store.ReportFilters{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 || list[0].ID != saved.Report.ID {
		t.Errorf("List = %d reports, want the saved one", len(list))
	}

	colleague := &model.RequestContext{SubjectID: "ben", TenantID: "acme"}
	if err := f.svc.Delete(ctx, colleague, saved.Report.ID); errCode(err) != model.ErrForbidden {
		t.Errorf("Delete by colleague code = %q, want %q", errCode(err), model.ErrForbidden)
	}
	if err := f.svc.Delete(ctx, analyst(), saved.Report.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if f.store.Len() != 0 {
		t.Errorf("store.Len() = %d, want 0", f.store.Len())
	}
}

// jsonStore hands back reports the way a database payload column does:
// encoded and decoded again, so filter values lose their in-memory shape.
type jsonStore struct {
	*store.MemoryReportStore
}

func (s jsonStore) Get(ctx context.Context, tenantID, reportID string) (model.ReportConfiguration, error) {
	r, err := s.MemoryReportStore.Get(ctx, tenantID, reportID)
	if err != nil {
		return r, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return model.ReportConfiguration{}, err
	}
	var decoded model.ReportConfiguration
	err = json.Unmarshal(data, &decoded)
	return decoded, err
}

func TestService_ReopenDecodedReport(t *testing.T) {
	ctx := context.Background()
	svc := NewService(jsonStore{store.NewMemoryReportStore()}, testCatalog(),
		WithServiceClock(func() time.Time { return fixedNow }),
		WithServiceIDGenerator(seqIDs()),
	)
	snap, err := svc.Open(ctx, analyst(), "")
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	sid := snap.SessionID
	name := "Mid-size sales"
	mustExecute(t, svc, analyst(), sid, Command{Type: CmdSelectDataSource, DataSourceID: "sales"})
	mustExecute(t, svc, analyst(), sid, Command{Type: CmdRename, Name: &name})
	_, eff := mustExecute(t, svc, analyst(), sid, Command{Type: CmdCreateFilter, Field: "sales.revenue"})
	mustExecute(t, svc, analyst(), sid, Command{Type: CmdUpdateFilterOperator, FilterID: eff.CreatedID, Operator: "between"})
	v := model.PairValue(100, 500)
	mustExecute(t, svc, analyst(), sid, Command{Type: CmdUpdateFilterValue, FilterID: eff.CreatedID, Value: &v})
	_, eff = mustExecute(t, svc, analyst(), sid, Command{Type: CmdCreateFilter, Field: "sales.sold_at"})
	mustExecute(t, svc, analyst(), sid, Command{Type: CmdUpdateFilterOperator, FilterID: eff.CreatedID, Operator: "last_n_days"})

	saved, err := svc.Save(ctx, analyst(), sid)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}

	reopened, err := svc.Open(ctx, analyst(), saved.Report.ID)
	if err != nil {
		t.Fatalf("Open(%s) error: %v", saved.Report.ID, err)
	}
	filters := reopened.Report.Filters[0].Filters
	if len(filters) != 2 {
		t.Fatalf("len(filters) = %d, want 2", len(filters))
	}
	if filters[0].Value.Shape != model.ShapePair {
		t.Errorf("between value shape = %s, want %s", filters[0].Value.Shape, model.ShapePair)
	}
	if filters[1].Value.Shape != model.ShapeRelative || filters[1].Value.Count != 7 {
		t.Errorf("last_n_days value = %+v, want relative 7", filters[1].Value)
	}
	got := filter.Summarize(reopened.Report.Filters[0], nil).Text
	if want := filter.Summarize(saved.Report.Filters[0], nil).Text; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}
