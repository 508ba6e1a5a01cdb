package store

import (
	"context"
	"testing"
	"time"

	"github.com/pitabwire/reportbuilder/model"
)

func testReport(id, tenantID, ownerID string) model.ReportConfiguration {
	return model.ReportConfiguration{
		ID:       id,
		TenantID: tenantID,
		OwnerID:  ownerID,
		Name:     "Gold sales",
		DataSources: []model.DataSource{
			{ID: "sales", Name: "Sales", Kind: model.DataSourceTable},
		},
	}
}

func envCode(t *testing.T, err error) string {
	t.Helper()
	envErr, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("error type = %T, want *model.ErrorEnvelope", err)
	}
	return envErr.Code
}

// --- Create ---

func TestMemoryReportStore_Create(t *testing.T) {
	store := NewMemoryReportStore()

	got, err := store.Create(context.Background(), testReport("r-1", "tenant-1", "user-alice"))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("timestamps = %v / %v, want equal and set", got.CreatedAt, got.UpdatedAt)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryReportStore_Create_duplicate(t *testing.T) {
	store := NewMemoryReportStore()
	r := testReport("r-1", "tenant-1", "user-alice")

	_, _ = store.Create(context.Background(), r)
	_, err := store.Create(context.Background(), r)
	if err == nil {
		t.Fatal("expected conflict error for duplicate")
	}
	if code := envCode(t, err); code != model.ErrConflict {
		t.Errorf("code = %s, want %s", code, model.ErrConflict)
	}
}

// --- Get ---

func TestMemoryReportStore_Get(t *testing.T) {
	store := NewMemoryReportStore()
	_, _ = store.Create(context.Background(), testReport("r-1", "tenant-1", "user-alice"))

	got, err := store.Get(context.Background(), "tenant-1", "r-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Name != "Gold sales" {
		t.Errorf("Name = %q", got.Name)
	}
}

func TestMemoryReportStore_Get_wrongTenant(t *testing.T) {
	store := NewMemoryReportStore()
	_, _ = store.Create(context.Background(), testReport("r-1", "tenant-1", "user-alice"))

	_, err := store.Get(context.Background(), "tenant-2", "r-1")
	if err == nil {
		t.Fatal("expected not found for another tenant")
	}
	if code := envCode(t, err); code != model.ErrNotFound {
		t.Errorf("code = %s, want %s", code, model.ErrNotFound)
	}
}

// --- Update ---

func TestMemoryReportStore_Update(t *testing.T) {
	store := NewMemoryReportStore()
	created, _ := store.Create(context.Background(), testReport("r-1", "tenant-1", "user-alice"))

	created.Name = "Renamed"
	updated, err := store.Update(context.Background(), created)
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}

	got, _ := store.Get(context.Background(), "tenant-1", "r-1")
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", got.Name)
	}
}

func TestMemoryReportStore_Update_versionConflict(t *testing.T) {
	store := NewMemoryReportStore()
	created, _ := store.Create(context.Background(), testReport("r-1", "tenant-1", "user-alice"))
	if _, err := store.Update(context.Background(), created); err != nil {
		t.Fatalf("first Update error: %v", err)
	}

	_, err := store.Update(context.Background(), created)
	if err == nil {
		t.Fatal("expected conflict for stale version")
	}
	if code := envCode(t, err); code != model.ErrConflict {
		t.Errorf("code = %s, want %s", code, model.ErrConflict)
	}
}

func TestMemoryReportStore_Update_notFound(t *testing.T) {
	store := NewMemoryReportStore()
	_, err := store.Update(context.Background(), testReport("r-1", "tenant-1", "user-alice"))
	if code := envCode(t, err); code != model.ErrNotFound {
		t.Errorf("code = %s, want %s", code, model.ErrNotFound)
	}
}

// --- List ---

func TestMemoryReportStore_List(t *testing.T) {
	store := NewMemoryReportStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	_, _ = store.Create(context.Background(), testReport("r-1", "tenant-1", "user-alice"))
	_, _ = store.Create(context.Background(), testReport("r-2", "tenant-1", "user-bob"))
	_, _ = store.Create(context.Background(), testReport("r-3", "tenant-1", "user-alice"))
	_, _ = store.Create(context.Background(), testReport("r-4", "tenant-2", "user-alice"))

	tests := []struct {
		name    string
		filters ReportFilters
		want    []string
	}{
		{"all", ReportFilters{}, []string{"r-3", "r-2", "r-1"}},
		{"owner", ReportFilters{OwnerID: "user-alice"}, []string{"r-3", "r-1"}},
		{"limit", ReportFilters{Limit: 2}, []string{"r-3", "r-2"}},
		{"offset", ReportFilters{Offset: 2}, []string{"r-1"}},
		{"offset past end", ReportFilters{Offset: 10}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(context.Background(), "tenant-1", tt.filters)
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

// --- Delete ---

func TestMemoryReportStore_Delete(t *testing.T) {
	store := NewMemoryReportStore()
	_, _ = store.Create(context.Background(), testReport("r-1", "tenant-1", "user-alice"))

	if err := store.Delete(context.Background(), "tenant-2", "r-1"); err == nil {
		t.Error("Delete from another tenant succeeded")
	}
	if err := store.Delete(context.Background(), "tenant-1", "r-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping error: %v", err)
	}
}
