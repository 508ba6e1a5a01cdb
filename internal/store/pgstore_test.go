package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pitabwire/reportbuilder/model"
)

// fakeRow feeds scanReport the columns of one reports row.
type fakeRow struct {
	id, tenant, owner string
	payload           []byte
	version           int
	created, updated  time.Time
	err               error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.id
	*dest[1].(*string) = r.tenant
	*dest[2].(*string) = r.owner
	*dest[3].(*[]byte) = r.payload
	*dest[4].(*int) = r.version
	*dest[5].(*time.Time) = r.created
	*dest[6].(*time.Time) = r.updated
	return nil
}

func TestScanReport_columnsWin(t *testing.T) {
	stored := testReport("stale-id", "other-tenant", "other-owner")
	stored.Version = 9
	stored.Filters = []model.FilterGroup{{
		ID: "g1", Name: "Filters", Combinator: model.CombinatorAnd,
		Filters: []model.FilterConfiguration{
			{ID: "f1", Field: "sales.revenue", DataType: model.DataTypeNumber, Operator: "between", Value: model.PairValue(100, 500)},
		},
	}}
	payload, err := json.Marshal(stored)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	got, err := scanReport(fakeRow{
		id: "r1", tenant: "acme", owner: "ana",
		payload: payload, version: 3, created: at, updated: at.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("scanReport error: %v", err)
	}
	if got.ID != "r1" || got.TenantID != "acme" || got.OwnerID != "ana" {
		t.Errorf("identity = %s/%s/%s, want r1/acme/ana", got.ID, got.TenantID, got.OwnerID)
	}
	if got.Version != 3 || !got.CreatedAt.Equal(at) || !got.UpdatedAt.Equal(at.Add(time.Hour)) {
		t.Errorf("version/timestamps = %d %v %v", got.Version, got.CreatedAt, got.UpdatedAt)
	}
	if got.Name != "Gold sales" {
		t.Errorf("Name = %q, want Gold sales", got.Name)
	}
	if len(got.Filters) != 1 || len(got.Filters[0].Filters) != 1 {
		t.Fatalf("Filters = %+v, want one group with one filter", got.Filters)
	}
	// The payload carries no shape; the list is settled to a pair when the
	// report is opened.
	v := got.Filters[0].Filters[0].Value
	if v.Shape != model.ShapeList || len(v.List) != 2 || v.List[0] != 100.0 {
		t.Errorf("Value = %+v, want decoded list [100 500]", v)
	}
}

func TestScanReport_errors(t *testing.T) {
	scanErr := errors.New("no rows")
	if _, err := scanReport(fakeRow{err: scanErr}); !errors.Is(err, scanErr) {
		t.Errorf("scan error = %v, want %v", err, scanErr)
	}
	if _, err := scanReport(fakeRow{id: "r1", payload: []byte("{not json")}); err == nil {
		t.Error("scanReport accepted a malformed payload")
	}
}
