package catalog

import (
	"testing"

	"github.com/pitabwire/reportbuilder/model"
)

func hasCode(errs []VError, path, code string) bool {
	for _, e := range errs {
		if e.Path == path && e.Code == code {
			return true
		}
	}
	return false
}

func TestValidator_validCatalog(t *testing.T) {
	defs, err := NewLoader().LoadAll([]string{"testdata/shop"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if errs := NewValidator().Validate(defs); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidator_structural(t *testing.T) {
	defs := []model.CatalogDefinition{{
		DataSources: []model.DataSource{{
			ID:   "sales",
			Kind: "spreadsheet",
			Fields: []model.FieldDefinition{
				{ID: "revenue", DataType: "money"},
				{ID: "revenue", DataType: model.DataTypeNumber},
			},
		}},
	}}
	errs := NewValidator().Validate(defs)

	checks := []struct{ path, code string }{
		{"catalogs[0].catalog", "REQUIRED"},
		{"catalogs[0].data_sources[0].name", "REQUIRED"},
		{"catalogs[0].data_sources[0].kind", "INVALID_VALUE"},
		{"catalogs[0].data_sources[0].fields[0].data_type", "INVALID_VALUE"},
		{"catalogs[0].data_sources[0].fields[1].id", "DUPLICATE_ID"},
	}
	for _, c := range checks {
		if !hasCode(errs, c.path, c.code) {
			t.Errorf("missing %s at %s in %v", c.code, c.path, errs)
		}
	}
}

func TestValidator_duplicateSourceAcrossCatalogs(t *testing.T) {
	ds := model.DataSource{ID: "sales", Name: "Sales", Kind: model.DataSourceTable,
		Fields: []model.FieldDefinition{{ID: "id", DataType: model.DataTypeString}}}
	defs := []model.CatalogDefinition{
		{Catalog: "a", DataSources: []model.DataSource{ds}},
		{Catalog: "b", DataSources: []model.DataSource{ds}},
	}
	errs := NewValidator().Validate(defs)
	if !hasCode(errs, "catalogs[1].data_sources[0].id", "DUPLICATE_ID") {
		t.Errorf("Validate() = %v, want DUPLICATE_ID", errs)
	}
}

func TestValidator_relationshipEndpoints(t *testing.T) {
	defs := []model.CatalogDefinition{{
		Catalog: "shop",
		DataSources: []model.DataSource{{
			ID: "sales", Name: "Sales", Kind: model.DataSourceTable,
			Fields: []model.FieldDefinition{{ID: "item_id", DataType: model.DataTypeString}},
			Relationships: []model.Relationship{
				{SourceTable: "sales", SourceField: "nope", TargetTable: "ghost", TargetField: "id", Cardinality: "many-to-one"},
			},
		}},
	}}
	errs := NewValidator().Validate(defs)
	prefix := "catalogs[0].data_sources[0].relationships[0]"
	for _, c := range []struct{ path, code string }{
		{prefix + ".cardinality", "INVALID_VALUE"},
		{prefix + ".source_field", "UNKNOWN_REFERENCE"},
		{prefix + ".target_table", "UNKNOWN_REFERENCE"},
	} {
		if !hasCode(errs, c.path, c.code) {
			t.Errorf("missing %s at %s in %v", c.code, c.path, errs)
		}
	}
}

func TestVError_Error(t *testing.T) {
	e := VError{Path: "catalogs[0].catalog", Code: "REQUIRED", Message: "catalog is required"}
	if got := e.Error(); got != "catalogs[0].catalog: catalog is required" {
		t.Errorf("Error() = %q", got)
	}
}
