package catalog

import (
	"fmt"

	"github.com/pitabwire/reportbuilder/model"
)

// VError describes a single validation error in a catalog.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks catalogs structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

var validKinds = map[model.DataSourceKind]bool{
	model.DataSourceTable: true, model.DataSourceView: true, model.DataSourceQuery: true,
}

var validCardinalities = map[model.Cardinality]bool{
	model.OneToOne: true, model.OneToMany: true, model.ManyToMany: true,
}

// Validate checks all catalogs. Data source ids must be unique across every
// catalog, and relationship endpoints must resolve within the loaded set.
func (v *Validator) Validate(defs []model.CatalogDefinition) []VError {
	var errs []VError

	sources := make(map[string]model.DataSource)
	for i, def := range defs {
		prefix := fmt.Sprintf("catalogs[%d]", i)
		if def.Catalog == "" {
			errs = append(errs, VError{Path: prefix + ".catalog", Code: "REQUIRED", Message: "catalog is required"})
		}
		for j, ds := range def.DataSources {
			dp := fmt.Sprintf("%s.data_sources[%d]", prefix, j)
			if _, dup := sources[ds.ID]; dup {
				errs = append(errs, VError{Path: dp + ".id", Code: "DUPLICATE_ID", Message: fmt.Sprintf("data source %q is declared more than once", ds.ID)})
			}
			sources[ds.ID] = ds
			errs = append(errs, v.validateSource(dp, ds)...)
		}
	}

	for i, def := range defs {
		for j, ds := range def.DataSources {
			for k, rel := range ds.Relationships {
				rp := fmt.Sprintf("catalogs[%d].data_sources[%d].relationships[%d]", i, j, k)
				errs = append(errs, validateRelationship(rp, rel, sources)...)
			}
		}
	}

	return errs
}

func (v *Validator) validateSource(prefix string, ds model.DataSource) []VError {
	var errs []VError

	if ds.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if ds.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	if !validKinds[ds.Kind] {
		errs = append(errs, VError{Path: prefix + ".kind", Code: "INVALID_VALUE", Message: fmt.Sprintf("kind %q must be table, view or query", ds.Kind)})
	}
	if len(ds.Fields) == 0 {
		errs = append(errs, VError{Path: prefix + ".fields", Code: "REQUIRED", Message: "at least one field is required"})
	}

	seen := make(map[string]bool, len(ds.Fields))
	for i, f := range ds.Fields {
		fp := fmt.Sprintf("%s.fields[%d]", prefix, i)
		if f.ID == "" {
			errs = append(errs, VError{Path: fp + ".id", Code: "REQUIRED", Message: "id is required"})
		} else if seen[f.ID] {
			errs = append(errs, VError{Path: fp + ".id", Code: "DUPLICATE_ID", Message: fmt.Sprintf("field %q is declared more than once", f.ID)})
		}
		seen[f.ID] = true
		if !f.DataType.Valid() {
			errs = append(errs, VError{Path: fp + ".data_type", Code: "INVALID_VALUE", Message: fmt.Sprintf("data_type %q is not supported", f.DataType)})
		}
	}

	return errs
}

func validateRelationship(prefix string, rel model.Relationship, sources map[string]model.DataSource) []VError {
	var errs []VError

	if !validCardinalities[rel.Cardinality] {
		errs = append(errs, VError{Path: prefix + ".cardinality", Code: "INVALID_VALUE", Message: fmt.Sprintf("cardinality %q is not supported", rel.Cardinality)})
	}
	for _, end := range []struct{ table, field, path string }{
		{rel.SourceTable, rel.SourceField, prefix + ".source"},
		{rel.TargetTable, rel.TargetField, prefix + ".target"},
	} {
		ds, ok := sources[end.table]
		if !ok {
			errs = append(errs, VError{Path: end.path + "_table", Code: "UNKNOWN_REFERENCE", Message: fmt.Sprintf("data source %q not found", end.table)})
			continue
		}
		if _, ok := ds.Field(end.field); !ok {
			errs = append(errs, VError{Path: end.path + "_field", Code: "UNKNOWN_REFERENCE", Message: fmt.Sprintf("field %q not found in %q", end.field, end.table)})
		}
	}

	return errs
}
