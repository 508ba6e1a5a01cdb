package model

import "strings"

// DataType is the authoritative type of a catalog field.
type DataType string

// Field data types supplied by the schema catalog.
const (
	DataTypeString  DataType = "string"
	DataTypeNumber  DataType = "number"
	DataTypeDate    DataType = "date"
	DataTypeBoolean DataType = "boolean"
	DataTypeDecimal DataType = "decimal"
)

// Valid reports whether t is one of the known data types.
func (t DataType) Valid() bool {
	switch t {
	case DataTypeString, DataTypeNumber, DataTypeDate, DataTypeBoolean, DataTypeDecimal:
		return true
	}
	return false
}

// DataSourceKind describes how a data source is backed.
type DataSourceKind string

// Data source kinds.
const (
	DataSourceTable DataSourceKind = "table"
	DataSourceView  DataSourceKind = "view"
	DataSourceQuery DataSourceKind = "query"
)

// Cardinality of a relationship between two data sources.
type Cardinality string

// Relationship cardinalities.
const (
	OneToOne   Cardinality = "one-to-one"
	OneToMany  Cardinality = "one-to-many"
	ManyToMany Cardinality = "many-to-many"
)

// CatalogDefinition is the root structure of a catalog file. Each file
// declares the data sources one backend exposes to the report builder.
type CatalogDefinition struct {
	Catalog     string       `yaml:"catalog"      json:"catalog"`
	Version     string       `yaml:"version"      json:"version"`
	DataSources []DataSource `yaml:"data_sources" json:"data_sources"`

	// Checksum is computed at load time and not part of the YAML.
	Checksum string `yaml:"-" json:"-"`
	// SourceFile records the originating file path.
	SourceFile string `yaml:"-" json:"-"`
}

// DataSource is a named, addressable collection of typed fields.
type DataSource struct {
	ID            string            `yaml:"id"            json:"id"`
	Name          string            `yaml:"name"          json:"name"`
	Kind          DataSourceKind    `yaml:"kind"          json:"kind"`
	Fields        []FieldDefinition `yaml:"fields"        json:"fields"`
	Relationships []Relationship    `yaml:"relationships" json:"relationships,omitempty"`
}

// Field returns the field with the given id.
func (ds DataSource) Field(fieldID string) (FieldDefinition, bool) {
	for _, f := range ds.Fields {
		if f.ID == fieldID {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// FieldDefinition is a typed attribute with capability flags controlling
// where it may be bound. Field definitions are never mutated by the builder.
type FieldDefinition struct {
	ID           string   `yaml:"id"           json:"id"`
	Name         string   `yaml:"name"         json:"name"`
	DisplayName  string   `yaml:"display_name" json:"displayName"`
	DataType     DataType `yaml:"data_type"    json:"dataType"`
	Aggregatable bool     `yaml:"aggregatable" json:"aggregatable"`
	Filterable   bool     `yaml:"filterable"   json:"filterable"`
	Sortable     bool     `yaml:"sortable"     json:"sortable"`
	Description  string   `yaml:"description"  json:"description,omitempty"`
}

// Label returns the display name, falling back to the name and then the id.
func (f FieldDefinition) Label() string {
	switch {
	case f.DisplayName != "":
		return f.DisplayName
	case f.Name != "":
		return f.Name
	}
	return f.ID
}

// Relationship links a field of one data source to a field of another.
type Relationship struct {
	SourceTable string      `yaml:"source_table" json:"sourceTable"`
	TargetTable string      `yaml:"target_table" json:"targetTable"`
	SourceField string      `yaml:"source_field" json:"sourceField"`
	TargetField string      `yaml:"target_field" json:"targetField"`
	Cardinality Cardinality `yaml:"cardinality"  json:"cardinality"`
}

// Touches reports whether the relationship has an endpoint on dataSourceID.
func (r Relationship) Touches(dataSourceID string) bool {
	return r.SourceTable == dataSourceID || r.TargetTable == dataSourceID
}

// FieldRef builds the composite "dataSourceId.fieldId" reference.
func FieldRef(dataSourceID, fieldID string) string {
	return dataSourceID + "." + fieldID
}

// ParseFieldRef splits a composite field reference. Field ids may themselves
// contain dots; only the first dot separates the data source.
func ParseFieldRef(ref string) (dataSourceID, fieldID string, ok bool) {
	idx := strings.IndexByte(ref, '.')
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", false
	}
	return ref[:idx], ref[idx+1:], true
}

// RefInSource reports whether ref is scoped under dataSourceID ("D.*").
func RefInSource(ref, dataSourceID string) bool {
	return strings.HasPrefix(ref, dataSourceID+".")
}
