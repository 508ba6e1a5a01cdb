package catalog

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/reportbuilder/model"
)

// snapshot is an immutable view of all loaded data sources.
type snapshot struct {
	sources  map[string]model.DataSource
	order    []string
	checksum string
}

// Registry is the field catalog. Reads are lock-free; Replace swaps in a new
// snapshot atomically.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given catalogs.
func NewRegistry(defs []model.CatalogDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents. When two catalogs declare
// the same data source id, the later one wins.
func (r *Registry) Replace(defs []model.CatalogDefinition) {
	s := &snapshot{sources: make(map[string]model.DataSource)}

	var checksumParts []string
	for _, def := range defs {
		checksumParts = append(checksumParts, def.Checksum)
		for _, ds := range def.DataSources {
			if _, seen := s.sources[ds.ID]; !seen {
				s.order = append(s.order, ds.ID)
			}
			s.sources[ds.ID] = ds
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// DataSource returns the data source with the given id.
func (r *Registry) DataSource(id string) (model.DataSource, bool) {
	ds, ok := r.current().sources[id]
	return ds, ok
}

// Field resolves a composite "dataSourceId.fieldId" reference.
func (r *Registry) Field(ref string) (model.FieldDefinition, bool) {
	dsID, fieldID, ok := model.ParseFieldRef(ref)
	if !ok {
		return model.FieldDefinition{}, false
	}
	ds, ok := r.DataSource(dsID)
	if !ok {
		return model.FieldDefinition{}, false
	}
	return ds.Field(fieldID)
}

// All returns every data source in load order.
func (r *Registry) All() []model.DataSource {
	s := r.current()
	out := make([]model.DataSource, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sources[id])
	}
	return out
}

// FilterableFields returns the fields of a data source that may be used in
// filters, in catalog order.
func (r *Registry) FilterableFields(dataSourceID string) []model.FieldDefinition {
	return r.fieldsWhere(dataSourceID, func(f model.FieldDefinition) bool { return f.Filterable })
}

// AggregatableFields returns the fields of a data source that may be bound
// as measures.
func (r *Registry) AggregatableFields(dataSourceID string) []model.FieldDefinition {
	return r.fieldsWhere(dataSourceID, func(f model.FieldDefinition) bool { return f.Aggregatable })
}

func (r *Registry) fieldsWhere(dataSourceID string, keep func(model.FieldDefinition) bool) []model.FieldDefinition {
	ds, ok := r.DataSource(dataSourceID)
	if !ok {
		return nil
	}
	var out []model.FieldDefinition
	for _, f := range ds.Fields {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of loaded data sources.
func (r *Registry) Len() int {
	return len(r.current().order)
}

// Checksum returns the combined checksum of all loaded catalogs.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
