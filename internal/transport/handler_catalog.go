package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/reportbuilder/internal/filter"
	"github.com/pitabwire/reportbuilder/internal/layout"
	"github.com/pitabwire/reportbuilder/model"
)

// CatalogReader is the read side of the field catalog used by the API.
type CatalogReader interface {
	All() []model.DataSource
	DataSource(id string) (model.DataSource, bool)
	FilterableFields(dataSourceID string) []model.FieldDefinition
	AggregatableFields(dataSourceID string) []model.FieldDefinition
}

// dataSourceDetail adds the field subsets the editor offers for filters
// and measures.
type dataSourceDetail struct {
	model.DataSource
	FilterableFields   []model.FieldDefinition `json:"filterableFields"`
	AggregatableFields []model.FieldDefinition `json:"aggregatableFields"`
}

func handleListDataSources(cat CatalogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		sources := cat.All()
		if sources == nil {
			sources = []model.DataSource{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": sources})
	}
}

func handleGetDataSource(cat CatalogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		id := chi.URLParam(r, "dataSourceId")

		ds, ok := cat.DataSource(id)
		if !ok {
			WriteNotFound(w, "data source "+id+" not found")
			return
		}
		WriteJSON(w, http.StatusOK, dataSourceDetail{
			DataSource:         ds,
			FilterableFields:   cat.FilterableFields(id),
			AggregatableFields: cat.AggregatableFields(id),
		})
	}
}

func handleListOperators() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		dataType := model.DataType(chi.URLParam(r, "dataType"))
		if !dataType.Valid() {
			WriteError(w, model.NewBadRequestError("unknown data type "+string(dataType)))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"dataType":  dataType,
			"default":   filter.DefaultOperator(dataType),
			"operators": filter.Describe(dataType),
		})
	}
}

func handleListTemplates(templates *layout.TemplateSet) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if model.RequestContextFrom(r.Context()) == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"items": templates.All()})
	}
}
