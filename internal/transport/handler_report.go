package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/reportbuilder/internal/report"
	"github.com/pitabwire/reportbuilder/internal/store"
	"github.com/pitabwire/reportbuilder/model"
)

// reportList is the response body of the report listing.
type reportList struct {
	Items  []model.ReportConfiguration `json:"items"`
	Limit  int                         `json:"limit"`
	Offset int                         `json:"offset"`
}

func handleListReports(svc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		filters := store.ReportFilters{
			Limit:  queryInt(r, "limit", 50),
			Offset: queryInt(r, "offset", 0),
		}
		if filters.Limit < 0 || filters.Offset < 0 {
			WriteError(w, model.NewBadRequestError("limit and offset must not be negative"))
			return
		}
		if r.URL.Query().Get("owner") == "me" {
			filters.OwnerID = rctx.SubjectID
		}

		items, err := svc.List(r.Context(), rctx, filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		if items == nil {
			items = []model.ReportConfiguration{}
		}
		WriteJSON(w, http.StatusOK, reportList{Items: items, Limit: filters.Limit, Offset: filters.Offset})
	}
}

func handleDeleteReport(svc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}
		reportID := chi.URLParam(r, "reportId")

		if err := svc.Delete(r.Context(), rctx, reportID); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// queryInt extracts an integer query param with a default.
func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
