package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/reportbuilder/internal/report"
	"github.com/pitabwire/reportbuilder/model"
)

// openSessionRequest opens a saved report, or a blank one when ReportID is
// empty.
type openSessionRequest struct {
	ReportID string `json:"reportId"`
}

// commandResponse is returned after each editing command.
type commandResponse struct {
	Snapshot model.ReportSnapshot `json:"snapshot"`
	Effect   report.Effect        `json:"effect"`
}

type previewRequest struct {
	Rows []map[string]any `json:"rows"`
}

func handleOpenSession(svc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var req openSessionRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		snap, err := svc.Open(r.Context(), rctx, req.ReportID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, snap)
	}
}

func handleGetSession(svc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		snap, err := svc.Snapshot(r.Context(), rctx, chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

func handleSessionCommand(svc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var cmd report.Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		snap, eff, err := svc.Execute(r.Context(), rctx, chi.URLParam(r, "sessionId"), cmd)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, commandResponse{Snapshot: snap, Effect: eff})
	}
}

func handleSaveSession(svc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		snap, err := svc.Save(r.Context(), rctx, chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, snap)
	}
}

func handlePreviewSession(svc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		var req previewRequest
		if err := decodeOptionalBody(r, &req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		payload, err := svc.Preview(r.Context(), rctx, chi.URLParam(r, "sessionId"), req.Rows)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, payload)
	}
}

func handleCloseSession(svc *report.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, model.NewUnauthorizedError("missing request context"))
			return
		}

		if err := svc.Close(r.Context(), rctx, chi.URLParam(r, "sessionId")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// decodeOptionalBody decodes a JSON body into v, treating an empty body as
// the zero value.
func decodeOptionalBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
