package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/funmi/casi-export/internal/export"
	"github.com/funmi/casi-export/internal/models"
)

// Rebuilder runs export rebuilds.
type Rebuilder interface {
	Rebuild(ctx context.Context, periodID string, opts export.Options) (*export.Result, error)
}

// Records reads persisted export state.
type Records interface {
	GetExport(ctx context.Context, periodID string) (*models.ExportRecord, error)
}

// Handler holds API route handlers.
type Handler struct {
	rebuilder Rebuilder
	records   Records
}

// NewHandler creates a new Handler.
func NewHandler(rebuilder Rebuilder, records Records) *Handler {
	return &Handler{rebuilder: rebuilder, records: records}
}

// Rebuild handles POST /api/exports/{period}/rebuild.
//
//	@Summary	Rebuild the export of a period
//	@Tags		exports
//	@Produce	json
//	@Param		period	path		string	true	"Period id"
//	@Param		upload	query		bool	false	"Publish the artifacts"
//	@Success	200		{object}	RebuildResponse
//	@Failure	409		{object}	errResponse
//	@Failure	412		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/exports/{period}/rebuild [post]
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	upload := false
	if raw := r.URL.Query().Get("upload"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("upload must be a boolean"))
			return
		}
		upload = v
	}

	res, err := h.rebuilder.Rebuild(r.Context(), period, export.Options{Upload: upload})
	if err != nil {
		writeError(w, period, err)
		return
	}
	writeJSON(w, http.StatusOK, newRebuildResponse(res))
}

// GetExport handles GET /api/exports/{period}.
//
//	@Summary	Get the header and manifest of a period
//	@Tags		exports
//	@Produce	json
//	@Param		period	path		string	true	"Period id"
//	@Success	200		{object}	ExportRecord
//	@Failure	404		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/exports/{period} [get]
func (h *Handler) GetExport(w http.ResponseWriter, r *http.Request) {
	period := chi.URLParam(r, "period")
	rec, err := h.records.GetExport(r.Context(), period)
	if err != nil {
		writeError(w, period, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
