package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	sonic "github.com/bytedance/sonic"

	"github.com/astalive/asta-api/internal/usecase"
)

type importCatalogRequest struct {
	Records []map[string]any `json:"records" validate:"required,min=1"`
}

type importReportDTO struct {
	Imported int                `json:"imported"`
	Skipped  []skippedRecordDTO `json:"skipped,omitempty"`
}

type skippedRecordDTO struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportCatalog replaces the player catalog with the uploaded listone rows.
func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ImportCatalog")
	defer span.End()

	var req importCatalogRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	report, err := h.catalogService.ImportRecords(ctx, req.Records)
	if err != nil {
		h.logger.WarnContext(ctx, "catalog import failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	skipped := make([]skippedRecordDTO, 0, len(report.Skipped))
	for _, s := range report.Skipped {
		skipped = append(skipped, skippedRecordDTO{Row: s.Row, Reason: s.Reason})
	}
	writeSuccess(ctx, w, http.StatusOK, importReportDTO{
		Imported: report.Imported,
		Skipped:  skipped,
	})
}

func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListCatalog")
	defer span.End()

	players, err := h.catalogService.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list catalog failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, calciatoriToDTO(players))
}

func (h *Handler) SearchCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.SearchCatalog")
	defer span.End()

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	players, err := h.catalogService.Search(ctx, query)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, calciatoriToDTO(players))
}

func (h *Handler) ListCatalogByRuolo(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListCatalogByRuolo")
	defer span.End()

	players, err := h.catalogService.ByRuolo(ctx, r.PathValue("codiceRuolo"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, calciatoriToDTO(players))
}

func (h *Handler) GetCalciatore(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetCalciatore")
	defer span.End()

	id, err := strconv.Atoi(r.PathValue("calciatoreID"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: calciatore id must be numeric", usecase.ErrInvalidInput))
		return
	}

	c, err := h.catalogService.ByID(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, calciatoreToDTO(c))
}
