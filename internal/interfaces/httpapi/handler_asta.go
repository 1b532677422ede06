package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/astalive/asta-api/internal/usecase"
)

type createAstaRequest struct {
	Nome                   string  `json:"nome" validate:"required,max=100"`
	NumeroPartecipanti     int     `json:"numeroPartecipanti" validate:"required,min=2,max=50"`
	CreditiPerPartecipante float64 `json:"creditiPerPartecipante" validate:"required,gt=0"`
}

type joinAstaRequest struct {
	CodiceInvito string `json:"codiceInvito" validate:"required,len=6"`
	NomeTeam     string `json:"nomeTeam" validate:"required,max=100"`
}

type updateAstaRequest struct {
	Nome                   string  `json:"nome" validate:"omitempty,max=100"`
	NumeroPartecipanti     int     `json:"numeroPartecipanti" validate:"omitempty,min=2,max=50"`
	CreditiPerPartecipante float64 `json:"creditiPerPartecipante" validate:"omitempty,gt=0"`
}

type assignCalciatoreRequest struct {
	TeamKey      string  `json:"teamKey" validate:"required"`
	CalciatoreID int     `json:"calciatoreId" validate:"required,gt=0"`
	Prezzo       float64 `json:"prezzo" validate:"gte=0"`
}

type updatePrezzoRequest struct {
	Prezzo float64 `json:"prezzo" validate:"gte=0"`
}

func (h *Handler) CreateAsta(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.CreateAsta")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req createAstaRequest
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

	a, err := h.astaService.CreateAsta(ctx, usecase.CreateAstaInput{
		Nome:                   req.Nome,
		NumeroPartecipanti:     req.NumeroPartecipanti,
		CreditiPerPartecipante: req.CreditiPerPartecipante,
		Amministratore:         principal.UserID,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "create auction failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusCreated, astaToDTO(a))
}

func (h *Handler) JoinAsta(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.JoinAsta")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req joinAstaRequest
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

	result, err := h.astaService.JoinAsta(ctx, usecase.JoinAstaInput{
		CodiceInvito: req.CodiceInvito,
		NomeTeam:     req.NomeTeam,
		UserID:       principal.UserID,
		UserEmail:    principal.Email,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "join auction failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	dto := joinResultDTO{Success: result.Success, Message: result.Message}
	if result.Asta != nil {
		converted := astaToDTO(result.Asta)
		dto.Asta = &converted
	}
	writeSuccess(ctx, w, http.StatusOK, dto)
}

func (h *Handler) GetAsta(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetAsta")
	defer span.End()

	astaID := r.PathValue("astaID")
	a, err := h.astaService.GetAsta(ctx, astaID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, astaToDTO(a))
}

func (h *Handler) GetAstaByCode(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.GetAstaByCode")
	defer span.End()

	codice := r.PathValue("codice")
	a, err := h.astaService.GetAstaByCode(ctx, codice)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, astaToDTO(a))
}

func (h *Handler) ListAvailableAste(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListAvailableAste")
	defer span.End()

	aste, err := h.astaService.ListAvailable(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list available auctions failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, asteToDTO(aste))
}

func (h *Handler) ListMyAste(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListMyAste")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	aste, err := h.astaService.ListMine(ctx, principal.UserID, principal.Email)
	if err != nil {
		h.logger.WarnContext(ctx, "list my auctions failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, asteToDTO(aste))
}

func (h *Handler) ListCreatedAste(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListCreatedAste")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	aste, err := h.astaService.ListCreated(ctx, principal.UserID)
	if err != nil {
		h.logger.WarnContext(ctx, "list created auctions failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, asteToDTO(aste))
}

func (h *Handler) UpdateAsta(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UpdateAsta")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	var req updateAstaRequest
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

	a, err := h.astaService.UpdateAsta(ctx, usecase.UpdateAstaInput{
		AstaID:                 r.PathValue("astaID"),
		ActorUserID:            principal.UserID,
		Nome:                   req.Nome,
		NumeroPartecipanti:     req.NumeroPartecipanti,
		CreditiPerPartecipante: req.CreditiPerPartecipante,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "update auction failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, astaToDTO(a))
}

func (h *Handler) DeleteAsta(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DeleteAsta")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	if err := h.astaService.DeleteAsta(ctx, r.PathValue("astaID"), principal.UserID); err != nil {
		h.logger.WarnContext(ctx, "delete auction failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) DeleteCreatedAste(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DeleteCreatedAste")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	deleted, err := h.astaService.DeleteAllByAdmin(ctx, principal.UserID)
	if err != nil {
		h.logger.WarnContext(ctx, "cascade delete failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) ActivateAsta(w http.ResponseWriter, r *http.Request) {
	h.setAttiva(w, r, true)
}

func (h *Handler) DeactivateAsta(w http.ResponseWriter, r *http.Request) {
	h.setAttiva(w, r, false)
}

func (h *Handler) setAttiva(w http.ResponseWriter, r *http.Request, attiva bool) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.setAttiva")
	defer span.End()

	principal, ok := principalFromContext(ctx)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: principal is missing from request context", usecase.ErrUnauthorized))
		return
	}

	a, err := h.astaService.SetAttiva(ctx, r.PathValue("astaID"), principal.UserID, attiva)
	if err != nil {
		h.logger.WarnContext(ctx, "change auction state failed", "user_id", principal.UserID, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, astaToDTO(a))
}

func (h *Handler) AssignCalciatore(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.AssignCalciatore")
	defer span.End()

	var req assignCalciatoreRequest
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

	ok, err := h.astaService.AssignCalciatore(ctx, usecase.AssignInput{
		AstaID:       r.PathValue("astaID"),
		TeamKey:      req.TeamKey,
		CalciatoreID: req.CalciatoreID,
		Prezzo:       req.Prezzo,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]bool{"assigned": ok})
}

func (h *Handler) UnassignCalciatore(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UnassignCalciatore")
	defer span.End()

	calciatoreID, err := strconv.Atoi(r.PathValue("calciatoreID"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: calciatore id must be numeric", usecase.ErrInvalidInput))
		return
	}

	ok, err := h.astaService.UnassignCalciatore(ctx, r.PathValue("astaID"), calciatoreID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]bool{"unassigned": ok})
}

func (h *Handler) UpdatePrezzo(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.UpdatePrezzo")
	defer span.End()

	calciatoreID, err := strconv.Atoi(r.PathValue("calciatoreID"))
	if err != nil {
		writeError(ctx, w, fmt.Errorf("%w: calciatore id must be numeric", usecase.ErrInvalidInput))
		return
	}

	var req updatePrezzoRequest
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

	teamKey := strings.TrimSpace(r.URL.Query().Get("teamKey"))
	ok, err := h.astaService.UpdatePrezzo(ctx, usecase.PrezzoInput{
		AstaID:       r.PathValue("astaID"),
		TeamKey:      teamKey,
		CalciatoreID: calciatoreID,
		Prezzo:       req.Prezzo,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, map[string]bool{"updated": ok})
}

func (h *Handler) ListAvailableCalciatori(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListAvailableCalciatori")
	defer span.End()

	players, err := h.astaService.AvailableCalciatori(ctx, r.PathValue("astaID"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, calciatoriToDTO(players))
}

// WatchAsta streams auction snapshots over server-sent events. Each update
// carries the full reconstructed auction; a deleted auction emits a final
// "deleted" event before the stream closes.
func (h *Handler) WatchAsta(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.WatchAsta")
	defer span.End()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(ctx, w, fmt.Errorf("%w: streaming is not supported", usecase.ErrDependencyUnavailable))
		return
	}

	stream, cancel, err := h.astaService.WatchAsta(ctx, r.PathValue("astaID"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	defer cancel()

	// Lift the server write deadline, it would sever long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			return
		case a, open := <-stream:
			if !open {
				return
			}
			if a == nil {
				fmt.Fprint(w, "event: deleted\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			payload, err := sonic.Marshal(astaToDTO(a))
			if err != nil {
				h.logger.ErrorContext(ctx, "encode auction snapshot failed", "error", err)
				return
			}
			fmt.Fprintf(w, "event: asta\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (h *Handler) ExportAstaCSV(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ExportAstaCSV")
	defer span.End()

	astaID := r.PathValue("astaID")
	out, err := h.exportService.RosterCSV(ctx, astaID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "asta_"+astaID+".csv"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}
