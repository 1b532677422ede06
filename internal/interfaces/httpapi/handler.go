package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/astalive/asta-api/internal/domain/asta"
	"github.com/astalive/asta-api/internal/domain/calciatore"
	"github.com/astalive/asta-api/internal/usecase"
)

type Handler struct {
	astaService    *usecase.AstaService
	catalogService *usecase.CatalogService
	exportService  *usecase.ExportService
	logger         *slog.Logger
	validator      *validator.Validate
}

func NewHandler(
	astaService *usecase.AstaService,
	catalogService *usecase.CatalogService,
	exportService *usecase.ExportService,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		astaService:    astaService,
		catalogService: catalogService,
		exportService:  exportService,
		logger:         logger,
		validator:      validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

type calciatoreDTO struct {
	ID                        int     `json:"id"`
	Nome                      string  `json:"nome"`
	Squadra                   string  `json:"squadra"`
	CodiceRuolo               string  `json:"codiceRuolo"`
	Ruolo                     string  `json:"ruolo"`
	RuoloMantra               string  `json:"ruoloMantra,omitempty"`
	QuotazioneAttuale         float64 `json:"quotazioneAttuale"`
	QuotazioneIniziale        float64 `json:"quotazioneIniziale"`
	Differenza                float64 `json:"differenza"`
	QuotazioneAttualeMercato  float64 `json:"quotazioneAttualeMercato"`
	QuotazioneInizialeMercato float64 `json:"quotazioneInizialeMercato"`
	DifferenzaMercato         float64 `json:"differenzaMercato"`
	FVM                       float64 `json:"fvm"`
	FVMMercato                float64 `json:"fvmMercato"`
	Assegnato                 bool    `json:"assegnato"`
	TeamAssegnato             string  `json:"teamAssegnato,omitempty"`
	PrezzoAcquisto            float64 `json:"prezzoAcquisto"`
}

type teamDTO struct {
	Key            string          `json:"key"`
	Nome           string          `json:"nome"`
	Budget         float64         `json:"budget"`
	BudgetIniziale float64         `json:"budgetIniziale"`
	UserID         string          `json:"userId"`
	UserEmail      string          `json:"userEmail,omitempty"`
	TotaleSpeso    float64         `json:"totaleSpeso"`
	Calciatori     []calciatoreDTO `json:"calciatori"`
}

type astaDTO struct {
	ID                     string    `json:"id"`
	Nome                   string    `json:"nome"`
	NumeroPartecipanti     int       `json:"numeroPartecipanti"`
	CreditiPerPartecipante float64   `json:"creditiPerPartecipante"`
	CodiceInvito           string    `json:"codiceInvito"`
	Amministratore         string    `json:"amministratore"`
	PartecipantiIscritti   int       `json:"partecipantiIscritti"`
	IsAttiva               bool      `json:"isAttiva"`
	CreatedAt              string    `json:"createdAt"`
	Teams                  []teamDTO `json:"teams"`
}

type joinResultDTO struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Asta    *astaDTO `json:"asta,omitempty"`
}

func calciatoreToDTO(v calciatore.Calciatore) calciatoreDTO {
	return calciatoreDTO{
		ID:                        v.ID,
		Nome:                      v.Nome,
		Squadra:                   v.Squadra,
		CodiceRuolo:               v.CodiceRuolo,
		Ruolo:                     v.Ruolo,
		RuoloMantra:               v.RuoloMantra,
		QuotazioneAttuale:         v.QuotazioneAttuale,
		QuotazioneIniziale:        v.QuotazioneIniziale,
		Differenza:                v.Differenza,
		QuotazioneAttualeMercato:  v.QuotazioneAttualeMercato,
		QuotazioneInizialeMercato: v.QuotazioneInizialeMercato,
		DifferenzaMercato:         v.DifferenzaMercato,
		FVM:                       v.FVM,
		FVMMercato:                v.FVMMercato,
		Assegnato:                 v.Assegnato,
		TeamAssegnato:             v.TeamAssegnato,
		PrezzoAcquisto:            v.PrezzoAcquisto,
	}
}

func calciatoriToDTO(items []calciatore.Calciatore) []calciatoreDTO {
	out := make([]calciatoreDTO, 0, len(items))
	for _, c := range items {
		out = append(out, calciatoreToDTO(c))
	}
	return out
}

func teamToDTO(v *asta.Team) teamDTO {
	return teamDTO{
		Key:            v.Key,
		Nome:           v.Nome,
		Budget:         v.Budget,
		BudgetIniziale: v.BudgetIniziale,
		UserID:         v.UserID,
		UserEmail:      v.UserEmail,
		TotaleSpeso:    v.TotaleSpeso(),
		Calciatori:     calciatoriToDTO(v.TuttiGiocatori()),
	}
}

func astaToDTO(v *asta.Asta) astaDTO {
	teams := make([]teamDTO, 0, len(v.Teams))
	for _, t := range v.Teams {
		teams = append(teams, teamToDTO(t))
	}

	return astaDTO{
		ID:                     v.ID,
		Nome:                   v.Nome,
		NumeroPartecipanti:     v.NumeroPartecipanti,
		CreditiPerPartecipante: v.CreditiPerPartecipante,
		CodiceInvito:           v.CodiceInvito,
		Amministratore:         v.Amministratore,
		PartecipantiIscritti:   v.PartecipantiIscritti,
		IsAttiva:               v.IsAttiva,
		CreatedAt:              v.CreatedAt.UTC().Format(time.RFC3339),
		Teams:                  teams,
	}
}

func asteToDTO(items []*asta.Asta) []astaDTO {
	out := make([]astaDTO, 0, len(items))
	for _, a := range items {
		out = append(out, astaToDTO(a))
	}
	return out
}
