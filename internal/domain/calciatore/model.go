package calciatore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Role codes follow the classic fantasy-football listone: P portiere,
// D difensore, C centrocampista, A attaccante.
const (
	RuoloPortiere       = "P"
	RuoloDifensore      = "D"
	RuoloCentrocampista = "C"
	RuoloAttaccante     = "A"
)

var ruoloNames = map[string]string{
	RuoloPortiere:       "Portiere",
	RuoloDifensore:      "Difensore",
	RuoloCentrocampista: "Centrocampista",
	RuoloAttaccante:     "Attaccante",
}

// RuoloFromCodice resolves the display name for a role code. Unknown codes
// map to "Sconosciuto" rather than failing: catalog rows with exotic codes
// still need to render.
func RuoloFromCodice(codice string) string {
	if name, ok := ruoloNames[strings.ToUpper(strings.TrimSpace(codice))]; ok {
		return name
	}
	return "Sconosciuto"
}

// ValidCodice reports whether codice is one of the four playable roles.
func ValidCodice(codice string) bool {
	_, ok := ruoloNames[codice]
	return ok
}

// Calciatore is a catalog entry plus its auction assignment state.
type Calciatore struct {
	ID                        int
	Nome                      string
	Squadra                   string
	CodiceRuolo               string
	Ruolo                     string
	RuoloMantra               string
	QuotazioneAttuale         float64
	QuotazioneIniziale        float64
	Differenza                float64
	QuotazioneAttualeMercato  float64
	QuotazioneInizialeMercato float64
	DifferenzaMercato         float64
	FVM                       float64
	FVMMercato                float64

	Assegnato      bool
	TeamAssegnato  string
	PrezzoAcquisto float64
}

var (
	ErrMissingID    = errors.New("calciatore record has no id")
	ErrMissingNome  = errors.New("calciatore record has no nome")
	ErrMissingRuolo = errors.New("calciatore record has no role code")
)

// FromRecord builds a Calciatore from one parsed spreadsheet row. Column
// names drift between listone exports, so each field accepts the canonical
// key plus the raw header variants; malformed numeric cells default to 0.
// Id, nome and role code are mandatory.
func FromRecord(rec map[string]any) (Calciatore, error) {
	id := asInt(firstField(rec, "id", "Id", "ID"))
	if id <= 0 {
		return Calciatore{}, ErrMissingID
	}
	nome := strings.TrimSpace(asString(firstField(rec, "nome", "Nome")))
	if nome == "" {
		return Calciatore{}, ErrMissingNome
	}
	codice := strings.ToUpper(strings.TrimSpace(asString(firstField(rec, "codiceRuolo", "R"))))
	if codice == "" {
		return Calciatore{}, ErrMissingRuolo
	}

	return Calciatore{
		ID:                        id,
		Nome:                      nome,
		Squadra:                   strings.TrimSpace(asString(firstField(rec, "squadra", "Squadra"))),
		CodiceRuolo:               codice,
		Ruolo:                     RuoloFromCodice(codice),
		RuoloMantra:               strings.TrimSpace(asString(firstField(rec, "ruoloMantra", "RM"))),
		QuotazioneAttuale:         asFloat(firstField(rec, "quotazioneAttuale", "Qt.A")),
		QuotazioneIniziale:        asFloat(firstField(rec, "quotazioneIniziale", "Qt.I")),
		Differenza:                asFloat(firstField(rec, "differenza", "Diff.")),
		QuotazioneAttualeMercato:  asFloat(firstField(rec, "quotazioneAttualeMercato", "Qt.A M")),
		QuotazioneInizialeMercato: asFloat(firstField(rec, "quotazioneInizialeMercato", "Qt.I M")),
		DifferenzaMercato:         asFloat(firstField(rec, "differenzaMercato", "Diff.M")),
		FVM:                       asFloat(firstField(rec, "fvm", "FVM")),
		FVMMercato:                asFloat(firstField(rec, "fvmMercato", "FVM M")),
	}, nil
}

// Validate checks the invariants a player must satisfy before entering a
// roster.
func (c Calciatore) Validate() error {
	if c.ID <= 0 {
		return ErrMissingID
	}
	if strings.TrimSpace(c.Nome) == "" {
		return ErrMissingNome
	}
	if !ValidCodice(c.CodiceRuolo) {
		return fmt.Errorf("unknown role code %q", c.CodiceRuolo)
	}
	return nil
}

func firstField(rec map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := rec[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
