package calciatore

import (
	"errors"
	"testing"
)

func TestFromRecord_CanonicalKeys(t *testing.T) {
	t.Parallel()

	c, err := FromRecord(map[string]any{
		"id":                 float64(101),
		"nome":               "Maignan",
		"squadra":            "Milan",
		"codiceRuolo":        "P",
		"quotazioneAttuale":  float64(18),
		"quotazioneIniziale": float64(16),
		"fvm":                float64(45),
	})
	if err != nil {
		t.Fatalf("FromRecord error: %v", err)
	}
	if c.ID != 101 || c.Nome != "Maignan" || c.Squadra != "Milan" {
		t.Fatalf("unexpected identity fields: %+v", c)
	}
	if c.CodiceRuolo != "P" || c.Ruolo != "Portiere" {
		t.Fatalf("role not resolved: %q %q", c.CodiceRuolo, c.Ruolo)
	}
	if c.QuotazioneAttuale != 18 || c.QuotazioneIniziale != 16 || c.FVM != 45 {
		t.Fatalf("valuations not mapped: %+v", c)
	}
	if c.Assegnato || c.TeamAssegnato != "" || c.PrezzoAcquisto != 0 {
		t.Fatalf("new player must start unassigned: %+v", c)
	}
}

func TestFromRecord_HeaderVariants(t *testing.T) {
	t.Parallel()

	c, err := FromRecord(map[string]any{
		"Id":      float64(204),
		"Nome":    "Bastoni",
		"Squadra": "Inter",
		"R":       "d",
		"RM":      "Dc",
		"Qt.A":    float64(22),
		"Qt.I":    float64(20),
		"Diff.":   float64(2),
		"FVM":     "61",
	})
	if err != nil {
		t.Fatalf("FromRecord error: %v", err)
	}
	if c.ID != 204 || c.CodiceRuolo != "D" || c.Ruolo != "Difensore" {
		t.Fatalf("header variant mapping failed: %+v", c)
	}
	if c.RuoloMantra != "Dc" || c.Differenza != 2 || c.FVM != 61 {
		t.Fatalf("optional columns not mapped: %+v", c)
	}
}

func TestFromRecord_MalformedNumericDefaultsToZero(t *testing.T) {
	t.Parallel()

	c, err := FromRecord(map[string]any{
		"id":   "330",
		"nome": "Leao",
		"R":    "A",
		"Qt.A": "n/d",
	})
	if err != nil {
		t.Fatalf("FromRecord error: %v", err)
	}
	if c.ID != 330 {
		t.Fatalf("string id not coerced: %d", c.ID)
	}
	if c.QuotazioneAttuale != 0 {
		t.Fatalf("malformed quotazione should default to 0, got %v", c.QuotazioneAttuale)
	}
}

func TestFromRecord_MandatoryFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		rec  map[string]any
		want error
	}{
		{"missing id", map[string]any{"nome": "X", "R": "C"}, ErrMissingID},
		{"zero id", map[string]any{"id": float64(0), "nome": "X", "R": "C"}, ErrMissingID},
		{"missing nome", map[string]any{"id": float64(1), "R": "C"}, ErrMissingNome},
		{"blank nome", map[string]any{"id": float64(1), "nome": "  ", "R": "C"}, ErrMissingNome},
		{"missing role", map[string]any{"id": float64(1), "nome": "X"}, ErrMissingRuolo},
	}
	for _, tc := range cases {
		if _, err := FromRecord(tc.rec); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestRuoloFromCodice(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"P":  "Portiere",
		"D":  "Difensore",
		"C":  "Centrocampista",
		"A":  "Attaccante",
		"a":  "Attaccante",
		"W":  "Sconosciuto",
		"":   "Sconosciuto",
		" c": "Centrocampista",
	}
	for codice, want := range cases {
		if got := RuoloFromCodice(codice); got != want {
			t.Fatalf("RuoloFromCodice(%q) = %q, want %q", codice, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Calciatore{ID: 7, Nome: "Dybala", CodiceRuolo: "A"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid player rejected: %v", err)
	}

	invalid := Calciatore{ID: 7, Nome: "Dybala", CodiceRuolo: "X"}
	if err := invalid.Validate(); err == nil {
		t.Fatalf("unknown role code accepted")
	}
}
