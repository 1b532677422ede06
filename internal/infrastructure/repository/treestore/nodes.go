// Package treestore persists auctions on the shared real-time tree store.
// It is the only layer that touches the /aste and /catalog subtrees; every
// value crossing the store boundary goes through the typed wire nodes below.
package treestore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	crerr "github.com/cockroachdb/errors"

	"github.com/astalive/asta-api/internal/domain/asta"
	"github.com/astalive/asta-api/internal/domain/calciatore"
)

const (
	rootAste    = "aste"
	rootCatalog = "catalog"
)

func astaPath(astaID string) string {
	return rootAste + "/" + astaID
}

func teamsPath(astaID string) string {
	return astaPath(astaID) + "/teams"
}

func teamPath(astaID, teamKey string) string {
	return teamsPath(astaID) + "/" + teamKey
}

func calcKey(calciatoreID int) string {
	return fmt.Sprintf("calc_%d", calciatoreID)
}

func calcPath(astaID, teamKey string, calciatoreID int) string {
	return teamPath(astaID, teamKey) + "/calciatori/" + calcKey(calciatoreID)
}

// astaNode is the wire shape of /aste/{id}. Teams stay loosely typed so a
// single malformed team cannot fail the whole decode.
type astaNode struct {
	ID                     string         `json:"id"`
	Nome                   string         `json:"nome"`
	NumeroPartecipanti     int            `json:"numeroPartecipanti"`
	CreditiPerPartecipante float64        `json:"creditiPerPartecipante"`
	CodiceInvito           string         `json:"codiceInvito"`
	Amministratore         string         `json:"amministratore"`
	PartecipantiIscritti   int            `json:"partecipantiIscritti"`
	IsAttiva               bool           `json:"isAttiva"`
	CreatedAt              string         `json:"createdAt"`
	Teams                  map[string]any `json:"teams"`
}

type teamNode struct {
	Nome           string         `json:"nome"`
	Budget         float64        `json:"budget"`
	BudgetIniziale float64        `json:"budgetIniziale"`
	UserID         string         `json:"userId"`
	UserEmail      string         `json:"userEmail"`
	Calciatori     map[string]any `json:"calciatori"`
}

type calcNode struct {
	ID                 int     `json:"id"`
	Nome               string  `json:"nome"`
	Squadra            string  `json:"squadra"`
	CodiceRuolo        string  `json:"codiceRuolo"`
	Ruolo              string  `json:"ruolo"`
	RuoloMantra        string  `json:"ruoloMantra,omitempty"`
	QuotazioneAttuale  float64 `json:"quotazioneAttuale"`
	QuotazioneIniziale float64 `json:"quotazioneIniziale"`
	FVM                float64 `json:"fvm,omitempty"`
	Assegnato          bool    `json:"assegnato"`
	TeamAssegnato      string  `json:"teamAssegnato"`
	PrezzoAcquisto     float64 `json:"prezzoAcquisto"`
}

// decodeInto coerces a loosely-typed tree value into a wire node via a JSON
// round trip, tolerating the int/float drift the store introduces.
func decodeInto[T any](v any) (T, error) {
	var out T
	raw, err := sonic.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// SkippedEntry records one tree node dropped during reconstruction.
type SkippedEntry struct {
	Path   string
	Reason string
}

// decodeAsta rebuilds the auction aggregate from its subtree. Team iteration
// follows sorted key order so reconstruction is deterministic. Malformed
// team or player entries are skipped and reported; a malformed auction-level
// payload is an error.
func decodeAsta(astaID string, v any) (*asta.Asta, []SkippedEntry, error) {
	node, err := decodeInto[astaNode](v)
	if err != nil {
		return nil, nil, crerr.Wrapf(err, "malformed auction node %s", astaID)
	}
	if strings.TrimSpace(node.Nome) == "" {
		return nil, nil, crerr.Newf("auction node %s has no name", astaID)
	}
	if node.ID == "" {
		node.ID = astaID
	}

	createdAt, err := time.Parse(time.RFC3339, node.CreatedAt)
	if err != nil {
		createdAt = time.Time{}
	}

	a := &asta.Asta{
		ID:                     node.ID,
		Nome:                   node.Nome,
		NumeroPartecipanti:     node.NumeroPartecipanti,
		CreditiPerPartecipante: node.CreditiPerPartecipante,
		CodiceInvito:           strings.ToUpper(strings.TrimSpace(node.CodiceInvito)),
		Amministratore:         node.Amministratore,
		PartecipantiIscritti:   node.PartecipantiIscritti,
		IsAttiva:               node.IsAttiva,
		CreatedAt:              createdAt,
	}

	var skipped []SkippedEntry
	for _, teamKey := range sortedKeys(node.Teams) {
		tn, err := decodeInto[teamNode](node.Teams[teamKey])
		if err != nil {
			skipped = append(skipped, SkippedEntry{
				Path:   teamsPath(astaID) + "/" + teamKey,
				Reason: "malformed team node: " + err.Error(),
			})
			continue
		}
		if strings.TrimSpace(tn.Nome) == "" {
			skipped = append(skipped, SkippedEntry{
				Path:   teamsPath(astaID) + "/" + teamKey,
				Reason: "team node has no name",
			})
			continue
		}

		team := &asta.Team{
			Key:            teamKey,
			Nome:           tn.Nome,
			Budget:         tn.Budget,
			BudgetIniziale: tn.BudgetIniziale,
			UserID:         tn.UserID,
			UserEmail:      tn.UserEmail,
		}

		for _, ck := range sortedKeys(tn.Calciatori) {
			entryPath := teamPath(astaID, teamKey) + "/calciatori/" + ck
			cn, err := decodeInto[calcNode](tn.Calciatori[ck])
			if err != nil {
				skipped = append(skipped, SkippedEntry{Path: entryPath, Reason: "malformed player entry: " + err.Error()})
				continue
			}
			if cn.ID <= 0 || strings.TrimSpace(cn.Nome) == "" || strings.TrimSpace(cn.CodiceRuolo) == "" {
				skipped = append(skipped, SkippedEntry{Path: entryPath, Reason: "player entry missing id, nome or codiceRuolo"})
				continue
			}

			// roster membership is authoritative for the assignment state
			c := cn.toDomain()
			c.Assegnato = true
			c.TeamAssegnato = team.Nome
			team.Calciatori = append(team.Calciatori, c)
			a.CalciatoriAssegnati = append(a.CalciatoriAssegnati, c)
		}

		a.Teams = append(a.Teams, team)
	}

	return a, skipped, nil
}

func (n calcNode) toDomain() calciatore.Calciatore {
	codice := strings.ToUpper(strings.TrimSpace(n.CodiceRuolo))
	return calciatore.Calciatore{
		ID:                 n.ID,
		Nome:               n.Nome,
		Squadra:            n.Squadra,
		CodiceRuolo:        codice,
		Ruolo:              calciatore.RuoloFromCodice(codice),
		RuoloMantra:        n.RuoloMantra,
		QuotazioneAttuale:  n.QuotazioneAttuale,
		QuotazioneIniziale: n.QuotazioneIniziale,
		FVM:                n.FVM,
		Assegnato:          n.Assegnato,
		TeamAssegnato:      n.TeamAssegnato,
		PrezzoAcquisto:     n.PrezzoAcquisto,
	}
}

func astaValue(a *asta.Asta) map[string]any {
	teams := make(map[string]any, len(a.Teams))
	for _, t := range a.Teams {
		teams[t.Key] = teamValue(t)
	}
	createdAt := ""
	if !a.CreatedAt.IsZero() {
		createdAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return map[string]any{
		"id":                     a.ID,
		"nome":                   a.Nome,
		"numeroPartecipanti":     a.NumeroPartecipanti,
		"creditiPerPartecipante": a.CreditiPerPartecipante,
		"codiceInvito":           a.CodiceInvito,
		"amministratore":         a.Amministratore,
		"partecipantiIscritti":   a.PartecipantiIscritti,
		"isAttiva":               a.IsAttiva,
		"createdAt":              createdAt,
		"teams":                  teams,
	}
}

func teamValue(t *asta.Team) map[string]any {
	calciatori := make(map[string]any, len(t.Calciatori))
	for i := range t.Calciatori {
		calciatori[calcKey(t.Calciatori[i].ID)] = calcValue(t.Calciatori[i])
	}
	return map[string]any{
		"nome":           t.Nome,
		"budget":         t.Budget,
		"budgetIniziale": t.BudgetIniziale,
		"userId":         t.UserID,
		"userEmail":      t.UserEmail,
		"calciatori":     calciatori,
	}
}

func calcValue(c calciatore.Calciatore) map[string]any {
	return map[string]any{
		"id":                 c.ID,
		"nome":               c.Nome,
		"squadra":            c.Squadra,
		"codiceRuolo":        c.CodiceRuolo,
		"ruolo":              c.Ruolo,
		"ruoloMantra":        c.RuoloMantra,
		"quotazioneAttuale":  c.QuotazioneAttuale,
		"quotazioneIniziale": c.QuotazioneIniziale,
		"fvm":                c.FVM,
		"assegnato":          c.Assegnato,
		"teamAssegnato":      c.TeamAssegnato,
		"prezzoAcquisto":     c.PrezzoAcquisto,
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
