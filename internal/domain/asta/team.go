package asta

import (
	"strings"

	"github.com/astalive/asta-api/internal/domain/calciatore"
)

// RoleCaps is the maximum roster size per role code: 3 portieri,
// 8 difensori, 8 centrocampisti, 6 attaccanti.
var RoleCaps = map[string]int{
	calciatore.RuoloPortiere:       3,
	calciatore.RuoloDifensore:      8,
	calciatore.RuoloCentrocampista: 8,
	calciatore.RuoloAttaccante:     6,
}

// roleOrder is the display order for full-roster listings.
var roleOrder = []string{
	calciatore.RuoloPortiere,
	calciatore.RuoloDifensore,
	calciatore.RuoloCentrocampista,
	calciatore.RuoloAttaccante,
}

// Team is one participant's squad inside an auction. Key is the
// store-generated identifier the team was persisted under; all mutating
// lookups resolve teams by Key, never by display name.
type Team struct {
	Key            string
	Nome           string
	Budget         float64
	BudgetIniziale float64
	UserID         string
	UserEmail      string
	Calciatori     []calciatore.Calciatore
}

func NewTeam(nome string, budget float64, userID, userEmail string) *Team {
	return &Team{
		Nome:           strings.TrimSpace(nome),
		Budget:         budget,
		BudgetIniziale: budget,
		UserID:         userID,
		UserEmail:      userEmail,
	}
}

// CalciatoriByRuolo returns the roster entries with the given role code.
func (t *Team) CalciatoriByRuolo(codice string) []calciatore.Calciatore {
	var out []calciatore.Calciatore
	for _, c := range t.Calciatori {
		if c.CodiceRuolo == codice {
			out = append(out, c)
		}
	}
	return out
}

// HaRaggiuntoLimite reports whether the role cap for codice is already met.
// Unknown role codes count as full.
func (t *Team) HaRaggiuntoLimite(codice string) bool {
	limit, ok := RoleCaps[codice]
	if !ok {
		return true
	}
	return len(t.CalciatoriByRuolo(codice)) >= limit
}

// AddCalciatore assigns the player to this team at the given price. The
// player is mutated in place (assegnato, team name, price) and an assigned
// copy joins the roster; the budget is debited. Returns false when the role
// cap is reached or the price exceeds the remaining budget.
func (t *Team) AddCalciatore(c *calciatore.Calciatore, prezzo float64) bool {
	if c == nil || c.Assegnato {
		return false
	}
	if t.HaRaggiuntoLimite(c.CodiceRuolo) {
		return false
	}
	if prezzo > t.Budget {
		return false
	}

	c.Assegnato = true
	c.TeamAssegnato = t.Nome
	c.PrezzoAcquisto = prezzo
	t.Calciatori = append(t.Calciatori, *c)
	t.Budget -= prezzo
	return true
}

// RemoveCalciatore drops the roster entry with the player's id, refunds its
// purchase price and clears the player's assignment state. Returns false
// when the player is not on this team.
func (t *Team) RemoveCalciatore(c *calciatore.Calciatore) bool {
	if c == nil {
		return false
	}
	idx := -1
	for i := range t.Calciatori {
		if t.Calciatori[i].ID == c.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	t.Budget += t.Calciatori[idx].PrezzoAcquisto
	t.Calciatori = append(t.Calciatori[:idx], t.Calciatori[idx+1:]...)
	c.Assegnato = false
	c.TeamAssegnato = ""
	c.PrezzoAcquisto = 0
	return true
}

// TotaleSpeso is the sum of all purchase prices on the roster.
func (t *Team) TotaleSpeso() float64 {
	var total float64
	for _, c := range t.Calciatori {
		total += c.PrezzoAcquisto
	}
	return total
}

// TotaleSpesoPerRuolo sums the purchase prices of one role's entries.
func (t *Team) TotaleSpesoPerRuolo(codice string) float64 {
	var total float64
	for _, c := range t.Calciatori {
		if c.CodiceRuolo == codice {
			total += c.PrezzoAcquisto
		}
	}
	return total
}

// TuttiGiocatori returns the roster grouped by role in P, D, C, A order,
// preserving insertion order inside each role.
func (t *Team) TuttiGiocatori() []calciatore.Calciatore {
	out := make([]calciatore.Calciatore, 0, len(t.Calciatori))
	for _, codice := range roleOrder {
		out = append(out, t.CalciatoriByRuolo(codice)...)
	}
	return out
}

// OwnedBy reports whether the team belongs to the given account, matching
// on user id first and falling back to email for teams created before ids
// were recorded.
func (t *Team) OwnedBy(userID, email string) bool {
	if t.UserID != "" && userID != "" && t.UserID == userID {
		return true
	}
	return t.UserEmail != "" && email != "" && strings.EqualFold(t.UserEmail, email)
}
