package asta

import (
	"strings"
	"time"

	"github.com/astalive/asta-api/internal/domain/calciatore"
)

// Asta is the auction aggregate: fixed participant capacity, per-participant
// starting credits, the joined teams and the player pools.
//
// PartecipantiIscritti is persisted state, not a derived count: the admin is
// pre-counted at creation time and the value is restored verbatim on
// reconstruction so any drift stays observable.
type Asta struct {
	ID                     string
	Nome                   string
	NumeroPartecipanti     int
	CreditiPerPartecipante float64
	CodiceInvito           string
	Amministratore         string
	PartecipantiIscritti   int
	IsAttiva               bool
	CreatedAt              time.Time
	Teams                  []*Team

	// CalciatoriDisponibili / CalciatoriAssegnati are the working pools an
	// auction session moves players between.
	CalciatoriDisponibili []calciatore.Calciatore
	CalciatoriAssegnati   []calciatore.Calciatore
}

// New creates an auction. The admin's own team is expected among teams; when
// no teams are passed the admin still counts as the first participant.
func New(nome string, numeroPartecipanti int, crediti float64, amministratore, codiceInvito string, teams []*Team, catalogo []calciatore.Calciatore, createdAt time.Time) *Asta {
	iscritti := len(teams)
	if iscritti == 0 {
		iscritti = 1
	}
	return &Asta{
		Nome:                   strings.TrimSpace(nome),
		NumeroPartecipanti:     numeroPartecipanti,
		CreditiPerPartecipante: crediti,
		CodiceInvito:           strings.ToUpper(strings.TrimSpace(codiceInvito)),
		Amministratore:         amministratore,
		PartecipantiIscritti:   iscritti,
		IsAttiva:               true,
		CreatedAt:              createdAt,
		Teams:                  teams,
		CalciatoriDisponibili:  append([]calciatore.Calciatore(nil), catalogo...),
	}
}

// CanJoin reports whether another participant fits: the auction is active
// and has a free slot.
func (a *Asta) CanJoin() bool {
	return a.IsAttiva && a.PartecipantiIscritti < a.NumeroPartecipanti
}

// AddTeam registers a new participant's team, allocating the starting
// credits. Returns false when the auction cannot accept another team.
func (a *Asta) AddTeam(t *Team) bool {
	if t == nil || !a.CanJoin() {
		return false
	}
	t.Budget = a.CreditiPerPartecipante
	t.BudgetIniziale = a.CreditiPerPartecipante
	a.Teams = append(a.Teams, t)
	a.PartecipantiIscritti++
	return true
}

// TeamByKey resolves a team by its store key.
func (a *Asta) TeamByKey(key string) *Team {
	for _, t := range a.Teams {
		if t.Key == key {
			return t
		}
	}
	return nil
}

// TeamByUser resolves the team owned by the given account, if any.
func (a *Asta) TeamByUser(userID, email string) *Team {
	for _, t := range a.Teams {
		if t.OwnedBy(userID, email) {
			return t
		}
	}
	return nil
}

// AssegnaCalciatore assigns a player to a team at the given price, moving it
// from the available pool to the assigned pool. Every precondition failure
// (already assigned, role cap, budget) returns false and leaves the auction
// untouched.
func (a *Asta) AssegnaCalciatore(c *calciatore.Calciatore, team *Team, prezzo float64) bool {
	if c == nil || team == nil || c.Assegnato {
		return false
	}
	if !team.AddCalciatore(c, prezzo) {
		return false
	}

	for i := range a.CalciatoriDisponibili {
		if a.CalciatoriDisponibili[i].ID == c.ID {
			a.CalciatoriDisponibili = append(a.CalciatoriDisponibili[:i], a.CalciatoriDisponibili[i+1:]...)
			break
		}
	}
	a.CalciatoriAssegnati = append(a.CalciatoriAssegnati, *c)
	return true
}

// RimuoviAssegnazione reverses an assignment: the owning team is found by
// scanning rosters for the player's id, the price is refunded and the player
// returns to the available pool. Returns false when the player is assigned
// nowhere.
func (a *Asta) RimuoviAssegnazione(c *calciatore.Calciatore) bool {
	if c == nil {
		return false
	}
	var owner *Team
	for _, t := range a.Teams {
		for i := range t.Calciatori {
			if t.Calciatori[i].ID == c.ID {
				owner = t
				break
			}
		}
		if owner != nil {
			break
		}
	}
	if owner == nil {
		return false
	}
	if !owner.RemoveCalciatore(c) {
		return false
	}

	for i := range a.CalciatoriAssegnati {
		if a.CalciatoriAssegnati[i].ID == c.ID {
			a.CalciatoriAssegnati = append(a.CalciatoriAssegnati[:i], a.CalciatoriAssegnati[i+1:]...)
			break
		}
	}
	a.CalciatoriDisponibili = append(a.CalciatoriDisponibili, *c)
	return true
}

// DisponibiliByRuolo filters the available pool by role code.
func (a *Asta) DisponibiliByRuolo(codice string) []calciatore.Calciatore {
	return filterByRuolo(a.CalciatoriDisponibili, codice)
}

// AssegnatiByRuolo filters the assigned pool by role code.
func (a *Asta) AssegnatiByRuolo(codice string) []calciatore.Calciatore {
	return filterByRuolo(a.CalciatoriAssegnati, codice)
}

// AssegnatiByTeam returns the roster of the team with the given key.
func (a *Asta) AssegnatiByTeam(teamKey string) []calciatore.Calciatore {
	t := a.TeamByKey(teamKey)
	if t == nil {
		return nil
	}
	return append([]calciatore.Calciatore(nil), t.Calciatori...)
}

// AssegnatiByTeamAndRuolo returns one role's entries of a team's roster.
func (a *Asta) AssegnatiByTeamAndRuolo(teamKey, codice string) []calciatore.Calciatore {
	t := a.TeamByKey(teamKey)
	if t == nil {
		return nil
	}
	return t.CalciatoriByRuolo(codice)
}

func filterByRuolo(pool []calciatore.Calciatore, codice string) []calciatore.Calciatore {
	var out []calciatore.Calciatore
	for _, c := range pool {
		if c.CodiceRuolo == codice {
			out = append(out, c)
		}
	}
	return out
}
