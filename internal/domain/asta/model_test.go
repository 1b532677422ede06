package asta

import (
	"fmt"
	"testing"
	"time"

	"github.com/astalive/asta-api/internal/domain/calciatore"
)

func portiere(id int) calciatore.Calciatore {
	return calciatore.Calciatore{ID: id, Nome: fmt.Sprintf("Portiere %d", id), CodiceRuolo: "P", Ruolo: "Portiere"}
}

func attaccante(id int) calciatore.Calciatore {
	return calciatore.Calciatore{ID: id, Nome: fmt.Sprintf("Attaccante %d", id), CodiceRuolo: "A", Ruolo: "Attaccante"}
}

func newTestAsta(capacity int, crediti float64, catalogo ...calciatore.Calciatore) (*Asta, *Team) {
	team := NewTeam("Rosa", crediti, "u1", "u1@example.com")
	team.Key = "team_1"
	a := New("Lega Serale", capacity, crediti, "u1", "AB12CD", []*Team{team}, catalogo, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	a.ID = "a1"
	return a, team
}

func TestTeam_AddCalciatore_MutatesPlayerAndBudget(t *testing.T) {
	t.Parallel()

	a, team := newTestAsta(8, 500, attaccante(10))
	c := a.CalciatoriDisponibili[0]

	if !a.AssegnaCalciatore(&c, team, 120) {
		t.Fatalf("assignment refused")
	}
	if !c.Assegnato || c.TeamAssegnato != "Rosa" || c.PrezzoAcquisto != 120 {
		t.Fatalf("player state not updated: %+v", c)
	}
	if team.Budget != 380 {
		t.Fatalf("budget = %v, want 380", team.Budget)
	}
	if len(team.Calciatori) != 1 || team.Calciatori[0].ID != 10 {
		t.Fatalf("roster not updated: %+v", team.Calciatori)
	}
	if len(a.CalciatoriDisponibili) != 0 || len(a.CalciatoriAssegnati) != 1 {
		t.Fatalf("pools not moved: disponibili=%d assegnati=%d", len(a.CalciatoriDisponibili), len(a.CalciatoriAssegnati))
	}
}

func TestTeam_AddCalciatore_RejectsOverBudget(t *testing.T) {
	t.Parallel()

	a, team := newTestAsta(8, 100, attaccante(10))
	c := a.CalciatoriDisponibili[0]

	if a.AssegnaCalciatore(&c, team, 101) {
		t.Fatalf("assignment above budget accepted")
	}
	if c.Assegnato || team.Budget != 100 || len(team.Calciatori) != 0 {
		t.Fatalf("failed assignment left side effects: %+v budget=%v", c, team.Budget)
	}
	if len(a.CalciatoriDisponibili) != 1 {
		t.Fatalf("available pool changed on rejection")
	}

	// exactly the full budget is allowed
	if !a.AssegnaCalciatore(&c, team, 100) {
		t.Fatalf("assignment at exact budget refused")
	}
	if team.Budget != 0 {
		t.Fatalf("budget = %v, want 0", team.Budget)
	}
}

func TestTeam_AddCalciatore_EnforcesRoleCap(t *testing.T) {
	t.Parallel()

	catalogo := []calciatore.Calciatore{portiere(1), portiere(2), portiere(3), portiere(4)}
	a, team := newTestAsta(8, 500, catalogo...)

	for i := 0; i < 3; i++ {
		c := catalogo[i]
		if !a.AssegnaCalciatore(&c, team, 1) {
			t.Fatalf("portiere %d refused before cap", i+1)
		}
	}

	fourth := catalogo[3]
	if a.AssegnaCalciatore(&fourth, team, 1) {
		t.Fatalf("fourth portiere accepted past cap of 3")
	}
	if fourth.Assegnato {
		t.Fatalf("rejected player marked assigned")
	}
}

func TestTeam_AddCalciatore_RejectsAlreadyAssigned(t *testing.T) {
	t.Parallel()

	a, team := newTestAsta(8, 500, attaccante(10))
	other := NewTeam("Blu", 500, "u2", "u2@example.com")
	other.Key = "team_2"
	a.AddTeam(other)

	c := a.CalciatoriDisponibili[0]
	if !a.AssegnaCalciatore(&c, team, 50) {
		t.Fatalf("first assignment refused")
	}
	if a.AssegnaCalciatore(&c, other, 60) {
		t.Fatalf("already-assigned player accepted by second team")
	}
}

func TestRimuoviAssegnazione_RefundsAndRestoresPool(t *testing.T) {
	t.Parallel()

	a, team := newTestAsta(8, 500, attaccante(10))
	c := a.CalciatoriDisponibili[0]
	if !a.AssegnaCalciatore(&c, team, 120) {
		t.Fatalf("assignment refused")
	}

	if !a.RimuoviAssegnazione(&c) {
		t.Fatalf("removal refused")
	}
	if c.Assegnato || c.TeamAssegnato != "" || c.PrezzoAcquisto != 0 {
		t.Fatalf("player state not reset: %+v", c)
	}
	if team.Budget != 500 {
		t.Fatalf("budget after refund = %v, want 500", team.Budget)
	}
	if len(a.CalciatoriDisponibili) != 1 || len(a.CalciatoriAssegnati) != 0 {
		t.Fatalf("pools not restored")
	}

	// a full assign/remove cycle leaves the player assignable again
	if !a.AssegnaCalciatore(&c, team, 80) {
		t.Fatalf("player not assignable after removal")
	}
}

func TestRimuoviAssegnazione_UnassignedPlayer(t *testing.T) {
	t.Parallel()

	a, _ := newTestAsta(8, 500, attaccante(10))
	c := a.CalciatoriDisponibili[0]
	if a.RimuoviAssegnazione(&c) {
		t.Fatalf("removal of unassigned player accepted")
	}
}

func TestAsta_CanJoinAndAddTeam(t *testing.T) {
	t.Parallel()

	a, _ := newTestAsta(3, 500)
	if !a.CanJoin() {
		t.Fatalf("auction with free slots refused joins")
	}

	second := NewTeam("Blu", 0, "u2", "u2@example.com")
	second.Key = "team_2"
	if !a.AddTeam(second) {
		t.Fatalf("second team refused")
	}
	if second.Budget != 500 || second.BudgetIniziale != 500 {
		t.Fatalf("joining team did not receive starting credits: %+v", second)
	}
	if a.PartecipantiIscritti != 2 {
		t.Fatalf("partecipantiIscritti = %d, want 2", a.PartecipantiIscritti)
	}

	third := NewTeam("Verde", 0, "u3", "u3@example.com")
	if !a.AddTeam(third) {
		t.Fatalf("third team refused")
	}
	if a.CanJoin() {
		t.Fatalf("full auction still accepts joins")
	}
	fourth := NewTeam("Gialla", 0, "u4", "u4@example.com")
	if a.AddTeam(fourth) {
		t.Fatalf("team accepted past capacity")
	}
}

func TestAsta_InactiveBlocksJoin(t *testing.T) {
	t.Parallel()

	a, _ := newTestAsta(4, 500)
	a.IsAttiva = false
	if a.CanJoin() {
		t.Fatalf("inactive auction accepts joins")
	}
}

func TestAsta_AdminPrecountedAtCreation(t *testing.T) {
	t.Parallel()

	a := New("Solo Admin", 6, 500, "admin", "ZZ99XX", nil, nil, time.Now())
	if a.PartecipantiIscritti != 1 {
		t.Fatalf("admin not pre-counted: %d", a.PartecipantiIscritti)
	}
	if !a.IsAttiva {
		t.Fatalf("new auction must start active")
	}
}

func TestTeam_Lookups(t *testing.T) {
	t.Parallel()

	a, team := newTestAsta(8, 500)
	if got := a.TeamByKey("team_1"); got != team {
		t.Fatalf("TeamByKey failed")
	}
	if got := a.TeamByKey("Rosa"); got != nil {
		t.Fatalf("TeamByKey must not match display names")
	}
	if got := a.TeamByUser("u1", ""); got != team {
		t.Fatalf("TeamByUser by id failed")
	}
	if got := a.TeamByUser("", "U1@Example.com"); got != team {
		t.Fatalf("TeamByUser email fallback failed")
	}
	if got := a.TeamByUser("u9", "nobody@example.com"); got != nil {
		t.Fatalf("TeamByUser matched a stranger")
	}
}

func TestTeam_SpendQueriesAndOrdering(t *testing.T) {
	t.Parallel()

	catalogo := []calciatore.Calciatore{attaccante(30), portiere(1), attaccante(31)}
	a, team := newTestAsta(8, 500, catalogo...)

	players := []struct {
		c      calciatore.Calciatore
		prezzo float64
	}{
		{catalogo[0], 100},
		{catalogo[1], 10},
		{catalogo[2], 50},
	}
	for _, p := range players {
		c := p.c
		if !a.AssegnaCalciatore(&c, team, p.prezzo) {
			t.Fatalf("assignment of %d refused", c.ID)
		}
	}

	if got := team.TotaleSpeso(); got != 160 {
		t.Fatalf("TotaleSpeso = %v, want 160", got)
	}
	if got := team.TotaleSpesoPerRuolo("A"); got != 150 {
		t.Fatalf("TotaleSpesoPerRuolo(A) = %v, want 150", got)
	}
	if got := team.TotaleSpesoPerRuolo("P"); got != 10 {
		t.Fatalf("TotaleSpesoPerRuolo(P) = %v, want 10", got)
	}

	ordered := team.TuttiGiocatori()
	if len(ordered) != 3 {
		t.Fatalf("TuttiGiocatori length = %d", len(ordered))
	}
	// portieri first, then attackers in insertion order
	if ordered[0].ID != 1 || ordered[1].ID != 30 || ordered[2].ID != 31 {
		t.Fatalf("unexpected order: %d %d %d", ordered[0].ID, ordered[1].ID, ordered[2].ID)
	}
}

func TestAsta_RoleFilteredPools(t *testing.T) {
	t.Parallel()

	catalogo := []calciatore.Calciatore{attaccante(30), portiere(1)}
	a, team := newTestAsta(8, 500, catalogo...)

	c := catalogo[0]
	if !a.AssegnaCalciatore(&c, team, 70) {
		t.Fatalf("assignment refused")
	}

	if got := a.DisponibiliByRuolo("P"); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("DisponibiliByRuolo(P) = %+v", got)
	}
	if got := a.AssegnatiByRuolo("A"); len(got) != 1 || got[0].ID != 30 {
		t.Fatalf("AssegnatiByRuolo(A) = %+v", got)
	}
	if got := a.AssegnatiByTeam("team_1"); len(got) != 1 {
		t.Fatalf("AssegnatiByTeam = %+v", got)
	}
	if got := a.AssegnatiByTeamAndRuolo("team_1", "P"); len(got) != 0 {
		t.Fatalf("AssegnatiByTeamAndRuolo(P) = %+v", got)
	}
}
