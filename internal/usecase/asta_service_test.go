package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/astalive/asta-api/internal/domain/asta"
	"github.com/astalive/asta-api/internal/domain/calciatore"
	"github.com/astalive/asta-api/internal/infrastructure/repository/treestore"
	"github.com/astalive/asta-api/internal/platform/logging"
	"github.com/astalive/asta-api/internal/platform/treedb"
)

type staticCodes struct {
	mu    sync.Mutex
	codes []string
	teams int
}

func (s *staticCodes) InviteCode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return "ZZ99ZZ", nil
	}
	code := s.codes[0]
	s.codes = s.codes[1:]
	return code, nil
}

func (s *staticCodes) TeamKey(_ time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams++
	return fmt.Sprintf("team_%04d", s.teams), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, event string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAstaFixture(t *testing.T) (*AstaService, *recordingPublisher, *treestore.CatalogRepository) {
	t.Helper()

	store := treedb.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	codes := &staticCodes{codes: []string{"AB12CD", "EF34GH", "IJ56KL"}}
	astaRepo := treestore.NewAstaRepository(store, codes, logging.NewNop(), treestore.AstaRepositoryConfig{})
	catalogRepo := treestore.NewCatalogRepository(store, logging.NewNop())
	events := &recordingPublisher{}

	svc := NewAstaService(astaRepo, catalogRepo, codes, events, discardLogger())
	return svc, events, catalogRepo
}

func seedCatalog(t *testing.T, repo *treestore.CatalogRepository, players ...calciatore.Calciatore) {
	t.Helper()
	if err := repo.Save(t.Context(), players); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
}

func portiere(id int, nome string) calciatore.Calciatore {
	return calciatore.Calciatore{ID: id, Nome: nome, CodiceRuolo: "P", Ruolo: "Portiere"}
}

func TestAstaService_CreateAsta(t *testing.T) {
	svc, events, _ := newAstaFixture(t)

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome:                   "Lega Serale",
		NumeroPartecipanti:     8,
		CreditiPerPartecipante: 500,
		Amministratore:         "admin-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if a.ID == "" {
		t.Fatalf("expected generated auction id")
	}
	if a.CodiceInvito != "AB12CD" {
		t.Fatalf("unexpected invite code: %s", a.CodiceInvito)
	}
	if a.PartecipantiIscritti != 1 {
		t.Fatalf("administrator should be pre-counted, got %d", a.PartecipantiIscritti)
	}
	if !a.IsAttiva {
		t.Fatalf("new auction should be active")
	}
	if got := events.names(); len(got) != 1 || got[0] != EventAstaCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestAstaService_CreateAsta_Validation(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	cases := []CreateAstaInput{
		{Nome: "", NumeroPartecipanti: 8, CreditiPerPartecipante: 500, Amministratore: "admin-1"},
		{Nome: "Lega", NumeroPartecipanti: 1, CreditiPerPartecipante: 500, Amministratore: "admin-1"},
		{Nome: "Lega", NumeroPartecipanti: 8, CreditiPerPartecipante: 0, Amministratore: "admin-1"},
		{Nome: "Lega", NumeroPartecipanti: 8, CreditiPerPartecipante: 500, Amministratore: "  "},
	}
	for i, input := range cases {
		if _, err := svc.CreateAsta(t.Context(), input); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestAstaService_CreateAsta_RetriesCollidingCode(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	first, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Prima", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}

	// The generator hands out AB12CD again before EF34GH; the service must
	// skip the taken code.
	svc.invites.(*staticCodes).codes = []string{first.CodiceInvito, "EF34GH"}
	second, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Seconda", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-2",
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.CodiceInvito != "EF34GH" {
		t.Fatalf("expected the retried code, got %s", second.CodiceInvito)
	}
}

func TestAstaService_JoinAsta(t *testing.T) {
	svc, events, _ := newAstaFixture(t)

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: "ab12cd",
		NomeTeam:     "Rosa",
		UserID:       "user-1",
		UserEmail:    "rosa@example.com",
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !res.Success {
		t.Fatalf("join rejected: %s", res.Message)
	}
	if res.Asta == nil || res.Asta.ID != a.ID {
		t.Fatalf("join result should carry the refreshed auction")
	}
	team := res.Asta.TeamByUser("user-1", "rosa@example.com")
	if team == nil {
		t.Fatalf("joined team not found")
	}
	if team.Budget != 500 {
		t.Fatalf("unexpected budget: %v", team.Budget)
	}

	got := events.names()
	if len(got) != 2 || got[1] != EventAstaJoined {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestAstaService_JoinAsta_InvalidCodeIsNotAnError(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	res, err := svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: "NOPE01", NomeTeam: "Rosa", UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("rejections must not be errors: %v", err)
	}
	if res.Success {
		t.Fatalf("join should have been rejected")
	}
	if res.Message != asta.JoinMsgInvalidCode {
		t.Fatalf("unexpected message: %s", res.Message)
	}
}

func TestAstaService_GetAsta_NotFound(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	if _, err := svc.GetAsta(t.Context(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetAstaByCode(t.Context(), "NOPE01"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAstaService_UpdateAsta_AdminOnly(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.UpdateAsta(t.Context(), UpdateAstaInput{
		AstaID: a.ID, ActorUserID: "intruder", Nome: "Hijack",
	}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	updated, err := svc.UpdateAsta(t.Context(), UpdateAstaInput{
		AstaID: a.ID, ActorUserID: "admin-1", Nome: "Lega Rinominata", NumeroPartecipanti: 6,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Nome != "Lega Rinominata" || updated.NumeroPartecipanti != 6 {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestAstaService_UpdateAsta_CapacityBelowParticipants(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: a.CodiceInvito, NomeTeam: "Rosa", UserID: "user-1",
	}); err != nil {
		t.Fatalf("join: %v", err)
	}

	if _, err := svc.UpdateAsta(t.Context(), UpdateAstaInput{
		AstaID: a.ID, ActorUserID: "admin-1", NumeroPartecipanti: 1,
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAstaService_SetAttiva_GatesJoins(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SetAttiva(t.Context(), a.ID, "admin-1", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	res, err := svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: a.CodiceInvito, NomeTeam: "Rosa", UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.Success || res.Message != asta.JoinMsgNotAvailable {
		t.Fatalf("deactivated auction accepted a join: %+v", res)
	}

	if _, err := svc.SetAttiva(t.Context(), a.ID, "admin-1", true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	res, err = svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: a.CodiceInvito, NomeTeam: "Rosa", UserID: "user-1",
	})
	if err != nil || !res.Success {
		t.Fatalf("reactivated auction refused a join: %+v %v", res, err)
	}
}

func TestAstaService_DeleteAsta(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteAsta(t.Context(), a.ID, "intruder"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := svc.DeleteAsta(t.Context(), a.ID, "admin-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetAsta(t.Context(), a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestAstaService_DeleteAllByAdmin(t *testing.T) {
	svc, _, _ := newAstaFixture(t)

	for _, nome := range []string{"Prima", "Seconda"} {
		if _, err := svc.CreateAsta(t.Context(), CreateAstaInput{
			Nome: nome, NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
		}); err != nil {
			t.Fatalf("create %s: %v", nome, err)
		}
	}
	other, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Altrui", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-2",
	})
	if err != nil {
		t.Fatalf("create other: %v", err)
	}

	deleted, err := svc.DeleteAllByAdmin(t.Context(), "admin-1")
	if err != nil {
		t.Fatalf("cascade delete: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	if _, err := svc.GetAsta(t.Context(), other.ID); err != nil {
		t.Fatalf("unrelated auction should survive: %v", err)
	}
}

func TestAstaService_AssignUnassignCalciatore(t *testing.T) {
	svc, events, catalogRepo := newAstaFixture(t)
	seedCatalog(t, catalogRepo, portiere(101, "Meret"))

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: a.CodiceInvito, NomeTeam: "Rosa", UserID: "user-1",
	})
	if err != nil || !res.Success {
		t.Fatalf("join: %v %+v", err, res)
	}
	teamKey := res.Asta.Teams[0].Key

	ok, err := svc.AssignCalciatore(t.Context(), AssignInput{
		AstaID: a.ID, TeamKey: teamKey, CalciatoreID: 101, Prezzo: 120,
	})
	if err != nil || !ok {
		t.Fatalf("assign: ok=%v err=%v", ok, err)
	}

	reloaded, err := svc.GetAsta(t.Context(), a.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	team := reloaded.TeamByKey(teamKey)
	if team == nil || team.Budget != 380 {
		t.Fatalf("budget not debited: %+v", team)
	}

	ok, err = svc.UnassignCalciatore(t.Context(), a.ID, 101)
	if err != nil || !ok {
		t.Fatalf("unassign: ok=%v err=%v", ok, err)
	}
	reloaded, err = svc.GetAsta(t.Context(), a.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	team = reloaded.TeamByKey(teamKey)
	if team == nil || team.Budget != 500 {
		t.Fatalf("budget not refunded: %v", team.Budget)
	}

	got := events.names()
	if len(got) != 4 || got[2] != EventCalciatoreAssigned || got[3] != EventCalciatoreUnassigned {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestAstaService_AssignCalciatore_Rejections(t *testing.T) {
	svc, _, catalogRepo := newAstaFixture(t)
	seedCatalog(t, catalogRepo, portiere(101, "Meret"))

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: a.CodiceInvito, NomeTeam: "Rosa", UserID: "user-1",
	})
	if err != nil || !res.Success {
		t.Fatalf("join: %v %+v", err, res)
	}
	teamKey := res.Asta.Teams[0].Key

	if _, err := svc.AssignCalciatore(t.Context(), AssignInput{
		AstaID: a.ID, TeamKey: teamKey, CalciatoreID: 101, Prezzo: -1,
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative price: expected ErrInvalidInput, got %v", err)
	}

	if _, err := svc.AssignCalciatore(t.Context(), AssignInput{
		AstaID: a.ID, TeamKey: teamKey, CalciatoreID: 999, Prezzo: 10,
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown player: expected ErrNotFound, got %v", err)
	}

	// Over budget is a domain rejection, not an error.
	ok, err := svc.AssignCalciatore(t.Context(), AssignInput{
		AstaID: a.ID, TeamKey: teamKey, CalciatoreID: 101, Prezzo: 501,
	})
	if err != nil {
		t.Fatalf("over budget: %v", err)
	}
	if ok {
		t.Fatalf("over-budget assignment should be refused")
	}
}

func TestAstaService_UpdatePrezzo(t *testing.T) {
	svc, _, catalogRepo := newAstaFixture(t)
	seedCatalog(t, catalogRepo, portiere(101, "Meret"))

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: a.CodiceInvito, NomeTeam: "Rosa", UserID: "user-1",
	})
	if err != nil || !res.Success {
		t.Fatalf("join: %v %+v", err, res)
	}
	teamKey := res.Asta.Teams[0].Key

	if ok, err := svc.AssignCalciatore(t.Context(), AssignInput{
		AstaID: a.ID, TeamKey: teamKey, CalciatoreID: 101, Prezzo: 100,
	}); err != nil || !ok {
		t.Fatalf("assign: ok=%v err=%v", ok, err)
	}

	ok, err := svc.UpdatePrezzo(t.Context(), PrezzoInput{
		AstaID: a.ID, TeamKey: teamKey, CalciatoreID: 101, Prezzo: 150,
	})
	if err != nil || !ok {
		t.Fatalf("update price: ok=%v err=%v", ok, err)
	}

	reloaded, err := svc.GetAsta(t.Context(), a.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	team := reloaded.TeamByKey(teamKey)
	if team == nil || team.Budget != 350 {
		t.Fatalf("budget after price bump: %+v", team)
	}
}

func TestAstaService_AvailableCalciatori(t *testing.T) {
	svc, _, catalogRepo := newAstaFixture(t)
	seedCatalog(t, catalogRepo,
		portiere(101, "Meret"),
		portiere(102, "Provedel"),
	)

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.JoinAsta(t.Context(), JoinAstaInput{
		CodiceInvito: a.CodiceInvito, NomeTeam: "Rosa", UserID: "user-1",
	})
	if err != nil || !res.Success {
		t.Fatalf("join: %v %+v", err, res)
	}
	if ok, err := svc.AssignCalciatore(t.Context(), AssignInput{
		AstaID: a.ID, TeamKey: res.Asta.Teams[0].Key, CalciatoreID: 101, Prezzo: 50,
	}); err != nil || !ok {
		t.Fatalf("assign: ok=%v err=%v", ok, err)
	}

	available, err := svc.AvailableCalciatori(t.Context(), a.ID)
	if err != nil {
		t.Fatalf("available: %v", err)
	}
	if len(available) != 1 || available[0].ID != 102 {
		t.Fatalf("unexpected available pool: %+v", available)
	}
}

func TestAstaService_WatchAsta(t *testing.T) {
	svc, _, catalogRepo := newAstaFixture(t)
	seedCatalog(t, catalogRepo, portiere(101, "Meret"))

	a, err := svc.CreateAsta(t.Context(), CreateAstaInput{
		Nome: "Lega", NumeroPartecipanti: 4, CreditiPerPartecipante: 500, Amministratore: "admin-1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	stream, cancel, err := svc.WatchAsta(t.Context(), a.ID)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	select {
	case got := <-stream:
		if got == nil || got.ID != a.ID {
			t.Fatalf("unexpected initial snapshot: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for initial snapshot")
	}

	if _, _, err := svc.WatchAsta(t.Context(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing auction, got %v", err)
	}
}
