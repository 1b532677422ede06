package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/astalive/asta-api/internal/domain/asta"
	"github.com/astalive/asta-api/internal/domain/calciatore"
)

const inviteCodeAttempts = 5

type inviteCodeGenerator interface {
	InviteCode() (string, error)
}

// CreateAstaInput is the incoming payload for auction creation. The admin
// is pre-counted as the first participant; their team joins later through
// the same invite-code flow as everyone else.
type CreateAstaInput struct {
	Nome                   string
	NumeroPartecipanti     int
	CreditiPerPartecipante float64
	Amministratore         string
}

type JoinAstaInput struct {
	CodiceInvito string
	NomeTeam     string
	UserID       string
	UserEmail    string
}

type UpdateAstaInput struct {
	AstaID                 string
	ActorUserID            string
	Nome                   string
	NumeroPartecipanti     int
	CreditiPerPartecipante float64
}

type AssignInput struct {
	AstaID       string
	TeamKey      string
	CalciatoreID int
	Prezzo       float64
}

type PrezzoInput struct {
	AstaID       string
	TeamKey      string
	CalciatoreID int
	Prezzo       float64
}

// AstaService is the auction directory: creation, membership, lifecycle and
// player-assignment orchestration. All persistence goes through the
// repository; all rejections surface as sentinel errors or boolean results.
type AstaService struct {
	astaRepo    asta.Repository
	catalogRepo calciatore.CatalogRepository
	invites     inviteCodeGenerator
	events      EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewAstaService(
	astaRepo asta.Repository,
	catalogRepo calciatore.CatalogRepository,
	invites inviteCodeGenerator,
	events EventPublisher,
	logger *slog.Logger,
) *AstaService {
	if logger == nil {
		logger = slog.Default()
	}

	return &AstaService{
		astaRepo:    astaRepo,
		catalogRepo: catalogRepo,
		invites:     invites,
		events:      events,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *AstaService) CreateAsta(ctx context.Context, input CreateAstaInput) (*asta.Asta, error) {
	ctx, span := startUsecaseSpan(ctx, "AstaService.CreateAsta")
	defer span.End()

	input.Nome = strings.TrimSpace(input.Nome)
	input.Amministratore = strings.TrimSpace(input.Amministratore)

	if input.Nome == "" {
		return nil, fmt.Errorf("%w: auction name is required", ErrInvalidInput)
	}
	if input.Amministratore == "" {
		return nil, fmt.Errorf("%w: administrator is required", ErrInvalidInput)
	}
	if input.NumeroPartecipanti < 2 {
		return nil, fmt.Errorf("%w: at least 2 participants are required", ErrInvalidInput)
	}
	if input.CreditiPerPartecipante <= 0 {
		return nil, fmt.Errorf("%w: credits per participant must be positive", ErrInvalidInput)
	}

	code, err := s.freshInviteCode(ctx)
	if err != nil {
		return nil, err
	}

	a := asta.New(
		input.Nome,
		input.NumeroPartecipanti,
		input.CreditiPerPartecipante,
		input.Amministratore,
		code,
		nil,
		nil,
		s.now().UTC(),
	)
	if err := s.astaRepo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}

	s.logger.InfoContext(ctx, "auction created",
		"asta_id", a.ID,
		"nome", a.Nome,
		"partecipanti", a.NumeroPartecipanti,
		"amministratore", a.Amministratore,
	)
	s.publish(ctx, EventAstaCreated, map[string]any{"astaId": a.ID, "nome": a.Nome})
	return a, nil
}

// freshInviteCode retries generation on the unlikely collision with an
// existing auction's code.
func (s *AstaService) freshInviteCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := s.invites.InviteCode()
		if err != nil {
			return "", fmt.Errorf("generate invite code: %w", err)
		}
		_, exists, err := s.astaRepo.GetByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check invite code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: could not allocate a unique invite code", ErrDependencyUnavailable)
}

func (s *AstaService) JoinAsta(ctx context.Context, input JoinAstaInput) (asta.JoinResult, error) {
	ctx, span := startUsecaseSpan(ctx, "AstaService.JoinAsta")
	defer span.End()

	input.CodiceInvito = strings.ToUpper(strings.TrimSpace(input.CodiceInvito))
	input.NomeTeam = strings.TrimSpace(input.NomeTeam)
	input.UserID = strings.TrimSpace(input.UserID)

	if input.CodiceInvito == "" {
		return asta.JoinResult{}, fmt.Errorf("%w: invite code is required", ErrInvalidInput)
	}
	if input.NomeTeam == "" {
		return asta.JoinResult{}, fmt.Errorf("%w: team name is required", ErrInvalidInput)
	}
	if input.UserID == "" {
		return asta.JoinResult{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	result, err := s.astaRepo.Join(ctx, asta.JoinRequest{
		CodiceInvito: input.CodiceInvito,
		NomeTeam:     input.NomeTeam,
		UserID:       input.UserID,
		UserEmail:    strings.TrimSpace(input.UserEmail),
	})
	if err != nil {
		return asta.JoinResult{}, fmt.Errorf("join auction: %w", err)
	}

	if result.Success {
		astaID := ""
		if result.Asta != nil {
			astaID = result.Asta.ID
		}
		s.logger.InfoContext(ctx, "auction joined",
			"asta_id", astaID, "user_id", input.UserID, "team", input.NomeTeam)
		s.publish(ctx, EventAstaJoined, map[string]any{
			"astaId": astaID, "userId": input.UserID, "nomeTeam": input.NomeTeam,
		})
	} else {
		s.logger.InfoContext(ctx, "auction join rejected",
			"codice", input.CodiceInvito, "user_id", input.UserID, "message", result.Message)
	}
	return result, nil
}

func (s *AstaService) GetAsta(ctx context.Context, astaID string) (*asta.Asta, error) {
	astaID = strings.TrimSpace(astaID)
	if astaID == "" {
		return nil, fmt.Errorf("%w: auction id is required", ErrInvalidInput)
	}

	a, found, err := s.astaRepo.GetByID(ctx, astaID)
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: auction %s", ErrNotFound, astaID)
	}
	return a, nil
}

func (s *AstaService) GetAstaByCode(ctx context.Context, codiceInvito string) (*asta.Asta, error) {
	codiceInvito = strings.TrimSpace(codiceInvito)
	if codiceInvito == "" {
		return nil, fmt.Errorf("%w: invite code is required", ErrInvalidInput)
	}

	a, found, err := s.astaRepo.GetByCode(ctx, codiceInvito)
	if err != nil {
		return nil, fmt.Errorf("get auction by code: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: no auction with code %s", ErrNotFound, strings.ToUpper(codiceInvito))
	}
	return a, nil
}

func (s *AstaService) ListAvailable(ctx context.Context) ([]*asta.Asta, error) {
	out, err := s.astaRepo.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available auctions: %w", err)
	}
	return out, nil
}

func (s *AstaService) ListMine(ctx context.Context, userID, email string) ([]*asta.Asta, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	out, err := s.astaRepo.ListByUser(ctx, userID, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("list my auctions: %w", err)
	}
	return out, nil
}

func (s *AstaService) ListCreated(ctx context.Context, userID string) ([]*asta.Asta, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	out, err := s.astaRepo.ListByAdmin(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list created auctions: %w", err)
	}
	return out, nil
}

func (s *AstaService) UpdateAsta(ctx context.Context, input UpdateAstaInput) (*asta.Asta, error) {
	ctx, span := startUsecaseSpan(ctx, "AstaService.UpdateAsta")
	defer span.End()

	a, err := s.authorizeAdmin(ctx, input.AstaID, input.ActorUserID)
	if err != nil {
		return nil, err
	}

	if nome := strings.TrimSpace(input.Nome); nome != "" {
		a.Nome = nome
	}
	if input.NumeroPartecipanti > 0 {
		if input.NumeroPartecipanti < a.PartecipantiIscritti {
			return nil, fmt.Errorf("%w: capacity %d below current participants %d",
				ErrInvalidInput, input.NumeroPartecipanti, a.PartecipantiIscritti)
		}
		a.NumeroPartecipanti = input.NumeroPartecipanti
	}
	if input.CreditiPerPartecipante > 0 {
		a.CreditiPerPartecipante = input.CreditiPerPartecipante
	}

	if err := s.astaRepo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update auction: %w", err)
	}
	s.logger.InfoContext(ctx, "auction updated", "asta_id", a.ID, "actor", input.ActorUserID)
	return a, nil
}

// SetAttiva flips the auction's active gate. Deactivated auctions refuse
// joins but keep their data readable.
func (s *AstaService) SetAttiva(ctx context.Context, astaID, actorUserID string, attiva bool) (*asta.Asta, error) {
	a, err := s.authorizeAdmin(ctx, astaID, actorUserID)
	if err != nil {
		return nil, err
	}
	if a.IsAttiva == attiva {
		return a, nil
	}

	a.IsAttiva = attiva
	if err := s.astaRepo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update auction state: %w", err)
	}
	s.logger.InfoContext(ctx, "auction state changed", "asta_id", a.ID, "is_attiva", attiva)
	return a, nil
}

func (s *AstaService) DeleteAsta(ctx context.Context, astaID, actorUserID string) error {
	a, err := s.authorizeAdmin(ctx, astaID, actorUserID)
	if err != nil {
		return err
	}
	if err := s.astaRepo.Delete(ctx, a.ID); err != nil {
		return fmt.Errorf("delete auction: %w", err)
	}
	s.logger.InfoContext(ctx, "auction deleted", "asta_id", a.ID, "actor", actorUserID)
	return nil
}

// DeleteAllByAdmin is the account-removal cascade: every auction the user
// administers goes away in one atomic update.
func (s *AstaService) DeleteAllByAdmin(ctx context.Context, userID string) (int, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	deleted, err := s.astaRepo.DeleteByAdmin(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("cascade delete auctions: %w", err)
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "auctions cascade-deleted", "user_id", userID, "count", deleted)
	}
	return deleted, nil
}

// AssignCalciatore looks the player up in the catalog and delegates the
// budget/cap/duplicate checks to the repository. The boolean result carries
// domain rejections; errors are reserved for invalid input and
// infrastructure faults.
func (s *AstaService) AssignCalciatore(ctx context.Context, input AssignInput) (bool, error) {
	ctx, span := startUsecaseSpan(ctx, "AstaService.AssignCalciatore")
	defer span.End()

	if strings.TrimSpace(input.AstaID) == "" || strings.TrimSpace(input.TeamKey) == "" {
		return false, fmt.Errorf("%w: auction id and team key are required", ErrInvalidInput)
	}
	if input.CalciatoreID <= 0 {
		return false, fmt.Errorf("%w: calciatore id is required", ErrInvalidInput)
	}
	if input.Prezzo < 0 {
		return false, fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
	}

	c, err := s.catalogPlayer(ctx, input.CalciatoreID)
	if err != nil {
		return false, err
	}

	ok, err := s.astaRepo.AssegnaCalciatore(ctx, input.AstaID, c, input.TeamKey, input.Prezzo)
	if err != nil {
		return false, fmt.Errorf("assign calciatore: %w", err)
	}
	if ok {
		s.logger.InfoContext(ctx, "calciatore assigned",
			"asta_id", input.AstaID, "team_key", input.TeamKey,
			"calciatore_id", input.CalciatoreID, "prezzo", input.Prezzo)
		s.publish(ctx, EventCalciatoreAssigned, map[string]any{
			"astaId": input.AstaID, "teamKey": input.TeamKey,
			"calciatoreId": input.CalciatoreID, "prezzo": input.Prezzo,
		})
	}
	return ok, nil
}

func (s *AstaService) UnassignCalciatore(ctx context.Context, astaID string, calciatoreID int) (bool, error) {
	ctx, span := startUsecaseSpan(ctx, "AstaService.UnassignCalciatore")
	defer span.End()

	if strings.TrimSpace(astaID) == "" {
		return false, fmt.Errorf("%w: auction id is required", ErrInvalidInput)
	}
	if calciatoreID <= 0 {
		return false, fmt.Errorf("%w: calciatore id is required", ErrInvalidInput)
	}

	ok, err := s.astaRepo.RimuoviAssegnazione(ctx, astaID, calciatoreID)
	if err != nil {
		return false, fmt.Errorf("unassign calciatore: %w", err)
	}
	if ok {
		s.logger.InfoContext(ctx, "calciatore unassigned", "asta_id", astaID, "calciatore_id", calciatoreID)
		s.publish(ctx, EventCalciatoreUnassigned, map[string]any{
			"astaId": astaID, "calciatoreId": calciatoreID,
		})
	}
	return ok, nil
}

func (s *AstaService) UpdatePrezzo(ctx context.Context, input PrezzoInput) (bool, error) {
	if strings.TrimSpace(input.AstaID) == "" || strings.TrimSpace(input.TeamKey) == "" {
		return false, fmt.Errorf("%w: auction id and team key are required", ErrInvalidInput)
	}
	if input.CalciatoreID <= 0 {
		return false, fmt.Errorf("%w: calciatore id is required", ErrInvalidInput)
	}
	if input.Prezzo < 0 {
		return false, fmt.Errorf("%w: price cannot be negative", ErrInvalidInput)
	}

	ok, err := s.astaRepo.UpdatePrezzo(ctx, input.AstaID, input.TeamKey, input.CalciatoreID, input.Prezzo)
	if err != nil {
		return false, fmt.Errorf("update price: %w", err)
	}
	return ok, nil
}

// WatchAsta opens a live stream of the auction. The auction must exist at
// subscription time.
func (s *AstaService) WatchAsta(ctx context.Context, astaID string) (<-chan *asta.Asta, func(), error) {
	if _, err := s.GetAsta(ctx, astaID); err != nil {
		return nil, nil, err
	}
	stream, cancel, err := s.astaRepo.Watch(ctx, astaID)
	if err != nil {
		return nil, nil, fmt.Errorf("watch auction: %w", err)
	}
	return stream, cancel, nil
}

// AvailableCalciatori derives the auction's available pool: the catalog
// minus every player already on a roster.
func (s *AstaService) AvailableCalciatori(ctx context.Context, astaID string) ([]calciatore.Calciatore, error) {
	a, err := s.GetAsta(ctx, astaID)
	if err != nil {
		return nil, err
	}
	catalogo, err := s.catalogRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	assigned := make(map[int]struct{}, len(a.CalciatoriAssegnati))
	for _, c := range a.CalciatoriAssegnati {
		assigned[c.ID] = struct{}{}
	}
	out := make([]calciatore.Calciatore, 0, len(catalogo))
	for _, c := range catalogo {
		if _, taken := assigned[c.ID]; !taken {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *AstaService) authorizeAdmin(ctx context.Context, astaID, actorUserID string) (*asta.Asta, error) {
	actorUserID = strings.TrimSpace(actorUserID)
	if actorUserID == "" {
		return nil, fmt.Errorf("%w: actor user id is required", ErrInvalidInput)
	}
	a, err := s.GetAsta(ctx, astaID)
	if err != nil {
		return nil, err
	}
	if a.Amministratore != actorUserID {
		return nil, fmt.Errorf("%w: only the administrator can modify auction %s", ErrUnauthorized, a.ID)
	}
	return a, nil
}

func (s *AstaService) catalogPlayer(ctx context.Context, calciatoreID int) (calciatore.Calciatore, error) {
	catalogo, err := s.catalogRepo.List(ctx)
	if err != nil {
		return calciatore.Calciatore{}, fmt.Errorf("load catalog: %w", err)
	}
	for _, c := range catalogo {
		if c.ID == calciatoreID {
			return c, nil
		}
	}
	return calciatore.Calciatore{}, fmt.Errorf("%w: calciatore %d not in catalog", ErrNotFound, calciatoreID)
}

func (s *AstaService) publish(ctx context.Context, event string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed", "event", event, "error", err)
	}
}
