package treestore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	crerr "github.com/cockroachdb/errors"

	"github.com/astalive/asta-api/internal/domain/asta"
	"github.com/astalive/asta-api/internal/domain/calciatore"
	"github.com/astalive/asta-api/internal/platform/logging"
	"github.com/astalive/asta-api/internal/platform/treedb"
)

type teamKeyGenerator interface {
	TeamKey(now time.Time) (string, error)
}

type AstaRepositoryConfig struct {
	JoinLockTTL time.Duration
	Now         func() time.Time
}

// AstaRepository maps the auction aggregate onto the /aste subtree. Reads
// reconstruct the full object graph; mutations write only the paths they
// change, in one atomic multi-path update.
type AstaRepository struct {
	store  treedb.Store
	keys   teamKeyGenerator
	logger *logging.Logger
	now    func() time.Time
	joins  *joinLocks

	// joinWriteMu serializes the check-and-write section of Join so racing
	// joins from different users cannot overshoot the capacity; the
	// per-user in-flight set only covers repeated attempts by one user.
	joinWriteMu sync.Mutex
}

func NewAstaRepository(store treedb.Store, keys teamKeyGenerator, logger *logging.Logger, cfg AstaRepositoryConfig) *AstaRepository {
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &AstaRepository{
		store:  store,
		keys:   keys,
		logger: logger,
		now:    now,
		joins:  newJoinLocks(cfg.JoinLockTTL, now),
	}
}

var _ asta.Repository = (*AstaRepository)(nil)

func (r *AstaRepository) Create(ctx context.Context, a *asta.Asta) error {
	if a == nil {
		return crerr.New("auction is required")
	}
	if a.ID == "" {
		a.ID = r.store.PushID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	if err := r.ensureTeamKeys(a); err != nil {
		return err
	}

	if err := r.store.Set(ctx, astaPath(a.ID), astaValue(a)); err != nil {
		return crerr.Wrapf(err, "create auction %s", a.ID)
	}
	return nil
}

func (r *AstaRepository) GetByID(ctx context.Context, astaID string) (*asta.Asta, bool, error) {
	astaID = strings.TrimSpace(astaID)
	if astaID == "" {
		return nil, false, nil
	}

	v, err := r.store.Get(ctx, astaPath(astaID))
	if err != nil {
		return nil, false, crerr.Wrapf(err, "load auction %s", astaID)
	}
	if v == nil {
		return nil, false, nil
	}

	a, skipped, err := decodeAsta(astaID, v)
	if err != nil {
		return nil, false, err
	}
	r.logSkipped(ctx, astaID, skipped)
	return a, true, nil
}

func (r *AstaRepository) GetByCode(ctx context.Context, codiceInvito string) (*asta.Asta, bool, error) {
	code := strings.ToUpper(strings.TrimSpace(codiceInvito))
	if code == "" {
		return nil, false, nil
	}

	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, a := range all {
		if strings.EqualFold(a.CodiceInvito, code) {
			return a, true, nil
		}
	}
	return nil, false, nil
}

func (r *AstaRepository) ListAvailable(ctx context.Context) ([]*asta.Asta, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*asta.Asta, 0, len(all))
	for _, a := range all {
		if a.CanJoin() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *AstaRepository) ListByUser(ctx context.Context, userID, email string) ([]*asta.Asta, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*asta.Asta, 0, len(all))
	for _, a := range all {
		if a.TeamByUser(userID, email) != nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *AstaRepository) ListByAdmin(ctx context.Context, userID string) ([]*asta.Asta, error) {
	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*asta.Asta, 0, len(all))
	for _, a := range all {
		if a.Amministratore == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *AstaRepository) Update(ctx context.Context, a *asta.Asta) error {
	if a == nil || a.ID == "" {
		return crerr.New("auction id is required")
	}
	if err := r.ensureTeamKeys(a); err != nil {
		return err
	}
	if err := r.store.Set(ctx, astaPath(a.ID), astaValue(a)); err != nil {
		return crerr.Wrapf(err, "update auction %s", a.ID)
	}
	return nil
}

func (r *AstaRepository) Delete(ctx context.Context, astaID string) error {
	astaID = strings.TrimSpace(astaID)
	if astaID == "" {
		return crerr.New("auction id is required")
	}
	if err := r.store.Delete(ctx, astaPath(astaID)); err != nil {
		return crerr.Wrapf(err, "delete auction %s", astaID)
	}
	return nil
}

// DeleteByAdmin removes every auction administered by userID in one atomic
// update. It backs the account-removal cascade.
func (r *AstaRepository) DeleteByAdmin(ctx context.Context, userID string) (int, error) {
	owned, err := r.ListByAdmin(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(owned) == 0 {
		return 0, nil
	}

	updates := make(map[string]any, len(owned))
	for _, a := range owned {
		updates[astaPath(a.ID)] = nil
	}
	if err := r.store.Update(ctx, updates); err != nil {
		return 0, crerr.Wrapf(err, "cascade delete auctions of %s", userID)
	}
	return len(owned), nil
}

// AssegnaCalciatore validates the assignment against a fresh load and, on
// success, writes exactly two paths: the debited team budget and the new
// roster entry.
func (r *AstaRepository) AssegnaCalciatore(ctx context.Context, astaID string, c calciatore.Calciatore, teamKey string, prezzo float64) (bool, error) {
	a, found, err := r.GetByID(ctx, astaID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	team := a.TeamByKey(teamKey)
	if team == nil {
		return false, nil
	}
	if assigned := findRosterEntry(a, c.ID); assigned != nil {
		return false, nil
	}

	entry := c
	if !a.AssegnaCalciatore(&entry, team, prezzo) {
		return false, nil
	}

	updates := map[string]any{
		teamPath(astaID, teamKey) + "/budget": team.Budget,
		calcPath(astaID, teamKey, entry.ID):   calcValue(entry),
	}
	if err := r.store.Update(ctx, updates); err != nil {
		return false, crerr.Wrapf(err, "assign calciatore %d in auction %s", c.ID, astaID)
	}
	return true, nil
}

// RimuoviAssegnazione finds the owning team by scanning rosters for the
// player id, then deletes the roster entry and refunds the budget in one
// update.
func (r *AstaRepository) RimuoviAssegnazione(ctx context.Context, astaID string, calciatoreID int) (bool, error) {
	a, found, err := r.GetByID(ctx, astaID)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	var owner *asta.Team
	var entry calciatore.Calciatore
	for _, t := range a.Teams {
		for _, c := range t.Calciatori {
			if c.ID == calciatoreID {
				owner = t
				entry = c
				break
			}
		}
		if owner != nil {
			break
		}
	}
	if owner == nil {
		return false, nil
	}

	updates := map[string]any{
		teamPath(astaID, owner.Key) + "/budget":    owner.Budget + entry.PrezzoAcquisto,
		calcPath(astaID, owner.Key, calciatoreID): nil,
	}
	if err := r.store.Update(ctx, updates); err != nil {
		return false, crerr.Wrapf(err, "unassign calciatore %d in auction %s", calciatoreID, astaID)
	}
	return true, nil
}

// UpdatePrezzo adjusts a recorded purchase price, debiting or refunding the
// budget by the delta. It reads only the team subtree it touches.
func (r *AstaRepository) UpdatePrezzo(ctx context.Context, astaID, teamKey string, calciatoreID int, nuovoPrezzo float64) (bool, error) {
	v, err := r.store.Get(ctx, teamPath(astaID, teamKey))
	if err != nil {
		return false, crerr.Wrapf(err, "load team %s of auction %s", teamKey, astaID)
	}
	if v == nil {
		return false, nil
	}
	tn, err := decodeInto[teamNode](v)
	if err != nil {
		return false, crerr.Wrapf(err, "malformed team node %s", teamPath(astaID, teamKey))
	}

	rawEntry, ok := tn.Calciatori[calcKey(calciatoreID)]
	if !ok {
		return false, nil
	}
	cn, err := decodeInto[calcNode](rawEntry)
	if err != nil {
		return false, crerr.Wrapf(err, "malformed player entry %s", calcPath(astaID, teamKey, calciatoreID))
	}

	delta := nuovoPrezzo - cn.PrezzoAcquisto
	if delta > tn.Budget {
		return false, nil
	}

	updates := map[string]any{
		teamPath(astaID, teamKey) + "/budget":                      tn.Budget - delta,
		calcPath(astaID, teamKey, calciatoreID) + "/prezzoAcquisto": nuovoPrezzo,
	}
	if err := r.store.Update(ctx, updates); err != nil {
		return false, crerr.Wrapf(err, "update price of calciatore %d in auction %s", calciatoreID, astaID)
	}
	return true, nil
}

// Join runs the join coordinator: in-flight lock, invite-code lookup, fresh
// re-read of the teams subtree for the authoritative capacity, ownership and
// name checks, then one atomic write of the new team plus the incremented
// participant counter.
func (r *AstaRepository) Join(ctx context.Context, req asta.JoinRequest) (asta.JoinResult, error) {
	code := strings.ToUpper(strings.TrimSpace(req.CodiceInvito))
	lockKey := code + "|" + req.UserID

	token, ok := r.joins.acquire(lockKey)
	if !ok {
		return asta.JoinResult{Message: asta.JoinMsgBusy}, nil
	}
	defer r.joins.release(lockKey, token)

	r.joinWriteMu.Lock()
	defer r.joinWriteMu.Unlock()

	a, found, err := r.GetByCode(ctx, code)
	if err != nil {
		return asta.JoinResult{}, err
	}
	if !found {
		return asta.JoinResult{Message: asta.JoinMsgInvalidCode}, nil
	}
	if !a.IsAttiva {
		return asta.JoinResult{Message: asta.JoinMsgNotAvailable}, nil
	}

	// the lookup result may be stale: the checks below run on a raw re-read
	rawTeams, err := r.store.Get(ctx, teamsPath(a.ID))
	if err != nil {
		return asta.JoinResult{}, crerr.Wrapf(err, "load teams of auction %s", a.ID)
	}
	teamCount := 0
	var nodes map[string]any
	if rawTeams != nil {
		nodes, _ = rawTeams.(map[string]any)
		teamCount = len(nodes)
	}

	decoded := make(map[string]teamNode, len(nodes))
	for _, key := range sortedKeys(nodes) {
		tn, err := decodeInto[teamNode](nodes[key])
		if err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable team during join checks",
				"path", teamPath(a.ID, key), "error", err)
			continue
		}
		decoded[key] = tn
	}

	// ownership first: a returning participant gets an idempotent success
	// even when their proposed name now collides with someone else's team
	for _, tn := range decoded {
		owned := (tn.UserID != "" && req.UserID != "" && tn.UserID == req.UserID) ||
			(tn.UserEmail != "" && req.UserEmail != "" && strings.EqualFold(tn.UserEmail, req.UserEmail))
		if owned {
			return asta.JoinResult{Success: true, Message: asta.JoinMsgSuccess, Asta: a}, nil
		}
	}
	for _, tn := range decoded {
		if strings.EqualFold(strings.TrimSpace(tn.Nome), strings.TrimSpace(req.NomeTeam)) {
			return asta.JoinResult{Message: asta.JoinMsgNameTaken}, nil
		}
	}

	if teamCount >= a.NumeroPartecipanti {
		return asta.JoinResult{Message: asta.JoinMsgNotAvailable}, nil
	}

	teamKey, err := r.keys.TeamKey(r.now())
	if err != nil {
		return asta.JoinResult{}, crerr.Wrap(err, "generate team key")
	}
	team := asta.NewTeam(req.NomeTeam, a.CreditiPerPartecipante, req.UserID, req.UserEmail)
	team.Key = teamKey

	nuovoConteggio := a.PartecipantiIscritti + 1
	if teamCount == 0 {
		nuovoConteggio = 1
	}

	updates := map[string]any{
		teamPath(a.ID, teamKey):                      teamValue(team),
		astaPath(a.ID) + "/partecipantiIscritti":     nuovoConteggio,
	}
	if err := r.store.Update(ctx, updates); err != nil {
		return asta.JoinResult{}, crerr.Wrapf(err, "join auction %s", a.ID)
	}

	joined, found, err := r.GetByID(ctx, a.ID)
	if err != nil || !found {
		// the write landed; fall back to the pre-join snapshot
		joined = a
	}
	return asta.JoinResult{Success: true, Message: asta.JoinMsgSuccess, Asta: joined}, nil
}

// Watch streams the reconstructed auction on every change of its subtree.
// Slow consumers observe the latest state; intermediate ones may coalesce.
func (r *AstaRepository) Watch(ctx context.Context, astaID string) (<-chan *asta.Asta, func(), error) {
	snaps, cancel, err := r.store.Watch(ctx, astaPath(astaID))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan *asta.Asta, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			if snap.Value == nil {
				deliver(out, nil)
				continue
			}
			a, skipped, err := decodeAsta(astaID, snap.Value)
			if err != nil {
				r.logger.Warn("dropping undecodable auction snapshot", "asta_id", astaID, "error", err)
				continue
			}
			r.logSkipped(ctx, astaID, skipped)
			deliver(out, a)
		}
	}()
	return out, cancel, nil
}

func deliver(ch chan *asta.Asta, a *asta.Asta) {
	select {
	case ch <- a:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- a:
		default:
		}
	}
}

// loadAll decodes every auction under /aste, dropping undecodable children
// with a log line instead of failing the listing.
func (r *AstaRepository) loadAll(ctx context.Context) ([]*asta.Asta, error) {
	v, err := r.store.Get(ctx, rootAste)
	if err != nil {
		return nil, crerr.Wrap(err, "load auctions")
	}
	if v == nil {
		return nil, nil
	}
	nodes, ok := v.(map[string]any)
	if !ok {
		return nil, crerr.Newf("auction root has unexpected type %T", v)
	}

	out := make([]*asta.Asta, 0, len(nodes))
	for _, astaID := range sortedKeys(nodes) {
		a, skipped, err := decodeAsta(astaID, nodes[astaID])
		if err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable auction", "asta_id", astaID, "error", err)
			continue
		}
		r.logSkipped(ctx, astaID, skipped)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *AstaRepository) ensureTeamKeys(a *asta.Asta) error {
	for _, t := range a.Teams {
		if t.Key != "" {
			continue
		}
		key, err := r.keys.TeamKey(r.now())
		if err != nil {
			return crerr.Wrap(err, "generate team key")
		}
		t.Key = key
	}
	return nil
}

func (r *AstaRepository) logSkipped(ctx context.Context, astaID string, skipped []SkippedEntry) {
	for _, s := range skipped {
		r.logger.WarnContext(ctx, "skipped malformed tree entry during reconstruction",
			"asta_id", astaID, "path", s.Path, "reason", s.Reason)
	}
}

func findRosterEntry(a *asta.Asta, calciatoreID int) *asta.Team {
	for _, t := range a.Teams {
		for _, c := range t.Calciatori {
			if c.ID == calciatoreID {
				return t
			}
		}
	}
	return nil
}
