package asta

import (
	"context"

	"github.com/astalive/asta-api/internal/domain/calciatore"
)

// Repository is the persistence contract for auctions. Mutating operations
// return (false, nil) for precondition failures (missing auction or team,
// already-assigned player, budget or cap violations) and a non-nil error
// only for infrastructure faults.
type Repository interface {
	Create(ctx context.Context, a *Asta) error
	GetByID(ctx context.Context, astaID string) (*Asta, bool, error)
	GetByCode(ctx context.Context, codiceInvito string) (*Asta, bool, error)
	ListAvailable(ctx context.Context) ([]*Asta, error)
	ListByUser(ctx context.Context, userID, email string) ([]*Asta, error)
	ListByAdmin(ctx context.Context, userID string) ([]*Asta, error)
	Update(ctx context.Context, a *Asta) error
	Delete(ctx context.Context, astaID string) error
	DeleteByAdmin(ctx context.Context, userID string) (int, error)

	Join(ctx context.Context, req JoinRequest) (JoinResult, error)
	AssegnaCalciatore(ctx context.Context, astaID string, c calciatore.Calciatore, teamKey string, prezzo float64) (bool, error)
	RimuoviAssegnazione(ctx context.Context, astaID string, calciatoreID int) (bool, error)
	UpdatePrezzo(ctx context.Context, astaID, teamKey string, calciatoreID int, nuovoPrezzo float64) (bool, error)

	// Watch streams the reconstructed auction on every store change; a nil
	// element means the auction was deleted.
	Watch(ctx context.Context, astaID string) (<-chan *Asta, func(), error)
}
