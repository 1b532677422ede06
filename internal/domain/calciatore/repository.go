package calciatore

import "context"

// CatalogRepository persists the shared player catalog.
type CatalogRepository interface {
	Save(ctx context.Context, players []Calciatore) error
	List(ctx context.Context) ([]Calciatore, error)
}
