package treestore

import (
	"context"
	"sort"
	"strings"

	crerr "github.com/cockroachdb/errors"

	"github.com/astalive/asta-api/internal/domain/calciatore"
	"github.com/astalive/asta-api/internal/platform/logging"
)

// CatalogRepository persists the shared player catalog under /catalog, one
// child per player keyed calc_<id>.
type CatalogRepository struct {
	store  storeReaderWriter
	logger *logging.Logger
}

type storeReaderWriter interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
}

func NewCatalogRepository(store storeReaderWriter, logger *logging.Logger) *CatalogRepository {
	if logger == nil {
		logger = logging.Default()
	}
	return &CatalogRepository{store: store, logger: logger}
}

var _ calciatore.CatalogRepository = (*CatalogRepository)(nil)

// Save replaces the whole catalog. Uploads are full listone refreshes, so a
// wholesale swap matches the producer's behavior.
func (r *CatalogRepository) Save(ctx context.Context, players []calciatore.Calciatore) error {
	value := make(map[string]any, len(players))
	for i := range players {
		c := players[i]
		if err := c.Validate(); err != nil {
			return crerr.Wrapf(err, "catalog entry %d", c.ID)
		}
		value[calcKey(c.ID)] = calcValue(c)
	}
	if err := r.store.Set(ctx, rootCatalog, value); err != nil {
		return crerr.Wrap(err, "save catalog")
	}
	return nil
}

func (r *CatalogRepository) List(ctx context.Context) ([]calciatore.Calciatore, error) {
	v, err := r.store.Get(ctx, rootCatalog)
	if err != nil {
		return nil, crerr.Wrap(err, "load catalog")
	}
	if v == nil {
		return nil, nil
	}
	nodes, ok := v.(map[string]any)
	if !ok {
		return nil, crerr.Newf("catalog root has unexpected type %T", v)
	}

	out := make([]calciatore.Calciatore, 0, len(nodes))
	for _, key := range sortedKeys(nodes) {
		cn, err := decodeInto[calcNode](nodes[key])
		if err != nil {
			r.logger.WarnContext(ctx, "skipping undecodable catalog entry", "key", key, "error", err)
			continue
		}
		if cn.ID <= 0 || strings.TrimSpace(cn.Nome) == "" || strings.TrimSpace(cn.CodiceRuolo) == "" {
			r.logger.WarnContext(ctx, "skipping incomplete catalog entry", "key", key)
			continue
		}
		out = append(out, cn.toDomain())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
