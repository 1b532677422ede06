package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/astalive/asta-api/internal/domain/calciatore"
	"github.com/astalive/asta-api/internal/platform/cache"
)

const catalogCacheKey = "catalog:list"

// ImportReport summarizes a catalog upload: how many rows made it in and
// why the others were dropped.
type ImportReport struct {
	Imported int
	Skipped  []SkippedRecord
}

type SkippedRecord struct {
	Row    int
	Reason string
}

// CatalogService manages the shared player catalog. Reads go through a TTL
// cache because every connected client polls the same list.
type CatalogService struct {
	repo   calciatore.CatalogRepository
	cache  *cache.Store
	logger *slog.Logger
}

func NewCatalogService(repo calciatore.CatalogRepository, cacheStore *cache.Store, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{repo: repo, cache: cacheStore, logger: logger}
}

// ImportRecords ingests parsed listone rows, replacing the whole catalog.
// Malformed rows are skipped and reported, never fatal; an upload with zero
// valid rows is rejected outright.
func (s *CatalogService) ImportRecords(ctx context.Context, records []map[string]any) (ImportReport, error) {
	ctx, span := startUsecaseSpan(ctx, "CatalogService.ImportRecords")
	defer span.End()

	if len(records) == 0 {
		return ImportReport{}, fmt.Errorf("%w: no records to import", ErrInvalidInput)
	}

	report := ImportReport{}
	players := make([]calciatore.Calciatore, 0, len(records))
	seen := make(map[int]int, len(records))
	for i, rec := range records {
		c, err := calciatore.FromRecord(rec)
		if err != nil {
			report.Skipped = append(report.Skipped, SkippedRecord{Row: i, Reason: err.Error()})
			continue
		}
		if prev, dup := seen[c.ID]; dup {
			report.Skipped = append(report.Skipped, SkippedRecord{
				Row:    i,
				Reason: fmt.Sprintf("duplicate id %d (first seen at row %d)", c.ID, prev),
			})
			continue
		}
		seen[c.ID] = i
		players = append(players, c)
	}
	if len(players) == 0 {
		return report, fmt.Errorf("%w: every record was malformed", ErrInvalidInput)
	}

	if err := s.repo.Save(ctx, players); err != nil {
		return report, fmt.Errorf("save catalog: %w", err)
	}
	report.Imported = len(players)

	if s.cache != nil {
		s.cache.Delete(ctx, catalogCacheKey)
	}
	s.logger.InfoContext(ctx, "catalog imported",
		"imported", report.Imported, "skipped", len(report.Skipped))
	return report, nil
}

func (s *CatalogService) List(ctx context.Context) ([]calciatore.Calciatore, error) {
	if s.cache == nil {
		return s.repo.List(ctx)
	}
	value, err := s.cache.GetOrLoad(ctx, catalogCacheKey, func(ctx context.Context) (any, error) {
		return s.repo.List(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	players, ok := value.([]calciatore.Calciatore)
	if !ok {
		return nil, fmt.Errorf("unexpected catalog cache entry type %T", value)
	}
	return players, nil
}

// Search matches on player name or club, case-insensitively.
func (s *CatalogService) Search(ctx context.Context, query string) ([]calciatore.Calciatore, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidInput)
	}

	players, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]calciatore.Calciatore, 0)
	for _, c := range players {
		if strings.Contains(strings.ToLower(c.Nome), query) ||
			strings.Contains(strings.ToLower(c.Squadra), query) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *CatalogService) ByRuolo(ctx context.Context, codiceRuolo string) ([]calciatore.Calciatore, error) {
	codiceRuolo = strings.ToUpper(strings.TrimSpace(codiceRuolo))
	if !calciatore.ValidCodice(codiceRuolo) {
		return nil, fmt.Errorf("%w: unknown role code %q", ErrInvalidInput, codiceRuolo)
	}

	players, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]calciatore.Calciatore, 0)
	for _, c := range players {
		if c.CodiceRuolo == codiceRuolo {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuotazioneAttuale > out[j].QuotazioneAttuale })
	return out, nil
}

func (s *CatalogService) ByID(ctx context.Context, id int) (calciatore.Calciatore, error) {
	if id <= 0 {
		return calciatore.Calciatore{}, fmt.Errorf("%w: calciatore id is required", ErrInvalidInput)
	}
	players, err := s.List(ctx)
	if err != nil {
		return calciatore.Calciatore{}, err
	}
	for _, c := range players {
		if c.ID == id {
			return c, nil
		}
	}
	return calciatore.Calciatore{}, fmt.Errorf("%w: calciatore %d", ErrNotFound, id)
}
