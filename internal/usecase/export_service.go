package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/valyala/bytebufferpool"

	"github.com/astalive/asta-api/internal/domain/asta"
)

// teamSeparator opens each team block in the exported file. League tools
// that re-import rosters key on this exact marker.
const teamSeparator = "$,$,$"

// ExportService renders auction rosters in the CSV layout expected by
// external league-management tools: a separator line, then one
// team,playerId,price line per signed player, role-ordered.
type ExportService struct {
	astaRepo asta.Repository
}

func NewExportService(astaRepo asta.Repository) *ExportService {
	return &ExportService{astaRepo: astaRepo}
}

func (s *ExportService) RosterCSV(ctx context.Context, astaID string) ([]byte, error) {
	ctx, span := startUsecaseSpan(ctx, "ExportService.RosterCSV")
	defer span.End()

	astaID = strings.TrimSpace(astaID)
	if astaID == "" {
		return nil, fmt.Errorf("%w: auction id is required", ErrInvalidInput)
	}
	a, found, err := s.astaRepo.GetByID(ctx, astaID)
	if err != nil {
		return nil, fmt.Errorf("load auction: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: auction %s", ErrNotFound, astaID)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, team := range a.Teams {
		_, _ = buf.WriteString(teamSeparator)
		_, _ = buf.WriteString("\n")
		for _, c := range team.TuttiGiocatori() {
			_, _ = buf.WriteString(team.Nome)
			_, _ = buf.WriteString(",")
			_, _ = buf.WriteString(strconv.Itoa(c.ID))
			_, _ = buf.WriteString(",")
			_, _ = buf.WriteString(strconv.FormatFloat(c.PrezzoAcquisto, 'f', -1, 64))
			_, _ = buf.WriteString("\n")
		}
	}

	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}
