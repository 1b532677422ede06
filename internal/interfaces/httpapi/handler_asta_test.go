package httpapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sonic "github.com/bytedance/sonic"

	"github.com/astalive/asta-api/internal/domain/user"
	"github.com/astalive/asta-api/internal/infrastructure/repository/treestore"
	"github.com/astalive/asta-api/internal/platform/cache"
	"github.com/astalive/asta-api/internal/platform/logging"
	"github.com/astalive/asta-api/internal/platform/treedb"
	"github.com/astalive/asta-api/internal/usecase"
)

type stubVerifier struct{}

func (stubVerifier) VerifyAccessToken(_ context.Context, token string) (user.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return user.Principal{}, fmt.Errorf("%w: empty token", usecase.ErrUnauthorized)
	}
	return user.Principal{UserID: token, Email: token + "@example.com"}, nil
}

type fixedKeys struct{ n int }

func (k *fixedKeys) InviteCode() (string, error) { return "AB12CD", nil }
func (k *fixedKeys) TeamKey(_ time.Time) (string, error) {
	k.n++
	return fmt.Sprintf("team_%04d", k.n), nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	store := treedb.NewMemory()
	t.Cleanup(func() { _ = store.Close() })

	keys := &fixedKeys{}
	astaRepo := treestore.NewAstaRepository(store, keys, logging.NewNop(), treestore.AstaRepositoryConfig{})
	catalogRepo := treestore.NewCatalogRepository(store, logging.NewNop())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	astaService := usecase.NewAstaService(astaRepo, catalogRepo, keys, nil, logger)
	catalogService := usecase.NewCatalogService(catalogRepo, cache.NewStore(time.Minute), logger)
	exportService := usecase.NewExportService(astaRepo)

	handler := NewHandler(astaService, catalogService, exportService, logger)
	return NewRouter(handler, stubVerifier{}, logger, false, nil)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = strings.NewReader(string(encoded))
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func dataFromEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var envelope map[string]any
	if err := sonic.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	data, _ := envelope["data"].(map[string]any)
	return data
}

func TestRouter_CreateJoinAssignExportFlow(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/catalog/import", "admin-1", map[string]any{
		"records": []map[string]any{
			{"Id": 101, "Nome": "Meret", "Squadra": "Napoli", "R": "P"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog import: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/aste", "admin-1", map[string]any{
		"nome":                   "Lega Serale",
		"numeroPartecipanti":     4,
		"creditiPerPartecipante": 500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create auction: status %d body %s", rec.Code, rec.Body.String())
	}
	created := dataFromEnvelope(t, rec)
	astaID, _ := created["id"].(string)
	if astaID == "" {
		t.Fatalf("missing auction id in response: %s", rec.Body.String())
	}
	if created["codiceInvito"] != "AB12CD" {
		t.Fatalf("unexpected invite code: %v", created["codiceInvito"])
	}

	rec = doJSON(t, router, http.MethodPost, "/v1/aste/join", "user-1", map[string]any{
		"codiceInvito": "AB12CD",
		"nomeTeam":     "Rosa",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("join: status %d body %s", rec.Code, rec.Body.String())
	}
	join := dataFromEnvelope(t, rec)
	if join["success"] != true {
		t.Fatalf("join rejected: %s", rec.Body.String())
	}
	joined, _ := join["asta"].(map[string]any)
	teams, _ := joined["teams"].([]any)
	if len(teams) != 1 {
		t.Fatalf("expected one team after join: %s", rec.Body.String())
	}
	teamKey, _ := teams[0].(map[string]any)["key"].(string)

	rec = doJSON(t, router, http.MethodPost, "/v1/aste/"+astaID+"/assegnazioni", "admin-1", map[string]any{
		"teamKey":      teamKey,
		"calciatoreId": 101,
		"prezzo":       120,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: status %d body %s", rec.Code, rec.Body.String())
	}
	if dataFromEnvelope(t, rec)["assigned"] != true {
		t.Fatalf("assignment refused: %s", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/v1/aste/"+astaID+"/export.csv", "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/csv") {
		t.Fatalf("unexpected export content type: %s", got)
	}
	if !strings.Contains(rec.Body.String(), "Rosa,101,120") {
		t.Fatalf("roster line missing from export: %q", rec.Body.String())
	}
}

func TestRouter_AuthRequired(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/aste", "", map[string]any{
		"nome":                   "Lega",
		"numeroPartecipanti":     4,
		"creditiPerPartecipante": 500,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRouter_PublicRoutesSkipAuth(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/aste/available", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("available list should be public, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/v1/catalog", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("catalog should be public, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz failed: %d", rec.Code)
	}
}

func TestRouter_UnknownAuctionIs404(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/v1/aste/missing", "user-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_InvalidJoinPayload(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/v1/aste/join", "user-1", map[string]any{
		"codiceInvito": "TOOLONGCODE",
		"nomeTeam":     "Rosa",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
	}
}
