package app

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/otel/attribute"

	"github.com/astalive/asta-api/internal/config"
	"github.com/astalive/asta-api/internal/infrastructure/account/introspect"
	"github.com/astalive/asta-api/internal/infrastructure/notify"
	"github.com/astalive/asta-api/internal/infrastructure/repository/treestore"
	"github.com/astalive/asta-api/internal/interfaces/httpapi"
	"github.com/astalive/asta-api/internal/platform/cache"
	idgen "github.com/astalive/asta-api/internal/platform/id"
	"github.com/astalive/asta-api/internal/platform/logging"
	"github.com/astalive/asta-api/internal/platform/resilience"
	"github.com/astalive/asta-api/internal/platform/treedb"
	"github.com/astalive/asta-api/internal/usecase"
)

// NewHTTPServer wires the full service graph and returns the HTTP server
// together with a cleanup function that releases the backing store.
func NewHTTPServer(cfg config.Config, logger *slog.Logger) (*http.Server, func() error, error) {
	store, err := newTreeStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	keys := idgen.NewRandomGenerator()
	platformLogger := logging.Default()

	astaRepo := treestore.NewAstaRepository(store, keys, platformLogger, treestore.AstaRepositoryConfig{
		JoinLockTTL: cfg.JoinLockTTL,
	})
	catalogRepo := treestore.NewCatalogRepository(store, platformLogger)

	var catalogCache *cache.Store
	if cfg.CacheEnabled {
		catalogCache = cache.NewStore(cfg.CacheTTL)
	}

	var events usecase.EventPublisher
	if cfg.WebhookEnabled {
		events = notify.NewWebhookPublisher(notify.WebhookPublisherConfig{
			EndpointURL: cfg.WebhookURL,
			Token:       cfg.WebhookToken,
			Timeout:     cfg.WebhookTimeout,
			CircuitBreaker: resilience.CircuitBreakerConfig{
				Enabled:          cfg.WebhookCircuitEnabled,
				FailureThreshold: cfg.WebhookCircuitFailureCount,
				OpenTimeout:      cfg.WebhookCircuitOpenTimeout,
				HalfOpenMaxReq:   cfg.WebhookCircuitHalfOpenMaxReq,
			},
		}, logger)
	}

	astaSvc := usecase.NewAstaService(astaRepo, catalogRepo, keys, events, logger)
	catalogSvc := usecase.NewCatalogService(catalogRepo, catalogCache, logger)
	exportSvc := usecase.NewExportService(astaRepo)

	verifier := introspect.NewClient(introspect.Config{
		BaseURL:        cfg.AuthBaseURL,
		IntrospectPath: cfg.AuthIntrospectPath,
		Timeout:        cfg.AuthTimeout,
		CacheTTL:       cfg.AuthCacheTTL,
		CacheMaxTokens: cfg.AuthCacheMaxTokens,
	}, logger)

	handler := httpapi.NewHandler(astaSvc, catalogSvc, exportSvc, logger)
	router := httpapi.NewRouter(handler, verifier, logger, cfg.SwaggerEnabled, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	if server.Addr == "" {
		_ = store.Close()
		return nil, nil, fmt.Errorf("http server addr cannot be empty")
	}

	return server, store.Close, nil
}

func newTreeStore(cfg config.Config) (treedb.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		dsn := normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)
		db, err := otelsqlx.Open("postgres", dsn,
			otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
			otelsql.WithDBName(dbNameFromURL(dsn)),
			otelsql.WithQueryFormatter(formatDBQueryForTrace),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return treedb.NewPostgres(db, dsn, logging.Default())
	default:
		return treedb.NewMemory(), nil
	}
}
