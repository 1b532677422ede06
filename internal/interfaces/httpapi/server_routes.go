package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler, swaggerEnabled bool) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
	if !swaggerEnabled {
		return
	}

	mux.HandleFunc("GET /openapi.yaml", handler.OpenAPI)
	mux.HandleFunc("GET /docs", handler.SwaggerUI)
	mux.HandleFunc("GET /docs/", handler.SwaggerUI)
}

// Catalog reads and single-auction lookups are public: the join screen shows
// auction details before the user authenticates.
func registerPublicRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/catalog", handler.ListCatalog)
	mux.HandleFunc("GET /v1/catalog/search", handler.SearchCatalog)
	mux.HandleFunc("GET /v1/catalog/ruolo/{codiceRuolo}", handler.ListCatalogByRuolo)
	mux.HandleFunc("GET /v1/catalog/{calciatoreID}", handler.GetCalciatore)

	mux.HandleFunc("GET /v1/aste/available", handler.ListAvailableAste)
	mux.HandleFunc("GET /v1/aste/code/{codice}", handler.GetAstaByCode)
}

func registerAuthorizedRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	registerAuthorizedAstaRoutes(mux, handler, verifier)
	registerAuthorizedCatalogRoutes(mux, handler, verifier)
}

func registerAuthorizedAstaRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	mux.Handle("POST /v1/aste", RequireAuth(verifier, http.HandlerFunc(handler.CreateAsta)))
	mux.Handle("POST /v1/aste/join", RequireAuth(verifier, http.HandlerFunc(handler.JoinAsta)))
	mux.Handle("GET /v1/aste/me", RequireAuth(verifier, http.HandlerFunc(handler.ListMyAste)))
	mux.Handle("GET /v1/aste/created", RequireAuth(verifier, http.HandlerFunc(handler.ListCreatedAste)))
	mux.Handle("DELETE /v1/aste/created", RequireAuth(verifier, http.HandlerFunc(handler.DeleteCreatedAste)))
	mux.Handle("GET /v1/aste/{astaID}", RequireAuth(verifier, http.HandlerFunc(handler.GetAsta)))
	mux.Handle("PUT /v1/aste/{astaID}", RequireAuth(verifier, http.HandlerFunc(handler.UpdateAsta)))
	mux.Handle("DELETE /v1/aste/{astaID}", RequireAuth(verifier, http.HandlerFunc(handler.DeleteAsta)))
	mux.Handle("POST /v1/aste/{astaID}/activate", RequireAuth(verifier, http.HandlerFunc(handler.ActivateAsta)))
	mux.Handle("POST /v1/aste/{astaID}/deactivate", RequireAuth(verifier, http.HandlerFunc(handler.DeactivateAsta)))
	mux.Handle("POST /v1/aste/{astaID}/assegnazioni", RequireAuth(verifier, http.HandlerFunc(handler.AssignCalciatore)))
	mux.Handle("DELETE /v1/aste/{astaID}/assegnazioni/{calciatoreID}", RequireAuth(verifier, http.HandlerFunc(handler.UnassignCalciatore)))
	mux.Handle("PUT /v1/aste/{astaID}/assegnazioni/{calciatoreID}/prezzo", RequireAuth(verifier, http.HandlerFunc(handler.UpdatePrezzo)))
	mux.Handle("GET /v1/aste/{astaID}/calciatori/disponibili", RequireAuth(verifier, http.HandlerFunc(handler.ListAvailableCalciatori)))
	mux.Handle("GET /v1/aste/{astaID}/watch", RequireAuth(verifier, http.HandlerFunc(handler.WatchAsta)))
	mux.Handle("GET /v1/aste/{astaID}/export.csv", RequireAuth(verifier, http.HandlerFunc(handler.ExportAstaCSV)))
}

func registerAuthorizedCatalogRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	mux.Handle("POST /v1/catalog/import", RequireAuth(verifier, http.HandlerFunc(handler.ImportCatalog)))
}
