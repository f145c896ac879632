package presentation

import (
	"compress/flate"
	"context"
	"net/http"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/broker"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/catalogs"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/connector"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/contracts"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/reconcile"
	"github.com/trusts-eu/catalog-connector/internal/pkg/infrastructure/repositories/database"
	"github.com/trusts-eu/catalog-connector/internal/pkg/presentation/handlers"
)

type API interface {
	Start(port string) error
}

type connectorAPI struct {
	router chi.Router
	log    zerolog.Logger
}

func NewAPI(ctx context.Context, r chi.Router, db database.Datastore, schema *contracts.TemplateSchema) API {
	return newConnectorAPI(ctx, r, db, schema)
}

func newConnectorAPI(ctx context.Context, r chi.Router, db database.Datastore, schema *contracts.TemplateSchema) *connectorAPI {
	log := logging.GetFromContext(ctx)

	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	}).Handler)

	// Enable gzip compression for our responses
	compressor := middleware.NewCompressor(
		flate.DefaultCompression,
		"text/csv", "application/json", "application/ld+json",
	)
	r.Use(compressor.Handler)
	r.Use(otelchi.Middleware("catalog-connector", otelchi.WithChiRoutes(r)))

	a := &connectorAPI{
		router: r,
		log:    log,
	}

	a.addConnectorHandlers(r, log, db, schema)
	a.addProbeHandlers(r)

	return a
}

func (a *connectorAPI) Start(port string) error {
	a.log.Info().Msgf("Starting catalog-connector on port:%s", port)
	return http.ListenAndServe(":"+port, a.router)
}

func (a *connectorAPI) addConnectorHandlers(r chi.Router, log zerolog.Logger, db database.Datastore, schema *contracts.TemplateSchema) {
	connectorURL := env.GetVariableOrDie(log, "CONNECTOR_URL", "data space connector URL")
	connectorUsername := env.GetVariableOrDie(log, "CONNECTOR_USERNAME", "data space connector username")
	connectorPassword := env.GetVariableOrDie(log, "CONNECTOR_PASSWORD", "data space connector password")
	brokerURL := env.GetVariableOrDie(log, "BROKER_URL", "metadata broker URL")
	siteURL := env.GetVariableOrDie(log, "CATALOG_SITE_URL", "catalog site URL")

	apiKey := os.Getenv("CATALOG_API_KEY")
	localNodeName := os.Getenv("LOCAL_NODE_NAME")

	internalName := env.GetVariableOrDefault(log, "INTERNAL_CONTAINER_NAME", reconcile.DefaultInternalName)
	internalPort := env.GetVariableOrDefault(log, "INTERNAL_CONTAINER_PORT", reconcile.DefaultInternalPort)
	catalogTitle := env.GetVariableOrDefault(log, "CONNECTOR_CATALOG_TITLE", "catalog")

	cc := connector.New(log, connectorURL, connectorUsername, connectorPassword)
	bs := broker.New(log, cc, brokerURL, localNodeName, siteURL, broker.DefaultAnnounceTTL)
	registry := catalogs.NewRegistry(log, siteURL, apiKey)

	rec := reconcile.New(log, cc, bs, registry, reconcile.Config{
		SiteURL:      siteURL,
		InternalName: internalName,
		InternalPort: internalPort,
		CatalogTitle: catalogTitle,
	})
	negotiator := contracts.NewNegotiator(log, cc, bs, registry, db, schema)

	r.Post("/api/sync/{id}", handlers.NewSyncPackageHandler(log, rec))
	r.Delete("/api/sync/{id}", handlers.NewDeletePackageHandler(log, rec))
	r.Get("/api/search", handlers.NewBrokerSearchHandler(log, bs))
	r.Post("/api/contracts/{id}", handlers.NewCreateContractHandler(log, negotiator))
	r.Post("/api/contracts/accept", handlers.NewAcceptContractOfferHandler(log, negotiator))
	r.Get("/api/artifacts/{id}/data", handlers.NewRetrieveArtifactDataHandler(log, cc, connectorURL))
}

func (a *connectorAPI) addProbeHandlers(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
