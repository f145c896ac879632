package reconcile

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/broker"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/catalogs"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/connector"
	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
)

var tracer = otel.Tracer("catalog-connector/svcs/reconcile")

// Defaults for the internal network address data consumers are rewritten
// to, so that the connector reaches the catalog over the container
// network instead of the public site URL.
const (
	DefaultInternalName = "ckan"
	DefaultInternalPort = "5000"
)

// Config carries the reconciler's deployment specific settings.
type Config struct {
	SiteURL      string
	InternalName string
	InternalPort string
	CatalogTitle string
}

// Reconciler keeps connector state in step with the catalog: one Offer
// per package, one Representation and Artifact per package resource,
// with idempotent create-or-update semantics keyed by stored IRIs.
type Reconciler interface {
	SyncPackage(ctx context.Context, pkgID string) (bool, error)
	DeletePackage(ctx context.Context, pkgID string) error
}

func New(logger zerolog.Logger, cc connector.Client, bs broker.Service, registry catalogs.Registry, cfg Config) Reconciler {
	if cfg.InternalName == "" {
		cfg.InternalName = DefaultInternalName
	}
	if cfg.InternalPort == "" {
		cfg.InternalPort = DefaultInternalPort
	}
	if cfg.CatalogTitle == "" {
		cfg.CatalogTitle = "catalog"
	}

	return &reconciler{
		connector: cc,
		broker:    bs,
		registry:  registry,
		cfg:       cfg,
		log:       logger,
	}
}

type reconciler struct {
	connector connector.Client
	broker    broker.Service
	registry  catalogs.Registry
	cfg       Config

	log zerolog.Logger
}

func (r *reconciler) SyncPackage(ctx context.Context, pkgID string) (bool, error) {
	var err error
	ctx, span := tracer.Start(ctx, "sync-package")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	pkg, err := r.registry.ShowPackage(ctx, pkgID)
	if err != nil {
		return false, err
	}

	return r.syncPackage(ctx, pkg)
}

func (r *reconciler) syncPackage(ctx context.Context, pkg *domain.CatalogPackage) (bool, error) {
	offer := domain.NewOffer(pkg)

	// A stored offer IRI may have been deleted behind our back. A
	// vanished offer does not imply the children are gone too, so each
	// stored child IRI is re-checked on its own.
	if offer.OfferIRI != "" && !r.connector.ResourceExists(ctx, offer.OfferIRI) {
		r.log.Warn().Msgf("offer %s no longer exists, recreating", offer.OfferIRI)
		offer.OfferIRI = ""
	}

	for i := range pkg.Resources {
		res := &pkg.Resources[i]
		if res.RepresentationIRI != "" && !r.connector.ResourceExists(ctx, res.RepresentationIRI) {
			res.RepresentationIRI = ""
		}
		if res.ArtifactIRI != "" && !r.connector.ResourceExists(ctx, res.ArtifactIRI) {
			res.ArtifactIRI = ""
		}
	}

	if offer.OfferIRI != "" {
		if err := r.connector.UpdateOfferedResource(ctx, offer.OfferIRI, offer); err != nil {
			// The offer vanished between the existence check and the
			// update. Partial updates are not rolled back; the operator
			// intervenes and re-syncs.
			r.log.Error().Err(err).Msgf("failed to update offer %s, aborting sync", offer.OfferIRI)
			return false, nil
		}
	} else {
		iri, err := r.connector.CreateOfferedResource(ctx, offer)
		if err != nil {
			return false, err
		}
		offer.OfferIRI = iri

		if offer.CatalogIRI == "" {
			catalogIRI, err := r.resolveCatalog(ctx)
			if err != nil {
				return false, err
			}
			offer.CatalogIRI = catalogIRI
		}

		if err := r.connector.AddResourceToCatalog(ctx, offer.CatalogIRI, offer.OfferIRI); err != nil {
			return false, err
		}
	}

	resources := make([]domain.PackageResource, len(pkg.Resources))
	copy(resources, pkg.Resources)

	if pkg.ServiceAccessURL != "" {
		resources = append(resources, domain.PackageResource{
			Name:      pkg.Name,
			URL:       pkg.ServiceAccessURL,
			AccessURL: pkg.ServiceAccessURL,
			Type:      "service_base_access_url",
		})
	}

	for i := range resources {
		if err := r.syncResource(ctx, offer, &resources[i]); err != nil {
			return false, err
		}
	}

	extras := domain.UpsertExtras(pkg.Extras,
		domain.Extra{Key: "catalog", Value: offer.CatalogIRI},
		domain.Extra{Key: "offers", Value: offer.OfferIRI},
	)

	if err := r.registry.PatchPackage(ctx, pkg.ID, map[string]any{"extras": extras}); err != nil {
		return false, err
	}

	// A package without a contract carries no usage policy and must not
	// be discoverable externally.
	if hasExtra(extras, "contract") {
		r.broker.SendResourceToBroker(ctx, offer.OfferIRI)
	} else {
		r.log.Info().Msgf("package %s has no contract yet, skipping broker announcement", pkg.ID)
	}

	return true, nil
}

func (r *reconciler) syncResource(ctx context.Context, offer *domain.Offer, res *domain.PackageResource) error {
	accessURL := res.AccessURL
	if accessURL == "" {
		accessURL = r.rewriteInternalURL(res.URL)
	}

	if res.RepresentationIRI != "" {
		if err := r.connector.UpdateRepresentation(ctx, res.RepresentationIRI, res); err != nil {
			return err
		}
	} else {
		iri, err := r.connector.CreateRepresentation(ctx, res)
		if err != nil {
			return err
		}
		if err := r.connector.AddRepresentationToResource(ctx, offer.OfferIRI, iri); err != nil {
			return err
		}
		res.RepresentationIRI = iri
	}

	if res.ArtifactIRI != "" {
		if err := r.connector.UpdateArtifact(ctx, res.ArtifactIRI, accessURL, res); err != nil {
			return err
		}
	} else {
		iri, err := r.connector.CreateArtifact(ctx, accessURL, res)
		if err != nil {
			return err
		}
		if err := r.connector.AddArtifactToRepresentation(ctx, res.RepresentationIRI, iri); err != nil {
			return err
		}
		res.ArtifactIRI = iri
	}

	if res.ID != "" {
		return r.registry.PatchResource(ctx, res.ID, map[string]string{
			"representation": res.RepresentationIRI,
			"artifact":       res.ArtifactIRI,
		})
	}

	return nil
}

// resolveCatalog returns the connector's first catalog, creating one if
// none exists yet.
func (r *reconciler) resolveCatalog(ctx context.Context) (string, error) {
	catalogs, err := r.connector.GetCatalogs(ctx)
	if err != nil {
		return "", err
	}

	if len(catalogs) > 0 {
		return catalogs[0], nil
	}

	return r.connector.CreateCatalog(ctx, r.cfg.CatalogTitle)
}

// rewriteInternalURL replaces the public site URL prefix with the
// internal container address, so the connector fetches artifact data
// over the container network.
func (r *reconciler) rewriteInternalURL(rawURL string) string {
	internal := "http://" + r.cfg.InternalName + ":" + r.cfg.InternalPort
	return strings.Replace(rawURL, strings.TrimSuffix(r.cfg.SiteURL, "/"), internal, 1)
}

// DeletePackage removes the package's connector resources. Deletion is
// fail fast: the first failing delete aborts and surfaces, leaving the
// remaining entities for the next attempt.
func (r *reconciler) DeletePackage(ctx context.Context, pkgID string) error {
	var err error
	ctx, span := tracer.Start(ctx, "delete-package")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	pkg, err := r.registry.ShowPackage(ctx, pkgID)
	if err != nil {
		return err
	}

	for _, res := range pkg.Resources {
		if res.RepresentationIRI != "" {
			if err = r.connector.DeleteRepresentation(ctx, res.RepresentationIRI); err != nil {
				return err
			}
		}
		if res.ArtifactIRI != "" {
			if err = r.connector.DeleteArtifact(ctx, res.ArtifactIRI); err != nil {
				return err
			}
		}
	}

	offer := domain.NewOffer(pkg)
	if offer.OfferIRI != "" {
		if err = r.connector.DeleteOfferedResource(ctx, offer.OfferIRI); err != nil {
			return err
		}
	}

	return nil
}

func hasExtra(extras []domain.Extra, key string) bool {
	for _, e := range extras {
		if e.Key == key {
			return true
		}
	}
	return false
}
