package handlers

import (
	"net/http"
	"net/url"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/reconcile"
)

// NewSyncPackageHandler pushes one catalog package to the connector.
func NewSyncPackageHandler(logger zerolog.Logger, rec reconcile.Reconciler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "sync-package")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		pkgID, _ := url.QueryUnescape(chi.URLParam(r, "id"))
		if pkgID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		ok, err := rec.SyncPackage(ctx, pkgID)
		if err != nil {
			log.Error().Err(err).Msgf("failed to sync package %s", pkgID)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if !ok {
			log.Error().Msgf("package %s could not be synced, offer vanished mid flight", pkgID)
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		w.WriteHeader(http.StatusOK)
	})
}

// NewDeletePackageHandler removes a package's connector resources.
func NewDeletePackageHandler(logger zerolog.Logger, rec reconcile.Reconciler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "delete-package")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		pkgID, _ := url.QueryUnescape(chi.URLParam(r, "id"))
		if pkgID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if err = rec.DeletePackage(ctx, pkgID); err != nil {
			log.Error().Err(err).Msgf("failed to delete package %s from connector", pkgID)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	})
}
