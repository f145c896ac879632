package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/connector"
)

// NewRetrieveArtifactDataHandler streams an artifact's bytes from the
// connector back to the data consumer, using the artifact title as the
// download filename.
func NewRetrieveArtifactDataHandler(logger zerolog.Logger, cc connector.Client, connectorURL string) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "retrieve-artifact-data")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		artifactID := chi.URLParam(r, "id")
		if artifactID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		iri := connectorURL + "/api/artifacts/" + artifactID

		artifact, err := cc.GetArtifact(ctx, iri)
		if err != nil {
			log.Error().Err(err).Msgf("failed to fetch artifact %s", iri)
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		stream, contentType, err := cc.GetData(ctx, iri)
		if err != nil {
			log.Error().Err(err).Msgf("failed to fetch data for artifact %s", iri)
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		defer stream.Close()

		if contentType != "" {
			w.Header().Add("Content-Type", contentType)
		}
		w.Header().Add("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Title))

		if _, err = io.Copy(w, stream); err != nil {
			log.Error().Err(err).Msg("failed to stream artifact data")
		}
	})
}
