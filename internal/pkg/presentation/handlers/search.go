package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/broker"
	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
)

var tracer = otel.Tracer("catalog-connector/api")

// NewBrokerSearchHandler merges broker results into the catalog's search
// output. A broker failure degrades to an empty result list: a search
// must never fail a page load because the broker is down.
func NewBrokerSearchHandler(logger zerolog.Logger, svc broker.Service) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "broker-search")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		q := r.URL.Query().Get("q")
		fq := r.URL.Query()["fq"]
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		records, err := svc.Search(ctx, q, fq, offset)
		if err != nil {
			log.Error().Err(err).Msg("broker search failed, returning empty result")
			records = []domain.CatalogRecord{}
			err = nil
		}

		body, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal search results")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.Write(body)
	})
}
