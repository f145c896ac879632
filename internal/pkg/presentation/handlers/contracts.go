package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/contracts"
)

// NewCreateContractHandler validates contract form input and publishes
// the contract to the connector. Validation problems are returned as a
// field-keyed error map with status 400.
func NewCreateContractHandler(logger zerolog.Logger, negotiator contracts.Negotiator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "create-contract")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		if err = r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		form := map[string]string{}
		for key, values := range r.PostForm {
			if len(values) > 0 {
				form[key] = values[0]
			}
		}
		form["pkg_id"], _ = url.QueryUnescape(chi.URLParam(r, "id"))

		contract, validationErrs, err := negotiator.Validate(form)
		if err != nil {
			log.Error().Err(err).Msg("malformed contract form")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if len(validationErrs) > 0 {
			body, _ := json.Marshal(map[string]any{"errors": validationErrs})
			w.Header().Add("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write(body)
			return
		}

		if err = negotiator.Publish(ctx, contract.PkgID, contract); err != nil {
			log.Error().Err(err).Msgf("failed to publish contract for package %s", contract.PkgID)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		body, _ := json.Marshal(contract)
		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	})
}

type acceptOfferRequest struct {
	UserID            string `json:"user_id"`
	ProviderURL       string `json:"provider_url"`
	ResourceID        string `json:"resourceId"`
	ContractID        string `json:"contractId"`
	BrokerResourceURI string `json:"brokerResourceUri"`
}

// NewAcceptContractOfferHandler runs the accept-offer negotiation
// workflow. Any I/O failure aborts with status 500; the call is not
// retried automatically.
func NewAcceptContractOfferHandler(logger zerolog.Logger, negotiator contracts.Negotiator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		ctx, span := tracer.Start(r.Context(), "accept-contract-offer")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		_, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logger, ctx)

		req := acceptOfferRequest{}
		if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if req.ResourceID == "" || req.ContractID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		agreement, err := negotiator.AcceptOffer(ctx, req.UserID, req.ProviderURL, req.ResourceID, req.ContractID, req.BrokerResourceURI)
		if err != nil {
			log.Error().Err(err).Msgf("failed to accept contract offer %s", req.ContractID)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		body, _ := json.Marshal(agreement)
		w.Header().Add("Content-Type", "application/json")
		w.Write(body)
	})
}
