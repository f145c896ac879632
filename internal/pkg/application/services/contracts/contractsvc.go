package contracts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/jsonld"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/broker"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/catalogs"
	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/connector"
	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
	"github.com/trusts-eu/catalog-connector/internal/pkg/infrastructure/repositories/database"
	"github.com/trusts-eu/catalog-connector/internal/pkg/infrastructure/repositories/persistence"
)

var tracer = otel.Tracer("catalog-connector/svcs/contracts")

// Negotiator builds, publishes and accepts usage contracts.
type Negotiator interface {
	Validate(form map[string]string) (*domain.ContractRequest, map[string][]string, error)
	Publish(ctx context.Context, pkgID string, contract *domain.ContractRequest) error
	AcceptOffer(ctx context.Context, userID, providerURL, resourceID, contractID, brokerResourceID string) (*domain.Agreement, error)
}

func NewNegotiator(logger zerolog.Logger, cc connector.Client, bs broker.Service, registry catalogs.Registry, store database.Datastore, schema *TemplateSchema) Negotiator {
	return &negotiator{
		connector: cc,
		broker:    bs,
		registry:  registry,
		store:     store,
		schema:    schema,
		log:       logger,
	}
}

type negotiator struct {
	connector connector.Client
	broker    broker.Service
	registry  catalogs.Registry
	store     database.Datastore
	schema    *TemplateSchema

	log zerolog.Logger
}

func (n *negotiator) Validate(form map[string]string) (*domain.ContractRequest, map[string][]string, error) {
	return ValidateContract(form, n.schema)
}

// Publish creates the contract and its rules on the connector, links the
// contract to the package's offered resource and records the contract in
// the package extras before pushing the resource to the broker.
func (n *negotiator) Publish(ctx context.Context, pkgID string, contract *domain.ContractRequest) error {
	var err error
	ctx, span := tracer.Start(ctx, "publish-contract")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	pkg, err := n.registry.ShowPackage(ctx, pkgID)
	if err != nil {
		return fmt.Errorf("failed to fetch package %s: %w", pkgID, err)
	}

	offerIRI, ok := pkg.Extra("offers")
	if !ok || offerIRI == "" {
		err = fmt.Errorf("package %s has not been synced to the connector yet", pkgID)
		return err
	}

	contractIRI, err := n.connector.CreateContract(ctx, contract)
	if err != nil {
		return err
	}

	ruleIRIs := make([]string, 0, len(contract.Policies))
	for _, policy := range contract.Policies {
		tpl, ok := n.schema.Template(policy.Type)
		if !ok {
			err = fmt.Errorf("no template for policy type %s", policy.Type)
			return err
		}

		rule, renderErr := tpl.RenderRule(policy, contract)
		if renderErr != nil {
			err = renderErr
			return err
		}

		ruleIRI, createErr := n.connector.CreateRule(ctx, rule)
		if createErr != nil {
			err = createErr
			return err
		}

		ruleIRIs = append(ruleIRIs, ruleIRI)
	}

	if err = n.connector.AddRuleToContract(ctx, contractIRI, ruleIRIs); err != nil {
		return err
	}

	if err = n.connector.AddContractToResource(ctx, offerIRI, contractIRI); err != nil {
		return err
	}

	meta, err := json.Marshal(contract)
	if err != nil {
		return fmt.Errorf("failed to marshal contract metadata: %w", err)
	}

	extras := domain.UpsertExtras(pkg.Extras,
		domain.Extra{Key: "contract", Value: contractIRI},
		domain.Extra{Key: "contract_meta", Value: string(meta)},
	)

	if err = n.registry.PatchPackage(ctx, pkgID, map[string]any{"extras": extras}); err != nil {
		return err
	}

	n.broker.SendResourceToBroker(ctx, offerIRI)

	return nil
}

// AcceptOffer negotiates a remote contract offer. One contract may cover
// several artifacts, so the offer's permissions are multiplied over every
// artifact the broker lists for the resource, and the three parallel
// lists sent to the connector stay aligned by index.
func (n *negotiator) AcceptOffer(ctx context.Context, userID, providerURL, resourceID, contractID, brokerResourceID string) (*domain.Agreement, error) {
	var err error
	ctx, span := tracer.Start(ctx, "accept-contract-offer")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if providerURL == "" {
		parts := strings.Split(resourceID, "/")
		if len(parts) < 3 {
			err = fmt.Errorf("cannot derive provider url from resource id %s", resourceID)
			return nil, err
		}
		providerURL = strings.Join(parts[:3], "/")
	}

	recipient := providerURL + "/api/ids/data"

	rawContract, err := n.connector.DescriptionRequest(ctx, recipient, contractID)
	if err != nil {
		return nil, err
	}

	permissions, err := contractPermissions(rawContract)
	if err != nil {
		return nil, err
	}

	graph, err := n.broker.AskBrokerForDescription(ctx, brokerResourceID)
	if err != nil {
		return nil, err
	}

	artifacts := jsonld.ParseArtifacts(graph)
	if len(artifacts) == 0 {
		err = fmt.Errorf("broker lists no artifacts for resource %s", brokerResourceID)
		return nil, err
	}

	resourceIDs := make([]string, 0, len(artifacts))
	allPermissions := make([]map[string]any, 0, len(artifacts)*len(permissions))
	counter := 0

	for _, artifact := range artifacts {
		resourceIDs = append(resourceIDs, resourceID)

		for _, perm := range permissions {
			cp, copyErr := deepCopy(perm)
			if copyErr != nil {
				err = copyErr
				return nil, err
			}

			cp["ids:target"] = artifact
			if id, ok := cp["@id"].(string); ok {
				cp["@id"] = fmt.Sprintf("%s_%d", id, counter)
			}
			counter++

			allPermissions = append(allPermissions, cp)
		}
	}

	agreementIRI, err := n.connector.ContractRequest(ctx, recipient, resourceIDs, artifacts, allPermissions, false)
	if err != nil {
		return nil, err
	}

	resource, err := n.store.GetOrCreateResource(resourceID)
	if err != nil {
		return nil, err
	}

	agreement := &persistence.Agreement{ID: agreementIRI, ResourceID: resource.ID, UserID: userID}
	if err = n.store.StoreAgreement(agreement); err != nil {
		return nil, err
	}

	available, err := n.connector.GetArtifactsForAgreement(ctx, agreementIRI)
	if err != nil {
		return nil, err
	}

	if len(available) > 0 {
		n.log.Info().Msgf("agreement %s grants access to %d artifacts, first is %s", agreementIRI, len(available), available[0].IRI)
	}

	return &domain.Agreement{ID: agreement.ID, ResourceID: agreement.ResourceID, UserID: agreement.UserID}, nil
}

// contractPermissions extracts the permission list of a remote contract
// description, normalizing a single permission into a one-element list.
func contractPermissions(rawContract []byte) ([]map[string]any, error) {
	doc := map[string]any{}
	if err := json.Unmarshal(rawContract, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contract description: %w", err)
	}

	switch perms := doc["ids:permission"].(type) {
	case []any:
		result := make([]map[string]any, 0, len(perms))
		for _, p := range perms {
			if m, ok := p.(map[string]any); ok {
				result = append(result, m)
			}
		}
		if len(result) > 0 {
			return result, nil
		}
	case map[string]any:
		return []map[string]any{perms}, nil
	}

	return nil, fmt.Errorf("contract description carries no permissions")
}

func deepCopy(m map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	cp := map[string]any{}
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}

	return cp, nil
}
