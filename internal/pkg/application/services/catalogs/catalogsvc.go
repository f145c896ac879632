package catalogs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
)

// Registry exposes the host catalog's action API to the sync engine. The
// catalog owns all package records; the engine only reads them and
// patches connector identifiers back.
type Registry interface {
	ShowPackage(ctx context.Context, id string) (*domain.CatalogPackage, error)
	PatchPackage(ctx context.Context, id string, fields map[string]any) error
	PatchResource(ctx context.Context, id string, fields map[string]string) error
	ShowOrganisation(ctx context.Context, id string) (*domain.Organisation, error)
}

// NewRegistry creates a registry talking to a CKAN style action API.
func NewRegistry(logger zerolog.Logger, siteURL, apiKey string) Registry {
	return &registry{
		siteURL: siteURL,
		apiKey:  apiKey,
		log:     logger,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
}

type registry struct {
	siteURL string
	apiKey  string

	log        zerolog.Logger
	httpClient http.Client
}

func (r *registry) action(ctx context.Context, name string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	requestURL := r.siteURL + "/api/3/action/" + name

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Add("Authorization", r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", requestURL, err)
	}
	defer resp.Body.Close()

	envelope := struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
	}{}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !envelope.Success {
		return fmt.Errorf("catalog action %s failed with status %d", name, resp.StatusCode)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal %s result: %w", name, err)
		}
	}

	return nil
}

// packageDTO matches the catalog's package_show output where it differs
// from the domain model.
type packageDTO struct {
	domain.CatalogPackage
	Tags []struct {
		Name string `json:"name"`
	} `json:"tags"`
}

func (r *registry) ShowPackage(ctx context.Context, id string) (*domain.CatalogPackage, error) {
	dto := packageDTO{}
	if err := r.action(ctx, "package_show", map[string]string{"id": id}, &dto); err != nil {
		return nil, err
	}

	pkg := dto.CatalogPackage
	pkg.Tags = make([]string, 0, len(dto.Tags))
	for _, t := range dto.Tags {
		pkg.Tags = append(pkg.Tags, t.Name)
	}

	return &pkg, nil
}

func (r *registry) PatchPackage(ctx context.Context, id string, fields map[string]any) error {
	payload := map[string]any{"id": id}
	for k, v := range fields {
		payload[k] = v
	}
	return r.action(ctx, "package_patch", payload, nil)
}

func (r *registry) PatchResource(ctx context.Context, id string, fields map[string]string) error {
	payload := map[string]any{"id": id}
	for k, v := range fields {
		payload[k] = v
	}
	return r.action(ctx, "resource_patch", payload, nil)
}

func (r *registry) ShowOrganisation(ctx context.Context, id string) (*domain.Organisation, error) {
	org := domain.Organisation{}
	if err := r.action(ctx, "organization_show", map[string]string{"id": id}, &org); err != nil {
		return nil, err
	}
	return &org, nil
}
