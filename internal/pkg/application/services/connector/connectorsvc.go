package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
)

var tracer = otel.Tracer("catalog-connector/svcs/connector")

// Error is returned for every non-2xx response from the dataspace
// connector, carrying the offending URL for diagnosis.
type Error struct {
	StatusCode int
	Body       string
	URL        string
}

func (e *Error) Error() string {
	return fmt.Sprintf("connector request to %s failed with status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Artifact is the connector's metadata view of one artifact.
type Artifact struct {
	IRI         string
	Title       string
	Description string
}

// Client wraps the dataspace connector REST surface. Every mutating call
// is idempotent by IRI: callers check ResourceExists before choosing the
// create endpoint over the update endpoint.
type Client interface {
	CreateCatalog(ctx context.Context, title string) (string, error)
	GetCatalogs(ctx context.Context) ([]string, error)

	CreateOfferedResource(ctx context.Context, offer *domain.Offer) (string, error)
	UpdateOfferedResource(ctx context.Context, iri string, offer *domain.Offer) error
	CreateRepresentation(ctx context.Context, res *domain.PackageResource) (string, error)
	UpdateRepresentation(ctx context.Context, iri string, res *domain.PackageResource) error
	CreateArtifact(ctx context.Context, accessURL string, res *domain.PackageResource) (string, error)
	UpdateArtifact(ctx context.Context, iri string, accessURL string, res *domain.PackageResource) error
	CreateContract(ctx context.Context, contract *domain.ContractRequest) (string, error)
	CreateRule(ctx context.Context, rule json.RawMessage) (string, error)

	AddRuleToContract(ctx context.Context, contractIRI string, ruleIRIs []string) error
	AddContractToResource(ctx context.Context, resourceIRI, contractIRI string) error
	AddResourceToCatalog(ctx context.Context, catalogIRI, resourceIRI string) error
	AddRepresentationToResource(ctx context.Context, resourceIRI, representationIRI string) error
	AddArtifactToRepresentation(ctx context.Context, representationIRI, artifactIRI string) error

	ResourceExists(ctx context.Context, iri string) bool

	DeleteOfferedResource(ctx context.Context, iri string) error
	DeleteRepresentation(ctx context.Context, iri string) error
	DeleteArtifact(ctx context.Context, iri string) error

	GetArtifact(ctx context.Context, iri string) (*Artifact, error)
	GetData(ctx context.Context, iri string) (io.ReadCloser, string, error)
	GetArtifactsForAgreement(ctx context.Context, agreementIRI string) ([]Artifact, error)

	DescriptionRequest(ctx context.Context, recipient, elementID string) ([]byte, error)
	ContractRequest(ctx context.Context, recipient string, resourceIDs, artifactIDs []string, permissions []map[string]any, download bool) (string, error)

	Search(ctx context.Context, recipient, text string, limit, offset int) (string, error)
	Query(ctx context.Context, recipient, sparql string) (int, string, error)
	ConnectorUpdate(ctx context.Context, recipient string) error
	ResourceUpdate(ctx context.Context, recipient, resourceIRI string) error
}

// New creates a connector client for the given base URL using basic auth.
func New(logger zerolog.Logger, baseURL, username, password string) Client {
	return &connectorClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		log:      logger,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
	}
}

type connectorClient struct {
	baseURL  string
	username string
	password string

	log        zerolog.Logger
	httpClient http.Client
}

func (c *connectorClient) do(ctx context.Context, method, rawURL string, params url.Values, contentType string, body []byte) (int, []byte, error) {
	var err error
	ctx, span := tracer.Start(ctx, "connector-request")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	requestURL := rawURL
	if len(params) > 0 {
		requestURL = rawURL + "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.SetBasicAuth(c.username, c.password)
	if contentType != "" {
		req.Header.Add("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request to %s: %w", requestURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, respBody, nil
}

// doChecked wraps do and converts every non-2xx status into an *Error.
func (c *connectorClient) doChecked(ctx context.Context, method, rawURL string, params url.Values, contentType string, body []byte) ([]byte, error) {
	status, respBody, err := c.do(ctx, method, rawURL, params, contentType, body)
	if err != nil {
		return nil, err
	}

	if status >= http.StatusMultipleChoices {
		log := logging.GetFromContext(ctx)
		log.Error().Msgf("connector returned status %d for %s %s", status, method, rawURL)
		return nil, &Error{StatusCode: status, Body: string(respBody), URL: rawURL}
	}

	return respBody, nil
}

type halLinks struct {
	Links struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"_links"`
}

func selfLink(body []byte) (string, error) {
	doc := halLinks{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("failed to unmarshal connector response: %w", err)
	}
	if doc.Links.Self.Href == "" {
		return "", fmt.Errorf("connector response carries no self link")
	}
	return doc.Links.Self.Href, nil
}

func (c *connectorClient) create(ctx context.Context, path string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	respBody, err := c.doChecked(ctx, http.MethodPost, c.baseURL+path, nil, "application/json", body)
	if err != nil {
		return "", err
	}

	return selfLink(respBody)
}

func (c *connectorClient) update(ctx context.Context, iri string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = c.doChecked(ctx, http.MethodPut, iri, nil, "application/json", body)
	return err
}

// link POSTs a list of child IRIs to a parent relation endpoint.
func (c *connectorClient) link(ctx context.Context, parentIRI, relation string, childIRIs []string) error {
	body, err := json.Marshal(childIRIs)
	if err != nil {
		return fmt.Errorf("failed to marshal link payload: %w", err)
	}

	_, err = c.doChecked(ctx, http.MethodPost, parentIRI+"/"+relation, nil, "application/json", body)
	return err
}

func offerPayload(offer *domain.Offer) map[string]any {
	payload := map[string]any{
		"title":       offer.Title,
		"description": offer.Description,
		"keywords":    offer.Keywords,
		"publisher":   offer.Publisher,
		"language":    "EN",
		"license":     offer.License,
	}
	if offer.AccessURL != "" {
		payload["endpointDocumentation"] = offer.AccessURL
	}
	return payload
}

func representationPayload(res *domain.PackageResource) map[string]any {
	mediaType := res.Mimetype
	if mediaType == "" {
		mediaType = res.Format
	}
	return map[string]any{
		"title":     res.Name,
		"mediaType": mediaType,
		"language":  "EN",
	}
}

func artifactPayload(accessURL string, res *domain.PackageResource) map[string]any {
	return map[string]any{
		"title":       res.Name,
		"description": res.Description,
		"accessUrl":   accessURL,
	}
}

func contractPayload(contract *domain.ContractRequest) map[string]any {
	payload := map[string]any{
		"title": contract.Title,
	}
	if contract.Start != nil {
		payload["start"] = contract.Start.Format(time.RFC3339)
	}
	if contract.End != nil {
		payload["end"] = contract.End.Format(time.RFC3339)
	}
	return payload
}

func (c *connectorClient) CreateCatalog(ctx context.Context, title string) (string, error) {
	return c.create(ctx, "/api/catalogs", map[string]any{"title": title})
}

func (c *connectorClient) GetCatalogs(ctx context.Context) ([]string, error) {
	respBody, err := c.doChecked(ctx, http.MethodGet, c.baseURL+"/api/catalogs", nil, "", nil)
	if err != nil {
		return nil, err
	}

	doc := struct {
		Embedded struct {
			Catalogs []halLinks `json:"catalogs"`
		} `json:"_embedded"`
	}{}

	if err := json.Unmarshal(respBody, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalogs response: %w", err)
	}

	iris := make([]string, 0, len(doc.Embedded.Catalogs))
	for _, cat := range doc.Embedded.Catalogs {
		iris = append(iris, cat.Links.Self.Href)
	}

	return iris, nil
}

func (c *connectorClient) CreateOfferedResource(ctx context.Context, offer *domain.Offer) (string, error) {
	return c.create(ctx, "/api/offers", offerPayload(offer))
}

func (c *connectorClient) UpdateOfferedResource(ctx context.Context, iri string, offer *domain.Offer) error {
	return c.update(ctx, iri, offerPayload(offer))
}

func (c *connectorClient) CreateRepresentation(ctx context.Context, res *domain.PackageResource) (string, error) {
	return c.create(ctx, "/api/representations", representationPayload(res))
}

func (c *connectorClient) UpdateRepresentation(ctx context.Context, iri string, res *domain.PackageResource) error {
	return c.update(ctx, iri, representationPayload(res))
}

func (c *connectorClient) CreateArtifact(ctx context.Context, accessURL string, res *domain.PackageResource) (string, error) {
	return c.create(ctx, "/api/artifacts", artifactPayload(accessURL, res))
}

func (c *connectorClient) UpdateArtifact(ctx context.Context, iri string, accessURL string, res *domain.PackageResource) error {
	return c.update(ctx, iri, artifactPayload(accessURL, res))
}

func (c *connectorClient) CreateContract(ctx context.Context, contract *domain.ContractRequest) (string, error) {
	return c.create(ctx, "/api/contracts", contractPayload(contract))
}

func (c *connectorClient) CreateRule(ctx context.Context, rule json.RawMessage) (string, error) {
	respBody, err := c.doChecked(ctx, http.MethodPost, c.baseURL+"/api/rules", nil, "application/json", rule)
	if err != nil {
		return "", err
	}
	return selfLink(respBody)
}

func (c *connectorClient) AddRuleToContract(ctx context.Context, contractIRI string, ruleIRIs []string) error {
	return c.link(ctx, contractIRI, "rules", ruleIRIs)
}

func (c *connectorClient) AddContractToResource(ctx context.Context, resourceIRI, contractIRI string) error {
	return c.link(ctx, resourceIRI, "contracts", []string{contractIRI})
}

func (c *connectorClient) AddResourceToCatalog(ctx context.Context, catalogIRI, resourceIRI string) error {
	return c.link(ctx, catalogIRI, "offers", []string{resourceIRI})
}

func (c *connectorClient) AddRepresentationToResource(ctx context.Context, resourceIRI, representationIRI string) error {
	return c.link(ctx, resourceIRI, "representations", []string{representationIRI})
}

func (c *connectorClient) AddArtifactToRepresentation(ctx context.Context, representationIRI, artifactIRI string) error {
	return c.link(ctx, representationIRI, "artifacts", []string{artifactIRI})
}

func (c *connectorClient) ResourceExists(ctx context.Context, iri string) bool {
	status, _, err := c.do(ctx, http.MethodGet, iri, nil, "", nil)
	if err != nil {
		return false
	}
	return status < http.StatusMultipleChoices
}

func (c *connectorClient) delete(ctx context.Context, iri string) error {
	_, err := c.doChecked(ctx, http.MethodDelete, iri, nil, "", nil)
	return err
}

func (c *connectorClient) DeleteOfferedResource(ctx context.Context, iri string) error {
	return c.delete(ctx, iri)
}

func (c *connectorClient) DeleteRepresentation(ctx context.Context, iri string) error {
	return c.delete(ctx, iri)
}

func (c *connectorClient) DeleteArtifact(ctx context.Context, iri string) error {
	return c.delete(ctx, iri)
}

func (c *connectorClient) GetArtifact(ctx context.Context, iri string) (*Artifact, error) {
	respBody, err := c.doChecked(ctx, http.MethodGet, iri, nil, "", nil)
	if err != nil {
		return nil, err
	}

	doc := struct {
		halLinks
		Title       string `json:"title"`
		Description string `json:"description"`
	}{}

	if err := json.Unmarshal(respBody, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact response: %w", err)
	}

	return &Artifact{IRI: doc.Links.Self.Href, Title: doc.Title, Description: doc.Description}, nil
}

func (c *connectorClient) GetData(ctx context.Context, iri string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iri+"/data", nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to send request to %s: %w", iri, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, "", &Error{StatusCode: resp.StatusCode, Body: string(body), URL: iri}
	}

	return resp.Body, resp.Header.Get("Content-Type"), nil
}

func (c *connectorClient) GetArtifactsForAgreement(ctx context.Context, agreementIRI string) ([]Artifact, error) {
	respBody, err := c.doChecked(ctx, http.MethodGet, agreementIRI+"/artifacts", nil, "", nil)
	if err != nil {
		return nil, err
	}

	doc := struct {
		Embedded struct {
			Artifacts []struct {
				halLinks
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"artifacts"`
		} `json:"_embedded"`
	}{}

	if err := json.Unmarshal(respBody, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agreement artifacts: %w", err)
	}

	artifacts := make([]Artifact, 0, len(doc.Embedded.Artifacts))
	for _, a := range doc.Embedded.Artifacts {
		artifacts = append(artifacts, Artifact{IRI: a.Links.Self.Href, Title: a.Title, Description: a.Description})
	}

	return artifacts, nil
}

func (c *connectorClient) DescriptionRequest(ctx context.Context, recipient, elementID string) ([]byte, error) {
	params := url.Values{"recipient": []string{recipient}}
	if elementID != "" {
		params.Set("elementId", elementID)
	}
	return c.doChecked(ctx, http.MethodPost, c.baseURL+"/api/ids/description", params, "", nil)
}

func (c *connectorClient) ContractRequest(ctx context.Context, recipient string, resourceIDs, artifactIDs []string, permissions []map[string]any, download bool) (string, error) {
	params := url.Values{
		"recipient":   []string{recipient},
		"resourceIds": resourceIDs,
		"artifactIds": artifactIDs,
		"download":    []string{strconv.FormatBool(download)},
	}

	body, err := json.Marshal(permissions)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions: %w", err)
	}

	respBody, err := c.doChecked(ctx, http.MethodPost, c.baseURL+"/api/ids/contract", params, "application/json", body)
	if err != nil {
		return "", err
	}

	return selfLink(respBody)
}

func (c *connectorClient) Search(ctx context.Context, recipient, text string, limit, offset int) (string, error) {
	params := url.Values{
		"recipient": []string{recipient},
		"limit":     []string{strconv.Itoa(limit)},
		"offset":    []string{strconv.Itoa(offset)},
	}

	respBody, err := c.doChecked(ctx, http.MethodPost, c.baseURL+"/api/ids/search", params, "text/plain", []byte(text))
	if err != nil {
		return "", err
	}

	if len(respBody) == 0 {
		return "", &Error{StatusCode: http.StatusOK, Body: "empty response body", URL: c.baseURL + "/api/ids/search"}
	}

	return string(respBody), nil
}

// Query POSTs a SPARQL query and returns the raw status and body without
// interpreting the outcome. The broker uses 417 to signal an empty index
// for this connector, which callers need to see.
func (c *connectorClient) Query(ctx context.Context, recipient, sparql string) (int, string, error) {
	params := url.Values{"recipient": []string{recipient}}

	status, respBody, err := c.do(ctx, http.MethodPost, c.baseURL+"/api/ids/query", params, "text/plain", []byte(sparql))
	if err != nil {
		return 0, "", err
	}

	return status, string(respBody), nil
}

func (c *connectorClient) ConnectorUpdate(ctx context.Context, recipient string) error {
	params := url.Values{"recipient": []string{recipient}}
	_, err := c.doChecked(ctx, http.MethodPost, c.baseURL+"/api/ids/connector/update", params, "", nil)
	return err
}

func (c *connectorClient) ResourceUpdate(ctx context.Context, recipient, resourceIRI string) error {
	params := url.Values{
		"recipient":  []string{recipient},
		"resourceId": []string{resourceIRI},
	}
	_, err := c.doChecked(ctx, http.MethodPost, c.baseURL+"/api/ids/resource/update", params, "", nil)
	return err
}
