package jsonld

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/trusts-eu/catalog-connector/internal/pkg/domain"
)

// Well known IDS vocabulary identifiers.
const (
	TypeResource       = "ids:Resource"
	TypeRepresentation = "ids:Representation"
	TypeArtifact       = "ids:Artifact"
	TypeContractOffer  = "ids:ContractOffer"
	TypePermission     = "ids:Permission"

	ResourceClassURI = "https://w3id.org/idsa/core/Resource"

	assetTypeDataset     = "https://www.trusts-data.eu/ontology/Dataset"
	assetTypeApplication = "https://www.trusts-data.eu/ontology/Application"
	assetTypeService     = "https://www.trusts-data.eu/ontology/Service"
)

// Node is one node of a JSON-LD graph.
type Node map[string]any

// Graph is the @graph member of a broker description response.
type Graph struct {
	Nodes []Node `json:"@graph"`
}

// Parse unmarshals a raw JSON-LD document into a Graph.
func Parse(raw []byte) (Graph, error) {
	g := Graph{}
	err := json.Unmarshal(raw, &g)
	if err != nil {
		return Graph{}, fmt.Errorf("failed to unmarshal json-ld graph: %w", err)
	}
	return g, nil
}

// NodesOfType returns the graph nodes whose @type matches.
func (g Graph) NodesOfType(nodeType string) []Node {
	nodes := []Node{}
	for _, n := range g.Nodes {
		if s, ok := n["@type"].(string); ok && s == nodeType {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func (n Node) str(key string) string {
	v, ok := n[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// CleanMultilang unwraps a language tagged JSON-LD value. Plain strings
// pass through, objects exposing @value yield that, anything else is
// stringified.
func CleanMultilang(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	if m, ok := value.(map[string]any); ok {
		if v, ok := m["@value"]; ok {
			return fmt.Sprint(v)
		}
	}
	return fmt.Sprint(value)
}

// AssetType maps a TRUSTS asset type URI onto a catalog package type.
func AssetType(typeURI string) (string, error) {
	switch typeURI {
	case assetTypeDataset:
		return "dataset", nil
	case assetTypeApplication:
		return "application", nil
	case assetTypeService:
		return "service", nil
	}
	return "", fmt.Errorf("unknown asset type %s, mapping failed", typeURI)
}

// ParseArtifacts returns the sameAs identifiers of all Artifact nodes.
func ParseArtifacts(g Graph) []string {
	ids := []string{}
	for _, n := range g.NodesOfType(TypeArtifact) {
		ids = append(ids, n.str("sameAs"))
	}
	return ids
}

// providerBaseURL keeps the first three /-separated segments of a URI,
// i.e. scheme plus authority.
func providerBaseURL(uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) < 3 {
		return uri
	}
	return strings.Join(parts[:3], "/")
}

func providerName(uri string) string {
	parts := strings.Split(uri, "/")
	if len(parts) < 3 {
		return uri
	}
	return strings.SplitN(parts[2], ":", 2)[0]
}

// ParseContracts extracts one record per ContractOffer node of a broker
// description graph. The caller must have verified that the graph is
// non-empty: indexing the primary Resource assumes at least one exists.
func ParseContracts(g Graph, brokerResourceURI string) []domain.ContractOfferRecord {
	contractNodes := g.NodesOfType(TypeContractOffer)
	if len(contractNodes) == 0 {
		return []domain.ContractOfferRecord{}
	}

	resourceNodes := g.NodesOfType(TypeResource)
	permissionNodes := g.NodesOfType(TypePermission)
	artifactNodes := g.NodesOfType(TypeArtifact)

	resourceURI := resourceNodes[0].str("sameAs")

	permissionsByID := map[string]Node{}
	for _, p := range permissionNodes {
		permissionsByID[p.str("@id")] = p
	}

	artifactIDs := make([]string, 0, len(artifactNodes))
	for _, a := range artifactNodes {
		artifactIDs = append(artifactIDs, a.str("sameAs"))
	}

	records := []domain.ContractOfferRecord{}

	for _, cn := range contractNodes {
		policies := []domain.Policy{}
		for _, permID := range normalizeIDList(cn["permission"]) {
			perm, ok := permissionsByID[permID]
			if !ok {
				continue
			}
			code := strings.ToUpper(perm.str("description"))
			code = strings.ReplaceAll(code, "-", "_")
			policies = append(policies, domain.Policy{Type: code})
		}

		records = append(records, domain.ContractOfferRecord{
			Policies:          policies,
			ContractStart:     cn.str("contractStart"),
			ContractEnd:       cn.str("contractEnd"),
			Title:             CleanMultilang(resourceNodes[0]["title"]),
			ProviderURL:       providerBaseURL(resourceURI),
			ResourceID:        resourceURI,
			ArtifactID:        artifactNodes[0].str("sameAs"),
			ArtifactIDs:       artifactIDs,
			ContractID:        cn.str("sameAs"),
			BrokerResourceURI: brokerResourceURI,
		})
	}

	return records
}

// normalizeIDList turns a single reference or a list of references into a
// flat list of @id strings.
func normalizeIDList(v any) []string {
	switch ref := v.(type) {
	case string:
		return []string{ref}
	case []any:
		ids := make([]string, 0, len(ref))
		for _, r := range ref {
			ids = append(ids, refID(r))
		}
		return ids
	case map[string]any:
		return []string{refID(ref)}
	}
	return nil
}

func refID(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["@id"].(string); ok {
			return id
		}
	}
	return fmt.Sprint(v)
}

func lastPathSegment(uri string) string {
	parts := strings.Split(uri, "/")
	return parts[len(parts)-1]
}

// ParseCatalogRecord builds a package-shaped record from a full broker
// description graph. Returns nil when the primary Resource node lacks a
// theme, which signals an incomplete stub graph.
func ParseCatalogRecord(g Graph, siteURL string) *domain.CatalogRecord {
	resourceNodes := g.NodesOfType(TypeResource)
	if len(resourceNodes) == 0 {
		return nil
	}

	primary := resourceNodes[0]
	if _, ok := primary["theme"]; !ok {
		return nil
	}

	representationNodes := g.NodesOfType(TypeRepresentation)
	artifactNodes := g.NodesOfType(TypeArtifact)

	resourceURI := primary.str("sameAs")
	orgName := providerName(resourceURI)
	baseURL := providerBaseURL(resourceURI)
	title := CleanMultilang(primary["title"])

	record := &domain.CatalogRecord{
		ID:               resourceURI,
		Name:             title,
		Title:            title,
		Description:      CleanMultilang(primary["description"]),
		LicenseID:        primary.str("standardLicense"),
		LicenseURL:       primary.str("standardLicense"),
		LicenseTitle:     primary.str("standardLicense"),
		MetadataCreated:  primary.str("created"),
		MetadataModified: primary.str("modified"),
		Type:             strings.ToLower(lastPathSegment(primary.str("asset_type"))),
		Theme:            lastPathSegment(primary.str("theme")),
		Version:          primary.str("version"),
		State:            "active",

		ExternalProviderName: orgName,
		ProviderBaseURL:      baseURL,
		ProcessExternalURL:   processExternalURL(siteURL, resourceURI),
	}

	record.Organisation = syntheticOrganisation(orgName)
	record.OwnerOrg = record.Organisation.ID

	for _, rep := range representationNodes {
		artifact, ok := artifactForRepresentation(artifactNodes, rep.str("instance"))
		if !ok {
			continue
		}

		record.Resources = append(record.Resources, domain.CatalogRecordResource{
			ID:               rep.str("@id"),
			Name:             artifact.str("fileName"),
			Description:      CleanMultilang(primary["description"]),
			URL:              rep.str("sameAs"),
			Format:           "EXTERNAL",
			Mimetype:         rep.str("mediaType"),
			Hash:             artifact.str("checkSum"),
			Size:             artifact.str("ids:byteSize"),
			PackageID:        resourceURI,
			Representation:   rep.str("sameAs"),
			Artifact:         artifact.str("@id"),
			Created:          primary.str("created"),
			LastModified:     primary.str("modified"),
			MetadataModified: rep.str("modified"),
			State:            "active",
			ResourceType:     "resource",
		})
	}

	record.NumResources = len(artifactNodes)

	return record
}

func artifactForRepresentation(artifacts []Node, instance string) (Node, bool) {
	for _, a := range artifacts {
		if a.str("@id") == instance {
			return a, true
		}
	}
	return nil, false
}

func processExternalURL(siteURL, resourceURI string) string {
	return siteURL + "/ids/processExternal?uri=" + url.QueryEscape(resourceURI)
}

func syntheticOrganisation(name string) domain.Organisation {
	return domain.Organisation{
		ID:             uuid.NewString(),
		Name:           name,
		Title:          name,
		Type:           "organization",
		IsOrganisation: true,
		ApprovalStatus: "approved",
		State:          "active",
	}
}

// StripAngles removes the surrounding <> of an N3 serialized IRI.
func StripAngles(uri string) string {
	if strings.HasPrefix(uri, "<") && strings.HasSuffix(uri, ">") {
		return uri[1 : len(uri)-1]
	}
	return uri
}

// RecordFromQueryRow builds a stub catalog record from one row of the
// general broker SELECT query. URI columns arrive N3 wrapped and are
// stripped here; the full description graph is only fetched on demand.
func RecordFromQueryRow(row map[string]string, siteURL string) *domain.CatalogRecord {
	resultURI := StripAngles(row["resultUri"])
	assetType := StripAngles(row["assettype"])
	externalName := StripAngles(row["externalname"])
	license := StripAngles(row["license"])

	orgName := providerName(externalName)
	title := CleanMultilang(row["title"])

	record := &domain.CatalogRecord{
		ID:               resultURI,
		Name:             title,
		Title:            title,
		Description:      CleanMultilang(row["description"]),
		LicenseID:        license,
		LicenseURL:       license,
		LicenseTitle:     lastPathSegment(license),
		Type:             strings.ToLower(lastPathSegment(assetType)),
		State:            "active",

		ExternalProviderName: orgName,
		ProviderBaseURL:      providerBaseURL(externalName),
		ProcessExternalURL:   processExternalURL(siteURL, resultURI),
	}

	record.Organisation = syntheticOrganisation(orgName)
	record.OwnerOrg = record.Organisation.ID

	return record
}
