package domain

import "time"

// Offer is the connector-side publication of one catalog package. OfferIRI
// and CatalogIRI are empty until the connector has assigned them.
type Offer struct {
	Title       string
	Description string
	Keywords    []string
	Publisher   string
	License     string
	AccessURL   string

	OfferIRI   string
	CatalogIRI string
}

// NewOffer builds an Offer from a catalog package, recovering any
// connector-assigned identifiers from the package extras.
func NewOffer(pkg *CatalogPackage) *Offer {
	offer := &Offer{
		Title:       pkg.Title,
		Description: pkg.Notes,
		Keywords:    pkg.Tags,
		Publisher:   pkg.OwnerOrg,
		License:     pkg.LicenseURL,
		AccessURL:   pkg.ServiceAccessURL,
	}

	for _, extra := range pkg.Extras {
		switch extra.Key {
		case "catalog":
			offer.CatalogIRI = extra.Value
		case "offers":
			offer.OfferIRI = extra.Value
		}
	}

	return offer
}

type Extra struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CatalogPackage is the host catalog's package record as consumed by the
// reconciler. The catalog owns the record; the reconciler only patches the
// representation and artifact identifiers back onto its resources.
type CatalogPackage struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Title            string            `json:"title"`
	Notes            string            `json:"notes"`
	LicenseURL       string            `json:"license_url"`
	OwnerOrg         string            `json:"owner_org"`
	Tags             []string          `json:"tags"`
	ServiceAccessURL string            `json:"service_accessURL,omitempty"`
	Extras           []Extra           `json:"extras"`
	Resources        []PackageResource `json:"resources"`
}

// Extra returns the value of the named extra and whether it was present.
func (p *CatalogPackage) Extra(key string) (string, bool) {
	for _, e := range p.Extras {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// PackageResource is one raw resource of a package, augmented with the
// connector identifiers stored as extras after each sync.
type PackageResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Format      string `json:"format"`
	Mimetype    string `json:"mimetype"`

	RepresentationIRI string `json:"representation,omitempty"`
	ArtifactIRI       string `json:"artifact,omitempty"`
	AccessURL         string `json:"service_accessURL,omitempty"`
	Type              string `json:"resource_type,omitempty"`
}

// UpsertExtras overwrites existing keys in place and appends new ones,
// preserving unrelated entries and their order.
func UpsertExtras(extras []Extra, updates ...Extra) []Extra {
	merged := make([]Extra, len(extras))
	copy(merged, extras)

	for _, update := range updates {
		found := false
		for i := range merged {
			if merged[i].Key == update.Key {
				merged[i].Value = update.Value
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, update)
		}
	}

	return merged
}

// Policy is one usage-control policy of a contract, rendered from a
// policy template.
type Policy struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ContractRequest is a validated usage contract to be published for a
// package.
type ContractRequest struct {
	PkgID    string     `json:"pkg_id"`
	Title    string     `json:"title"`
	Start    *time.Time `json:"contract_start"`
	End      *time.Time `json:"contract_end"`
	Policies []Policy   `json:"policies"`
}

// ContractOfferRecord is one remote contract offer parsed from a broker
// description graph.
type ContractOfferRecord struct {
	Policies          []Policy `json:"policies"`
	ContractStart     string   `json:"contract_start"`
	ContractEnd       string   `json:"contract_end"`
	Title             string   `json:"title"`
	ProviderURL       string   `json:"provider_url"`
	ResourceID        string   `json:"resourceId"`
	ArtifactID        string   `json:"artifactId"`
	ArtifactIDs       []string `json:"artifactIds"`
	ContractID        string   `json:"contractId"`
	BrokerResourceURI string   `json:"brokerResourceUri"`
}

// Agreement is the consumer-side record of a negotiated contract.
type Agreement struct {
	ID         string `json:"id"`
	ResourceID string `json:"resource_id"`
	UserID     string `json:"user_id"`
}

type Organisation struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Title          string `json:"title"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	ImageURL       string `json:"image_url"`
	Created        string `json:"created"`
	IsOrganisation bool   `json:"is_organization"`
	ApprovalStatus string `json:"approval_status"`
	State          string `json:"state"`
}

// CatalogRecord is a package-shaped search result built from broker
// metadata, mergeable into the host catalog's search output.
type CatalogRecord struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Title            string `json:"title"`
	Description      string `json:"description"`
	LicenseID        string `json:"license_id,omitempty"`
	LicenseURL       string `json:"license_url,omitempty"`
	LicenseTitle     string `json:"license_title,omitempty"`
	MetadataCreated  string `json:"metadata_created"`
	MetadataModified string `json:"metadata_modified"`
	Type             string `json:"type"`
	Theme            string `json:"theme"`
	Version          string `json:"version"`
	State            string `json:"state"`
	Private          bool   `json:"private"`

	ExternalProviderName string `json:"external_provider_name"`
	ProviderBaseURL      string `json:"provider_base_url"`
	ProcessExternalURL   string `json:"to_process_external"`

	Organisation Organisation            `json:"organization"`
	OwnerOrg     string                  `json:"owner_org"`
	Resources    []CatalogRecordResource `json:"resources"`
	NumResources int                     `json:"num_resources"`
}

// CatalogRecordResource joins one remote Representation with its Artifact.
type CatalogRecordResource struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	URL              string `json:"url"`
	Format           string `json:"format"`
	Mimetype         string `json:"mimetype"`
	Hash             string `json:"hash"`
	Size             string `json:"size"`
	PackageID        string `json:"package_id"`
	Representation   string `json:"representation"`
	Artifact         string `json:"artifact"`
	Created          string `json:"created"`
	LastModified     string `json:"last_modified"`
	MetadataModified string `json:"metadata_modified"`
	State            string `json:"state"`
	ResourceType     string `json:"resource_type"`
}
