package jsonld

import (
	"testing"

	"github.com/matryer/is"
)

func TestCleanMultilangUnwrapsLanguageTaggedValues(t *testing.T) {
	is := is.New(t)

	is.Equal(CleanMultilang("plain title"), "plain title")
	is.Equal(CleanMultilang(map[string]any{"@value": "tagged title", "@language": "en"}), "tagged title")
	is.Equal(CleanMultilang(float64(42)), "42")
}

func TestAssetTypeMapsKnownURIs(t *testing.T) {
	is := is.New(t)

	for uri, expected := range map[string]string{
		"https://www.trusts-data.eu/ontology/Dataset":     "dataset",
		"https://www.trusts-data.eu/ontology/Application": "application",
		"https://www.trusts-data.eu/ontology/Service":     "service",
	} {
		pkgType, err := AssetType(uri)
		is.NoErr(err)
		is.Equal(pkgType, expected)
	}

	_, err := AssetType("https://www.trusts-data.eu/ontology/Widget")
	is.True(err != nil)
}

func TestParseArtifactsReturnsSameAsIdentifiers(t *testing.T) {
	is := is.New(t)

	g, err := Parse([]byte(descriptionGraph))
	is.NoErr(err)

	artifacts := ParseArtifacts(g)
	is.Equal(len(artifacts), 1)
	is.Equal(artifacts[0], "https://provider:8080/api/artifacts/42")
}

func TestParseContractsNormalizesSinglePermission(t *testing.T) {
	is := is.New(t)

	g, err := Parse([]byte(descriptionGraph))
	is.NoErr(err)

	records := ParseContracts(g, "https://broker/catalog/resource/1")
	is.Equal(len(records), 1)

	record := records[0]
	is.Equal(record.ContractID, "https://provider:8080/api/contracts/9")
	is.Equal(record.ResourceID, "https://provider:8080/api/offers/1234")
	is.Equal(record.ArtifactID, "https://provider:8080/api/artifacts/42")
	is.Equal(record.ProviderURL, "https://provider:8080")
	is.Equal(record.BrokerResourceURI, "https://broker/catalog/resource/1")
	is.Equal(record.Title, "Test Dataset")

	is.Equal(len(record.Policies), 1)
	is.Equal(record.Policies[0].Type, "PROVIDE_ACCESS")
}

func TestParseContractsReturnsEmptyListWithoutOffers(t *testing.T) {
	is := is.New(t)

	g, err := Parse([]byte(stubGraph))
	is.NoErr(err)

	records := ParseContracts(g, "https://broker/catalog/resource/1")
	is.Equal(len(records), 0)
}

func TestParseCatalogRecordReturnsNilWithoutTheme(t *testing.T) {
	is := is.New(t)

	g, err := Parse([]byte(stubGraph))
	is.NoErr(err)

	record := ParseCatalogRecord(g, "https://consumer.example.com")
	is.Equal(record, nil)
}

func TestParseCatalogRecordJoinsRepresentationsWithArtifacts(t *testing.T) {
	is := is.New(t)

	g, err := Parse([]byte(descriptionGraph))
	is.NoErr(err)

	record := ParseCatalogRecord(g, "https://consumer.example.com")
	is.True(record != nil)

	is.Equal(record.ID, "https://provider:8080/api/offers/1234")
	is.Equal(record.Title, "Test Dataset")
	is.Equal(record.Type, "dataset")
	is.Equal(record.Theme, "SCIENCE")
	is.Equal(record.ExternalProviderName, "provider")
	is.Equal(record.ProviderBaseURL, "https://provider:8080")
	is.Equal(record.State, "active")
	is.Equal(record.OwnerOrg, record.Organisation.ID)

	is.Equal(len(record.Resources), 1)
	res := record.Resources[0]
	is.Equal(res.URL, "https://provider:8080/api/representations/77")
	is.Equal(res.Name, "data.csv")
	is.Equal(res.Mimetype, "text/csv")
	is.Equal(res.Hash, "abc123")
	is.Equal(res.Size, "2048")
	is.Equal(res.Artifact, "https://broker/artifact/1")
}

func TestRecordFromQueryRowStripsN3Wrapping(t *testing.T) {
	is := is.New(t)

	record := RecordFromQueryRow(map[string]string{
		"resultUri":    "<https://broker/catalog/resource/1>",
		"title":        "Air Quality Measurements",
		"description":  "Hourly readings",
		"assettype":    "<https://www.trusts-data.eu/ontology/Dataset>",
		"externalname": "<https://provider:8080/api/offers/1234>",
		"license":      "<https://creativecommons.org/licenses/by/4.0>",
	}, "https://consumer.example.com")

	is.Equal(record.ID, "https://broker/catalog/resource/1")
	is.Equal(record.Title, "Air Quality Measurements")
	is.Equal(record.Type, "dataset")
	is.Equal(record.ExternalProviderName, "provider")
	is.Equal(record.ProviderBaseURL, "https://provider:8080")
	is.Equal(record.LicenseTitle, "4.0")
	is.True(record.Organisation.ID != "")
}

func TestStripAngles(t *testing.T) {
	is := is.New(t)

	is.Equal(StripAngles("<https://example.com>"), "https://example.com")
	is.Equal(StripAngles("https://example.com"), "https://example.com")
}

const descriptionGraph string = `{
	"@graph": [
		{
			"@id": "https://broker/resource/1",
			"@type": "ids:Resource",
			"sameAs": "https://provider:8080/api/offers/1234",
			"title": { "@language": "en", "@value": "Test Dataset" },
			"description": "A dataset used in tests",
			"theme": "https://example.org/themes/SCIENCE",
			"asset_type": "https://www.trusts-data.eu/ontology/Dataset",
			"standardLicense": "https://creativecommons.org/licenses/by/4.0",
			"created": "2023-01-10T08:00:00Z",
			"modified": "2023-02-01T09:30:00Z",
			"version": "1"
		},
		{
			"@id": "https://broker/representation/1",
			"@type": "ids:Representation",
			"sameAs": "https://provider:8080/api/representations/77",
			"mediaType": "text/csv",
			"instance": "https://broker/artifact/1",
			"modified": "2023-02-01T09:30:00Z"
		},
		{
			"@id": "https://broker/artifact/1",
			"@type": "ids:Artifact",
			"sameAs": "https://provider:8080/api/artifacts/42",
			"fileName": "data.csv",
			"checkSum": "abc123",
			"ids:byteSize": 2048
		},
		{
			"@id": "https://broker/contract/1",
			"@type": "ids:ContractOffer",
			"sameAs": "https://provider:8080/api/contracts/9",
			"permission": { "@id": "https://broker/permission/1" },
			"contractStart": "2023-01-01T00:00:00Z",
			"contractEnd": "2024-01-01T00:00:00Z"
		},
		{
			"@id": "https://broker/permission/1",
			"@type": "ids:Permission",
			"description": "provide-access"
		}
	]
}`

const stubGraph string = `{
	"@graph": [
		{
			"@id": "https://broker/resource/1",
			"@type": "ids:Resource",
			"sameAs": "https://provider:8080/api/offers/1234",
			"title": "Stub"
		}
	]
}`
