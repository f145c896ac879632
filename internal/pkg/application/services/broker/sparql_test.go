package broker

import (
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestN3DoesNotWrapTwice(t *testing.T) {
	is := is.New(t)

	is.Equal(n3("https://example.com/a"), "<https://example.com/a>")
	is.Equal(n3("<https://example.com/a>"), "<https://example.com/a>")
}

func TestAllResourcesQueryExcludesLocalNode(t *testing.T) {
	is := is.New(t)

	q := allResourcesQuery("localnode", "", "")
	is.True(strings.Contains(q, "FILTER (!regex(str(?externalname),\"localnode\",\"i\"))"))
	is.True(!strings.Contains(q, "values ?assettype"))
}

func TestAllResourcesQueryNarrowsOnAssetType(t *testing.T) {
	is := is.New(t)

	q := allResourcesQuery("localnode", "service", "")
	is.True(strings.Contains(q, "values ?assettype { <https://www.trusts-data.eu/ontology/Service> }"))
}

func TestAllResourcesQueryAddsFullTextFilter(t *testing.T) {
	is := is.New(t)

	q := allResourcesQuery("localnode", "", "air quality")
	is.True(strings.Contains(q, "FILTER regex(concat(?title, \" \",?description, \" \",str(?externalname)), \"air quality\", \"i\")"))
}

func TestResourcesInCatalogsQueryUnionsPerCatalog(t *testing.T) {
	is := is.New(t)

	q := resourcesInCatalogsQuery([]string{
		"https://connector/api/catalogs/1",
		"https://connector/api/catalogs/2",
	})

	is.True(strings.Contains(q, "{ <https://connector/api/catalogs/1> ids:offeredResource ?resultUri . }"))
	is.True(strings.Contains(q, "{ <https://connector/api/catalogs/2> ids:offeredResource ?resultUri . }"))
	is.Equal(strings.Count(q, "UNION"), 1)
}

func TestParseTabular(t *testing.T) {
	is := is.New(t)

	rows := ParseTabular("?resultUri\t?title\n\n<https://a>\tFirst\n<https://b>\tSecond\n")

	is.Equal(len(rows), 2)
	is.Equal(rows[0]["resultUri"], "<https://a>")
	is.Equal(rows[0]["title"], "First")
	is.Equal(rows[1]["resultUri"], "<https://b>")
}

func TestParseTabularToleratesShortRows(t *testing.T) {
	is := is.New(t)

	rows := ParseTabular("?resultUri\t?title\n<https://a>\n")

	is.Equal(len(rows), 1)
	is.Equal(rows[0]["resultUri"], "<https://a>")
	_, hasTitle := rows[0]["title"]
	is.True(!hasTitle)
}

func TestDescribeQueryBindsSameAsSubjects(t *testing.T) {
	is := is.New(t)

	q := describeQuery([]string{"https://provider/api/offers/1"})
	is.True(strings.Contains(q, "?s2 owl:sameAs <https://provider/api/offers/1> ."))
	is.True(strings.Contains(q, "UNION { <https://provider/api/offers/1> ?p ?o ."))
}

func TestCapitalize(t *testing.T) {
	is := is.New(t)

	is.Equal(capitalize("service"), "Service")
	is.Equal(capitalize("DATASET"), "Dataset")
	is.Equal(capitalize(""), "")
}
