package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/rs/zerolog"

	"github.com/trusts-eu/catalog-connector/internal/pkg/application/services/connector"
)

func TestAnnounceIsSkippedWhileFresh(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	is.True(svc.AnnounceToBroker(context.Background()))
	is.True(svc.AnnounceToBroker(context.Background()))

	is.Equal(mock.calls["/api/ids/query"], 1)
	is.Equal(mock.calls["/api/ids/connector/update"], 0)
}

func TestAnnounceAgainAfterTTLExpiry(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", 1*time.Nanosecond)

	is.True(svc.AnnounceToBroker(context.Background()))
	is.True(svc.AnnounceToBroker(context.Background()))

	is.Equal(mock.calls["/api/ids/query"], 2)
}

func TestAnnounceSendsConnectorUpdateOn417WithEmptyBody(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	mock.queryStatus = http.StatusExpectationFailed
	mock.queryBody = "the result set is EMPTY"

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	is.True(svc.AnnounceToBroker(context.Background()))
	is.Equal(mock.calls["/api/ids/connector/update"], 1)
	is.True(svc.IsFresh())
}

func TestAnnounceSendsConnectorUpdateOnResultSetWithoutRows(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	mock.queryBody = "?resultUri\n"

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	is.True(svc.AnnounceToBroker(context.Background()))
	is.Equal(mock.calls["/api/ids/connector/update"], 1)
}

func TestAnnounceRefreshesOnTransientBrokerError(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	mock.queryStatus = http.StatusInternalServerError
	mock.queryBody = "broker exploded"

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	is.True(svc.AnnounceToBroker(context.Background()))
	is.Equal(mock.calls["/api/ids/connector/update"], 0)
	is.True(svc.IsFresh())
}

func TestAnnounceFailsWhenConnectorIsUnreachable(t *testing.T) {
	is, mock := testSetup(t)
	mock.svr.Close()

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	is.True(!svc.AnnounceToBroker(context.Background()))
	is.True(!svc.IsFresh())
}

func TestQueryBrokerReturnsTypedErrorOnFailureStatus(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	mock.queryStatus = http.StatusInternalServerError
	mock.queryBody = "broker exploded"

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	_, err := svc.QueryBroker(context.Background(), "SELECT ?s WHERE { ?s ?p ?o }")
	is.True(err != nil)

	connErr := &connector.Error{}
	is.True(errors.As(err, &connErr))
	is.Equal(connErr.StatusCode, http.StatusInternalServerError)
}

func TestAskBrokerForDescriptionShortCircuitsOnNonURIs(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	g, err := svc.AskBrokerForDescription(context.Background(), "abc")
	is.NoErr(err)
	is.Equal(len(g.Nodes), 0)
	is.Equal(mock.calls["/api/ids/description"], 0)
}

func TestAskBrokerForDescriptionParsesTheGraph(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	g, err := svc.AskBrokerForDescription(context.Background(), "https://broker/catalog/resource/1")
	is.NoErr(err)
	is.Equal(len(g.Nodes), 1)
}

func TestSendResourceToBroker(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	is.True(svc.SendResourceToBroker(context.Background(), "https://connector/api/offers/1"))
	is.Equal(mock.calls["/api/ids/resource/update"], 1)
}

func TestSearchFiltersOnResourceClassAndDeduplicates(t *testing.T) {
	is, mock := testSetup(t)
	defer mock.svr.Close()

	mock.queryBody = searchResultRows

	svc := New(zerolog.Nop(), mock.client(), mock.svr.URL, "localnode", "https://catalog.example.com", DefaultAnnounceTTL)

	records, err := svc.Search(context.Background(), "*:*", nil, 0)
	is.NoErr(err)

	is.Equal(len(records), 1)
	is.Equal(records[0].ID, "https://broker/catalog/resource/1")
	is.Equal(records[0].Title, "Air Quality")
	is.Equal(records[0].Type, "dataset")
}

type mockConnectorBackend struct {
	svr *httptest.Server

	queryStatus int
	queryBody   string

	calls map[string]int
}

func (m *mockConnectorBackend) client() connector.Client {
	return connector.New(zerolog.Nop(), m.svr.URL, "testuser", "testpass")
}

func testSetup(t *testing.T) (*is.I, *mockConnectorBackend) {
	is := is.New(t)

	mock := &mockConnectorBackend{
		queryStatus: http.StatusOK,
		queryBody:   "?resultUri\n<https://connector/api/offers/1>\n",
		calls:       map[string]int{},
	}

	mock.svr = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.calls[r.URL.Path]++

		switch r.URL.Path {
		case "/api/catalogs":
			w.Header().Add("Content-Type", "application/json")
			w.Write([]byte(catalogsResponse))
		case "/api/ids/query":
			w.WriteHeader(mock.queryStatus)
			w.Write([]byte(mock.queryBody))
		case "/api/ids/description":
			w.Header().Add("Content-Type", "application/ld+json")
			w.Write([]byte(descriptionResponse))
		case "/api/ids/connector/update", "/api/ids/resource/update":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	return is, mock
}

const catalogsResponse string = `{
	"_embedded": {
		"catalogs": [
			{ "_links": { "self": { "href": "https://connector/api/catalogs/6bdeff0c" } } }
		]
	}
}`

const descriptionResponse string = `{
	"@graph": [
		{
			"@id": "https://broker/catalog/resource/1",
			"@type": "ids:Resource",
			"sameAs": "https://provider:8080/api/offers/1234",
			"title": "Air Quality"
		}
	]
}`

const searchResultRows string = "?resultUri\t?type\t?title\t?description\t?assettype\t?externalname\t?license\n" +
	"<https://broker/catalog/resource/1>\t<https://w3id.org/idsa/core/Resource>\tAir Quality\tHourly readings\t<https://www.trusts-data.eu/ontology/Dataset>\t<https://provider:8080/api/offers/1234>\t<https://creativecommons.org/licenses/by/4.0>\n" +
	"<https://broker/catalog/resource/1>\t<https://w3id.org/idsa/core/Resource>\tAir Quality\tHourly readings\t<https://www.trusts-data.eu/ontology/Dataset>\t<https://provider:8080/api/offers/1234>\t<https://creativecommons.org/licenses/by/4.0>\n" +
	"<https://broker/catalog/resource/2>\t<https://w3id.org/idsa/core/Connector>\tSomething Else\tNot a resource\t<https://www.trusts-data.eu/ontology/Dataset>\t<https://other:8080/api/offers/9>\t<https://creativecommons.org/licenses/by/4.0>\n"
